// Package node implements the storage node server: it binds a TCP port,
// accepts connections, and spawns one worker goroutine per connection.
// Each worker serves WRITE, READ, and DELETE requests against fragment
// files held in a local storage directory.
package node

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nmsu-cs/bbfs/internal/logger"
	"github.com/nmsu-cs/bbfs/pkg/metrics"
	"github.com/nmsu-cs/bbfs/pkg/wire"
)

// Server serves the fragment-storage protocol over TCP for one storage
// directory.
type Server struct {
	storageDir string
	metrics    *metrics.Node

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
	conns    map[net.Conn]struct{}
}

// New creates a Server rooted at storageDir, creating the directory if it
// doesn't already exist. m may be nil to disable metrics.
func New(storageDir string, m *metrics.Node) (*Server, error) {
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("node: create storage dir %q: %w", storageDir, err)
	}
	return &Server{storageDir: storageDir, metrics: m, conns: make(map[net.Conn]struct{})}, nil
}

// ListenAndServe binds addr (host:port, or :port for all interfaces) and
// serves connections until Close is called or an unrecoverable accept
// error occurs.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections from ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("node server listening", "addr", ln.Addr().String(), "storage_dir", s.storageDir)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("node: accept: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// Close stops accepting new connections, severs every connection already
// accepted (so a killed node genuinely stops answering in-flight clients
// rather than continuing to serve accepted sockets indefinitely), and
// returns without waiting for the workers; Serve waits for them before it
// returns.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	return err
}

// handleConnection serves requests on conn until a receive error or
// connection closure, per spec §4.2: "a receive error or connection
// closure terminates the worker, which closes its socket."
func (s *Server) handleConnection(conn net.Conn) {
	connID := uuid.NewString()
	defer conn.Close()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	logger.Debug("connection opened", logger.ConnectionID(connID), logger.ClientAddr(conn.RemoteAddr().String()))

	for {
		req, err := wire.ReadRequestHeader(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug("connection closed by peer", logger.ConnectionID(connID))
			} else {
				logger.Warn("connection read error, closing", logger.ConnectionID(connID), logger.Err(err))
			}
			return
		}

		start := time.Now()
		ok := s.dispatch(connID, conn, &req)
		s.metrics.RecordRequest(req.Type.String(), ok, time.Since(start).Seconds())
		if !ok {
			// dispatch only returns false when the connection itself
			// failed: a response send, or receiving a WRITE payload.
			return
		}
	}
}

func (s *Server) fragmentPath(filename string, fragmentID uint32) string {
	clean := strings.TrimPrefix(filename, "/")
	return filepath.Join(s.storageDir, fmt.Sprintf("%s.frag%d", clean, fragmentID))
}

// dispatch handles one request/response pair. It returns false if the
// connection must be torn down (a send or a WRITE payload receive
// failed), true otherwise — even
// when the request itself failed at the application level (status=-1),
// since per spec §4.2 that keeps the connection open for more requests.
func (s *Server) dispatch(connID string, conn net.Conn, req *wire.RequestHeader) bool {
	filename := req.FilenameString()
	path := s.fragmentPath(filename, req.FragmentID)

	logger.Debug("request",
		logger.ConnectionID(connID),
		logger.Operation(req.Type.String()),
		logger.Path(path),
		logger.Size(req.Size),
		logger.Offset(req.Offset),
		logger.FragmentID(req.FragmentID))

	switch req.Type {
	case wire.ReqWrite:
		return s.handleWrite(conn, req, path)
	case wire.ReqRead:
		return s.handleRead(conn, req, path)
	case wire.ReqDelete:
		return s.handleDelete(conn, path)
	default:
		resp := wire.ResponseHeader{Status: -1, ErrorCode: int32(syscall.EINVAL)}
		return s.send(conn, &resp, nil)
	}
}

func (s *Server) handleWrite(conn net.Conn, req *wire.RequestHeader, path string) bool {
	if req.Size > wire.MaxPayloadSize {
		if err := drain(conn, req.Size); err != nil {
			return false
		}
		resp := wire.ResponseHeader{Status: -1, ErrorCode: int32(syscall.EFBIG)}
		return s.send(conn, &resp, nil)
	}

	payload, err := wire.ReadPayload(conn, req.Size)
	if err != nil {
		logger.Warn("write: payload receive failed", logger.Path(path), logger.Err(err))
		return false
	}

	// §4.2 / Q2: truncate iff offset == 0, so the first flush of a freshly
	// (re)created file clears whatever a prior generation left behind;
	// later flushes append.
	flags := os.O_WRONLY | os.O_CREATE
	if req.Offset == 0 {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		resp := wire.ResponseHeader{Status: -1, ErrorCode: errnoOf(err)}
		return s.send(conn, &resp, nil)
	}

	n, werr := f.WriteAt(payload, req.Offset)
	f.Close()

	if werr != nil {
		resp := wire.ResponseHeader{Status: -1, ErrorCode: errnoOf(werr)}
		return s.send(conn, &resp, nil)
	}

	s.metrics.RecordBytesStored(n)
	resp := wire.ResponseHeader{Status: 0, Size: uint64(n)}
	return s.send(conn, &resp, nil)
}

func (s *Server) handleRead(conn net.Conn, req *wire.RequestHeader, path string) bool {
	if req.Size > wire.MaxPayloadSize {
		resp := wire.ResponseHeader{Status: -1, ErrorCode: int32(syscall.EFBIG)}
		return s.send(conn, &resp, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		resp := wire.ResponseHeader{Status: -1, ErrorCode: errnoOf(err)}
		return s.send(conn, &resp, nil)
	}
	defer f.Close()

	buf := make([]byte, req.Size)
	n, rerr := f.ReadAt(buf, req.Offset)
	// A short read that hits EOF is not an error: it signals fragment EOF
	// per spec §4.2, and must be honored (not retried) by the client.
	if rerr != nil && !errors.Is(rerr, io.EOF) {
		resp := wire.ResponseHeader{Status: -1, ErrorCode: errnoOf(rerr)}
		return s.send(conn, &resp, nil)
	}

	s.metrics.RecordBytesServed(n)
	resp := wire.ResponseHeader{Status: 0, Size: uint64(n)}
	return s.send(conn, &resp, buf[:n])
}

func (s *Server) handleDelete(conn net.Conn, path string) bool {
	resp := wire.ResponseHeader{}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		resp.Status = -1
		resp.ErrorCode = errnoOf(err)
	}
	return s.send(conn, &resp, nil)
}

// send writes resp and an optional payload; any failure is fatal for the
// connection.
func (s *Server) send(conn net.Conn, resp *wire.ResponseHeader, payload []byte) bool {
	if err := wire.WriteResponseHeader(conn, resp); err != nil {
		logger.Warn("response send failed", logger.Err(err))
		return false
	}
	if len(payload) > 0 {
		if err := wire.WritePayload(conn, payload); err != nil {
			logger.Warn("payload send failed", logger.Err(err))
			return false
		}
	}
	return true
}

// drain reads and discards n bytes from conn, e.g. when rejecting an
// oversized WRITE after the header but before the payload has arrived.
func drain(conn net.Conn, n uint64) error {
	_, err := io.CopyN(io.Discard, conn, int64(n))
	return err
}

// errnoOf extracts a POSIX errno from a wrapped os/syscall error, falling
// back to EIO when the cause isn't a syscall.Errno.
func errnoOf(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return int32(syscall.EIO)
}
