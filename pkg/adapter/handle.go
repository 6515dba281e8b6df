package adapter

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fileHandle is the open-file state FUSE threads through Read, Write,
// Flush, Getattr, Setattr, and Release. Content operations delegate to
// the engine, keyed by the owning node's engine path; f is the shadow
// metadata file, used for Getattr/Setattr/Release, and in pass-through
// mode (no engine) also for Read and Write.
type fileHandle struct {
	node *Node
	f    *os.File
}

var (
	_ fs.FileReader    = (*fileHandle)(nil)
	_ fs.FileWriter    = (*fileHandle)(nil)
	_ fs.FileFlusher   = (*fileHandle)(nil)
	_ fs.FileReleaser  = (*fileHandle)(nil)
	_ fs.FileGetattrer = (*fileHandle)(nil)
	_ fs.FileSetattrer = (*fileHandle)(nil)
)

// Read serves dest from the striping engine, or, with zero storage node
// endpoints configured (h.node.eng == nil per §6's pass-through mode),
// directly from the shadow file itself.
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if h.node.eng == nil {
		n, err := h.f.ReadAt(dest, off)
		if err != nil && err != io.EOF {
			return nil, errnoOf(err)
		}
		return fuse.ReadResultData(dest[:n]), fs.OK
	}
	n, err := h.node.eng.Read(h.node.enginePath(), dest, off)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(dest[:n]), fs.OK
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if h.node.eng == nil {
		n, err := h.f.WriteAt(data, off)
		if err != nil {
			return 0, errnoOf(err)
		}
		return uint32(n), fs.OK
	}
	n, err := h.node.eng.Write(h.node.enginePath(), data, off)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(n), fs.OK
}

// Flush drives the write buffer's flush contract on close(2). It may be
// called more than once for a duplicated descriptor; flushing an
// already-flushed buffer is a no-op. In pass-through mode there is no
// write buffer to drive; the shadow file has already received every
// write directly.
func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	if h.node.eng == nil {
		return fs.OK
	}
	if err := h.node.eng.Flush(h.node.enginePath()); err != nil {
		return errnoOf(err)
	}
	return fs.OK
}

// Release closes the shadow file handle. The engine's own state for
// this path (buffer, cache, window) outlives the handle, since another
// open of the same path must see what this one flushed.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	if h.f == nil {
		return fs.OK
	}
	err := h.f.Close()
	h.f = nil
	return errnoOf(err)
}

func (h *fileHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	if h.f == nil {
		return syscall.EBADF
	}
	fi, err := h.f.Stat()
	if err != nil {
		return errnoOf(err)
	}
	attrFromFileInfo(&out.Attr, fi, h.node.EmbeddedInode().StableAttr().Ino)
	out.SetTimeout(attrCacheTimeout)
	return fs.OK
}

func (h *fileHandle) Setattr(ctx context.Context, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if h.f == nil {
		return syscall.EBADF
	}
	if size, ok := in.GetSize(); ok {
		h.node.eng.Invalidate(h.node.enginePath())
		if err := h.f.Truncate(int64(size)); err != nil {
			return errnoOf(err)
		}
	}

	fi, err := h.f.Stat()
	if err != nil {
		return errnoOf(err)
	}
	attrFromFileInfo(&out.Attr, fi, h.node.EmbeddedInode().StableAttr().Ino)
	out.SetTimeout(attrCacheTimeout)
	return fs.OK
}
