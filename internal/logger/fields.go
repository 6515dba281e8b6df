package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the node server,
// connection pool, and striping engine. Use these keys consistently so
// log lines can be aggregated and queried uniformly.
const (
	// Connection & request correlation
	KeyConnectionID = "connection_id" // per-connection correlation id (node server)
	KeyClientAddr   = "client_addr"   // remote address of a node connection
	KeyNodeIndex    = "node_index"    // endpoint/node index in the connection pool
	KeyFragmentID   = "fragment_id"   // fragment index within a file (0..N-1)

	// File identity & I/O
	KeyPath   = "path"   // logical file path
	KeyOffset = "offset" // byte offset of an operation
	KeySize   = "size"   // byte count requested or returned

	// Operation metadata
	KeyOperation  = "operation"   // WRITE, READ, DELETE, FLUSH, ...
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // POSIX-style errno surfaced to the caller
	KeyAttempt    = "attempt"     // retry/reconnect attempt number

	// Cache / window
	KeyCacheHit = "cache_hit" // read cache or read-ahead window hit indicator
)

// ConnectionID returns a slog.Attr for a connection correlation id.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// ClientAddr returns a slog.Attr for a connection's remote address.
func ClientAddr(addr string) slog.Attr { return slog.String(KeyClientAddr, addr) }

// NodeIndex returns a slog.Attr for an endpoint/node index.
func NodeIndex(i int) slog.Attr { return slog.Int(KeyNodeIndex, i) }

// FragmentID returns a slog.Attr for a fragment index.
func FragmentID(id uint32) slog.Attr { return slog.Any(KeyFragmentID, id) }

// Path returns a slog.Attr for a logical file path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Offset returns a slog.Attr for a byte offset.
func Offset(off int64) slog.Attr { return slog.Int64(KeyOffset, off) }

// Size returns a slog.Attr for a byte count.
func Size(n uint64) slog.Attr { return slog.Uint64(KeySize, n) }

// Operation returns a slog.Attr for an operation name.
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a no-op attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric errno-style error code.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Attempt returns a slog.Attr for a retry/reconnect attempt number.
func Attempt(n int) slog.Attr { return slog.Int(KeyAttempt, n) }

// CacheHit returns a slog.Attr for a cache/window hit indicator.
func CacheHit(hit bool) slog.Attr { return slog.Bool(KeyCacheHit, hit) }
