package engine

import "errors"

// The engine's own sentinel errors, documented the way the teacher repo
// documents its pkg/blocks and pkg/metadata error codes: one var per
// condition, with a comment naming the condition and the errno the
// adapter surfaces it as. Unlike the teacher's protocol-agnostic
// StoreError/ErrorCode pair, bbfs only ever speaks to one host protocol
// (FUSE), so a plain errors.New sentinel matched with errors.Is is enough;
// there is no second protocol to carry a separate error-code mapping for.

// ErrTooFewEndpoints indicates the pool holds fewer than two storage node
// connections, the minimum stripe width (one data fragment, one parity
// fragment). A mount configured with 0 or 1 endpoints can never complete
// a flush or read. Surfaced as EIO.
var ErrTooFewEndpoints = errors.New("engine: fewer than two storage endpoints configured")

// ErrInsufficientFragments indicates a read recovered fewer than N-1 of a
// file's N fragments, exceeding the single-node-loss tolerance invariant.
// Surfaced as EIO.
var ErrInsufficientFragments = errors.New("engine: insufficient fragments to reconstruct read")

// ErrNodeRequestFailed wraps a storage node's non-OK response to a
// WRITE, READ, or DELETE request; the triggering node index and its
// reported errno are folded into the wrapping fmt.Errorf message rather
// than carried as fields, since nothing downstream of errnoOf inspects
// them programmatically. Surfaced as EIO.
var ErrNodeRequestFailed = errors.New("engine: storage node rejected request")
