// Package stripe implements the single-parity striping codec: the pure
// mapping between a logical byte stream and N fragment buffers (N-1 data
// fragments plus one XOR parity fragment), and its inverse.
//
// Fragment index == node index is a contract preserved from the source
// design; this package never invents a remapping layer between the two.
package stripe

import "fmt"

// FragmentSize returns F = ceil(l / dataFragments), the length every
// fragment buffer must have for a logical length l striped across
// dataFragments data fragments.
func FragmentSize(l int64, dataFragments int) int64 {
	if dataFragments <= 0 {
		return 0
	}
	if l <= 0 {
		return 0
	}
	return (l + int64(dataFragments) - 1) / int64(dataFragments)
}

// Encode stripes b into n fragments: n-1 data fragments filled by
// byte-level round robin, plus a trailing parity fragment holding the XOR
// of the data fragments. Every returned fragment has the same length,
// F = ceil(len(b) / (n-1)); the last column of data fragments is
// zero-padded where len(b) isn't an exact multiple of n-1, and parity is
// computed over that padding exactly as over real bytes.
func Encode(b []byte, n int) ([][]byte, error) {
	if n < 2 {
		return nil, fmt.Errorf("stripe: n must be >= 2 (got %d)", n)
	}
	dataFragments := n - 1
	f := FragmentSize(int64(len(b)), dataFragments)

	frags := make([][]byte, n)
	for k := range frags {
		frags[k] = make([]byte, f)
	}

	for i, c := range b {
		k := i % dataFragments
		j := i / dataFragments
		frags[k][j] = c
	}

	parity := frags[n-1]
	for k := 0; k < dataFragments; k++ {
		xorInto(parity, frags[k])
	}

	return frags, nil
}

// Reconstruct recovers the fragment at index missing given the other n-1
// fragments (frags[missing] may be nil or stale; it is ignored). This works
// for any missing index, including the parity fragment itself (n-1),
// because XOR of all n fragments is the zero buffer by construction
// (see Parity law), so any single fragment equals the XOR of the rest.
func Reconstruct(frags [][]byte, missing int) ([]byte, error) {
	n := len(frags)
	if missing < 0 || missing >= n {
		return nil, fmt.Errorf("stripe: missing index %d out of range [0,%d)", missing, n)
	}

	var f int
	for k, frag := range frags {
		if k == missing {
			continue
		}
		if frag == nil {
			return nil, fmt.Errorf("stripe: fragment %d required for reconstruction is absent", k)
		}
		if f == 0 {
			f = len(frag)
		} else if len(frag) != f {
			return nil, fmt.Errorf("stripe: fragment %d has length %d, want %d", k, len(frag), f)
		}
	}

	out := make([]byte, f)
	for k, frag := range frags {
		if k == missing {
			continue
		}
		xorInto(out, frag)
	}
	return out, nil
}

// Decode reassembles the logical byte stream of length l from n fragments
// (any one of which may be reconstructed via Reconstruct beforehand).
// Positions at or beyond l are not part of the logical content and are
// dropped, matching the zero-padding edge policy for lengths not evenly
// divisible by n-1.
func Decode(frags [][]byte, l int64, n int) ([]byte, error) {
	if n < 2 {
		return nil, fmt.Errorf("stripe: n must be >= 2 (got %d)", n)
	}
	if l <= 0 {
		return []byte{}, nil
	}
	dataFragments := n - 1
	out := make([]byte, l)
	for i := int64(0); i < l; i++ {
		k := int(i % int64(dataFragments))
		j := i / int64(dataFragments)
		if frags[k] == nil || j >= int64(len(frags[k])) {
			return nil, fmt.Errorf("stripe: fragment %d too short to decode position %d", k, i)
		}
		out[i] = frags[k][j]
	}
	return out, nil
}

// DecodeRange reassembles only the logical byte range [offset, offset+len)
// from the fragments, without materializing the whole file. This is the
// decoding path the read-ahead window and small-file cache rely on so that
// partial reads of large files don't require a full Decode.
func DecodeRange(frags [][]byte, offset, length int64, n int) ([]byte, error) {
	if n < 2 {
		return nil, fmt.Errorf("stripe: n must be >= 2 (got %d)", n)
	}
	if length <= 0 {
		return []byte{}, nil
	}
	dataFragments := n - 1
	out := make([]byte, length)
	for i := int64(0); i < length; i++ {
		p := offset + i
		k := int(p % int64(dataFragments))
		j := p / int64(dataFragments)
		if frags[k] == nil || j >= int64(len(frags[k])) {
			return nil, fmt.Errorf("stripe: fragment %d too short to decode position %d", k, p)
		}
		out[i] = frags[k][j]
	}
	return out, nil
}

// xorInto XORs src into dst in place, byte by byte. The semantics are
// specified (byte-wise XOR of equal-length buffers), not the
// implementation; a SIMD or word-at-a-time variant is a free choice this
// package doesn't need yet.
func xorInto(dst, src []byte) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] ^= src[i]
	}
}
