package stripe

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func xorAll(frags [][]byte) []byte {
	if len(frags) == 0 {
		return nil
	}
	out := make([]byte, len(frags[0]))
	for _, f := range frags {
		xorInto(out, f)
	}
	return out
}

// TestRoundTrip is P1: encoding and decoding from any N-1 of N fragments
// reproduces the original byte sequence.
func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, n := range []int{3, 4, 7} {
		for _, l := range []int{0, 1, n - 1, n, n + 1, 4096, 4<<20 - 7} {
			b := make([]byte, l)
			rng.Read(b)

			frags, err := Encode(b, n)
			require.NoError(t, err)
			require.Len(t, frags, n)

			for missing := 0; missing < n; missing++ {
				working := make([][]byte, n)
				copy(working, frags)
				working[missing] = nil

				out, err := Decode(working, int64(l), n)
				if missing == n-1 {
					// parity isn't needed to decode data directly.
					require.NoError(t, err)
					require.True(t, bytes.Equal(out, b))
					continue
				}

				rebuilt, err := Reconstruct(working, missing)
				require.NoError(t, err)
				working[missing] = rebuilt

				out, err = Decode(working, int64(l), n)
				require.NoError(t, err)
				require.True(t, bytes.Equal(out, b), "n=%d l=%d missing=%d", n, l, missing)
			}
		}
	}
}

// TestParityLaw is P2: XOR of all N fragments is the zero buffer of
// length F.
func TestParityLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, n := range []int{3, 5} {
		for _, l := range []int{0, 17, 1000} {
			b := make([]byte, l)
			rng.Read(b)
			frags, err := Encode(b, n)
			require.NoError(t, err)

			zero := xorAll(frags)
			for _, c := range zero {
				require.Equal(t, byte(0), c)
			}
		}
	}
}

// TestSingleFaultReconstruction is P3: removing any one fragment and
// reconstructing it from the others yields the original fragment.
func TestSingleFaultReconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	b := make([]byte, 10000)
	rng.Read(b)

	for n := 3; n <= 6; n++ {
		frags, err := Encode(b, n)
		require.NoError(t, err)

		for m := 0; m < n; m++ {
			rebuilt, err := Reconstruct(frags, m)
			require.NoError(t, err)
			require.True(t, bytes.Equal(rebuilt, frags[m]), "n=%d m=%d", n, m)
		}
	}
}

func TestDecodeRangeMatchesFullDecode(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	n := 4
	b := make([]byte, 5000)
	rng.Read(b)

	frags, err := Encode(b, n)
	require.NoError(t, err)

	full, err := Decode(frags, int64(len(b)), n)
	require.NoError(t, err)

	offset, length := int64(123), int64(777)
	partial, err := DecodeRange(frags, offset, length, n)
	require.NoError(t, err)
	require.True(t, bytes.Equal(partial, full[offset:offset+length]))
}

// S1 from the scenario list: N=3, "ABCDEFGHI" stripes into
// data0="ACEGI", data1="BDFH\0", parity = XOR of the two.
func TestScenarioS1Layout(t *testing.T) {
	b := []byte("ABCDEFGHI")
	frags, err := Encode(b, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("ACEGI"), frags[0])
	require.Equal(t, []byte{'B', 'D', 'F', 'H', 0}, frags[1])

	decoded, err := Decode(frags, int64(len(b)), 3)
	require.NoError(t, err)
	require.Equal(t, b, decoded)
}

func TestEncodeRejectsTooFewFragments(t *testing.T) {
	_, err := Encode([]byte("x"), 1)
	require.Error(t, err)
}
