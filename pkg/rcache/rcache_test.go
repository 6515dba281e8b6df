package rcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := New(time.Minute)
	_, ok := c.Get("/a")
	require.False(t, ok)

	c.Put("/a", []byte("data"))
	data, ok := c.Get("/a")
	require.True(t, ok)
	require.Equal(t, []byte("data"), data)
}

// P6: any write or delete against a path must invalidate its cache entry.
func TestInvalidateDropsEntry(t *testing.T) {
	c := New(time.Minute)
	c.Put("/a", []byte("data"))
	c.Invalidate("/a")
	_, ok := c.Get("/a")
	require.False(t, ok)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put("/a", []byte("data"))
	time.Sleep(30 * time.Millisecond)
	_, ok := c.Get("/a")
	require.False(t, ok)
}

func TestWindowLookupWithinRange(t *testing.T) {
	w := NewWindow(1024, time.Minute)
	data := make([]byte, 1024)
	for i := range data {
		data[i] = byte(i)
	}
	w.Fill("/big", 100, data)

	got, ok := w.Lookup("/big", 200, 50)
	require.True(t, ok)
	require.Equal(t, data[100:150], got)
}

func TestWindowLookupOutOfRangeMisses(t *testing.T) {
	w := NewWindow(1024, time.Minute)
	w.Fill("/big", 100, make([]byte, 1024))

	_, ok := w.Lookup("/big", 0, 50)
	require.False(t, ok)

	_, ok = w.Lookup("/big", 1000, 200)
	require.False(t, ok)
}

func TestWindowExpiresAfterTTL(t *testing.T) {
	w := NewWindow(1024, 10*time.Millisecond)
	w.Fill("/big", 0, make([]byte, 1024))
	time.Sleep(30 * time.Millisecond)

	_, ok := w.Lookup("/big", 0, 10)
	require.False(t, ok)
}

func TestWindowInvalidateDropsSpan(t *testing.T) {
	w := NewWindow(1024, time.Minute)
	w.Fill("/big", 0, make([]byte, 1024))
	w.Invalidate("/big")

	_, ok := w.Lookup("/big", 0, 10)
	require.False(t, ok)
}
