package adapter

import (
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// dirStream walks a pre-materialized slice of directory entries. The
// shadow tree is a real local directory, so unlike a remote-store
// listing there's no benefit to a lazy, paginated stream.
type dirStream struct {
	entries []fuse.DirEntry
	idx     int
}

var _ fs.DirStream = (*dirStream)(nil)

func (s *dirStream) HasNext() bool {
	return s.idx < len(s.entries)
}

func (s *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.idx]
	s.idx++
	return e, fs.OK
}

func (s *dirStream) Close() {}
