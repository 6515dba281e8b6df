// Package adapter binds the striping engine to a host filesystem via
// go-fuse. It owns a metadata shadow tree: every file and directory the
// mount exposes has a corresponding entry under a local root directory,
// holding only POSIX metadata (the shadow file's own size, mode, and
// times). With storage nodes configured, regular file content never lives
// in the shadow tree; it is read and written exclusively through the
// engine, which stripes it across those nodes. With zero storage nodes
// (pass-through mode, nil engine), content is read and written directly
// in the shadow files.
//
// This adapter is deliberately thin: it exists so the CLI can mount a
// real filesystem, not to be the system's correctness boundary. The
// engine it wraps carries that contract.
package adapter

import (
	"context"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	gopath "path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/nmsu-cs/bbfs/internal/logger"
	"github.com/nmsu-cs/bbfs/pkg/buffer"
	"github.com/nmsu-cs/bbfs/pkg/engine"
)

// attrCacheTimeout bounds how long the kernel may cache an inode's
// attributes or a directory entry before revisiting this adapter.
const attrCacheTimeout = time.Second

// Node is a single entry (file or directory) in the mounted tree. Its
// path is slash-separated and relative to the mount root; the empty
// string names the root itself.
type Node struct {
	fs.Inode

	eng     *engine.Engine
	rootDir string
	path    string
}

var (
	_ fs.InodeEmbedder = (*Node)(nil)

	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeSetattrer = (*Node)(nil)
)

// NewRoot builds the root of a mount tree backed by rootDir's shadow
// tree and eng's striping engine. rootDir must already exist.
func NewRoot(rootDir string, eng *engine.Engine) (fs.InodeEmbedder, error) {
	fi, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("adapter: root dir %q: %w", rootDir, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("adapter: root dir %q is not a directory", rootDir)
	}
	return &Node{eng: eng, rootDir: rootDir, path: ""}, nil
}

// LengthFunc returns the engine.LengthFunc backed by rootDir's shadow
// tree: a path's logical length is the shadow file's own size.
func LengthFunc(rootDir string) engine.LengthFunc {
	return func(path string) (int64, error) {
		fi, err := os.Stat(hostPathFor(rootDir, path))
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	}
}

// ExtendFunc returns the engine.ExtendFunc backed by rootDir's shadow
// tree: growing a path's logical length truncates (or extends) the
// shadow file to match, so a subsequent stat reports it directly.
func ExtendFunc(rootDir string) engine.ExtendFunc {
	return func(path string, n int64) error {
		return os.Truncate(hostPathFor(rootDir, path), n)
	}
}

func hostPathFor(rootDir, enginePath string) string {
	rel := strings.TrimPrefix(enginePath, "/")
	if rel == "" {
		return rootDir
	}
	return filepath.Join(rootDir, filepath.FromSlash(rel))
}

func (n *Node) hostPath() string {
	return hostPathFor(n.rootDir, n.enginePath())
}

// enginePath is the key this node's content is addressed by in the
// engine and, ultimately, in the storage nodes' fragment filenames.
func (n *Node) enginePath() string {
	if n.path == "" {
		return "/"
	}
	return "/" + n.path
}

func (n *Node) childPath(name string) string {
	return gopath.Join(n.path, name)
}

func (n *Node) newChild(path string) *Node {
	return &Node{eng: n.eng, rootDir: n.rootDir, path: path}
}

// ino derives a stable 64-bit inode number from a path by hashing it;
// the shadow tree's own inode numbers aren't reused since bind mounts
// and renames would otherwise make them collide across paths.
func ino(path string) uint64 {
	sum := sha512.Sum512_256([]byte(path))
	return binary.LittleEndian.Uint64(sum[:8])
}

func modeOf(fi os.FileInfo) uint32 {
	mode := uint32(fi.Mode().Perm())
	if fi.IsDir() {
		mode |= syscall.S_IFDIR
	} else {
		mode |= syscall.S_IFREG
	}
	return mode
}

func attrFromFileInfo(a *fuse.Attr, fi os.FileInfo, inode uint64) {
	a.Ino = inode
	a.Mode = modeOf(fi)
	a.Size = uint64(fi.Size())
	a.Blocks = (a.Size + 511) / 512
	mtime := fi.ModTime()
	a.SetTimes(nil, &mtime, nil)
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	fi, err := os.Lstat(hostPathFor(n.rootDir, "/"+childPath))
	if err != nil {
		return nil, errnoOf(err)
	}

	child := n.newChild(childPath)
	childIno := ino(childPath)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: modeOf(fi), Ino: childIno})

	attrFromFileInfo(&out.Attr, fi, childIno)
	out.SetEntryTimeout(attrCacheTimeout)
	out.SetAttrTimeout(attrCacheTimeout)
	return inode, fs.OK
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := os.ReadDir(n.hostPath())
	if err != nil {
		return nil, errnoOf(err)
	}

	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			logger.Warn("adapter: readdir stat failed, skipping entry",
				logger.Path(n.childPath(e.Name())), logger.Err(err))
			continue
		}
		out = append(out, fuse.DirEntry{
			Name: e.Name(),
			Mode: modeOf(info),
			Ino:  ino(n.childPath(e.Name())),
		})
	}
	return &dirStream{entries: out}, fs.OK
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	hostPath := hostPathFor(n.rootDir, "/"+childPath)
	if err := os.Mkdir(hostPath, os.FileMode(mode&0o777)); err != nil {
		return nil, errnoOf(err)
	}

	fi, err := os.Lstat(hostPath)
	if err != nil {
		return nil, errnoOf(err)
	}

	child := n.newChild(childPath)
	childIno := ino(childPath)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: modeOf(fi), Ino: childIno})

	attrFromFileInfo(&out.Attr, fi, childIno)
	out.SetEntryTimeout(attrCacheTimeout)
	out.SetAttrTimeout(attrCacheTimeout)
	return inode, fs.OK
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	hostPath := hostPathFor(n.rootDir, "/"+n.childPath(name))
	if err := os.Remove(hostPath); err != nil {
		return errnoOf(err)
	}
	return fs.OK
}

// Unlink removes both the shadow metadata entry and, per the
// redesigned DELETE behavior, the file's striped content on every
// storage node. In pass-through mode (n.eng == nil, zero endpoints
// configured) there is no striped content to remove.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	childPath := n.childPath(name)
	hostPath := hostPathFor(n.rootDir, "/"+childPath)
	if err := os.Remove(hostPath); err != nil {
		return errnoOf(err)
	}
	if n.eng == nil {
		return fs.OK
	}
	if err := n.eng.Delete("/" + childPath); err != nil {
		logger.Warn("adapter: unlink: engine delete failed", logger.Path(childPath), logger.Err(err))
	}
	return fs.OK
}

// Rename moves the shadow entry to its new location. It does not
// migrate the moved file's striped content to a key addressed by the
// new path; the adapter boundary this package implements is explicitly
// not part of the striping contract's correctness surface, and a
// rename is rare enough relative to write/read/flush traffic that
// paying for a full read-restripe-write here isn't worth the
// complexity it would add to this thin a layer.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	target, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}

	oldChildPath := n.childPath(name)
	newChildPath := target.childPath(newName)
	oldHost := hostPathFor(n.rootDir, "/"+oldChildPath)
	newHost := hostPathFor(n.rootDir, "/"+newChildPath)

	if err := os.Rename(oldHost, newHost); err != nil {
		return errnoOf(err)
	}
	n.eng.Invalidate("/" + oldChildPath)
	n.eng.Invalidate("/" + newChildPath)
	return fs.OK
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	hostPath := hostPathFor(n.rootDir, "/"+childPath)

	f, err := os.OpenFile(hostPath, int(flags)|os.O_CREATE, os.FileMode(mode&0o777))
	if err != nil {
		return nil, nil, 0, errnoOf(err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, 0, errnoOf(err)
	}

	child := n.newChild(childPath)
	childIno := ino(childPath)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: modeOf(fi), Ino: childIno})

	attrFromFileInfo(&out.Attr, fi, childIno)
	out.SetEntryTimeout(attrCacheTimeout)
	out.SetAttrTimeout(attrCacheTimeout)

	return inode, &fileHandle{node: child, f: f}, 0, fs.OK
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	f, err := os.OpenFile(n.hostPath(), int(flags), 0o644)
	if err != nil {
		return nil, 0, errnoOf(err)
	}
	return &fileHandle{node: n, f: f}, 0, fs.OK
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if fh, ok := f.(*fileHandle); ok {
		return fh.Getattr(ctx, out)
	}
	fi, err := os.Lstat(n.hostPath())
	if err != nil {
		return errnoOf(err)
	}
	attrFromFileInfo(&out.Attr, fi, n.EmbeddedInode().StableAttr().Ino)
	out.SetTimeout(attrCacheTimeout)
	return fs.OK
}

func (n *Node) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if fh, ok := f.(*fileHandle); ok {
		return fh.Setattr(ctx, in, out)
	}

	if size, ok := in.GetSize(); ok {
		n.eng.Invalidate(n.enginePath())
		if err := os.Truncate(n.hostPath(), int64(size)); err != nil {
			return errnoOf(err)
		}
	}

	fi, err := os.Lstat(n.hostPath())
	if err != nil {
		return errnoOf(err)
	}
	attrFromFileInfo(&out.Attr, fi, n.EmbeddedInode().StableAttr().Ino)
	out.SetTimeout(attrCacheTimeout)
	return fs.OK
}

// errnoOf maps a shadow-tree os/syscall error, or one of the engine's own
// sentinel errors, to the errno FUSE expects, falling back to EIO for
// anything that isn't recognizable.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return fs.OK
	}
	var tooLarge *buffer.ErrTooLarge
	if errors.As(err, &tooLarge) {
		return syscall.EFBIG
	}
	if errors.Is(err, engine.ErrTooFewEndpoints) ||
		errors.Is(err, engine.ErrInsufficientFragments) ||
		errors.Is(err, engine.ErrNodeRequestFailed) {
		return syscall.EIO
	}
	if os.IsNotExist(err) {
		return syscall.ENOENT
	}
	if os.IsExist(err) {
		return syscall.EEXIST
	}
	if os.IsPermission(err) {
		return syscall.EACCES
	}
	if errno, ok := err.(*os.PathError); ok {
		if e, ok := errno.Err.(syscall.Errno); ok {
			return e
		}
	}
	if e, ok := err.(syscall.Errno); ok {
		return e
	}
	return syscall.EIO
}
