// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package dirhandle provides a no-follow, directory-only, close-on-exec
// open used to anchor renameat(2)/unlinkat(2) calls against a parent
// directory, closing the TOCTOU window between a path-safety check and the
// mutating syscall.
package dirhandle

import (
	"golang.org/x/sys/unix"

	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// Handle is an opaque, open directory file descriptor.
type Handle struct {
	fd int
}

// Open opens dir with O_DIRECTORY|O_NOFOLLOW|O_CLOEXEC semantics. If dir
// itself is a symlink, the open fails with ELOOP and Open returns a
// ParentNotDirectory error instead of silently following it.
func Open(dir string) (*Handle, error) {
	fd, err := unix.Open(dir, unix.O_DIRECTORY|unix.O_NOFOLLOW|unix.O_CLOEXEC|unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ELOOP || err == unix.ENOTDIR {
			return nil, xerrors.Wrap(xerrors.ParentNotDirectory, err, "parent directory open refused a symlink or non-directory").WithPath(dir)
		}
		return nil, xerrors.Io(err, dir)
	}
	return &Handle{fd: fd}, nil
}

// Close releases the underlying file descriptor.
func (h *Handle) Close() error {
	if h == nil || h.fd < 0 {
		return nil
	}
	err := unix.Close(h.fd)
	h.fd = -1
	return err
}

// FD returns the raw file descriptor, for use with unix.Renameat /
// unix.Unlinkat / unix.Fsync.
func (h *Handle) FD() int { return h.fd }

// Renameat renames oldName to newName, both resolved relative to this
// handle's directory, so both ends of the rename are anchored to the same
// already-opened parent.
func Renameat(dir *Handle, oldName, newName string) error {
	return unix.Renameat(dir.FD(), oldName, dir.FD(), newName)
}

// Unlinkat removes name, resolved relative to this handle's directory.
func Unlinkat(dir *Handle, name string) error {
	return unix.Unlinkat(dir.FD(), name, 0)
}

// Fsync commits the directory entry to stable storage.
func Fsync(dir *Handle) error {
	return unix.Fsync(dir.FD())
}

// Symlinkat creates a symlink at name (relative to dir) pointing at target.
func Symlinkat(target string, dir *Handle, name string) error {
	return unix.Symlinkat(target, dir.FD(), name)
}
