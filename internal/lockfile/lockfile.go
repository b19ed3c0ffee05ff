// Copyright (c) Contributors to the switchyard project.
// Portions derived from the Apptainer project's pkg/util/fs/lock package.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package lockfile provides the process-wide flock(2) lock Apply acquires
// in commit mode. It guarantees mutual exclusion across processes sharing a
// Root; it says nothing about goroutines within one process, which must
// still serialize among themselves.
package lockfile

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryExclusive when the lock is already held.
var ErrWouldBlock = errors.New("lockfile: already locked")

// Lock holds an acquired exclusive lock. It must be released exactly once.
type Lock struct {
	fd   int
	path string
}

// Exclusive opens (creating if necessary) and blockingly locks path.
func Exclusive(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Lock{fd: fd, path: path}, nil
}

// TryExclusive attempts a non-blocking lock acquisition. It returns
// ErrWouldBlock (not a generic error) when another holder has the lock,
// distinguishing "busy" from a real failure to open/flock the path.
func TryExclusive(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		return nil, err
	}
	return &Lock{fd: fd, path: path}, nil
}

// Release unlocks and closes the underlying descriptor. Safe to call from
// any exit path, including after a partial failure.
func (l *Lock) Release() error {
	if l == nil || l.fd < 0 {
		return nil
	}
	defer unix.Close(l.fd)
	err := unix.Flock(l.fd, unix.LOCK_UN)
	l.fd = -1
	return err
}

// Path returns the filesystem path backing this lock.
func (l *Lock) Path() string { return l.path }

// DefaultPath returns the conventional process-wide lock path for a tool
// under root: <root>/var/lock/<tool>.lock.
func DefaultPath(root, tool string) string {
	return filepath.Join(root, "var", "lock", tool+".lock")
}
