// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package backup computes a deterministic sibling backup path for a
// target, creates type-preserving backups (regular file or symlink), and
// restores from them.
package backup

import (
	"io"
	"os"
	"path/filepath"

	"github.com/oxidizr-deb/switchyard/internal/dirhandle"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// Suffix is the fixed literal appended to a target's basename to form its
// backup sidecar name.
const Suffix = ".switchyard.bak"

// TmpSuffix names the sibling temporary symlink the swap engine creates
// before the atomic rename.
const TmpSuffix = ".switchyard.tmp"

// PathFor computes the backup sidecar path for target: a sibling, same
// filesystem (so rename is atomic), hidden-prefixed, suffix-tagged name.
func PathFor(target string) string {
	dir := filepath.Dir(target)
	name := filepath.Base(target)
	return filepath.Join(dir, "."+name+Suffix)
}

// Exists reports whether a backup sidecar for target is present.
func Exists(target string) bool {
	_, err := os.Lstat(PathFor(target))
	return err == nil
}

// Kind describes what kind of pre-state a backup preserves.
type Kind int

const (
	KindNone Kind = iota
	KindRegularFile
	KindSymlink
)

// CreateFromRegularFile copies target (a regular file) to its backup path
// in dirPath, preserving permission bits. Both files are opened by path; dir
// is not used for the copy.
func CreateFromRegularFile(dir *dirhandle.Handle, dirPath, target string) error {
	name := filepath.Base(target)
	backupName := "." + name + Suffix

	src, err := os.Open(target)
	if err != nil {
		return xerrors.Io(err, target)
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return xerrors.Io(err, target)
	}

	backupPath := filepath.Join(dirPath, backupName)
	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return xerrors.Io(err, backupPath)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return xerrors.Io(err, backupPath)
	}
	if err := dst.Close(); err != nil {
		return xerrors.Io(err, backupPath)
	}
	if err := os.Chmod(backupPath, fi.Mode().Perm()); err != nil {
		return xerrors.Io(err, backupPath)
	}
	return nil
}

// CreateFromSymlink creates a new symlink at target's backup path pointing
// at the same destination target currently resolves to (link-aware
// backup): it preserves the fact that the prior state was itself a link,
// not the file it ultimately pointed to.
func CreateFromSymlink(dir *dirhandle.Handle, target string) error {
	dest, err := os.Readlink(target)
	if err != nil {
		return xerrors.Io(err, target)
	}
	name := filepath.Base(target)
	backupName := "." + name + Suffix
	// Remove any stale backup first; a symlink backup is always rewritten.
	_ = dirhandle.Unlinkat(dir, backupName)
	if err := dirhandle.Symlinkat(dest, dir, backupName); err != nil {
		return xerrors.Io(err, filepath.Join(filepath.Dir(target), backupName))
	}
	return nil
}

// Restore removes target (symlink or regular file) and renames its backup
// onto it, then fsyncs the parent directory. If no backup exists, it fails
// with RestoreBackupMissing unless forceBestEffort is set, in which case it
// emits a warning (via warn) and succeeds as a no-op.
func Restore(dir *dirhandle.Handle, dirPath, target string, forceBestEffort bool, warn func(format string, args ...interface{})) (backupPath string, restored bool, err error) {
	name := filepath.Base(target)
	backupName := "." + name + Suffix
	backupPath = filepath.Join(dirPath, backupName)

	if _, statErr := os.Lstat(backupPath); statErr != nil {
		if forceBestEffort {
			warn("restore: no backup for %s, leaving as-is (force_best_effort)", target)
			return backupPath, false, nil
		}
		return backupPath, false, xerrors.New(xerrors.RestoreBackupMissing, "no backup sidecar present for target").WithPath(target)
	}

	targetName := filepath.Base(target)
	if _, statErr := os.Lstat(target); statErr == nil {
		if unlinkErr := dirhandle.Unlinkat(dir, targetName); unlinkErr != nil {
			return backupPath, false, xerrors.Io(unlinkErr, target)
		}
	}

	if err := dirhandle.Renameat(dir, backupName, targetName); err != nil {
		return backupPath, false, xerrors.Io(err, target)
	}
	if err := dirhandle.Fsync(dir); err != nil {
		return backupPath, false, xerrors.Io(err, dirPath)
	}
	return backupPath, true, nil
}
