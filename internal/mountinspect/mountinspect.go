// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package mountinspect implements mount-table-based rw/exec enforcement,
// and source-trust checks (ownership, world-writable bit, HOME exclusion).
package mountinspect

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// MountsPath is the mount table read by EnsureMountRWExec. It is a variable
// so tests can point it at a fixture file.
var MountsPath = "/proc/self/mounts"

type mountEntry struct {
	mountpoint string
	opts       string
}

// mountEntryFor parses the mount table and returns the entry whose
// mountpoint is the longest prefix of the canonicalised path.
func mountEntryFor(path string) (mountEntry, bool) {
	f, err := os.Open(MountsPath)
	if err != nil {
		return mountEntry{}, false
	}
	defer f.Close()

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}

	var best mountEntry
	found := false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		mnt := fields[1]
		if !strings.HasPrefix(resolved, mnt) {
			continue
		}
		// Require either an exact match or a path-component boundary, so
		// "/usr2" is never treated as mounted under "/usr".
		if mnt != "/" && resolved != mnt && !strings.HasPrefix(resolved, mnt+"/") {
			continue
		}
		if !found || len(mnt) > len(best.mountpoint) {
			best = mountEntry{mountpoint: mnt, opts: fields[3]}
			found = true
		}
	}
	return best, found
}

// EnsureMountRWExec fails unless the filesystem containing path is mounted
// read-write and not noexec. Absence of an entry (path not found in the
// mount table, e.g. a synthetic test root) is treated as permissive: there
// is no basis to reject a path the mount table says nothing about.
func EnsureMountRWExec(path string) error {
	entry, ok := mountEntryFor(path)
	if !ok {
		return nil
	}
	opts := strings.ToLower(entry.opts)
	hasRW := false
	noexec := false
	for _, o := range strings.Split(opts, ",") {
		switch o {
		case "rw":
			hasRW = true
		case "noexec":
			noexec = true
		}
	}
	if !hasRW || noexec {
		return xerrors.New(xerrors.MountUnfit, "filesystem is not mounted read-write and executable").WithPath(path)
	}
	return nil
}

// CheckSourceTrust enforces four source-trust conditions: not world-writable,
// root-owned, on a read-write-exec filesystem, and outside the caller's
// HOME. When force is true, a failing world-writable, ownership or HOME
// condition degrades to a caller-visible warning (returned via the warn
// callback, never via error) instead of a hard rejection; the
// read-write-exec mount condition fails regardless of force.
func CheckSourceTrust(src string, force bool, warn func(format string, args ...interface{})) error {
	fi, err := os.Lstat(src)
	if err != nil {
		return xerrors.Io(err, src)
	}
	sysStat, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return xerrors.New(xerrors.SourceUntrusted, "cannot stat source for trust checks").WithPath(src)
	}

	if sysStat.Mode&0o002 != 0 {
		if !force {
			return xerrors.New(xerrors.SourceUntrusted, "source is world-writable; pass force to override").WithPath(src)
		}
		warn("source_trust: world-writable source %s allowed by force override", src)
	}

	if sysStat.Uid != 0 {
		if !force {
			return xerrors.New(xerrors.SourceUntrusted, "source is not root-owned; pass force to override").WithPath(src)
		}
		warn("source_trust: non-root-owned source %s allowed by force override", src)
	}

	if err := EnsureMountRWExec(src); err != nil {
		return err
	}

	if home := os.Getenv("HOME"); home != "" {
		resolved, rerr := filepath.Abs(src)
		if rerr == nil {
			homeAbs, herr := filepath.Abs(home)
			if herr == nil && (resolved == homeAbs || strings.HasPrefix(resolved, homeAbs+string(filepath.Separator))) {
				if !force {
					return xerrors.New(xerrors.SourceUntrusted, "source is under the caller's home; pass force to override").WithPath(src)
				}
				warn("source_trust: source %s under HOME allowed by force override", src)
			}
		}
	}

	return nil
}
