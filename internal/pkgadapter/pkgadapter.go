// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package pkgadapter implements a narrow interface the core consumes to
// enumerate the command basenames a distribution package ships, backed here
// by dpkg, the target distribution's package manager.
package pkgadapter

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/oxidizr-deb/switchyard/internal/lockfile"
	"github.com/oxidizr-deb/switchyard/internal/model"
)

// LockName is the path, relative to Root, of dpkg's frontend lock file.
const LockName = "var/lib/dpkg/lock-frontend"

// packageNames maps each PackageKind onto the Debian package name(s) that
// ship it.
var packageNames = map[model.PackageKind][]string{
	model.CoreUtils: {"coreutils"},
	model.FindUtils: {"findutils"},
	model.Sudo:      {"sudo"},
}

// Adapter is the dpkg-backed implementation of coverage.Adapter.
type Adapter struct {
	// DpkgPath overrides the dpkg binary invoked, for tests. Empty means
	// "dpkg" resolved via PATH.
	DpkgPath string
}

func (a Adapter) dpkg() string {
	if a.DpkgPath != "" {
		return a.DpkgPath
	}
	return "dpkg"
}

// EnumeratePackageCommands lists the basenames under root's /usr/bin and
// /bin that the dpkg package(s) for kind own, per `dpkg -L <pkg>`. An
// unknown kind, a dpkg invocation failure, or a package not being
// installed all return an empty slice — "cannot enumerate" is a soft
// signal, not an error.
func (a Adapter) EnumeratePackageCommands(root model.Root, kind model.PackageKind) []string {
	names, ok := packageNames[kind]
	if !ok {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, pkg := range names {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cmd := exec.CommandContext(ctx, a.dpkg(), "--admindir="+filepath.Join(root.Path(), "var/lib/dpkg"), "-L", pkg)
		output, err := cmd.Output()
		cancel()
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(strings.NewReader(string(output)))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "/usr/bin/") && !strings.HasPrefix(line, "/bin/") {
				continue
			}
			base := filepath.Base(line)
			if base == "" || base == "." {
				continue
			}
			if _, dup := seen[base]; dup {
				continue
			}
			seen[base] = struct{}{}
			out = append(out, base)
		}
	}
	return out
}

// Remove uninstalls the distribution package(s) backing kind via
// `dpkg --purge`, used only by the CLI's destructive "replace" verb and
// only when the operator has not asked to keep the replaced package.
// Package-manager invocation is not a concern of the core engine; this
// method exists on the concrete dpkg adapter, not in the coverage.Adapter
// interface the core consumes, so internal/coverage and internal/preflight
// never call it.
func (a Adapter) Remove(ctx context.Context, root model.Root, kind model.PackageKind) error {
	names, ok := packageNames[kind]
	if !ok {
		return nil
	}
	for _, pkg := range names {
		cmd := exec.CommandContext(ctx, a.dpkg(),
			"--root="+root.Path(),
			"--admindir="+filepath.Join(root.Path(), "var/lib/dpkg"),
			"--purge", pkg)
		if err := cmd.Run(); err != nil {
			return err
		}
	}
	return nil
}

// LockHeld reports whether another process currently holds dpkg's frontend
// lock. The lock-frontend file itself ships with the dpkg package and is
// present on disk essentially all the time; what actually signals "busy" is
// an exclusive flock(2) on that file, so this takes a non-blocking
// exclusive lock and reports held only when that attempt would block.
func LockHeld(root model.Root) bool {
	lock, err := lockfile.TryExclusive(filepath.Join(root.Path(), LockName))
	if err != nil {
		return errors.Is(err, lockfile.ErrWouldBlock)
	}
	lock.Release()
	return false
}

// LockChecker adapts LockHeld to internal/gates.PmLockChecker, so the CLI
// can pass a dpkg-backed checker into Preflight without gates importing
// pkgadapter directly.
type LockChecker struct {
	Root model.Root
}

// Held reports whether root's dpkg frontend lock is currently taken.
func (c LockChecker) Held() bool { return LockHeld(c.Root) }

// WaitForLockClear polls root's dpkg lock at a fixed interval until it
// clears or timeout elapses. A nil timeout means "don't wait" — check once.
func WaitForLockClear(root model.Root, timeout *time.Duration) bool {
	if !LockHeld(root) {
		return true
	}
	if timeout == nil {
		return false
	}
	deadline := time.Now().Add(*timeout)
	const pollInterval = 200 * time.Millisecond
	for time.Now().Before(deadline) {
		if !LockHeld(root) {
			return true
		}
		time.Sleep(pollInterval)
	}
	return !LockHeld(root)
}
