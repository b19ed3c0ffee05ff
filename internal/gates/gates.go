// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package gates implements the safety checks Preflight runs in order:
// package-manager lock detection, mount/trust checks, the setuid guard for
// privileged replacements, and the immutable-attribute check.
package gates

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/oxidizr-deb/switchyard/internal/mountinspect"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// setuidStrictOwnerOverrideEnv, when set to "1", relaxes the setuid guard's
// uid/gid==0 requirement for test environments that can't produce a
// root-owned binary. It never relaxes the setuid-bit requirement itself.
const setuidStrictOwnerOverrideEnv = "OXIDIZR_ALLOW_NONROOT_SUDO_OWNER"

// SudoGuard enforces that a privileged replacement binary is setuid root:
// mode bit 0o4000 set, and — unless the test-only override env var is "1"
// — owned by uid 0 and gid 0. Source must already be a sandboxed path.
func SudoGuard(sourcePath string) error {
	info, err := os.Lstat(sourcePath)
	if err != nil {
		return xerrors.Wrap(xerrors.SudoGuard, err, "privileged replacement is missing").WithPath(sourcePath)
	}
	setuid := info.Mode()&os.ModeSetuid != 0

	uid, gid, statErr := ownerOf(sourcePath)
	if statErr != nil {
		return xerrors.Wrap(xerrors.SudoGuard, statErr, "could not stat privileged replacement").WithPath(sourcePath)
	}

	strictOwner := os.Getenv(setuidStrictOwnerOverrideEnv) != "1"
	if !setuid || (strictOwner && (uid != 0 || gid != 0)) {
		return xerrors.New(xerrors.SudoGuard, "sudo replacement must be root:root with mode=4755 (setuid root)").WithPath(sourcePath)
	}
	return nil
}

func ownerOf(path string) (uid, gid uint32, err error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, err
	}
	return st.Uid, st.Gid, nil
}

// ImmutableCheck reports whether path carries the filesystem's immutable
// attribute, using lsattr -d when available. Absence of lsattr (or any
// probe failure) is treated as "not immutable" — this is a best-effort
// check, not a guarantee.
func ImmutableCheck(path string) error {
	out, err := exec.Command("lsattr", "-d", path).Output()
	if err != nil {
		return nil
	}
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if strings.ContainsRune(fields[0], 'i') {
			return xerrors.New(xerrors.RepoGateFailed,
				"target is immutable (chattr +i); run 'chattr -i "+path+"' to clear before proceeding").WithPath(path)
		}
	}
	return nil
}

// MountAndTrust runs the Mount & Trust Inspector's rw/exec check on path,
// and — when checkTrust is true — the source-trust check as well (world-
// writable bit, uid==0 ownership, HOME exclusion).
func MountAndTrust(path string, checkTrust, force bool, warn func(format string, args ...interface{})) error {
	if err := mountinspect.EnsureMountRWExec(path); err != nil {
		return err
	}
	if checkTrust {
		if err := mountinspect.CheckSourceTrust(path, force, warn); err != nil {
			return err
		}
	}
	return nil
}

// PmLockChecker abstracts package-manager-lock detection so gates does not
// need to import internal/pkgadapter directly: callers supply a narrow
// interface instead of a concrete adapter.
type PmLockChecker interface {
	// Held reports whether the package manager's lock is currently taken.
	Held() bool
}

// PmLockGate fails with PmBusy if the package manager's lock is currently
// held. liveRoot selects whether this gate applies at all: it only makes
// sense against the live system root, so non-live roots skip it entirely.
func PmLockGate(checker PmLockChecker, liveRoot bool) error {
	if !liveRoot || checker == nil {
		return nil
	}
	if checker.Held() {
		return xerrors.New(xerrors.PmBusy, "package manager lock is held by another process; retry later")
	}
	return nil
}

// WaitPmLockGate is PmLockGate's blocking variant: it polls at a fixed
// interval until the lock clears or timeout elapses. A nil timeout means
// don't wait at all — report busy immediately if the lock is held.
func WaitPmLockGate(checker PmLockChecker, liveRoot bool, timeout *time.Duration) error {
	if !liveRoot || checker == nil {
		return nil
	}
	if !checker.Held() {
		return nil
	}
	if timeout == nil {
		return xerrors.New(xerrors.PmBusy, "package manager lock is held by another process; retry later")
	}
	const pollInterval = 500 * time.Millisecond
	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		time.Sleep(pollInterval)
		if !checker.Held() {
			return nil
		}
	}
	if checker.Held() {
		return xerrors.New(xerrors.PmBusy, "package manager lock is held by another process; retry later")
	}
	return nil
}
