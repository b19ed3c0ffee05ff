// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package preflight implements a pure, mutation-free pass over a Plan that
// runs, in order, the package-manager-lock gate, per-action mount & trust
// checks, the setuid guard for Sudo-kind replacements, and the
// immutable-attribute check. Preflight may be invoked independently of
// Apply and never mutates state.
package preflight

import (
	"path/filepath"
	"time"

	"github.com/oxidizr-deb/switchyard/internal/gates"
	"github.com/oxidizr-deb/switchyard/internal/model"
)

// Options configures one Preflight run.
type Options struct {
	// LiveRoot selects whether the package-manager-lock gate applies at
	// all: only the live system root can be blocked by a package manager,
	// so non-live roots skip this gate.
	LiveRoot bool
	// PmChecker reports whether the package manager's lock is held. May be
	// nil if LiveRoot is false.
	PmChecker gates.PmLockChecker
	// WaitLock, if non-nil, makes the package-manager-lock gate block and
	// poll up to this long instead of failing immediately.
	WaitLock *time.Duration
	// Force relaxes source-trust failures to warnings instead of hard
	// rejections.
	Force bool
	// Warn receives human-readable warnings emitted by a force override.
	Warn func(format string, args ...interface{})
}

// Run executes the ordered gate sequence against plan and returns the
// first failing gate's error, or nil if every gate passes.
func Run(plan model.Plan, opts Options) error {
	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}

	if err := pmLockGate(opts); err != nil {
		return err
	}

	for _, action := range plan.Actions {
		if action.Kind != model.ActionLink {
			continue
		}
		if err := gates.MountAndTrust(action.Source.String(), true, opts.Force, warn); err != nil {
			return err
		}
	}

	for _, action := range plan.Actions {
		parent := filepath.Dir(action.Target.String())
		if err := gates.MountAndTrust(parent, false, opts.Force, warn); err != nil {
			return err
		}
	}

	for _, action := range plan.Actions {
		if action.Kind != model.ActionLink || action.Package != model.Sudo {
			continue
		}
		if err := gates.SudoGuard(action.Source.String()); err != nil {
			return err
		}
	}

	for _, action := range plan.Actions {
		if err := gates.ImmutableCheck(action.Target.String()); err != nil {
			return err
		}
	}

	return nil
}

func pmLockGate(opts Options) error {
	if opts.WaitLock != nil {
		return gates.WaitPmLockGate(opts.PmChecker, opts.LiveRoot, opts.WaitLock)
	}
	return gates.PmLockGate(opts.PmChecker, opts.LiveRoot)
}

