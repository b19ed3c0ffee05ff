// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package planner

import (
	"os"
	"path/filepath"

	"github.com/oxidizr-deb/switchyard/internal/model"
)

// State names what Status observed for a single command name: whether its
// target is currently linked to the candidate source, linked elsewhere, an
// untouched regular file, or absent entirely.
type State string

const (
	StateLinkedToSource  State = "linked"
	StateLinkedElsewhere State = "linked_elsewhere"
	StateRegularFile     State = "untouched"
	StateAbsent          State = "absent"
)

// TargetStatus is one command name's observed state under root's
// /usr/bin, relative to a candidate replacement source.
type TargetStatus struct {
	Name            string
	Target          string
	State           State
	LinkDestination string // populated when State is one of the Linked* values
}

// Status reports, for each name, whether root's /usr/bin/<name> is
// currently a symlink to source, a symlink to something else, a plain
// file, or absent. It never mutates and never fails — an unreadable
// target is reported as StateAbsent, the same as a missing one, since
// both mean "nothing here for a restore or link to act on".
func Status(root model.Root, source string, names []string) []TargetStatus {
	out := make([]TargetStatus, 0, len(names))
	for _, name := range names {
		target := filepath.Join(root.Path(), "usr/bin", name)
		out = append(out, statusOf(name, target, source))
	}
	return out
}

func statusOf(name, target, source string) TargetStatus {
	info, err := os.Lstat(target)
	if err != nil {
		return TargetStatus{Name: name, Target: target, State: StateAbsent}
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return TargetStatus{Name: name, Target: target, State: StateRegularFile}
	}

	dest, err := os.Readlink(target)
	if err != nil {
		return TargetStatus{Name: name, Target: target, State: StateLinkedElsewhere}
	}
	resolved := dest
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(target), resolved)
	}
	if sameFile(resolved, source) {
		return TargetStatus{Name: name, Target: target, State: StateLinkedToSource, LinkDestination: dest}
	}
	return TargetStatus{Name: name, Target: target, State: StateLinkedElsewhere, LinkDestination: dest}
}

func sameFile(a, b string) bool {
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		a = ra
	}
	if rb, err := filepath.EvalSymlinks(b); err == nil {
		b = rb
	}
	return filepath.Clean(a) == filepath.Clean(b)
}
