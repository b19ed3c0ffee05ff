// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package swapengine implements atomic symlink replacement of a target with
// link-aware backup and fsync discipline, anchored through a no-follow
// directory handle to close the TOCTOU window between the path-safety
// check and the rename.
package swapengine

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oxidizr-deb/switchyard/internal/backup"
	"github.com/oxidizr-deb/switchyard/internal/dirhandle"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// Step is one of the ordered, individually-audited sub-steps of a swap:
// backup_created (if any), target_removed (if any), symlink_renamed,
// parent_fsynced, emitted in that order.
type Step struct {
	Event   string
	Fields  map[string]interface{}
	AtMilli int64
}

// Recorder receives Steps as they happen, in order, so the caller (usually
// internal/apply via internal/audit) can append them to the durable audit
// trail without the Swap Engine depending on the audit package directly.
type Recorder func(Step)

func noopRecorder(Step) {}

// ErrCrossDevice is returned when the final rename would cross a
// filesystem boundary. The engine never silently falls back to a
// copy-based replacement in production; a test-only environment variable
// exists purely to exercise this path.
var ErrCrossDevice = xerrors.New(xerrors.IoError, "refusing silent cross-device fallback")

const forceEXDEVEnv = "OXIDIZR_FORCE_EXDEV"

// Replace leaves target as a symlink to source, preserving whatever target
// was before in its backup sidecar, or fails atomically with no partial
// state. mode == model.DryRun performs no mutating syscalls.
func Replace(req model.LinkRequest, mode model.ApplyMode, rec Recorder) (model.ActionResult, error) {
	if rec == nil {
		rec = noopRecorder
	}
	start := time.Now()
	source := req.Source.String()
	target := req.Target.String()

	if source == target {
		return model.ActionResult{}, xerrors.New(xerrors.PathUnsafe, "source and target must differ").WithPath(target)
	}

	parentPath := filepath.Dir(target)
	name := filepath.Base(target)

	meta, statErr := os.Lstat(target)
	existed := statErr == nil
	isSymlink := existed && meta.Mode()&os.ModeSymlink != 0

	var currentDest string
	if isSymlink {
		currentDest, _ = os.Readlink(target)
	}

	if isSymlink && sameDestination(target, currentDest, source) {
		rec(Step{Event: "noop", Fields: map[string]interface{}{"target": target, "source": source}, AtMilli: elapsedMS(start)})
		return model.ActionResult{
			Action:     model.Action{Kind: model.ActionLink, Source: req.Source, Target: req.Target, PreState: model.PreStateSymlinkToSource},
			Outcome:    model.OutcomeNoop,
			DurationMS: elapsedMS(start),
		}, nil
	}

	if mode == model.DryRun {
		rec(Step{Event: "would_ensure_symlink", Fields: map[string]interface{}{"target": target, "source": source}, AtMilli: elapsedMS(start)})
		return model.ActionResult{
			Action:     model.Action{Kind: model.ActionLink, Source: req.Source, Target: req.Target},
			Outcome:    model.OutcomeWould,
			DurationMS: elapsedMS(start),
		}, nil
	}

	dir, err := dirhandle.Open(parentPath)
	if err != nil {
		return model.ActionResult{}, err
	}
	defer dir.Close()

	backupPath := ""
	switch {
	case isSymlink:
		if err := backup.CreateFromSymlink(dir, target); err != nil {
			return model.ActionResult{}, err
		}
		backupPath = backup.PathFor(target)
		rec(Step{Event: "backup_created", Fields: map[string]interface{}{"target": target, "backup_path": backupPath, "kind": "symlink"}, AtMilli: elapsedMS(start)})
		if err := dirhandle.Unlinkat(dir, name); err != nil {
			return model.ActionResult{}, xerrors.Io(err, target)
		}
		rec(Step{Event: "target_removed", Fields: map[string]interface{}{"target": target}, AtMilli: elapsedMS(start)})

	case existed && meta.Mode().IsRegular():
		if err := backup.CreateFromRegularFile(dir, parentPath, target); err != nil {
			return model.ActionResult{}, err
		}
		backupPath = backup.PathFor(target)
		rec(Step{Event: "backup_created", Fields: map[string]interface{}{"target": target, "backup_path": backupPath, "kind": "regular"}, AtMilli: elapsedMS(start)})
		if err := dirhandle.Unlinkat(dir, name); err != nil {
			return model.ActionResult{}, xerrors.Io(err, target)
		}
		rec(Step{Event: "target_removed", Fields: map[string]interface{}{"target": target}, AtMilli: elapsedMS(start)})

	case existed:
		return model.ActionResult{}, xerrors.New(xerrors.IoError, "target exists but is neither a regular file nor a symlink").WithPath(target)

	default:
		rec(Step{Event: "backup_skipped", Fields: map[string]interface{}{"target": target, "reason": "target absent"}, AtMilli: elapsedMS(start)})
	}

	if err := atomicSwap(dir, source, name, target); err != nil {
		// Put the prior state back: the backup sidecar holds it.
		if backupPath != "" {
			_ = dirhandle.Renameat(dir, filepath.Base(backupPath), name)
		}
		return model.ActionResult{}, err
	}
	rec(Step{Event: "symlink_renamed", Fields: map[string]interface{}{"target": target, "source": source}, AtMilli: elapsedMS(start)})

	if err := dirhandle.Fsync(dir); err != nil {
		return model.ActionResult{}, xerrors.Io(err, parentPath)
	}
	rec(Step{Event: "parent_fsynced", Fields: map[string]interface{}{"target": target}, AtMilli: elapsedMS(start)})

	return model.ActionResult{
		Action:     model.Action{Kind: model.ActionLink, Source: req.Source, Target: req.Target},
		Outcome:    model.OutcomeEnsured,
		BackupPath: backupPath,
		DurationMS: elapsedMS(start),
	}, nil
}

// atomicSwap creates a sibling temporary symlink pointing at source, then
// renames it onto finalName via the already-open parent directory handle,
// so the rename happens as a single directory-anchored renameat(2) call.
func atomicSwap(dir *dirhandle.Handle, source, finalName, target string) error {
	tmpName := "." + finalName + tmpSuffix()
	_ = dirhandle.Unlinkat(dir, tmpName)
	if err := dirhandle.Symlinkat(source, dir, tmpName); err != nil {
		return xerrors.Io(err, target)
	}
	if os.Getenv(forceEXDEVEnv) == "1" {
		_ = dirhandle.Unlinkat(dir, tmpName)
		return ErrCrossDevice.WithPath(target)
	}
	if err := dirhandle.Renameat(dir, tmpName, finalName); err != nil {
		_ = dirhandle.Unlinkat(dir, tmpName)
		if errors.Is(err, syscall.EXDEV) {
			return ErrCrossDevice.WithPath(target)
		}
		return xerrors.Io(err, target)
	}
	return nil
}

func tmpSuffix() string { return ".switchyard.tmp" }

// sameDestination reports whether the symlink at target (whose raw link
// text is currentDest) already resolves to source, handling relative link
// targets by resolving them against target's parent.
func sameDestination(target, currentDest, source string) bool {
	if currentDest == "" {
		return false
	}
	resolvedCurrent := currentDest
	if !filepath.IsAbs(resolvedCurrent) {
		resolvedCurrent = filepath.Join(filepath.Dir(target), resolvedCurrent)
	}
	if c, err := filepath.EvalSymlinks(resolvedCurrent); err == nil {
		resolvedCurrent = c
	}
	desired := source
	if c, err := filepath.EvalSymlinks(source); err == nil {
		desired = c
	}
	return filepath.Clean(resolvedCurrent) == filepath.Clean(desired)
}

func elapsedMS(start time.Time) int64 { return time.Since(start).Milliseconds() }
