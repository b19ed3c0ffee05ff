// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package apply executes an already-preflighted Plan: it either emits a
// dry-run report with no mutation, or acquires the process-wide commit
// lock and executes each action through the swap engine or the backup
// sidecar's restore path, producing a Report that names the final state
// and backup path of every action.
package apply

import (
	"path/filepath"

	"github.com/oxidizr-deb/switchyard/internal/backup"
	"github.com/oxidizr-deb/switchyard/internal/dirhandle"
	"github.com/oxidizr-deb/switchyard/internal/lockfile"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/swapengine"
)

// Options configures one Apply call.
type Options struct {
	// LockPath overrides the process-wide commit lock's path. Empty means
	// lockfile.DefaultPath(root, "switchyard").
	LockPath string
	// ForceRestoreBestEffort degrades a missing backup during restore to a
	// warning and a no-op instead of a hard failure.
	ForceRestoreBestEffort bool
	// Recorder receives one Step per sub-operation, in execution order, so
	// a caller can feed it into its own audit trail.
	Recorder swapengine.Recorder
	// Warn receives human-readable warnings from best-effort restores.
	Warn func(format string, args ...interface{})
	// Cancel, if non-nil, is polled between actions; a closed/ready channel
	// stops Apply after the in-flight action completes. Cancellation is
	// never observed mid-action.
	Cancel <-chan struct{}
}

// Run executes plan under mode. DryRun never touches the filesystem and
// never acquires the commit lock; Commit acquires the process-wide lock
// for the whole run and releases it on every exit path.
func Run(root model.Root, plan model.Plan, mode model.ApplyMode, opts Options) (model.Report, error) {
	rec := opts.Recorder
	if rec == nil {
		rec = func(swapengine.Step) {}
	}
	warn := opts.Warn
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}

	if mode == model.DryRun {
		return runDryRun(plan, rec), nil
	}

	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = lockfile.DefaultPath(root.Path(), "switchyard")
	}
	lock, err := lockfile.Exclusive(lockPath)
	if err != nil {
		return model.Report{}, err
	}
	defer lock.Release()

	report := model.Report{Mode: model.Commit}
	for _, action := range plan.Actions {
		if cancelled(opts.Cancel) {
			report.Cancelled = true
			rec(swapengine.Step{Event: "cancelled", Fields: map[string]interface{}{"remaining": len(plan.Actions) - len(report.Executed)}})
			break
		}

		result, err := runAction(action, opts.ForceRestoreBestEffort, rec, warn)
		if err != nil {
			return report, err
		}
		report.Executed = append(report.Executed, result)
	}
	return report, nil
}

func cancelled(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func runDryRun(plan model.Plan, rec swapengine.Recorder) model.Report {
	report := model.Report{Mode: model.DryRun}
	for _, action := range plan.Actions {
		switch action.Kind {
		case model.ActionLink:
			result, _ := swapengine.Replace(model.LinkRequest{Source: action.Source, Target: action.Target}, model.DryRun, rec)
			report.Executed = append(report.Executed, result)
		case model.ActionRestore:
			rec(swapengine.Step{Event: "would_restore", Fields: map[string]interface{}{"target": action.Target.String()}})
			report.Executed = append(report.Executed, model.ActionResult{
				Action:  action,
				Outcome: model.OutcomeWould,
			})
		}
	}
	return report
}

func runAction(action model.Action, forceBestEffort bool, rec swapengine.Recorder, warn func(string, ...interface{})) (model.ActionResult, error) {
	switch action.Kind {
	case model.ActionLink:
		return swapengine.Replace(model.LinkRequest{Source: action.Source, Target: action.Target}, model.Commit, rec)
	case model.ActionRestore:
		return runRestore(action, forceBestEffort, rec, warn)
	default:
		return model.ActionResult{}, nil
	}
}

func runRestore(action model.Action, forceBestEffort bool, rec swapengine.Recorder, warn func(string, ...interface{})) (model.ActionResult, error) {
	target := action.Target.String()
	parentPath := filepath.Dir(target)

	dir, err := dirhandle.Open(parentPath)
	if err != nil {
		return model.ActionResult{}, err
	}
	defer dir.Close()

	backupPath, restored, err := backup.Restore(dir, parentPath, target, forceBestEffort, warn)
	if err != nil {
		return model.ActionResult{}, err
	}

	if !restored {
		rec(swapengine.Step{Event: "restore_noop", Fields: map[string]interface{}{"target": target, "reason": "no backup present"}})
		return model.ActionResult{
			Action:  action,
			Outcome: model.OutcomeNoop,
		}, nil
	}

	rec(swapengine.Step{Event: "restored", Fields: map[string]interface{}{"target": target, "backup_path": backupPath}})
	return model.ActionResult{
		Action:     action,
		Outcome:    model.OutcomeRestored,
		BackupPath: backupPath,
	}, nil
}
