// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package apply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oxidizr-deb/switchyard/internal/backup"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/swapengine"
)

func setupRoot(t *testing.T) (model.Root, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "usr/bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "opt/r"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "opt/r/uutils"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	root, err := sandbox.OpenRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	return root, dir
}

func linkPlan(t *testing.T, root model.Root, dir string) model.Plan {
	t.Helper()
	source, err := sandbox.Safe(root, "opt/r/uutils")
	if err != nil {
		t.Fatal(err)
	}
	target, err := sandbox.Safe(root, "usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	return model.Plan{Actions: []model.Action{{Kind: model.ActionLink, Source: source, Target: target, Package: model.CoreUtils}}}
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	root, dir := setupRoot(t)
	plan := linkPlan(t, root, dir)

	report, err := Run(root, plan, model.DryRun, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Executed) != 1 || report.Executed[0].Outcome != model.OutcomeWould {
		t.Fatalf("expected one 'would' outcome, got %+v", report.Executed)
	}
	if _, err := os.Lstat(filepath.Join(dir, "usr/bin/ls")); err == nil {
		t.Fatal("expected no filesystem mutation during dry run")
	}
}

func TestRunCommitCreatesSymlinkAndBackup(t *testing.T) {
	root, dir := setupRoot(t)
	targetPath := filepath.Join(dir, "usr/bin/ls")
	if err := os.WriteFile(targetPath, []byte("old-coreutils"), 0o755); err != nil {
		t.Fatal(err)
	}
	plan := linkPlan(t, root, dir)

	var steps []swapengine.Step
	report, err := Run(root, plan, model.Commit, Options{
		Recorder: func(s swapengine.Step) { steps = append(steps, s) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Executed) != 1 || report.Executed[0].Outcome != model.OutcomeEnsured {
		t.Fatalf("expected one 'ensured' outcome, got %+v", report.Executed)
	}
	if report.Executed[0].BackupPath == "" {
		t.Fatal("expected a backup path to be recorded")
	}
	dest, err := os.Readlink(targetPath)
	if err != nil {
		t.Fatalf("expected target to become a symlink: %v", err)
	}
	if filepath.Base(dest) != "uutils" {
		t.Fatalf("expected symlink to point at uutils, got %q", dest)
	}
	if len(steps) == 0 {
		t.Fatal("expected the recorder to observe at least one step")
	}
}

func TestRunCommitIsIdempotentOnRepeatedApply(t *testing.T) {
	root, dir := setupRoot(t)
	plan := linkPlan(t, root, dir)

	if _, err := Run(root, plan, model.Commit, Options{}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	report, err := Run(root, plan, model.Commit, Options{})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if report.Executed[0].Outcome != model.OutcomeNoop {
		t.Fatalf("expected second apply to be a no-op, got %v", report.Executed[0].Outcome)
	}
}

func TestRunRestoreRoundTrip(t *testing.T) {
	root, dir := setupRoot(t)
	targetPath := filepath.Join(dir, "usr/bin/ls")
	if err := os.WriteFile(targetPath, []byte("old-coreutils"), 0o755); err != nil {
		t.Fatal(err)
	}
	linkP := linkPlan(t, root, dir)
	if _, err := Run(root, linkP, model.Commit, Options{}); err != nil {
		t.Fatalf("apply link: %v", err)
	}

	target, err := sandbox.Safe(root, "usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	restorePlan := model.Plan{Actions: []model.Action{{Kind: model.ActionRestore, Target: target, Package: model.CoreUtils}}}

	report, err := Run(root, restorePlan, model.Commit, Options{})
	if err != nil {
		t.Fatalf("apply restore: %v", err)
	}
	if report.Executed[0].Outcome != model.OutcomeRestored {
		t.Fatalf("expected 'restored' outcome, got %+v", report.Executed[0])
	}
	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old-coreutils" {
		t.Fatalf("expected original content restored, got %q", data)
	}
	if backup.Exists(targetPath) {
		t.Fatal("expected backup sidecar to be consumed by restore")
	}
}

func TestRunRestoreMissingBackupFailsByDefault(t *testing.T) {
	root, dir := setupRoot(t)
	if err := os.WriteFile(filepath.Join(dir, "usr/bin/ls"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	target, err := sandbox.Safe(root, "usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	plan := model.Plan{Actions: []model.Action{{Kind: model.ActionRestore, Target: target}}}

	if _, err := Run(root, plan, model.Commit, Options{}); err == nil {
		t.Fatal("expected RestoreBackupMissing when no backup sidecar exists")
	}
}

func TestRunRestoreMissingBackupDegradesUnderForce(t *testing.T) {
	root, dir := setupRoot(t)
	if err := os.WriteFile(filepath.Join(dir, "usr/bin/ls"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	target, err := sandbox.Safe(root, "usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	plan := model.Plan{Actions: []model.Action{{Kind: model.ActionRestore, Target: target}}}

	var warned bool
	report, err := Run(root, plan, model.Commit, Options{
		ForceRestoreBestEffort: true,
		Warn:                   func(string, ...interface{}) { warned = true },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !warned {
		t.Fatal("expected a warning from the best-effort restore")
	}
	if report.Executed[0].Outcome != model.OutcomeNoop {
		t.Fatalf("expected a 'noop' outcome, got %v", report.Executed[0].Outcome)
	}
}

func TestRunStopsOnCancelBetweenActions(t *testing.T) {
	root, dir := setupRoot(t)
	source, err := sandbox.Safe(root, "opt/r/uutils")
	if err != nil {
		t.Fatal(err)
	}
	target1, err := sandbox.Safe(root, "usr/bin/ls")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "usr/bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	target2, err := sandbox.Safe(root, "usr/bin/cat")
	if err != nil {
		t.Fatal(err)
	}
	plan := model.Plan{Actions: []model.Action{
		{Kind: model.ActionLink, Source: source, Target: target1, Package: model.CoreUtils},
		{Kind: model.ActionLink, Source: source, Target: target2, Package: model.CoreUtils},
	}}

	cancel := make(chan struct{})
	close(cancel)
	report, err := Run(root, plan, model.Commit, Options{Cancel: cancel})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Cancelled {
		t.Fatal("expected report.Cancelled to be true")
	}
	if len(report.Executed) != 0 {
		t.Fatalf("expected no actions executed once cancellation is observed up front, got %d", len(report.Executed))
	}
}
