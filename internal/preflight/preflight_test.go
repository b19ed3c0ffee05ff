// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

type fakeChecker struct{ held bool }

func (f fakeChecker) Held() bool { return f.held }

func buildPlan(t *testing.T, dir string, pkg model.PackageKind) model.Plan {
	t.Helper()
	root, err := sandbox.OpenRoot(dir)
	if err != nil {
		t.Fatal(err)
	}
	plan, err := planner.Build(root, planner.RawInput{
		Links: []planner.RawLink{{Source: "opt/r/uutils", Target: "usr/bin/ls", Package: pkg}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return plan
}

func TestRunFailsFastOnPmBusy(t *testing.T) {
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
	plan := buildPlan(t, dir, model.CoreUtils)

	err := Run(plan, Options{LiveRoot: true, PmChecker: fakeChecker{held: true}})
	if err == nil {
		t.Fatal("expected PmBusy to short-circuit the pipeline")
	}
	xe, ok := err.(*xerrors.Error)
	if !ok || xe.Kind != xerrors.PmBusy {
		t.Fatalf("expected PmBusy, got %v", err)
	}
}

func TestRunSudoGuardRejectsNonSetuidSource(t *testing.T) {
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
	plan := buildPlan(t, dir, model.Sudo)

	err := Run(plan, Options{LiveRoot: false})
	if err == nil {
		t.Fatal("expected setuid guard to reject a non-setuid sudo replacement")
	}
	xe, ok := err.(*xerrors.Error)
	if !ok || xe.Kind != xerrors.SudoGuard {
		t.Fatalf("expected SudoGuard, got %v", err)
	}
}

func TestRunPassesForOrdinaryCoreUtilsLink(t *testing.T) {
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
	plan := buildPlan(t, dir, model.CoreUtils)

	if err := Run(plan, Options{LiveRoot: false}); err != nil {
		t.Fatalf("expected preflight to pass for a synthetic non-live root, got %v", err)
	}
}
