// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package coverage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

type mockAdapter struct{ distro []string }

func (m mockAdapter) EnumeratePackageCommands(model.Root, model.PackageKind) []string {
	return m.distro
}

func TestIntersectSortsAndDedups(t *testing.T) {
	got := Intersect([]string{"ls", "cat", "cat"}, []string{"ls", "echo"})
	want := []string{"ls"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Intersect mismatch (-want +got):\n%s", diff)
	}
}

func TestDifferenceReportsMissing(t *testing.T) {
	got := Difference([]string{"ls", "cat", "mv"}, []string{"ls"})
	want := []string{"cat", "mv"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Difference mismatch (-want +got):\n%s", diff)
	}
}

func TestInterrogateFallsBackWhenBinaryMissing(t *testing.T) {
	allow := []string{"ls", "cat"}
	got := Interrogate(context.Background(), "/definitely/not/a/binary/path", allow)
	want := []string{"ls", "cat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Interrogate mismatch (-want +got):\n%s", diff)
	}
}

func TestInterrogateParsesListOutput(t *testing.T) {
	script := filepath.Join(t.TempDir(), "uu")
	body := "#!/bin/sh\nif [ \"$1\" = \"--list\" ]; then echo 'ls,cat;mv|cp/rm'; fi\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	allow := []string{"ls", "cat", "mv", "cp", "rm"}
	got := Interrogate(context.Background(), script, allow)
	want := []string{"cat", "cp", "ls", "mv", "rm"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Interrogate mismatch (-want +got):\n%s", diff)
	}
}

func TestInterrogateIgnoresNamesOutsideAllowList(t *testing.T) {
	script := filepath.Join(t.TempDir(), "uu")
	body := "#!/bin/sh\nif [ \"$1\" = \"--list\" ]; then echo 'ls cat rogue'; fi\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	allow := []string{"ls", "cat"}
	got := Interrogate(context.Background(), script, allow)
	// Only two allowed names surface; that's below minProbeNames, so the
	// probe is rejected and the engine falls back to the full allow-list.
	want := []string{"ls", "cat"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Interrogate mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveReturnsReplWhenAdapterEmpty(t *testing.T) {
	adapter := mockAdapter{distro: nil}
	got := Resolve(context.Background(), adapter, model.NewRoot("/"), model.FindUtils, "/nonexistent/bin")
	found := map[string]bool{}
	for _, n := range got {
		found[n] = true
	}
	if !found["find"] || !found["xargs"] {
		t.Fatalf("expected fallback findutils set, got %v", got)
	}
}

func TestResolveIntersectsWithDistro(t *testing.T) {
	adapter := mockAdapter{distro: []string{"ls", "cat", "made-up-tool"}}
	got := Resolve(context.Background(), adapter, model.NewRoot("/"), model.CoreUtils, "/nonexistent/bin")
	for _, n := range got {
		if n != "ls" && n != "cat" {
			t.Fatalf("Resolve returned a name outside distro ∩ repl: %q", n)
		}
	}
	if len(got) == 0 {
		t.Fatal("expected a non-empty intersection")
	}
}

func TestPreflightOKWhenNoBasisToReject(t *testing.T) {
	adapter := mockAdapter{distro: nil}
	if err := Preflight(context.Background(), adapter, model.NewRoot("/"), model.CoreUtils, "/nonexistent/bin"); err != nil {
		t.Fatalf("expected nil error with empty distro enumeration, got %v", err)
	}
}

func TestPreflightReportsCoverageMissing(t *testing.T) {
	adapter := mockAdapter{distro: []string{"ls", "cat", "totally-unimplemented-tool"}}
	err := Preflight(context.Background(), adapter, model.NewRoot("/"), model.CoreUtils, "/nonexistent/bin")
	if err == nil {
		t.Fatal("expected CoverageMissing error")
	}
	xe, ok := err.(*xerrors.Error)
	if !ok || xe.Kind != xerrors.CoverageMissing {
		t.Fatalf("expected CoverageMissing, got %v", err)
	}
	found := false
	for _, m := range xe.Missing {
		if m == "totally-unimplemented-tool" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missing list to contain the gap, got %v", xe.Missing)
	}
}
