// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTrimTrailingSlash(t *testing.T) {
	cases := map[string]string{
		"/":        "",
		"/a/":      "/a",
		"/a/b":     "/a/b",
		"/a/b/":    "/a/b",
		"/a/b///":  "/a/b",
	}
	for in, want := range cases {
		if got := trimTrailingSlash(in); got != want {
			t.Errorf("trimTrailingSlash(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWaitLockAbsentByDefault(t *testing.T) {
	old := waitLockSecs
	defer func() { waitLockSecs = old }()

	waitLockSecs = 0
	if got := waitLock(); got != nil {
		t.Errorf("expected nil timeout for waitLockSecs=0, got %v", *got)
	}

	waitLockSecs = 30
	got := waitLock()
	if got == nil || *got != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", got)
	}
}

func TestDecisionForMapsNoopAndWarnEvents(t *testing.T) {
	if decisionFor("noop") != "info" {
		t.Errorf("expected noop to map to info decision")
	}
	if decisionFor("backup_skipped") != "warn" {
		t.Errorf("expected backup_skipped to map to warn decision")
	}
	if decisionFor("symlink_renamed") != "success" {
		t.Errorf("expected an unrecognised/normal event to default to success")
	}
}

// TestRunUseDryRunDoesNotMutate exercises the whole plan -> preflight ->
// apply pipeline through the CLI's runUse helper in dry-run mode against a
// synthetic root, asserting the target file is untouched afterward.
func TestRunUseDryRunDoesNotMutate(t *testing.T) {
	root := t.TempDir()
	usrBin := filepath.Join(root, "usr", "bin")
	if err := os.MkdirAll(usrBin, 0o755); err != nil {
		t.Fatal(err)
	}
	lsPath := filepath.Join(usrBin, "ls")
	if err := os.WriteFile(lsPath, []byte("gnu-ls"), 0o755); err != nil {
		t.Fatal(err)
	}

	replacement := filepath.Join(root, "opt-replacement")
	script := "#!/bin/sh\ncase \"$1\" in --list) echo 'ls cat mv';; esac\n"
	if err := os.WriteFile(replacement, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	oldRoot, oldCommit, oldSource, oldForce := rootPath, commit, useSource, force
	defer func() { rootPath, commit, useSource, force = oldRoot, oldCommit, oldSource, oldForce }()

	rootPath = root
	commit = false
	useSource = replacement
	force = true // test binaries aren't root-owned; exercise the override path

	if err := runUse("coreutils"); err != nil {
		t.Fatalf("runUse dry-run failed: %v", err)
	}

	data, err := os.ReadFile(lsPath)
	if err != nil {
		t.Fatalf("target disappeared during dry-run: %v", err)
	}
	if string(data) != "gnu-ls" {
		t.Errorf("target content changed during dry-run: %q", data)
	}
	fi, err := os.Lstat(lsPath)
	if err != nil || fi.Mode()&os.ModeSymlink != 0 {
		t.Errorf("target became a symlink during dry-run")
	}
}

func TestRunUseUnknownPackageKind(t *testing.T) {
	oldRoot := rootPath
	defer func() { rootPath = oldRoot }()
	rootPath = t.TempDir()

	err := runUse("not-a-real-group")
	if err == nil {
		t.Fatal("expected an error for an unknown package group")
	}
}

// TestApplyConfigFileFillsUnsetFlagsOnly confirms a loaded config file only
// overrides flags the operator did not set explicitly on the command line,
// matching the CLI-flag-wins precedence documented on --config.
func TestApplyConfigFileFillsUnsetFlagsOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switchyard.toml")
	body := "root = \"/mnt/target\"\ncommit = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	oldRoot, oldCommit, oldConfigPath, oldStaticAllow := rootPath, commit, configPath, staticAllow
	defer func() {
		rootPath, commit, configPath, staticAllow = oldRoot, oldCommit, oldConfigPath, oldStaticAllow
		_ = rootCmd.PersistentFlags().Set("root", oldRoot)
	}()

	configPath = path
	rootPath = "/"
	commit = false
	if err := applyConfigFile(); err != nil {
		t.Fatalf("applyConfigFile: %v", err)
	}
	if rootPath != "/mnt/target" {
		t.Errorf("expected config file to fill unset --root, got %q", rootPath)
	}
	if !commit {
		t.Errorf("expected config file to fill unset --commit")
	}

	if err := rootCmd.PersistentFlags().Set("root", "/explicit"); err != nil {
		t.Fatal(err)
	}
	rootPath = "/explicit"
	if err := applyConfigFile(); err != nil {
		t.Fatalf("applyConfigFile: %v", err)
	}
	if rootPath != "/explicit" {
		t.Errorf("expected an explicitly-set --root to win over the config file, got %q", rootPath)
	}
}

func TestAllowForFallsBackToNilWithoutPackagesFile(t *testing.T) {
	old := staticAllow
	defer func() { staticAllow = old }()
	staticAllow = nil

	if got := allowFor(0); got != nil {
		t.Errorf("expected nil override absent a packages file, got %v", got)
	}
}
