// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oxidizr-deb/switchyard/docs"
	"github.com/oxidizr-deb/switchyard/internal/apply"
	"github.com/oxidizr-deb/switchyard/internal/backup"
	"github.com/oxidizr-deb/switchyard/internal/coverage"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/pkgadapter"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/preflight"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
	"github.com/oxidizr-deb/switchyard/pkg/sylog"
)

var restoreCmd = &cobra.Command{
	Use:                   docs.RestoreUse,
	Short:                 docs.RestoreShort,
	Long:                  docs.RestoreLong,
	Example:               docs.RestoreExample,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRestore(args[0])
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(pkgName string) error {
	kind, ok := model.ParsePackageKind(pkgName)
	if !ok {
		return xerrors.New(xerrors.PathUnsafe, "unknown package group "+pkgName)
	}

	root, err := sandbox.OpenRoot(rootPath)
	if err != nil {
		return err
	}

	names := backedUpNames(root, kind, allowFor(kind))
	if len(names) == 0 {
		sylog.Infof("no backup sidecars found for %s under %s", kind, rootPath)
		return nil
	}
	sylog.Infof("restoring %d command(s) for %s: %v", len(names), kind, names)

	var restores []planner.RawRestore
	for _, name := range names {
		restores = append(restores, planner.RawRestore{Target: "/usr/bin/" + name})
	}

	plan, err := planner.Build(root, planner.RawInput{Restores: restores})
	if err != nil {
		return err
	}

	liveRoot := rootPath == "/"
	if err := preflight.Run(plan, preflight.Options{
		LiveRoot:  liveRoot,
		PmChecker: pkgadapter.LockChecker{Root: root},
		WaitLock:  waitLock(),
		Force:     force,
		Warn:      sylog.Warningf,
	}); err != nil {
		return err
	}

	if commit && !confirmCommit(fmt.Sprintf("restore %d command(s) for %s from backup?", len(names), kind)) {
		sylog.Infof("aborted by user")
		return nil
	}

	sink, err := openAuditSink("")
	if err != nil {
		return err
	}
	defer sink.Close()

	mode := model.DryRun
	if commit {
		mode = model.Commit
	}

	report, err := apply.Run(root, plan, mode, apply.Options{
		ForceRestoreBestEffort: forceRestoreBestEffort,
		Recorder:               recordStep(sink, "restore"),
		Warn:                   sylog.Warningf,
	})
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// backedUpNames scans root's /usr/bin for backup sidecars whose restored
// name appears in kind's allow-list (override, if given, else the built-in
// static allow-list), so restore can discover what to restore without
// re-querying the replacement binary (which may already be gone by the
// time a restore is requested).
func backedUpNames(root model.Root, kind model.PackageKind, override []string) []string {
	names := override
	if len(names) == 0 {
		names = coverage.StaticAllow(kind)
	}
	allow := make(map[string]struct{})
	for _, n := range names {
		allow[n] = struct{}{}
	}

	binDir := filepath.Join(root.Path(), "usr/bin")
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return nil
	}

	var out []string
	for _, e := range entries {
		base := e.Name()
		if !strings.HasPrefix(base, ".") || !strings.HasSuffix(base, backup.Suffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(base, "."), backup.Suffix)
		if _, ok := allow[name]; ok {
			out = append(out, name)
		}
	}
	return out
}
