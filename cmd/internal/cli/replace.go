// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxidizr-deb/switchyard/docs"
	"github.com/oxidizr-deb/switchyard/internal/apply"
	"github.com/oxidizr-deb/switchyard/internal/coverage"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/pkgadapter"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/preflight"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
	"github.com/oxidizr-deb/switchyard/pkg/sylog"
)

var replaceSource string

var replaceCmd = &cobra.Command{
	Use:                   docs.ReplaceUse,
	Short:                 docs.ReplaceShort,
	Long:                  docs.ReplaceLong,
	Example:               docs.ReplaceExample,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplace(args[0])
	},
}

func init() {
	replaceCmd.Flags().StringVar(&replaceSource, "source", "", "path to the replacement executable (required)")
	_ = replaceCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(replaceCmd)
}

// runReplace implements the destructive "replace" verb: the replacement
// must cover every command name the distro package ships (coverage.
// PreflightWithAllow), the full link-swap Preflight/Apply pipeline runs the
// same as "use", and — only once that commit has succeeded — the distro
// package itself is uninstalled unless --keep-replacements was given.
func runReplace(pkgName string) error {
	kind, ok := model.ParsePackageKind(pkgName)
	if !ok {
		return xerrors.New(xerrors.PathUnsafe, "unknown package group "+pkgName)
	}

	root, err := sandbox.OpenRoot(rootPath)
	if err != nil {
		return err
	}

	adapter := pkgadapter.Adapter{}
	ctx := context.Background()
	if err := coverage.PreflightWithAllow(ctx, adapter, root, kind, replaceSource, allowFor(kind)); err != nil {
		return err
	}

	names := coverage.ResolveWithAllow(ctx, adapter, root, kind, replaceSource, allowFor(kind))
	if len(names) == 0 {
		return xerrors.New(xerrors.CoverageMissing, "replacement implements none of the distro's "+kind.String()+" commands")
	}
	sylog.Infof("resolved %d command(s) for %s: %v", len(names), kind, names)

	var links []planner.RawLink
	for _, name := range names {
		links = append(links, planner.RawLink{
			Source:  replaceSource,
			Target:  "/usr/bin/" + name,
			Package: kind,
		})
	}

	plan, err := planner.Build(root, planner.RawInput{Links: links})
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

	if commit && !confirmCommit(fmt.Sprintf("replace %d command(s) for %s with %s, then uninstall %s?", len(names), kind, replaceSource, kind)) {
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
		Recorder:               recordStep(sink, "replace"),
		Warn:                   sylog.Warningf,
	})
	if err != nil {
		return err
	}
	printReport(report)

	if mode != model.Commit || report.Cancelled {
		return nil
	}
	if keepReplacements {
		sylog.Infof("keep-replacements set: leaving %s's distro package installed", kind)
		return nil
	}

	if err := adapter.Remove(ctx, root, kind); err != nil {
		sylog.Warningf("replacement links applied, but uninstalling %s's distro package failed: %s", kind, err)
		return nil
	}
	sylog.Infof("uninstalled %s's distro package", kind)
	return nil
}
