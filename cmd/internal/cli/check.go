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
	"github.com/oxidizr-deb/switchyard/internal/coverage"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/pkgadapter"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/preflight"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
	"github.com/oxidizr-deb/switchyard/pkg/sylog"
)

var checkSource string

var checkCmd = &cobra.Command{
	Use:                   docs.CheckUse,
	Short:                 docs.CheckShort,
	Long:                  docs.CheckLong,
	Example:               docs.CheckExample,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args[0])
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkSource, "source", "", "path to the replacement executable (required)")
	_ = checkCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(pkgName string) error {
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
	if err := coverage.PreflightWithAllow(ctx, adapter, root, kind, checkSource, allowFor(kind)); err != nil {
		return err
	}
	fmt.Printf("coverage ok: %s is fully covered by %s\n", kind, checkSource)

	names := coverage.ResolveWithAllow(ctx, adapter, root, kind, checkSource, allowFor(kind))
	var links []planner.RawLink
	for _, name := range names {
		links = append(links, planner.RawLink{Source: checkSource, Target: "/usr/bin/" + name, Package: kind})
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

	fmt.Printf("preflight ok: %d gate(s) passed for %d command(s)\n", 5, len(names))
	return nil
}
