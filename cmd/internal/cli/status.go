// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxidizr-deb/switchyard/docs"
	"github.com/oxidizr-deb/switchyard/internal/coverage"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

var statusSource string

var statusCmd = &cobra.Command{
	Use:                   docs.StatusUse,
	Short:                 docs.StatusShort,
	Long:                  docs.StatusLong,
	Example:               docs.StatusExample,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(args[0])
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSource, "source", "", "path to the replacement executable (required)")
	_ = statusCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(pkgName string) error {
	kind, ok := model.ParsePackageKind(pkgName)
	if !ok {
		return xerrors.New(xerrors.PathUnsafe, "unknown package group "+pkgName)
	}

	root, err := sandbox.OpenRoot(rootPath)
	if err != nil {
		return err
	}

	names := allowFor(kind)
	if len(names) == 0 {
		names = coverage.StaticAllow(kind)
	}

	for _, s := range planner.Status(root, statusSource, names) {
		switch s.State {
		case planner.StateLinkedToSource, planner.StateLinkedElsewhere:
			fmt.Printf("%-12s %-16s -> %s\n", s.Name, s.State, s.LinkDestination)
		default:
			fmt.Printf("%-12s %-16s\n", s.Name, s.State)
		}
	}
	return nil
}
