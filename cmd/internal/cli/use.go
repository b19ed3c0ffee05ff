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
	"github.com/oxidizr-deb/switchyard/internal/audit"
	"github.com/oxidizr-deb/switchyard/internal/coverage"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/pkgadapter"
	"github.com/oxidizr-deb/switchyard/internal/planner"
	"github.com/oxidizr-deb/switchyard/internal/preflight"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/swapengine"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
	"github.com/oxidizr-deb/switchyard/pkg/sylog"
)

var useSource string

var useCmd = &cobra.Command{
	Use:                   docs.UseUse,
	Short:                 docs.UseShort,
	Long:                  docs.UseLong,
	Example:               docs.UseExample,
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUse(args[0])
	},
}

func init() {
	useCmd.Flags().StringVar(&useSource, "source", "", "path to the replacement executable (required)")
	_ = useCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(useCmd)
}

func runUse(pkgName string) error {
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
	names := coverage.ResolveWithAllow(ctx, adapter, root, kind, useSource, allowFor(kind))
	if len(names) == 0 {
		return xerrors.New(xerrors.CoverageMissing, "replacement implements none of the distro's "+kind.String()+" commands")
	}
	sylog.Infof("resolved %d command(s) for %s: %v", len(names), kind, names)

	var links []planner.RawLink
	for _, name := range names {
		links = append(links, planner.RawLink{
			Source:  useSource,
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

	if commit && !confirmCommit(fmt.Sprintf("link %d command(s) for %s into %s?", len(names), kind, rootPath)) {
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
		Recorder:               recordStep(sink, "use"),
		Warn:                   sylog.Warningf,
	})
	if err != nil {
		return err
	}

	printReport(report)
	return nil
}

// recordStep adapts a swapengine.Step stream into audit.Sink.Emit calls,
// keeping internal/swapengine and internal/apply audit-agnostic: neither
// package imports internal/audit or holds a logger of its own (see
// DESIGN.md).
func recordStep(sink *audit.Sink, subsystem string) swapengine.Recorder {
	return func(step swapengine.Step) {
		rec := audit.Record{
			Subsystem: subsystem,
			Event:     step.Event,
			Decision:  decisionFor(step.Event),
		}
		if target, ok := step.Fields["target"].(string); ok {
			rec.Target = target
		}
		if source, ok := step.Fields["source"].(string); ok {
			rec.Source = source
		}
		if backupPath, ok := step.Fields["backup_path"].(string); ok {
			rec.BackupPath = backupPath
		}
		if err := sink.Emit(rec); err != nil {
			sylog.Warningf("audit: %s", err)
		}
	}
}

func decisionFor(event string) string {
	switch event {
	case "noop", "restore_noop":
		return audit.DecisionInfo
	case "backup_skipped", "cancelled":
		return audit.DecisionWarn
	default:
		return audit.DecisionSuccess
	}
}

func printReport(report model.Report) {
	for _, r := range report.Executed {
		fmt.Printf("%-8s %-8s %s\n", r.Action.Kind, r.Outcome, r.Action.Target.String())
	}
	if report.Cancelled {
		fmt.Println("cancelled: run stopped before completing the plan")
	}
}
