// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli is the thin cobra-based front-end that drives the core
// plan -> preflight -> apply pipeline. Argument parsing, help text, and
// package-adapter/audit-sink wiring live here, kept separate from the
// pipeline packages themselves.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxidizr-deb/switchyard/docs"
	"github.com/oxidizr-deb/switchyard/internal/audit"
	"github.com/oxidizr-deb/switchyard/internal/config"
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/pkgadapter"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
	"github.com/oxidizr-deb/switchyard/pkg/sylog"
)

var (
	rootPath               string
	commit                 bool
	assumeYes              bool
	waitLockSecs           int
	forceRestoreBestEffort bool
	keepReplacements       bool
	force                  bool
	debug                  bool
	verbose                bool
	quiet                  bool
	configPath             string
	packagesFile           string

	// staticAllow holds the packages-file override loaded once in
	// PersistentPreRun, nil unless --packages-file was supplied.
	staticAllow map[model.PackageKind][]string
)

// rootCmd is the `switchyard` command itself; subcommands attach to it in
// their own init() functions, one file per subcommand.
var rootCmd = &cobra.Command{
	Use:           "switchyard",
	Short:         "Swap command-line utilities in and out via symlinks, safely",
	Long:          docs.RootLong,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch {
		case debug:
			sylog.SetLevel(2) // DebugLevel
		case verbose:
			sylog.SetLevel(1) // VerboseLevel
		case quiet:
			sylog.SetLevel(-2) // WarnLevel
		}
		return applyConfigFile()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootPath, "root", "/", "root directory under which all mutation is confined")
	pf.BoolVar(&commit, "commit", false, "mutate the filesystem (default is dry-run)")
	pf.BoolVar(&assumeYes, "assume-yes", false, "skip the interactive confirmation before a commit")
	pf.IntVar(&waitLockSecs, "wait-lock-secs", 0, "poll up to this many seconds for the package-manager lock to clear (0 = fail fast)")
	pf.BoolVar(&forceRestoreBestEffort, "force-restore-best-effort", false, "degrade a missing backup during restore to a warning instead of an error")
	pf.BoolVar(&keepReplacements, "keep-replacements", false, "on replace, skip uninstalling the distro package")
	pf.BoolVar(&force, "force", false, "relax source-trust failures to warnings instead of hard rejections")
	pf.BoolVarP(&debug, "debug", "d", false, "print debugging information (highest verbosity)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print additional information")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only print errors and warnings")
	pf.StringVar(&configPath, "config", "", "optional TOML file supplying defaults for the flags above (CLI flags still win)")
	pf.StringVar(&packagesFile, "packages-file", "", "optional YAML or TOML file overriding the built-in command allow-lists per package group")
}

// applyConfigFile loads --config, if given, and fills in any of the flags
// above the operator did not explicitly set on the command line, so a CLI
// flag always wins over a config file's value, which in turn wins over the
// built-in default. It also loads --packages-file into staticAllow,
// consumed by coverage.ResolveWithAllow/PreflightWithAllow instead of the
// package's built-in allow-lists.
func applyConfigFile() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	pf := rootCmd.PersistentFlags()
	if !pf.Changed("root") {
		rootPath = cfg.Root
	}
	if !pf.Changed("commit") {
		commit = cfg.Commit
	}
	if !pf.Changed("assume-yes") {
		assumeYes = cfg.AssumeYes
	}
	if !pf.Changed("wait-lock-secs") && cfg.WaitLockSecs != nil {
		waitLockSecs = *cfg.WaitLockSecs
	}
	if !pf.Changed("force-restore-best-effort") {
		forceRestoreBestEffort = cfg.ForceRestoreBestEffort
	}
	if !pf.Changed("keep-replacements") {
		keepReplacements = cfg.KeepReplacements
	}

	allow, err := pkgadapter.LoadStaticAllow(packagesFile)
	if err != nil {
		return err
	}
	staticAllow = allow
	return nil
}

// allowFor returns the packages-file override for kind, or nil to fall
// back to coverage's built-in static allow-list.
func allowFor(kind model.PackageKind) []string {
	if staticAllow == nil {
		return nil
	}
	return staticAllow[kind]
}

// Execute runs the switchyard command tree and returns the process exit
// code, taken directly from the error taxonomy so the mapping between
// failure kind and exit status has exactly one source of truth.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return reportAndExit(err)
	}
	return 0
}

// reportAndExit prints a single-line hint for err (never a stack trace)
// and returns the exit code its Kind maps to.
func reportAndExit(err error) int {
	var xe *xerrors.Error
	if as, ok := err.(*xerrors.Error); ok {
		xe = as
	}
	if xe != nil {
		sylog.Errorf("%s", xe.Error())
		if len(xe.Missing) > 0 {
			sylog.Errorf("missing commands: %v", xe.Missing)
		}
		return xe.ExitCode()
	}
	sylog.Errorf("%s", err.Error())
	return 30
}

// openAuditSink constructs the audit sink rooted under rootPath, falling
// back to the per-user log on a permission failure, and wires its run
// identity's container id from the environment when the process is
// plainly running in one.
func openAuditSink(distro string) (*audit.Sink, error) {
	primary := fmt.Sprintf("%s/var/log/switchyard-audit.log", trimTrailingSlash(rootPath))
	sink, err := audit.Open(primary, "switchyard", distro)
	if err != nil {
		return nil, err
	}
	if cid := os.Getenv("CONTAINER_ID"); cid != "" {
		sink.SetContainerID(cid)
	}
	return sink, nil
}

func trimTrailingSlash(p string) string {
	if p == "/" {
		return ""
	}
	for len(p) > 1 && p[len(p)-1] == '/' {
		p = p[:len(p)-1]
	}
	return p
}

// waitLock returns the configured PM-lock poll timeout, or nil when
// --wait-lock-secs was left at its default of 0, meaning fail fast on a
// package-manager lock instead of polling for it to clear.
func waitLock() *time.Duration {
	if waitLockSecs <= 0 {
		return nil
	}
	d := time.Duration(waitLockSecs) * time.Second
	return &d
}

func confirmCommit(prompt string) bool {
	if assumeYes || !commit {
		return true
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y" || answer == "yes"
}
