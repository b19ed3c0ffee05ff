// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package docs holds the long-form help text for the switchyard CLI,
// kept separate from cmd/internal/cli to keep command prose out of
// command wiring.
package docs

const (
	RootLong = `
switchyard swaps alternative implementations of standard command-line
utilities into a system binary directory by replacing the existing
executables with symbolic links to a replacement source, and reliably
restores the originals on demand.

Every mutating run passes through the same plan -> preflight -> apply
pipeline: a Plan is built from the requested links and restores, Preflight
runs the safety gates (mount/trust, package-manager lock, setuid guard,
immutable check) without touching the filesystem, and Apply executes the
already-validated plan, either as a dry run or for real under a process-
wide lock. Each step of every action is written to the audit log as it
completes.`

	UseUse   = `use <package> --source <path>`
	UseShort = `Replace a package's commands with symlinks to a replacement binary`
	UseLong  = `
Resolves the set of command names the named package group ships that the
replacement binary at --source also implements, builds a Plan linking each
into the configured root's binary directories, runs Preflight, and -
unless --commit is given - reports what would happen without mutating
anything.

<package> is one of: coreutils, findutils, sudo, extended.`
	UseExample = `
  switchyard use coreutils --source /opt/uutils/coreutils --commit
  switchyard use sudo --source /opt/sudo-rs/sudo --commit --wait-lock-secs 30`

	RestoreUse   = `restore <package>`
	RestoreShort = `Restore a package's commands from their backup sidecars`
	RestoreLong  = `
Builds a Plan restoring every command name the named package group covers
that currently has a backup sidecar in root's /usr/bin, runs Preflight, and
applies it. Names with no backup sidecar are left out of the Plan. A planned
target whose sidecar is gone by the time it is restored fails the run
unless --force-restore-best-effort is given, in which case it is left
untouched and a warning is recorded.`
	RestoreExample = `
  switchyard restore coreutils --commit
  switchyard restore sudo --commit --force-restore-best-effort`

	CheckUse   = `check <package> --source <path>`
	CheckShort = `Report coverage and safety gate results without mutating anything`
	CheckLong  = `
Runs the Coverage Resolver's strict preflight (every command name the
distro package ships must be implemented by the replacement) and the full
Preflight gate sequence over a Plan linking the resolved command names, and
reports the first failure, or success. The Plan is built but never applied.`
	CheckExample = `
  switchyard check coreutils --source /opt/uutils/coreutils`

	ReplaceUse   = `replace <package> --source <path>`
	ReplaceShort = `Destructively replace every command a package ships, then uninstall it`
	ReplaceLong  = `
Runs the Coverage Resolver's strict preflight, same as check, then builds a
Plan linking every command name the distro package ships into the
configured root's binary directories, runs the full Preflight gate
sequence, and applies it. On a successful commit, the distro package
itself is then uninstalled via the package adapter, unless
--keep-replacements is given.

<package> is one of: coreutils, findutils, sudo, extended.`
	ReplaceExample = `
  switchyard replace coreutils --source /opt/uutils/coreutils --commit
  switchyard replace coreutils --source /opt/uutils/coreutils --commit --keep-replacements`

	StatusUse   = `status <package> --source <path>`
	StatusShort = `Report each command's current link state without mutating anything`
	StatusLong  = `
Lists, for every command name the named package group's static allow-list
names, whether root's binary directory currently holds a symlink to
--source, a symlink elsewhere, an untouched regular file, or nothing at
all.`
	StatusExample = `
  switchyard status coreutils --source /opt/uutils/coreutils`
)
