// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package coverage interrogates a replacement executable for the applet
// names it implements, intersects that set with whatever a package adapter
// reports the distro package ships, and exposes two entry points — a
// permissive Resolve for reversible "use" and a strict Preflight for
// destructive "replace".
package coverage

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// minProbeNames is the threshold below which a probe's output is considered
// too sparse to trust.
const minProbeNames = 3

// probeTimeout bounds how long the engine waits on a single --list/--help
// invocation of the replacement binary before treating it as unresponsive.
const probeTimeout = 5 * time.Second

// Adapter enumerates the command basenames a distribution package ships
// under root's /usr/bin and legacy /bin for a given PackageKind. An empty
// result means "cannot enumerate" and is treated as a soft signal, not an
// error.
type Adapter interface {
	EnumeratePackageCommands(root model.Root, kind model.PackageKind) []string
}

// StaticAllow returns the closed, built-in allow-list of applet basenames
// for kind. It is the list the replacement-interrogation probe filters
// against and falls back to, and the allow-list Resolve/Preflight use (as do
// the *WithAllow variants when given no override).
func StaticAllow(kind model.PackageKind) []string {
	list, ok := staticAllowLists[kind]
	if !ok {
		return nil
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

var staticAllowLists = map[model.PackageKind][]string{
	model.CoreUtils: {
		"arch", "b2sum", "base32", "base64", "basename", "cat", "chcon",
		"chgrp", "chmod", "chown", "chroot", "cksum", "comm", "cp", "csplit",
		"cut", "date", "dd", "df", "dir", "dircolors", "dirname", "du",
		"echo", "env", "expand", "expr", "factor", "false", "fmt", "fold",
		"groups", "head", "hostid", "id", "install", "join", "kill", "link",
		"ln", "logname", "ls", "md5sum", "mkdir", "mkfifo", "mknod",
		"mktemp", "mv", "nice", "nl", "nohup", "nproc", "numfmt", "od",
		"paste", "pathchk", "pinky", "pr", "printenv", "printf", "ptx",
		"pwd", "readlink", "realpath", "rm", "rmdir", "runcon", "seq",
		"sha1sum", "sha224sum", "sha256sum", "sha384sum", "sha512sum",
		"shred", "shuf", "sleep", "sort", "split", "stat", "stdbuf", "stty",
		"sum", "sync", "tac", "tail", "tee", "test", "timeout", "touch",
		"tr", "true", "truncate", "tsort", "tty", "uname", "unexpand",
		"uniq", "unlink", "uptime", "users", "vdir", "wc", "who", "whoami",
		"yes",
	},
	model.FindUtils: {
		"find", "locate", "updatedb", "xargs", "oldfind", "frcode",
	},
	model.Sudo: {
		"sudo", "sudoedit", "visudo", "su",
	},
}

// Interrogate invokes sourceBin with --list, then --help as a fallback,
// retaining tokens present in allow, and falls back to allow itself if
// neither probe yields at least minProbeNames names.
func Interrogate(ctx context.Context, sourceBin string, allow []string) []string {
	allowSet := make(map[string]struct{}, len(allow))
	for _, a := range allow {
		allowSet[a] = struct{}{}
	}

	if names := probe(ctx, sourceBin, "--list", allowSet); len(names) >= minProbeNames {
		return names
	}
	if names := probe(ctx, sourceBin, "--help", allowSet); len(names) >= minProbeNames {
		return names
	}
	out := make([]string, len(allow))
	copy(out, allow)
	return out
}

func probe(ctx context.Context, sourceBin, flag string, allow map[string]struct{}) []string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, sourceBin, flag)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil
	}
	return parseTokens(out.String(), allow)
}

func parseTokens(stdout string, allow map[string]struct{}) []string {
	fields := strings.FieldsFunc(stdout, func(r rune) bool {
		switch r {
		case ',', ';', '|', '/':
			return true
		}
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := allow[f]; !ok {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the sorted, deduplicated intersection of distro and
// repl.
func Intersect(distro, repl []string) []string {
	r := make(map[string]struct{}, len(repl))
	for _, n := range repl {
		r[n] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, d := range distro {
		if _, ok := r[d]; !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Difference returns the sorted, deduplicated set distro \ repl.
func Difference(distro, repl []string) []string {
	r := make(map[string]struct{}, len(repl))
	for _, n := range repl {
		r[n] = struct{}{}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, d := range distro {
		if _, ok := r[d]; ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Resolve computes the permissive applet set for a reversible "use":
// intersect what the distro package ships with what the replacement
// implements, or fall back to the replacement's own set if the adapter
// could not enumerate anything. Uses the built-in static allow-list for
// kind.
func Resolve(ctx context.Context, adapter Adapter, root model.Root, kind model.PackageKind, sourceBin string) []string {
	return ResolveWithAllow(ctx, adapter, root, kind, sourceBin, StaticAllow(kind))
}

// ResolveWithAllow is Resolve with an explicit allow-list override, used
// when a deployment supplies its own static data table (internal/
// pkgadapter.LoadStaticAllow) instead of the module's built-in one. A nil
// or empty allow falls back to the built-in list for kind.
func ResolveWithAllow(ctx context.Context, adapter Adapter, root model.Root, kind model.PackageKind, sourceBin string, allow []string) []string {
	if len(allow) == 0 {
		allow = StaticAllow(kind)
	}
	repl := Interrogate(ctx, sourceBin, allow)
	distro := adapter.EnumeratePackageCommands(root, kind)
	if len(distro) == 0 {
		return repl
	}
	return Intersect(distro, repl)
}

// Preflight computes the strict coverage gate for a destructive "replace":
// every name the distro ships must be implemented by the replacement, or
// the call fails with CoverageMissing naming the gap. An adapter that
// cannot enumerate is treated as a pass — there is no basis to reject.
// Uses the built-in static allow-list for kind.
func Preflight(ctx context.Context, adapter Adapter, root model.Root, kind model.PackageKind, sourceBin string) error {
	return PreflightWithAllow(ctx, adapter, root, kind, sourceBin, StaticAllow(kind))
}

// PreflightWithAllow is Preflight with an explicit allow-list override; see
// ResolveWithAllow.
func PreflightWithAllow(ctx context.Context, adapter Adapter, root model.Root, kind model.PackageKind, sourceBin string, allow []string) error {
	if len(allow) == 0 {
		allow = StaticAllow(kind)
	}
	repl := Interrogate(ctx, sourceBin, allow)
	distro := adapter.EnumeratePackageCommands(root, kind)
	if len(distro) == 0 {
		return nil
	}
	missing := Difference(distro, repl)
	if len(missing) == 0 {
		return nil
	}
	return xerrors.New(xerrors.CoverageMissing, "replacement does not implement every command the package ships").WithMissing(missing)
}
