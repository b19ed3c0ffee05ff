// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package planner turns a raw, unvalidated PlanInput into an immutable,
// ordered, deduplicated Plan value that Preflight and Apply both consume
// unchanged.
package planner

import (
	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/sandbox"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// RawLink is an unvalidated link request: plain, root-relative-or-absolute
// source and target paths as supplied by the CLI collaborator.
type RawLink struct {
	Source  string
	Target  string
	Package model.PackageKind
}

// RawRestore is an unvalidated restore request.
type RawRestore struct {
	Target string
}

// RawInput is the material the Planner validates and orders into a Plan.
type RawInput struct {
	Links    []RawLink
	Restores []RawRestore
}

// Build validates every entry via the Path Sandbox, rejects a plan that
// mixes a link and a restore for the same target, deduplicates by target
// (first occurrence wins, preserving input order), and orders the result
// restores-first-then-links.
func Build(root model.Root, input RawInput) (model.Plan, error) {
	restoreTargets := make(map[string]struct{}, len(input.Restores))
	linkTargets := make(map[string]struct{}, len(input.Links))

	restores := make([]model.Action, 0, len(input.Restores))
	seenRestore := make(map[string]struct{}, len(input.Restores))
	for _, r := range input.Restores {
		sp, err := sandbox.Safe(root, r.Target)
		if err != nil {
			return model.Plan{}, err
		}
		key := sp.String()
		restoreTargets[key] = struct{}{}
		if _, dup := seenRestore[key]; dup {
			continue
		}
		seenRestore[key] = struct{}{}
		restores = append(restores, model.Action{Kind: model.ActionRestore, Target: sp})
	}

	links := make([]model.Action, 0, len(input.Links))
	seenLink := make(map[string]struct{}, len(input.Links))
	for _, l := range input.Links {
		sourceSP, err := sandbox.Safe(root, l.Source)
		if err != nil {
			return model.Plan{}, err
		}
		targetSP, err := sandbox.Safe(root, l.Target)
		if err != nil {
			return model.Plan{}, err
		}
		key := targetSP.String()
		linkTargets[key] = struct{}{}
		if _, dup := seenLink[key]; dup {
			continue
		}
		seenLink[key] = struct{}{}
		links = append(links, model.Action{Kind: model.ActionLink, Source: sourceSP, Target: targetSP, Package: l.Package})
	}

	for target := range linkTargets {
		if _, mixed := restoreTargets[target]; mixed {
			return model.Plan{}, xerrors.New(xerrors.Aborted,
				"plan mixes a link and a restore for the same target").WithPath(target)
		}
	}

	actions := make([]model.Action, 0, len(restores)+len(links))
	actions = append(actions, restores...)
	actions = append(actions, links...)
	return model.Plan{Actions: actions}, nil
}
