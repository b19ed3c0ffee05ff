// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package xerrors implements the error taxonomy the core reports through:
// one Kind per failure class, a stable CLI exit-code mapping, and wrapped
// causes via github.com/pkg/errors so a caller can recover the original
// I/O error without string matching.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the closed set of error classes the core can produce.
type Kind int

const (
	PathUnsafe Kind = iota
	MountUnfit
	SourceUntrusted
	ParentNotDirectory
	PmBusy
	SudoGuard
	CoverageMissing
	RestoreBackupMissing
	RepoGateFailed
	IoError
	Aborted
)

func (k Kind) String() string {
	switch k {
	case PathUnsafe:
		return "PathUnsafe"
	case MountUnfit:
		return "MountUnfit"
	case SourceUntrusted:
		return "SourceUntrusted"
	case ParentNotDirectory:
		return "ParentNotDirectory"
	case PmBusy:
		return "PmBusy"
	case SudoGuard:
		return "SudoGuard"
	case CoverageMissing:
		return "CoverageMissing"
	case RestoreBackupMissing:
		return "RestoreBackupMissing"
	case RepoGateFailed:
		return "RepoGateFailed"
	case IoError:
		return "Io"
	case Aborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ExitCode maps a Kind onto the CLI's process exit-code contract. It is
// exposed here, not re-derived in the CLI, so the mapping has exactly one
// source of truth.
func (k Kind) ExitCode() int {
	switch k {
	case PathUnsafe:
		return 10
	case MountUnfit, SourceUntrusted, ParentNotDirectory, SudoGuard:
		return 20
	case PmBusy:
		return 60
	case CoverageMissing:
		return 40
	case RestoreBackupMissing:
		return 50
	case RepoGateFailed:
		return 20
	case IoError, Aborted:
		return 30
	default:
		return 30
	}
}

// Error is the core's wrapped error type: a Kind, a human-readable hint,
// optional structured details (e.g. the list of missing command names for
// CoverageMissing), and the underlying cause.
type Error struct {
	Kind    Kind
	Hint    string
	Path    string   // populated for Io, PathUnsafe, ParentNotDirectory, ...
	Missing []string // populated for CoverageMissing
	cause   error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Hint, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Hint)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// ExitCode forwards to the Kind's exit code.
func (e *Error) ExitCode() int { return e.Kind.ExitCode() }

// New builds a bare *Error with no underlying cause.
func New(kind Kind, hint string) *Error {
	return &Error{Kind: kind, Hint: hint}
}

// Wrap builds an *Error that carries cause as its wrapped origin, recording
// hint as context via github.com/pkg/errors.Wrap (which also captures a
// stack trace; Error() never prints it).
func Wrap(kind Kind, cause error, hint string) *Error {
	return &Error{Kind: kind, Hint: hint, cause: errors.Wrap(cause, hint)}
}

// WithPath attaches a path to the error for display purposes.
func (e *Error) WithPath(p string) *Error {
	e.Path = p
	return e
}

// WithMissing attaches the list of missing command names (CoverageMissing).
func (e *Error) WithMissing(names []string) *Error {
	e.Missing = names
	return e
}

// Io wraps a raw filesystem error as the Io kind with its offending path.
func Io(cause error, path string) *Error {
	return Wrap(IoError, cause, "filesystem operation failed").WithPath(path)
}

// Cause unwraps to the deepest non-*Error cause, mirroring errors.Cause. An
// *Error with no wrapped cause is returned as-is.
func Cause(err error) error {
	for {
		xe, ok := err.(*Error)
		if !ok || xe.cause == nil {
			return errors.Cause(err)
		}
		err = errors.Cause(xe.cause)
	}
}
