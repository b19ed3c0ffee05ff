// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sandbox is the single choke point every user-supplied path must
// pass through before any other component touches the filesystem. It
// anchors paths under a Root using github.com/cyphar/filepath-securejoin.
package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/oxidizr-deb/switchyard/internal/model"
	"github.com/oxidizr-deb/switchyard/internal/xerrors"
)

// OpenRoot validates that path is an existing, non-symlink directory and
// returns a model.Root anchored there.
func OpenRoot(path string) (model.Root, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Root{}, xerrors.Io(err, path)
	}
	fi, err := os.Lstat(abs)
	if err != nil {
		return model.Root{}, xerrors.Io(err, abs)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return model.Root{}, xerrors.New(xerrors.PathUnsafe, "root must not be a symlink").WithPath(abs)
	}
	if !fi.IsDir() {
		return model.Root{}, xerrors.New(xerrors.PathUnsafe, "root must be a directory").WithPath(abs)
	}
	return model.NewRoot(abs), nil
}

// Safe proves that path (absolute or relative) lies under root once
// normalised, rejecting traversal, embedded NULs, and any component that
// would resolve outside root. It never itself resolves symlinks beyond what
// securejoin.SecureJoin performs; later stages that need TOCTOU protection
// for the final component use internal/dirhandle instead.
func Safe(root model.Root, path string) (model.SafePath, error) {
	if strings.ContainsRune(path, 0) {
		return model.SafePath{}, xerrors.New(xerrors.PathUnsafe, "path contains a NUL byte").WithPath(path)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return model.SafePath{}, xerrors.New(xerrors.PathUnsafe, "path contains a '..' component").WithPath(path)
		}
	}

	joined, err := securejoin.SecureJoin(root.Path(), path)
	if err != nil {
		return model.SafePath{}, xerrors.Wrap(xerrors.PathUnsafe, err, "path escapes root").WithPath(path)
	}

	clean := filepath.Clean(joined)
	if clean != root.Path() && !strings.HasPrefix(clean, root.Path()+string(filepath.Separator)) {
		return model.SafePath{}, xerrors.New(xerrors.PathUnsafe, "path escapes root").WithPath(path)
	}

	return model.NewSafePath(root, clean), nil
}

// Parent returns the SafePath for sp's parent directory, still anchored
// under the same Root. Used by callers that need to open or lock the
// parent directory handle.
func Parent(sp model.SafePath) model.SafePath {
	return model.NewSafePath(sp.Root(), filepath.Dir(sp.String()))
}
