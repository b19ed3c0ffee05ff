// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package pkgadapter

import (
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/oxidizr-deb/switchyard/internal/model"
)

// staticAllowFile is the shape of a deployment-supplied override of
// internal/coverage's built-in static allow-lists: the command names
// belonging to each package group, expressed as swappable data rather than
// code.
type staticAllowFile struct {
	CoreUtils []string `toml:"coreutils" yaml:"coreutils"`
	FindUtils []string `toml:"findutils" yaml:"findutils"`
	Sudo      []string `toml:"sudo" yaml:"sudo"`
	Extended  []string `toml:"extended" yaml:"extended"`
}

func (f staticAllowFile) toMap() map[model.PackageKind][]string {
	return map[model.PackageKind][]string{
		model.CoreUtils: f.CoreUtils,
		model.FindUtils: f.FindUtils,
		model.Sudo:      f.Sudo,
		model.Extended:  f.Extended,
	}
}

// LoadStaticAllow reads a packages.yaml or packages.toml file at path and
// returns the per-PackageKind command allow-lists it declares, trying YAML
// first and falling back to TOML, since a deployment may ship either.
// A missing file returns a nil map and no error: the caller should keep
// using internal/coverage's built-in allow-lists.
func LoadStaticAllow(path string) (map[model.PackageKind][]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var viaYAML staticAllowFile
	if err := yaml.Unmarshal(b, &viaYAML); err == nil && anyNonEmpty(viaYAML) {
		return viaYAML.toMap(), nil
	}

	var viaTOML staticAllowFile
	if _, err := toml.Decode(string(b), &viaTOML); err != nil {
		return nil, err
	}
	return viaTOML.toMap(), nil
}

func anyNonEmpty(f staticAllowFile) bool {
	return len(f.CoreUtils) > 0 || len(f.FindUtils) > 0 || len(f.Sudo) > 0 || len(f.Extended) > 0
}
