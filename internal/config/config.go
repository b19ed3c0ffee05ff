// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config holds switchyard's enumerated CLI options as a single
// value, loadable from an optional TOML file via github.com/BurntSushi/toml.
package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds switchyard's full set of run options. CLI flags always take
// precedence over a loaded file's values, which in turn take precedence
// over these defaults.
type Config struct {
	Root                   string `toml:"root"`
	Commit                 bool   `toml:"commit"`
	AssumeYes              bool   `toml:"assume_yes"`
	WaitLockSecs           *int   `toml:"wait_lock_secs"`
	ForceRestoreBestEffort bool   `toml:"force_restore_best_effort"`
	KeepReplacements       bool   `toml:"keep_replacements"`
}

// Default returns switchyard's documented defaults.
func Default() Config {
	return Config{
		Root:                   "/",
		Commit:                 false,
		AssumeYes:              false,
		WaitLockSecs:           nil,
		ForceRestoreBestEffort: false,
		KeepReplacements:       false,
	}
}

// Load reads and decodes a TOML config file at path, starting from
// Default() so any field the file omits keeps its default. A missing file
// is not an error — it is treated the same as "no config file supplied"
// and Default() is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
