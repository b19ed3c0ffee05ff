// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"os"

	"github.com/oxidizr-deb/switchyard/cmd/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
