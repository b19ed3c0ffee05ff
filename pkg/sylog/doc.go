// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sylog implements a small leveled, colorized logger for
// operator-facing diagnostics. It is separate from internal/audit: sylog is
// for a human watching a terminal, audit is the durable structured record a
// later process or reviewer reads back.
package sylog
