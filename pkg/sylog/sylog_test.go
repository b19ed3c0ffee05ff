// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sylog

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWritefRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	old := SetWriter(&buf)
	defer SetWriter(old)
	oldLevel := loggerLevel
	defer func() { loggerLevel = oldLevel }()

	SetLevel(int(WarnLevel))
	Debugf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at WarnLevel for a Debugf call, got %q", buf.String())
	}

	Warningf("disk is %s", "full")
	if !strings.Contains(buf.String(), "disk is full") {
		t.Fatalf("expected warning message in output, got %q", buf.String())
	}
}

func TestWriterDiscardsBelowLogLevel(t *testing.T) {
	oldLevel := loggerLevel
	defer func() { loggerLevel = oldLevel }()
	SetLevel(int(LogLevel))
	if Writer() == nil {
		t.Fatal("Writer() must never return nil")
	}
	if Writer() != io.Discard {
		t.Fatal("expected Writer() to return io.Discard at LogLevel")
	}
}
