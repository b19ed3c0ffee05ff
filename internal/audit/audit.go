// Copyright (c) Contributors to the switchyard project.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package audit writes a structured trail of the actions switchyard takes:
// one self-contained JSON object per line, via logrus's JSONFormatter,
// falling back from the primary log path to $HOME/.<tool>-audit.log on
// permission failure, with token-level secret masking and PIPE_BUF-aware
// truncation.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// pipeBufBytes is Linux's PIPE_BUF: the largest atomic write guaranteed not
// to interleave with a concurrent appender on the same file.
const pipeBufBytes = 4096

// maskedKeys is the fixed, case-insensitive list of key=value keys whose
// values are masked in free-form input strings.
var maskedKeys = map[string]struct{}{
	"token": {}, "secret": {}, "password": {}, "passwd": {}, "auth": {},
	"authorization": {}, "bearer": {}, "access_key": {}, "secret_key": {},
	"api_key": {}, "apikey": {},
}

// Record is one self-contained audit event.
type Record struct {
	Timestamp   string            `json:"ts"`
	Component   string            `json:"component"`
	Subsystem   string            `json:"subsystem"`
	Level       string            `json:"level"`
	RunID       string            `json:"run_id"`
	ContainerID string            `json:"container_id,omitempty"`
	Distro      string            `json:"distro,omitempty"`
	Event       string            `json:"event"`
	Decision    string            `json:"decision"`
	Inputs      map[string]string `json:"inputs,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	ExitCode    *int              `json:"exit_code,omitempty"`
	Cmd         string            `json:"cmd,omitempty"`
	Rc          *int              `json:"rc,omitempty"`
	DurationMS  *int64            `json:"duration_ms,omitempty"`
	Target      string            `json:"target,omitempty"`
	Source      string            `json:"source,omitempty"`
	BackupPath  string            `json:"backup_path,omitempty"`
	Artifacts   []string          `json:"artifacts,omitempty"`
	Truncated   bool              `json:"truncated,omitempty"`
}

// Decision values a Record may carry.
const (
	DecisionSuccess = "success"
	DecisionFailure = "failure"
	DecisionInfo    = "info"
	DecisionWarn    = "warn"
)

// Sink is a JSON-lines audit log appender with a fixed run identity.
type Sink struct {
	mu          sync.Mutex
	logger      *logrus.Logger
	file        *os.File
	path        string
	runID       string
	containerID string
	distro      string
}

// Open opens primaryPath for append, creating parent directories as
// needed; on any failure it falls back to $HOME/.<tool>-audit.log so a
// permission failure on the primary path never aborts the run. tool names
// the fallback file (e.g. "switchyard").
func Open(primaryPath, tool, distro string) (*Sink, error) {
	f, path, err := openWithFallback(primaryPath, tool)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(f)
	logger.SetFormatter(&logrus.JSONFormatter{FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime: "ts",
		logrus.FieldKeyMsg:  "event",
	}})
	logger.SetLevel(logrus.InfoLevel)

	return &Sink{
		logger: logger,
		file:   f,
		path:   path,
		runID:  uuid.NewString(),
		distro: distro,
	}, nil
}

func openWithFallback(primaryPath, tool string) (*os.File, string, error) {
	if primaryPath != "" {
		if err := os.MkdirAll(filepath.Dir(primaryPath), 0o755); err == nil {
			if f, err := os.OpenFile(primaryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				return f, primaryPath, nil
			}
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("audit: no primary path usable and no home directory: %w", err)
	}
	fallback := filepath.Join(home, "."+tool+"-audit.log")
	f, err := os.OpenFile(fallback, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("audit: fallback log %s unusable: %w", fallback, err)
	}
	return f, fallback, nil
}

// Path returns the log file actually in use (primary or fallback).
func (s *Sink) Path() string { return s.path }

// RunID returns this sink's run identifier, attached to every record.
func (s *Sink) RunID() string { return s.runID }

// SetContainerID records a container identity to attach to future records.
func (s *Sink) SetContainerID(id string) { s.containerID = id }

// Close releases the underlying file handle.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Emit writes one record as a single JSON line. Inputs/Cmd are masked for
// secrets before writing. If the serialized line would exceed PIPE_BUF,
// the record is re-serialized with its largest free-form fields dropped
// and Truncated set, so concurrent appenders on the same file never
// interleave partial lines.
func (s *Sink) Emit(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.RunID = s.runID
	rec.ContainerID = s.containerID
	rec.Distro = s.distro
	rec.Component = "switchyard"
	rec.Cmd = MaskSecrets(rec.Cmd)
	if rec.Inputs != nil {
		masked := make(map[string]string, len(rec.Inputs))
		for k, v := range rec.Inputs {
			masked[k] = MaskSecrets(v)
		}
		rec.Inputs = masked
	}

	fields := fieldsOf(rec)
	if estimateSize(fields, rec.Event) > pipeBufBytes {
		rec.Inputs = nil
		rec.Outputs = nil
		rec.Artifacts = nil
		rec.Truncated = true
		fields = fieldsOf(rec)
	}
	s.logger.WithFields(fields).Info(rec.Event)
	return nil
}

// estimateSize approximates the serialized line length for fields plus the
// log message, used only to decide whether to drop free-form content
// before the real write.
func estimateSize(fields logrus.Fields, event string) int {
	b, err := json.Marshal(fields)
	if err != nil {
		return 0
	}
	return len(b) + len(event) + 96
}

func fieldsOf(rec Record) logrus.Fields {
	f := logrus.Fields{
		"component":    rec.Component,
		"subsystem":    rec.Subsystem,
		"run_id":       rec.RunID,
		"decision":     rec.Decision,
		"distro":       rec.Distro,
		"container_id": rec.ContainerID,
	}
	if rec.ExitCode != nil {
		f["exit_code"] = *rec.ExitCode
	}
	if rec.Rc != nil {
		f["rc"] = *rec.Rc
	}
	if rec.DurationMS != nil {
		f["duration_ms"] = *rec.DurationMS
	}
	if rec.Cmd != "" {
		f["cmd"] = rec.Cmd
	}
	if rec.Target != "" {
		f["target"] = rec.Target
	}
	if rec.Source != "" {
		f["source"] = rec.Source
	}
	if rec.BackupPath != "" {
		f["backup_path"] = rec.BackupPath
	}
	if len(rec.Artifacts) > 0 {
		f["artifacts"] = rec.Artifacts
	}
	if len(rec.Inputs) > 0 {
		f["inputs"] = rec.Inputs
	}
	if len(rec.Outputs) > 0 {
		f["outputs"] = rec.Outputs
	}
	if rec.Truncated {
		f["truncated"] = true
	}
	return f
}

// MaskSecrets scans s token-by-token (whitespace-delimited) and masks
// key=value tokens whose key matches maskedKeys, and collapses a bare
// "Bearer <token>" pair to "Bearer ***". Matching is case-insensitive.
func MaskSecrets(s string) string {
	if s == "" {
		return s
	}
	tokens := strings.Fields(s)
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if strings.EqualFold(tok, "bearer") && i+1 < len(tokens) {
			out = append(out, "Bearer", "***")
			i++
			continue
		}
		if key, _, ok := strings.Cut(tok, "="); ok {
			if _, masked := maskedKeys[strings.ToLower(key)]; masked {
				out = append(out, key+"=***")
				continue
			}
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}
