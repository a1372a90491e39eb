// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scanner

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ggshield/apiclient"
	"ggshield/ggconfig"
)

// Version is the ggshield version reported in every request header.
const Version = "1.0.0"

// ScanMode identifies how a scan was triggered, rendered into the "mode"
// header on every API call.
type ScanMode string

const (
	ModePath        ScanMode = "path"
	ModeCommitRange ScanMode = "commit_range"
	ModePreCommit   ScanMode = "pre_commit"
	ModePrePush     ScanMode = "pre_push"
	ModePreReceive  ScanMode = "pre_receive"
	ModeDocker      ScanMode = "docker"
	ModeArchive     ScanMode = "archive"
)

// ScanContext is the metadata accompanying every API call: the
// scan mode, the CLI command path that triggered it, a command id stable for
// the whole invocation, and the process-wide logger handle every component
// below the driver logs through.
type ScanContext struct {
	Mode         ScanMode
	CommandPath  string
	CommandID    string
	TargetPath   string
	ExtraHeaders map[string]string

	Log *logrus.Logger
}

// NewScanContext mints a ScanContext with a fresh command id. GL_PROTOCOL
// is folded into ExtraHeaders when set so GitLab web-UI pushes can be
// correlated server-side.
func NewScanContext(mode ScanMode, commandPath string, log *logrus.Logger) *ScanContext {
	if log == nil {
		log = logrus.New()
		log.SetOutput(os.Stderr)
	}
	extra := map[string]string{}
	if p := os.Getenv("GL_PROTOCOL"); p != "" {
		extra["GGShield-GitLab-Protocol"] = p
	}
	return &ScanContext{
		Mode:         mode,
		CommandPath:  commandPath,
		CommandID:    uuid.NewString(),
		ExtraHeaders: extra,
		Log:          log,
	}
}

// Headers renders the context into the wire header set, including the
// scan_options telemetry summary of cfg.
func (sc *ScanContext) Headers(cfg *ggconfig.Config) apiclient.Headers {
	opts, _ := json.Marshal(map[string]any{
		"ignore_known_secrets": cfg.IgnoreKnownSecrets,
		"all_secrets":          cfg.AllSecrets,
		"ignored_detectors":    len(cfg.IgnoredDetectors),
		"ignored_matches":      len(cfg.IgnoredMatches),
	})
	return apiclient.Headers{
		Version:      Version,
		CommandPath:  sc.CommandPath,
		CommandID:    sc.CommandID,
		OSName:       runtime.GOOS,
		OSVersion:    runtime.GOARCH,
		RuntimeVer:   runtime.Version(),
		Mode:         string(sc.Mode),
		ScanOptions:  string(opts),
		ExtraHeaders: sc.ExtraHeaders,
	}
}
