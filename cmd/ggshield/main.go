// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ggshield: scans source artefacts for secrets through the GitGuardian API
// and enforces the verdicts in CI and git hooks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"ggshield/apiclient"
	"ggshield/archivescan"
	"ggshield/commitrange"
	"ggshield/exclusion"
	"ggshield/ggcache"
	"ggshield/ggconfig"
	"ggshield/ggerrors"
	"ggshield/gitshell"
	"ggshield/hooks"
	"ggshield/reporter"
	"ggshield/resulttree"
	"ggshield/scannable"
	"ggshield/scanner"
	"ggshield/scanui"
)

const helpText = `ggshield: scans source artefacts for secrets.

Supported commands are:
  secret scan [-all] [directory]  - scan a directory (-all: every tracked file)
  secret scan commit-range A..B   - scan every commit in a range
  secret scan docker <image.tar>  - scan every layer of a saved docker image
  secret scan archive <path>      - scan a tarball (-ref packs a git ref)
  secret describe <incident-id>   - show a secret incident
  hook pre-commit                 - scan the staging area (git hook)
  hook pre-push <remote> <url>    - scan pushed commits (git hook)
  hook pre-receive                - scan received commits (server-side hook)
  version                         - print the tool version number
`

// usageErr wraps a CLI-level mistake so main maps it to exit 2.
func usageErr(msg string) error { return ggerrors.Usage(msg) }

// maxTarContentSize bounds the tarball ScanRef assembles, standing in for
// the server-declared bound until the metadata endpoint advertises one.
const maxTarContentSize = 20 * 1024 * 1024

type env struct {
	cfg    *ggconfig.Config
	client apiclient.Client
	cache  *ggcache.Cache
	excl   *exclusion.Set
	repo   *gitshell.Repo
	log    *logrus.Logger
	format string
	stdout io.Writer
	stderr io.Writer

	// engineVersion is the server-reported secrets_engine_version, captured
	// from the metadata read; it keys the clean-layer cache.
	engineVersion string
}

// buildScanner assembles the secret scanner for one invocation, reading
// the server-declared preferences when reachable.
func (e *env) buildScanner(ctx context.Context, mode scanner.ScanMode, commandPath string) (*scanner.Scanner, error) {
	sc := scanner.NewScanContext(mode, commandPath, e.log)
	var prefs *apiclient.SecretScanPreferences
	if p, detail, err := e.client.ReadMetadata(ctx); err == nil && detail == nil {
		prefs = p
		e.engineVersion = p.SecretsEngineVersion
	} else if detail != nil && detail.StatusCode == 401 {
		return nil, ggerrors.Auth(detail.Message)
	}
	s := &scanner.Scanner{
		Client: e.client,
		Cfg:    e.cfg,
		SC:     sc,
		Opts:   scanner.ResolveOptions(e.cfg, prefs),
		UI:     scanui.Noop{},
		Cache:  e.cache,
	}
	if e.cfg.SourceUUID != "" {
		if err := s.CheckCreateIncidentsScope(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (e *env) report(tree *resulttree.SecretScanCollection) error {
	rep, err := reporter.ForFormat(e.format)
	if err != nil {
		return usageErr(err.Error())
	}
	return rep.Report(e.stdout, tree)
}

// cmdSecretScan walks a directory (or the explicit -all tree) and scans
// every non-excluded file. An explicit directory flag wins over the
// positional argument when both are passed.
func cmdSecretScan(ctx context.Context, e *env, args []string) (int, error) {
	fs := flag.NewFlagSet("secret scan", flag.ContinueOnError)
	all := fs.Bool("all", false, "scan every tracked file of the repository instead of walking the directory")
	dir := fs.String("directory", "", "directory to scan")
	if err := fs.Parse(args); err != nil {
		return 2, usageErr(err.Error())
	}
	rest := fs.Args()
	if len(rest) > 0 {
		switch rest[0] {
		case "commit-range":
			return cmdScanCommitRange(ctx, e, rest[1:])
		case "docker":
			return cmdScanDocker(ctx, e, rest[1:])
		case "archive":
			return cmdScanArchive(ctx, e, rest[1:])
		}
	}

	target := *dir
	if target == "" && len(rest) > 0 {
		target = rest[0]
	}
	if target == "" {
		target = "."
	}

	s, err := e.buildScanner(ctx, scanner.ModePath, "secret scan")
	if err != nil {
		return exitFor(err), err
	}
	s.SC.TargetPath = target

	var scannables []scannable.Scannable
	if *all && e.repo != nil {
		paths, err := e.repo.LsFilesRecurseSubmodules(ctx)
		if err != nil {
			return 2, usageErr(err.Error())
		}
		for _, p := range paths {
			if e.excl.IsExcluded(p) {
				continue
			}
			scannables = append(scannables, scannable.NewFile("", p, filepath.Join(e.repo.Root(), p), scannable.File))
		}
	} else {
		err := filepath.Walk(target, func(p string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			rel := strings.TrimPrefix(p, "./")
			if e.excl.IsExcluded(rel) {
				return nil
			}
			scannables = append(scannables, scannable.NewFile("", rel, p, scannable.File))
			return nil
		})
		if err != nil {
			return 2, usageErr(err.Error())
		}
	}

	results, err := s.Scan(ctx, scannables)
	if err != nil {
		return exitFor(err), err
	}
	tree := &resulttree.SecretScanCollection{ID: target, Type: "path_scan", Results: &results}
	if err := e.report(tree); err != nil {
		return 128, err
	}
	return resulttree.ExitCode(tree, nil), nil
}

// cmdScanCommitRange scans every commit of "A..B" (or an explicit sha
// list), preserving per-commit attribution.
func cmdScanCommitRange(ctx context.Context, e *env, args []string) (int, error) {
	if len(args) == 0 {
		return 2, usageErr("commit-range requires a range such as HEAD~5..HEAD")
	}
	if e.repo == nil {
		return 2, usageErr("not a git repository")
	}
	s, err := e.buildScanner(ctx, scanner.ModeCommitRange, "secret scan commit-range")
	if err != nil {
		return exitFor(err), err
	}
	shas, err := e.repo.RevList(ctx, args[0])
	if err != nil {
		return 2, usageErr(fmt.Sprintf("unknown ref %q", args[0]))
	}
	if len(shas) == 0 {
		return 0, nil
	}
	for i, j := 0, len(shas)-1; i < j; i, j = i+1, j-1 {
		shas[i], shas[j] = shas[j], shas[i]
	}
	rs := &commitrange.Scanner{Repo: e.repo, Secrets: s, Exclusion: e.excl}
	tree, err := rs.Scan(ctx, shas)
	if err != nil {
		return exitFor(err), err
	}
	if err := e.report(tree); err != nil {
		return 128, err
	}
	return resulttree.ExitCode(tree, nil), nil
}

// cmdScanDocker scans every layer of a "docker save" tarball, skipping
// layers the cache already knows clean for the current engine version.
func cmdScanDocker(ctx context.Context, e *env, args []string) (int, error) {
	if len(args) != 1 {
		return 2, usageErr("docker requires the path of a saved image tarball")
	}
	s, err := e.buildScanner(ctx, scanner.ModeDocker, "secret scan docker")
	if err != nil {
		return exitFor(err), err
	}
	s.SC.TargetPath = args[0]
	as := &archivescan.Scanner{Secrets: s, Exclusion: e.excl, EngineVersion: e.engineVersion}
	tree, err := as.ScanImage(ctx, args[0], e.cache)
	if err != nil {
		return exitFor(err), err
	}
	if err := e.report(tree); err != nil {
		return 128, err
	}
	return resulttree.ExitCode(tree, nil), nil
}

// cmdScanArchive scans an on-disk tarball; with -ref it packs the tracked
// files at a git ref into one first.
func cmdScanArchive(ctx context.Context, e *env, args []string) (int, error) {
	fs := flag.NewFlagSet("secret scan archive", flag.ContinueOnError)
	ref := fs.String("ref", "", "pack and scan the tracked files at this git ref")
	if err := fs.Parse(args); err != nil {
		return 2, usageErr(err.Error())
	}
	s, err := e.buildScanner(ctx, scanner.ModeArchive, "secret scan archive")
	if err != nil {
		return exitFor(err), err
	}
	as := &archivescan.Scanner{Secrets: s, Exclusion: e.excl, EngineVersion: e.engineVersion}

	var tree *resulttree.SecretScanCollection
	if *ref != "" {
		if e.repo == nil {
			return 2, usageErr("not a git repository")
		}
		s.SC.TargetPath = *ref
		tree, err = as.ScanRef(ctx, e.repo, *ref, maxTarContentSize)
	} else {
		if fs.NArg() != 1 {
			return 2, usageErr("archive requires the path of a tarball")
		}
		path := fs.Arg(0)
		s.SC.TargetPath = path
		f, ferr := os.Open(path)
		if ferr != nil {
			return 2, usageErr(ferr.Error())
		}
		defer f.Close()
		tree, err = as.ScanArchive(ctx, filepath.Base(path), f)
	}
	if err != nil {
		return exitFor(err), err
	}
	if err := e.report(tree); err != nil {
		return 128, err
	}
	return resulttree.ExitCode(tree, nil), nil
}

// cmdSecretDescribe fetches one incident through the API client.
func cmdSecretDescribe(ctx context.Context, e *env, args []string) (int, error) {
	if len(args) != 1 {
		return 2, usageErr("describe requires exactly one incident id")
	}
	incident, detail, err := e.client.RetrieveSecretIncident(ctx, args[0], 0)
	if err != nil {
		return 128, err
	}
	if detail != nil {
		if detail.StatusCode == 401 {
			return 3, ggerrors.Auth(detail.Message)
		}
		return 128, detail
	}
	fmt.Fprintf(e.stdout, "%s: %s (%d occurrences)\n%s\n",
		incident.ID, incident.DetectorName, incident.OccurrenceCount, incident.GitguardianURL)
	return 0, nil
}

// cmdHook dispatches the three git-hook drivers.
func cmdHook(ctx context.Context, e *env, args []string) (int, error) {
	if len(args) == 0 {
		return 2, usageErr("hook requires a mode: pre-commit, pre-push, or pre-receive")
	}
	if e.repo == nil {
		return 2, usageErr("not a git repository")
	}
	mode := args[0]
	scanMode := map[string]scanner.ScanMode{
		"pre-commit":  scanner.ModePreCommit,
		"pre-push":    scanner.ModePrePush,
		"pre-receive": scanner.ModePreReceive,
	}[mode]
	if scanMode == "" && mode != "pre-receive-scan" {
		return 2, usageErr("unknown hook mode " + mode)
	}
	if mode == "pre-receive-scan" {
		scanMode = scanner.ModePreReceive
	}

	s, err := e.buildScanner(ctx, scanMode, "hook "+mode)
	if err != nil {
		return exitFor(err), err
	}
	d := &hooks.Driver{
		Repo:      e.repo,
		Range:     &commitrange.Scanner{Repo: e.repo, Secrets: s, Exclusion: e.excl},
		Secrets:   s,
		Exclusion: e.excl,
		Cfg:       e.cfg,
		SC:        s.SC,
		Stderr:    e.stderr,
	}

	switch mode {
	case "pre-commit":
		tree, err := d.PreCommit(ctx)
		return finishHook(e, tree, err)
	case "pre-push":
		remote := "origin"
		if len(args) > 1 {
			remote = args[1]
		}
		tree, err := d.PrePush(ctx, remote, os.Stdin)
		return finishHook(e, tree, err)
	case "pre-receive":
		return d.PreReceive(ctx, os.Stdin, []string{"hook", "pre-receive-scan"}), nil
	case "pre-receive-scan":
		// Hidden child invocation spawned by pre-receive with the parsed
		// "<old> <new> <ref>" appended.
		if len(args) != 4 {
			return 2, usageErr("pre-receive-scan is only meant to be spawned by pre-receive")
		}
		tree, err := d.PreReceiveScan(ctx, args[1], args[2])
		return finishHook(e, tree, err)
	}
	return 2, usageErr("unknown hook mode " + mode)
}

// finishHook reports a hook's tree and maps its exit code; a nil tree
// (nothing to scan, or SKIP) is success.
func finishHook(e *env, tree *resulttree.SecretScanCollection, err error) (int, error) {
	if err != nil {
		return exitFor(err), err
	}
	if tree == nil {
		return 0, nil
	}
	if rerr := e.report(tree); rerr != nil {
		return 128, rerr
	}
	return resulttree.ExitCode(tree, nil), nil
}

func exitFor(err error) int {
	type kinded interface{ ExitCode() int }
	var k kinded
	if errors.As(err, &k) {
		return k.ExitCode()
	}
	return 128
}

func mainImpl(ctx context.Context) (int, error) {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
		copy(os.Args[1:], os.Args[2:])
		os.Args = os.Args[:len(os.Args)-1]
	}
	verbose := flag.Bool("verbose", false, "enables verbose logging output")
	format := flag.String("format", "text", "output format: text, json, or sarif")
	exitZero := flag.Bool("exit-zero", false, "always exit 0, even when secrets are found")
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	cfg, err := ggconfig.Load(".gitguardian.yaml")
	if err != nil {
		return 2, usageErr(err.Error())
	}
	excl, err := exclusion.Compile(cfg.ExclusionPatterns)
	if err != nil {
		return 2, usageErr(err.Error())
	}

	apiKey := os.Getenv("GITGUARDIAN_API_KEY")
	baseURL := os.Getenv("GITGUARDIAN_API_URL")
	if baseURL == "" {
		if instance := os.Getenv("GITGUARDIAN_INSTANCE"); instance != "" {
			baseURL = strings.TrimSuffix(instance, "/") + "/exposed"
		} else {
			baseURL = "https://api.gitguardian.com"
		}
	}

	cache, _ := ggcache.Load("")
	defer func() {
		if err := cache.Flush(); err != nil {
			log.WithError(err).Debug("cache flush failed")
		}
	}()

	e := &env{
		cfg:    cfg,
		client: apiclient.NewHTTPClient(baseURL, apiKey, nil),
		cache:  cache,
		excl:   excl,
		log:    log,
		format: *format,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	if wd, werr := os.Getwd(); werr == nil {
		if repo, rerr := gitshell.Open(ctx, wd); rerr == nil {
			e.repo = repo
		}
	}

	var code int
	switch cmd {
	case "", "help", "-help", "-h":
		fmt.Print(helpText)
		return 0, nil
	case "version":
		fmt.Println(scanner.Version)
		return 0, nil
	case "secret":
		rest := flag.Args()
		if len(rest) == 0 {
			return 2, usageErr("secret requires a subcommand: scan or describe")
		}
		switch rest[0] {
		case "scan":
			code, err = cmdSecretScan(ctx, e, rest[1:])
		case "describe":
			code, err = cmdSecretDescribe(ctx, e, rest[1:])
		default:
			return 2, usageErr("unknown secret subcommand " + rest[0])
		}
	case "hook":
		code, err = cmdHook(ctx, e, flag.Args())
	default:
		return 2, usageErr("unknown command, try 'help'")
	}
	if *exitZero && code == 1 {
		code = 0
	}
	return code, err
}

func main() {
	code, err := mainImpl(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ggshield: %s\n", err)
	}
	os.Exit(code)
}
