package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JimH44/Ketarin4Linux/internal/common/config"
	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
	"github.com/JimH44/Ketarin4Linux/internal/common/version"
	"github.com/JimH44/Ketarin4Linux/internal/fetch"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/setup"
	"github.com/JimH44/Ketarin4Linux/internal/update"
	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

// app bundles everything a command needs, built from the config file.
type app struct {
	cfg       *config.Config
	jobs      *job.File
	globals   *variable.Store
	fetcher   *fetch.Fetcher
	artifacts *job.ArtifactIndex
	log       *logger.Logger
}

// loadApp reads the config and the jobs file it points to.
func loadApp() (*app, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	jobsPath, err := cfg.GetJobsPath()
	if err != nil {
		return nil, err
	}
	jobs, err := job.Load(jobsPath)
	if err != nil {
		return nil, err
	}
	for _, key := range jobs.Undecoded {
		logger.Warn("%s: unknown key %s ignored", filepath.Base(jobsPath), key)
	}

	globals, err := mergeGlobals(jobs.Globals, cfg)
	if err != nil {
		return nil, err
	}

	retry := fetch.DefaultRetryConfig()
	retry.MaxRetries = cfg.Download.GetMaxRetries()
	retry.Timeout = cfg.Download.GetTimeout()
	ua := cfg.Download.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	fetcher := fetch.New(
		fetch.WithClient(fetch.NewRetryableHTTPClientWithConfig(retry)),
		fetch.WithUserAgent(ua),
	)

	return &app{
		cfg:     cfg,
		jobs:    jobs,
		globals: globals,
		fetcher: fetcher,
		log:     logger.Default(),
	}, nil
}

// mergeGlobals combines the jobs file globals with the literal globals of
// the config. The jobs file wins on name clashes.
func mergeGlobals(fileGlobals *variable.Store, cfg *config.Config) (*variable.Store, error) {
	merged := fileGlobals.Clone()
	fromConfig, err := cfg.GlobalStore()
	if err != nil {
		return nil, err
	}
	for _, v := range fromConfig.Variables() {
		if _, exists := merged.Get(v.Name); exists {
			continue
		}
		if err := merged.Add(v.Clone()); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// literalValues returns the values of the literal globals for scripts.
func literalValues(store *variable.Store) map[string]string {
	values := make(map[string]string)
	for _, v := range store.Variables() {
		if v.Rule.Kind == variable.KindLiteral {
			values[v.Name] = v.Rule.Literal
		}
	}
	return values
}

// openArtifacts opens the artifact index in the download directory.
func (a *app) openArtifacts() (*job.ArtifactIndex, error) {
	if a.artifacts != nil {
		return a.artifacts, nil
	}
	dir, err := a.cfg.GetDownloadDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating download directory: %w", err)
	}
	idx, err := job.OpenArtifactIndex(dir)
	if err != nil {
		return nil, err
	}
	a.artifacts = idx
	return idx, nil
}

// newUpdater builds the orchestrator. always overrides update.always.
func (a *app) newUpdater(always bool) (*update.Updater, error) {
	artifacts, err := a.openArtifacts()
	if err != nil {
		return nil, err
	}
	dir, err := a.cfg.GetDownloadDir()
	if err != nil {
		return nil, err
	}

	installer := setup.NewInstaller(
		setup.WithGlobals(literalValues(a.globals)),
		setup.WithLogger(a.log),
	)
	return update.NewUpdater(a.fetcher, installer,
		update.WithArtifactStore(artifacts),
		update.WithGlobals(a.globals),
		update.WithAlwaysUpdate(always),
		update.WithMatchTimeout(a.cfg.Match.GetTimeout()),
		update.WithDownloadDir(dir),
		update.WithLogger(a.log),
	), nil
}

// selectJobs returns the named jobs in file order, or all jobs when names
// is empty.
func (a *app) selectJobs(names []string) ([]*job.Job, error) {
	if len(names) == 0 {
		return a.jobs.Jobs, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := a.jobs.Find(name); !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		wanted[name] = true
	}
	var selected []*job.Job
	for _, j := range a.jobs.Jobs {
		if wanted[j.Name] {
			selected = append(selected, j)
		}
	}
	return selected, nil
}

// findJob returns the named job or an error naming it.
func (a *app) findJob(name string) (*job.Job, error) {
	j, ok := a.jobs.Find(name)
	if !ok {
		return nil, fmt.Errorf("unknown job %q", name)
	}
	return j, nil
}
