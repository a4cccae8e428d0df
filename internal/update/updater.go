package update

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
	"github.com/JimH44/Ketarin4Linux/internal/fetch"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/setup"
	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

// Error variables for update errors
var (
	// ErrUpdateFailed is returned when resolving or downloading failed and no prior artifact exists
	ErrUpdateFailed = errors.New("update failed")
	// ErrInstallFailed is returned when the setup instructions failed
	ErrInstallFailed = errors.New("setup failed")
	// ErrCancelled is returned when the context was cancelled between phases
	ErrCancelled = errors.New("cancelled")
)

// Fetcher retrieves page content and downloads artifacts.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) (string, error)
	Download(ctx context.Context, req fetch.Request, dir string, progress fetch.ProgressFunc) (string, error)
}

// Installer runs a job's setup instructions against an artifact.
type Installer interface {
	Install(ctx context.Context, j *job.Job, artifact string, progress setup.StepFunc) error
}

// ArtifactStore remembers the last downloaded artifact per job.
type ArtifactStore interface {
	Latest(job string) (job.Artifact, bool)
	Record(job, path, url string) error
}

// Resolution is the outcome of resolving a job's templates.
type Resolution struct {
	// URL and PostData are the expanded download request
	URL      string
	PostData string
	// Values holds every resolved variable
	Values map[string]string
	// Order is the dependency order variables were resolved in
	Order []string
}

// Result describes what happened to one job.
type Result struct {
	Job string
	// Resolution is nil when no update pass ran
	Resolution *Resolution
	// Artifact is the file that was (or would have been) installed
	Artifact string
	// Downloaded is true when a new artifact was fetched
	Downloaded bool
	// UsedFallback is true when the update failed and the previous artifact was used
	UsedFallback bool
	// UpdateErr is the update failure that triggered the fallback
	UpdateErr error
	// Installed is true when the setup instructions completed
	Installed bool
}

// Updater updates single jobs.
type Updater struct {
	fetcher      Fetcher
	installer    Installer
	artifacts    ArtifactStore
	globals      *variable.Store
	alwaysUpdate bool
	matchTimeout time.Duration
	downloadDir  string
	userAgent    string
	log          *logger.Logger
}

// UpdaterOption is a functional option for configuring Updater
type UpdaterOption func(*Updater)

// WithArtifactStore sets the store of previously downloaded artifacts
func WithArtifactStore(s ArtifactStore) UpdaterOption {
	return func(u *Updater) {
		u.artifacts = s
	}
}

// WithGlobals sets the global variables available to every job. The
// updater keeps its own copy of globals.
func WithGlobals(globals *variable.Store) UpdaterOption {
	return func(u *Updater) {
		u.globals = globals.Clone()
	}
}

// WithAlwaysUpdate makes every job update even when an artifact exists
func WithAlwaysUpdate(always bool) UpdaterOption {
	return func(u *Updater) {
		u.alwaysUpdate = always
	}
}

// WithMatchTimeout sets the pattern matching time bound
func WithMatchTimeout(d time.Duration) UpdaterOption {
	return func(u *Updater) {
		u.matchTimeout = d
	}
}

// WithDownloadDir sets the directory used for jobs without their own
func WithDownloadDir(dir string) UpdaterOption {
	return func(u *Updater) {
		u.downloadDir = dir
	}
}

// WithUserAgent sets the user agent for jobs without their own
func WithUserAgent(ua string) UpdaterOption {
	return func(u *Updater) {
		u.userAgent = ua
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) UpdaterOption {
	return func(u *Updater) {
		u.log = l
	}
}

// NewUpdater creates an updater.
func NewUpdater(fetcher Fetcher, installer Installer, opts ...UpdaterOption) *Updater {
	u := &Updater{
		fetcher:      fetcher,
		installer:    installer,
		alwaysUpdate: true,
		matchTimeout: variable.DefaultMatchTimeout,
		downloadDir:  ".",
		log:          logger.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Resolve resolves the variables of j in dependency order and expands its
// download URL and body. Content is always fetched fresh, and neither j
// nor the updater's globals are modified.
func (u *Updater) Resolve(ctx context.Context, j *job.Job) (*Resolution, error) {
	store := j.Variables.Clone()
	exp := variable.NewExpander(store,
		variable.WithGlobals(u.globals.Clone()),
		variable.WithJobInfo(j.Category, j.Name),
		variable.WithContentFunc(u.contentFunc(j)),
		variable.WithMatchTimeout(u.matchTimeout),
	)

	order, err := exp.Order(j.URL, j.PostData)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		value, err := exp.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		u.log.Debug("%s: {%s} = %s", j.Name, name, value)
	}

	url, err := exp.Expand(ctx, j.URL)
	if err != nil {
		return nil, err
	}
	body, err := exp.Expand(ctx, j.PostData)
	if err != nil {
		return nil, err
	}
	return &Resolution{URL: url, PostData: body, Values: exp.Values(), Order: order}, nil
}

// Update runs one job: resolve, download and install. When the update
// fails and a previous artifact exists, that artifact is installed instead
// and the result records the fallback. Cancellation is checked between
// phases and returns ErrCancelled.
func (u *Updater) Update(ctx context.Context, j *job.Job, progress ProgressFunc) (*Result, error) {
	report := func(phase Phase, percent int) {
		if progress != nil {
			progress(Progress{Job: j.Name, Phase: phase, Percent: percent})
		}
	}
	result := &Result{Job: j.Name}

	var prev job.Artifact
	hasPrev := false
	if u.artifacts != nil {
		prev, hasPrev = u.artifacts.Latest(j.Name)
	}

	if u.alwaysUpdate || !hasPrev {
		if err := cancelled(ctx); err != nil {
			return result, err
		}
		report(PhaseChecking, Indeterminate)

		artifact, err := u.download(ctx, j, result, report)
		if err != nil {
			if ctx.Err() != nil {
				return result, cancelled(ctx)
			}
			if !hasPrev {
				return result, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
			}
			u.log.Debug("%s: update failed, falling back to %s: %v", j.Name, prev.Path, err)
			result.UsedFallback = true
			result.UpdateErr = err
			artifact = prev.Path
		}
		result.Artifact = artifact
	} else {
		result.Artifact = prev.Path
	}

	if !j.HasSetup() {
		return result, nil
	}
	if err := cancelled(ctx); err != nil {
		return result, err
	}

	report(PhaseInstalling, 0)
	err := u.installer.Install(ctx, j, result.Artifact, func(done, total int) {
		if total <= 0 {
			report(PhaseInstalling, Indeterminate)
			return
		}
		report(PhaseInstalling, done*100/total)
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, cancelled(ctx)
		}
		return result, fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	result.Installed = true
	return result, nil
}

func (u *Updater) download(ctx context.Context, j *job.Job, result *Result, report func(Phase, int)) (string, error) {
	res, err := u.Resolve(ctx, j)
	if err != nil {
		return "", err
	}
	result.Resolution = res
	u.log.Debug("%s: download URL %s", j.Name, res.URL)

	if err := cancelled(ctx); err != nil {
		return "", err
	}
	report(PhaseDownloading, 0)

	req := fetch.Request{URL: res.URL, Body: res.PostData, UserAgent: u.userAgentFor(j)}
	path, err := u.fetcher.Download(ctx, req, u.downloadDirFor(j), func(percent int) {
		report(PhaseDownloading, percent)
	})
	if err != nil {
		return "", err
	}
	result.Downloaded = true

	if u.artifacts != nil {
		if err := u.artifacts.Record(j.Name, path, res.URL); err != nil {
			u.log.Warn("%s: could not record artifact: %v", j.Name, err)
		}
	}
	return path, nil
}

func (u *Updater) contentFunc(j *job.Job) variable.ContentFunc {
	ua := u.userAgentFor(j)
	return func(ctx context.Context, url, body string) (string, error) {
		u.log.Debug("%s: fetching %s", j.Name, url)
		return u.fetcher.Fetch(ctx, fetch.Request{URL: url, Body: body, UserAgent: ua})
	}
}

func (u *Updater) userAgentFor(j *job.Job) string {
	if j.UserAgent != "" {
		return j.UserAgent
	}
	return u.userAgent
}

// downloadDirFor returns the job's download directory with built-ins expanded.
func (u *Updater) downloadDirFor(j *job.Job) string {
	dir := j.DownloadDir
	if dir == "" {
		dir = u.downloadDir
	}
	return strings.NewReplacer(
		"{"+variable.BuiltinAppName+"}", j.Name,
		"{"+variable.BuiltinCategory+"}", j.Category,
	).Replace(dir)
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
