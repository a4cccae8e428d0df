package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/script"
)

// Error variables for installation errors
var (
	// ErrNoSetup is returned when a job has no setup instructions
	ErrNoSetup = errors.New("no setup instructions")
	// ErrArtifactMissing is returned when the file to install does not exist
	ErrArtifactMissing = errors.New("artifact file not found")
)

// ScriptRunner evaluates script instructions.
type ScriptRunner interface {
	Run(ctx context.Context, source string, app script.App, globals map[string]string) (string, error)
}

// StepFunc is called after each completed setup step.
type StepFunc func(done, total int)

// Installer executes setup instructions against a downloaded artifact.
type Installer struct {
	runner  CommandRunner
	scripts ScriptRunner
	globals map[string]string
	log     *logger.Logger
}

// Option is a functional option for configuring Installer
type Option func(*Installer)

// WithCommandRunner sets the runner for run instructions
func WithCommandRunner(r CommandRunner) Option {
	return func(i *Installer) {
		i.runner = r
	}
}

// WithScriptRunner sets the evaluator for script instructions
func WithScriptRunner(r ScriptRunner) Option {
	return func(i *Installer) {
		i.scripts = r
	}
}

// WithGlobals sets the global variable values passed to scripts
func WithGlobals(globals map[string]string) Option {
	return func(i *Installer) {
		i.globals = globals
	}
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(i *Installer) {
		i.log = l
	}
}

// NewInstaller creates an installer running real commands.
func NewInstaller(opts ...Option) *Installer {
	i := &Installer{
		runner: ExecRunner{},
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.scripts == nil {
		i.scripts = script.New(script.WithLogger(i.log))
	}
	return i
}

// Install runs the job's setup instructions in order against artifact.
// The first failing step aborts the installation.
func (i *Installer) Install(ctx context.Context, j *job.Job, artifact string, progress StepFunc) error {
	if !j.HasSetup() {
		return ErrNoSetup
	}
	if _, err := os.Stat(artifact); err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, artifact)
	}

	r := strings.NewReplacer(
		"{file}", artifact,
		"{appname}", j.Name,
		"{category}", j.Category,
	)
	total := len(j.Setup)
	for n, in := range j.Setup {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := i.step(ctx, j, in, artifact, r); err != nil {
			return fmt.Errorf("step %d (%s): %w", n+1, in.Kind, err)
		}
		if progress != nil {
			progress(n+1, total)
		}
	}
	return nil
}

func (i *Installer) step(ctx context.Context, j *job.Job, in job.Instruction, artifact string, r *strings.Replacer) error {
	switch in.Kind {
	case job.InstructionRun:
		args := make([]string, len(in.Args))
		for n, a := range in.Args {
			args[n] = r.Replace(a)
		}
		command := r.Replace(in.Command)
		i.log.Debug("%s: running %s %s", j.Name, command, strings.Join(args, " "))
		out, err := i.runner.Run(ctx, filepath.Dir(artifact), command, args...)
		if out = strings.TrimSpace(out); out != "" {
			i.log.Debug("%s: %s", j.Name, out)
		}
		return err

	case job.InstructionCopy:
		target := r.Replace(in.Target)
		i.log.Debug("%s: copying %s to %s", j.Name, artifact, target)
		return copyFile(artifact, target)

	case job.InstructionScript:
		app := script.App{Name: j.Name, Category: j.Category, File: artifact}
		_, err := i.scripts.Run(ctx, r.Replace(in.Script), app, i.globals)
		return err

	default:
		return fmt.Errorf("%w: got %q", job.ErrInvalidInstruction, in.Kind)
	}
}

// copyFile copies src to target. A target that is an existing directory or
// ends with a separator receives the file under its own name.
func copyFile(src, target string) error {
	if strings.HasSuffix(target, string(filepath.Separator)) {
		target = filepath.Join(target, filepath.Base(src))
	} else if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		target = filepath.Join(target, filepath.Base(src))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp := target + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
