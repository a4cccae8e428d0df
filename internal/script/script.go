// Package script runs setup scripts written in a small expression language.
//
// A script is a sequence of expressions, one per line. Blank lines and lines
// starting with # are skipped. Each line sees:
//
//	app         the application being installed (app.Name, app.Category, app.File)
//	globalvars  the global variables as a map of strings
//	vars        values stored by set() on earlier lines
//
// and the functions debug(...), warn(...), set(name, value) and getenv(name).
// The value of the last line that produced one becomes the script output.
// A failing line does not stop the script; all failures are reported
// together once the script has run.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/JimH44/Ketarin4Linux/internal/common/logger"
)

// ErrScript is matched by every *ExecutionError
var ErrScript = errors.New("script failed")

// App describes the application a script runs for.
type App struct {
	Name     string
	Category string
	// File is the downloaded artifact
	File string
}

// ExecutionError aggregates the failures of one script run.
type ExecutionError struct {
	Errors []error
}

func (e *ExecutionError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return "script failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes ErrScript and each line failure to errors.Is.
func (e *ExecutionError) Unwrap() []error {
	return append([]error{ErrScript}, e.Errors...)
}

// Hook evaluates scripts.
type Hook struct {
	log *logger.Logger
}

// Option is a functional option for configuring Hook
type Option func(*Hook)

// WithLogger sets the logger receiving script output and debug messages
func WithLogger(l *logger.Logger) Option {
	return func(h *Hook) {
		h.log = l
	}
}

// New creates a script hook.
func New(opts ...Option) *Hook {
	h := &Hook{log: logger.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run evaluates source for app and returns the last output value.
func (h *Hook) Run(ctx context.Context, source string, app App, globals map[string]string) (string, error) {
	if globals == nil {
		globals = map[string]string{}
	}
	vars := map[string]any{}
	env := map[string]any{
		"app":        app,
		"globalvars": globals,
		"vars":       vars,
	}
	options := []expr.Option{
		expr.Env(env),
		expr.Function("debug", func(params ...any) (any, error) {
			h.log.Debug("Script (debug): %s", joinArgs(params))
			return nil, nil
		}),
		expr.Function("warn", func(params ...any) (any, error) {
			h.log.Warn("Script (warning): %s", joinArgs(params))
			return nil, nil
		}),
		expr.Function("set", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("set: want 2 arguments, got %d", len(params))
			}
			name, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("set: name must be a string, got %T", params[0])
			}
			vars[name] = params[1]
			return nil, nil
		}),
		expr.Function("getenv", func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("getenv: want 1 argument, got %d", len(params))
			}
			return os.Getenv(fmt.Sprint(params[0])), nil
		}),
	}

	var lastOutput string
	var failures []error
	for n, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return lastOutput, err
		}

		program, err := expr.Compile(line, options...)
		if err != nil {
			failures = append(failures, fmt.Errorf("line %d: %w", n+1, err))
			continue
		}
		out, err := expr.Run(program, env)
		if err != nil {
			failures = append(failures, fmt.Errorf("line %d: %w", n+1, err))
			continue
		}
		if out != nil {
			lastOutput = fmt.Sprint(out)
			h.log.Debug("Script: %s", lastOutput)
		}
	}

	if len(failures) > 0 {
		return lastOutput, &ExecutionError{Errors: failures}
	}
	return lastOutput, nil
}

func joinArgs(params []any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " ")
}
