package variable

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Error variables for template resolution
var (
	// ErrResolution is matched by every *ResolutionError
	ErrResolution = errors.New("template resolution failed")
	// ErrUnknownVariable is returned when a template references a missing name
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrCycle is returned when a variable transitively references itself
	ErrCycle = errors.New("variable reference cycle")
	// ErrDepthExceeded is returned when references nest deeper than MaxDepth
	ErrDepthExceeded = errors.New("variable references nested too deeply")
	// ErrNoMatch is returned when a variable's rule did not match its content
	ErrNoMatch = errors.New("variable did not match content")
	// ErrNoContentSource is returned when a variable needs content but no fetcher is configured
	ErrNoContentSource = errors.New("no content source configured")
)

// MaxDepth bounds the nesting of variable references.
const MaxDepth = 32

// refPattern matches {name} references. Names exclude whitespace, braces,
// quotes and colons so that JSON bodies pass through untouched.
var refPattern = regexp.MustCompile(`\{([^{}\s"':]+)\}`)

// ResolutionError describes a failed variable or template resolution.
type ResolutionError struct {
	// Variable is the name being resolved
	Variable string
	// Chain is the reference path that led to the failure
	Chain []string
	// Err is the underlying cause
	Err error
}

func (e *ResolutionError) Error() string {
	if len(e.Chain) > 1 {
		return fmt.Sprintf("resolve {%s}: %v (%s)", e.Variable, e.Err, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("resolve {%s}: %v", e.Variable, e.Err)
}

// Unwrap exposes ErrResolution and the cause to errors.Is.
func (e *ResolutionError) Unwrap() []error {
	return []error{ErrResolution, e.Err}
}

// ContentFunc fetches the content a variable extracts from.
// body is empty for plain GET requests.
type ContentFunc func(ctx context.Context, url, body string) (string, error)

// References returns the distinct names referenced by tmpl, in order of appearance.
func References(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range refPattern.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// dependencies returns the names a variable's own templates reference.
func dependencies(v *Variable) []string {
	if !v.Rule.NeedsContent() {
		return References(v.Rule.Literal)
	}
	return References(v.URL + "\n" + v.PostData)
}

// Expander substitutes {name} references in templates, resolving the
// referenced variables (fetching and extracting as needed) first.
// Resolved values are memoized for the lifetime of the Expander, so one
// Expander corresponds to one resolution pass. It is not safe for concurrent use.
type Expander struct {
	store        *Store
	globals      *Store
	category     string
	appName      string
	content      ContentFunc
	useCached    bool
	matchTimeout time.Duration
	values       map[string]string
	matches      map[string]Match
}

// ExpanderOption is a functional option for configuring Expander
type ExpanderOption func(*Expander)

// WithGlobals sets the global variable store consulted after the job's store
func WithGlobals(globals *Store) ExpanderOption {
	return func(e *Expander) {
		e.globals = globals
	}
}

// WithJobInfo sets the values of the {category} and {appname} built-ins
func WithJobInfo(category, appName string) ExpanderOption {
	return func(e *Expander) {
		e.category = category
		e.appName = appName
	}
}

// WithContentFunc sets the function used to fetch variable content
func WithContentFunc(fn ContentFunc) ExpanderOption {
	return func(e *Expander) {
		e.content = fn
	}
}

// WithCachedContent makes variables reuse their LastContent instead of fetching again
func WithCachedContent(enabled bool) ExpanderOption {
	return func(e *Expander) {
		e.useCached = enabled
	}
}

// WithMatchTimeout sets the pattern matching time bound
func WithMatchTimeout(d time.Duration) ExpanderOption {
	return func(e *Expander) {
		e.matchTimeout = d
	}
}

// NewExpander creates an expander over store.
func NewExpander(store *Store, opts ...ExpanderOption) *Expander {
	e := &Expander{
		store:        store,
		matchTimeout: DefaultMatchTimeout,
		values:       make(map[string]string),
		matches:      make(map[string]Match),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand substitutes every reference in tmpl.
func (e *Expander) Expand(ctx context.Context, tmpl string) (string, error) {
	return e.expand(ctx, tmpl, nil)
}

// Resolve returns the value of the variable called name.
func (e *Expander) Resolve(ctx context.Context, name string) (string, error) {
	return e.resolve(ctx, name, nil)
}

// Match returns the match recorded for a resolved variable.
func (e *Expander) Match(name string) (Match, bool) {
	m, ok := e.matches[name]
	return m, ok
}

// Values returns a copy of all values resolved so far.
func (e *Expander) Values() map[string]string {
	out := make(map[string]string, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Order returns the variables the templates depend on, dependencies first.
// It fails on unknown names and reference cycles without fetching anything.
func (e *Expander) Order(templates ...string) ([]string, error) {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var ordered []string
	var chain []string

	var visit func(name string) error
	visit = func(name string) error {
		if IsBuiltin(name) || state[name] == done {
			return nil
		}
		if state[name] == visiting {
			return &ResolutionError{Variable: name, Chain: append(append([]string(nil), chain...), name), Err: ErrCycle}
		}
		if len(chain) >= MaxDepth {
			return &ResolutionError{Variable: name, Chain: append([]string(nil), chain...), Err: ErrDepthExceeded}
		}
		v, ok := e.lookup(name)
		if !ok {
			return &ResolutionError{Variable: name, Chain: append(append([]string(nil), chain...), name), Err: ErrUnknownVariable}
		}
		state[name] = visiting
		chain = append(chain, name)
		for _, dep := range dependencies(v) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		chain = chain[:len(chain)-1]
		state[name] = done
		ordered = append(ordered, name)
		return nil
	}

	for _, tmpl := range templates {
		for _, name := range References(tmpl) {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return ordered, nil
}

func (e *Expander) lookup(name string) (*Variable, bool) {
	if v, ok := e.store.Get(name); ok {
		return v, true
	}
	return e.globals.Get(name)
}

func (e *Expander) expand(ctx context.Context, tmpl string, chain []string) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	var firstErr error
	out := refPattern.ReplaceAllStringFunc(tmpl, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		value, err := e.resolve(ctx, ref[1:len(ref)-1], chain)
		if err != nil {
			firstErr = err
			return ref
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (e *Expander) resolve(ctx context.Context, name string, chain []string) (string, error) {
	switch name {
	case BuiltinCategory:
		return e.category, nil
	case BuiltinAppName:
		return e.appName, nil
	}
	if value, ok := e.values[name]; ok {
		return value, nil
	}

	for _, c := range chain {
		if c == name {
			return "", &ResolutionError{Variable: name, Chain: append(append([]string(nil), chain...), name), Err: ErrCycle}
		}
	}
	if len(chain) >= MaxDepth {
		return "", &ResolutionError{Variable: name, Chain: chain, Err: ErrDepthExceeded}
	}

	v, ok := e.lookup(name)
	if !ok {
		return "", &ResolutionError{Variable: name, Chain: append(append([]string(nil), chain...), name), Err: ErrUnknownVariable}
	}
	chain = append(chain, name)

	var m Match
	if !v.Rule.NeedsContent() {
		value, err := e.expand(ctx, v.Rule.Literal, chain)
		if err != nil {
			return "", err
		}
		m = Match{Value: value, Offset: -1}
	} else {
		content, err := e.contentOf(ctx, v, chain)
		if err != nil {
			return "", err
		}
		found := false
		m, found, err = ExtractWithTimeout(v.Rule, content, e.matchTimeout)
		if err != nil {
			return "", &ResolutionError{Variable: name, Chain: chain, Err: err}
		}
		if !found {
			return "", &ResolutionError{Variable: name, Chain: chain, Err: ErrNoMatch}
		}
	}

	e.values[name] = m.Value
	e.matches[name] = m
	return m.Value, nil
}

// contentOf returns the content v extracts from, fetching it unless cached
// content may be reused. Fetched content is stored in v.LastContent.
func (e *Expander) contentOf(ctx context.Context, v *Variable, chain []string) (string, error) {
	if e.useCached && v.LastContent != "" {
		return v.LastContent, nil
	}

	url, err := e.expand(ctx, v.URL, chain)
	if err != nil {
		return "", err
	}
	body, err := e.expand(ctx, v.PostData, chain)
	if err != nil {
		return "", err
	}
	if e.content == nil {
		return "", &ResolutionError{Variable: v.Name, Chain: chain, Err: ErrNoContentSource}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content, err := e.content(ctx, url, body)
	if err != nil {
		return "", fmt.Errorf("fetch content of {%s}: %w", v.Name, err)
	}
	v.LastContent = content
	return content, nil
}
