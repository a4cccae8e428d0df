package variable

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error variables for edit sessions
var (
	// ErrReadOnly is returned when editing a read-only session
	ErrReadOnly = errors.New("session is read-only")
	// ErrSessionClosed is returned when using a committed or discarded session
	ErrSessionClosed = errors.New("session is closed")
	// ErrNotRunning is returned by Wait when no evaluation is in flight
	ErrNotRunning = errors.New("no evaluation in flight")
)

// Session edits an independent copy of a variable store. Changes reach the
// original only through Commit; Discard drops them. Rule and content changes
// on the selected variable re-run extraction through a Scheduler, and only
// results that still match the live rule are applied.
//
// A Session belongs to a single goroutine.
type Session struct {
	store    *Store
	sched    *Scheduler
	selected string
	matches  map[string]Match
	errs     map[string]error
	readOnly bool
	closed   bool
}

// SessionOption is a functional option for configuring Session
type SessionOption func(*Session)

// WithReadOnly opens the session without edit rights
func WithReadOnly() SessionOption {
	return func(s *Session) {
		s.readOnly = true
	}
}

// WithSessionMatchTimeout sets the match time bound of live evaluations
func WithSessionMatchTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.sched.timeout = d
	}
}

// OpenSession starts editing a copy of store.
func OpenSession(store *Store, opts ...SessionOption) *Session {
	s := &Session{
		store:   store.Clone(),
		sched:   NewScheduler(DefaultMatchTimeout),
		matches: make(map[string]Match),
		errs:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Variables returns the working copy's variables in insertion order.
func (s *Session) Variables() []*Variable {
	return s.store.Variables()
}

// Get returns a variable of the working copy.
func (s *Session) Get(name string) (*Variable, bool) {
	return s.store.Get(name)
}

// Snapshot returns a deep copy of the working store for use by a worker.
func (s *Session) Snapshot() *Store {
	return s.store.Clone()
}

// ReadOnly reports whether edits are rejected.
func (s *Session) ReadOnly() bool {
	return s.readOnly
}

// Scheduler returns the session's evaluation scheduler.
func (s *Session) Scheduler() *Scheduler {
	return s.sched
}

// Selected returns the name of the variable being edited.
func (s *Session) Selected() string {
	return s.selected
}

// Select makes name the variable being edited and evaluates it.
func (s *Session) Select(name string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if _, ok := s.store.Get(name); !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	s.selected = name
	s.evaluate(name)
	return nil
}

// Add creates an empty variable and selects it.
func (s *Session) Add(name string) (*Variable, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	v := New(name)
	if err := s.store.Add(v); err != nil {
		return nil, err
	}
	s.selected = name
	return v, nil
}

// Remove deletes a variable from the working copy.
func (s *Session) Remove(name string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if !s.store.Remove(name) {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	delete(s.matches, name)
	delete(s.errs, name)
	if s.selected == name {
		s.sched.Cancel()
		s.selected = ""
	}
	return nil
}

// Rename renames a variable, keeping its position and any recorded match.
func (s *Session) Rename(oldName, newName string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if err := s.store.Rename(oldName, newName); err != nil {
		return err
	}
	if m, ok := s.matches[oldName]; ok {
		delete(s.matches, oldName)
		s.matches[newName] = m
	}
	if s.selected == oldName {
		s.selected = newName
		s.evaluate(newName)
	}
	return nil
}

// SetURL changes the URL template of a variable.
func (s *Session) SetURL(name, url string) error {
	return s.edit(name, false, func(v *Variable) error {
		v.URL = url
		return nil
	})
}

// SetPostData changes the request body template of a variable.
func (s *Session) SetPostData(name, body string) error {
	return s.edit(name, false, func(v *Variable) error {
		v.PostData = body
		return nil
	})
}

// SetKind switches the rule kind of a variable.
func (s *Session) SetKind(name string, kind Kind) error {
	return s.edit(name, true, func(v *Variable) error {
		if _, ok := kindNames[kind]; !ok {
			return fmt.Errorf("%w: %d", ErrInvalidKind, int(kind))
		}
		v.Rule.Kind = kind
		if kind != KindDelimited && kind != KindPattern {
			delete(s.matches, name)
		}
		return nil
	})
}

// SetDelimiters changes the start and end text of a variable.
func (s *Session) SetDelimiters(name, start, end string) error {
	return s.edit(name, true, func(v *Variable) error {
		v.Rule.StartText = start
		v.Rule.EndText = end
		return nil
	})
}

// SetPattern validates and installs a pattern. An invalid pattern returns
// ErrInvalidPattern, keeps the previous pattern and starts no evaluation.
func (s *Session) SetPattern(name, pattern string) error {
	return s.edit(name, true, func(v *Variable) error {
		return v.SetPattern(pattern)
	})
}

// SetRightToLeft changes the matching direction of a pattern variable.
func (s *Session) SetRightToLeft(name string, rightToLeft bool) error {
	return s.edit(name, true, func(v *Variable) error {
		v.Rule.RightToLeft = rightToLeft
		return nil
	})
}

// SetLiteral changes the value of a literal variable.
func (s *Session) SetLiteral(name, value string) error {
	return s.edit(name, true, func(v *Variable) error {
		v.Rule.Literal = value
		return nil
	})
}

// SetContent replaces the cached content of a variable, for example after
// a worker fetched it with LoadContent.
func (s *Session) SetContent(name, content string) error {
	if s.closed {
		return ErrSessionClosed
	}
	v, ok := s.store.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	v.LastContent = content
	if s.selected == name {
		s.evaluate(name)
	}
	return nil
}

// Apply installs an evaluation result if it is still current: it must come
// from the latest Schedule call and its rule snapshot must equal the
// variable's live rule. Stale results are discarded and Apply returns false.
func (s *Session) Apply(ev Evaluation) bool {
	if s.closed || ev.Seq != s.sched.Latest() || ev.Variable != s.selected {
		return false
	}
	v, ok := s.store.Get(ev.Variable)
	if !ok || v.Rule != ev.Rule {
		return false
	}

	s.sched.complete(ev.Seq)
	delete(s.errs, ev.Variable)
	switch {
	case ev.Err != nil:
		s.errs[ev.Variable] = ev.Err
		delete(s.matches, ev.Variable)
	case ev.Found:
		s.matches[ev.Variable] = ev.Match
	default:
		delete(s.matches, ev.Variable)
	}
	return true
}

// Wait blocks until the in-flight evaluation delivers a current result,
// applies it and returns it. Stale results received meanwhile are dropped.
func (s *Session) Wait(ctx context.Context) (Evaluation, error) {
	for {
		if s.sched.State() != StateRunning {
			return Evaluation{}, ErrNotRunning
		}
		select {
		case ev := <-s.sched.Results():
			if s.Apply(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			return Evaluation{}, ctx.Err()
		}
	}
}

// Match returns the last applied match of a variable.
func (s *Session) Match(name string) (Match, bool) {
	m, ok := s.matches[name]
	return m, ok
}

// EvalError returns the matching error recorded for a variable, if any.
func (s *Session) EvalError(name string) error {
	return s.errs[name]
}

// Commit prunes empty variables and returns the edited store together with
// the pruned names. The session is closed afterwards.
func (s *Session) Commit() (*Store, []string, error) {
	if err := s.writable(); err != nil {
		return nil, nil, err
	}
	s.sched.Cancel()
	s.closed = true
	pruned := s.store.PruneEmpty()
	return s.store, pruned, nil
}

// Discard drops all changes and closes the session.
func (s *Session) Discard() {
	s.sched.Cancel()
	s.closed = true
}

func (s *Session) writable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

// edit applies fn to a variable. When ruleChange is set and the variable is
// selected, a new evaluation replaces the one in flight.
func (s *Session) edit(name string, ruleChange bool, fn func(*Variable) error) error {
	if err := s.writable(); err != nil {
		return err
	}
	v, ok := s.store.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	if err := fn(v); err != nil {
		return err
	}
	if ruleChange && s.selected == name {
		s.evaluate(name)
	}
	return nil
}

func (s *Session) evaluate(name string) {
	v, ok := s.store.Get(name)
	if !ok {
		return
	}
	s.sched.Schedule(name, v.Rule, v.LastContent)
}

// LoadContent fetches the content of the variable called name from a store
// snapshot. The URL and body templates are expanded with cached content of
// the other variables. It blocks on the network and is meant to run on a
// worker; hand the result back with Session.SetContent.
func LoadContent(ctx context.Context, snapshot *Store, name string, fetch ContentFunc, opts ...ExpanderOption) (string, error) {
	v, ok := snapshot.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrVariableNotFound, name)
	}
	opts = append([]ExpanderOption{WithContentFunc(fetch), WithCachedContent(true)}, opts...)
	exp := NewExpander(snapshot, opts...)

	url, err := exp.expand(ctx, v.URL, []string{name})
	if err != nil {
		return "", err
	}
	body, err := exp.expand(ctx, v.PostData, []string{name})
	if err != nil {
		return "", err
	}
	if fetch == nil {
		return "", ErrNoContentSource
	}
	return fetch(ctx, url, body)
}

// Reload fetches fresh content for the variable called name and installs it
// with SetContent. It blocks on the network; interactive callers run
// LoadContent on a worker instead.
func (s *Session) Reload(ctx context.Context, name string, fetch ContentFunc, opts ...ExpanderOption) error {
	if s.closed {
		return ErrSessionClosed
	}
	content, err := LoadContent(ctx, s.store.Clone(), name, fetch, opts...)
	if err != nil {
		return err
	}
	return s.SetContent(name, content)
}
