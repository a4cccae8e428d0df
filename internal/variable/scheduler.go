package variable

import (
	"context"
	"time"
)

// State is the lifecycle state of a scheduler's current evaluation.
type State int

const (
	// StateIdle means nothing was scheduled yet
	StateIdle State = iota
	// StateRunning means an evaluation is in flight
	StateRunning
	// StateCompleted means the latest evaluation delivered its result
	StateCompleted
	// StateAborted means the latest evaluation was cancelled
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Evaluation is the result of one scheduled extraction.
type Evaluation struct {
	// Seq identifies the scheduling call that produced this result
	Seq uint64
	// Variable is the name of the evaluated variable
	Variable string
	// Rule is the rule snapshot the worker evaluated
	Rule Rule
	// Match is the extracted match when Found is true
	Match Match
	Found bool
	// Err is set when matching failed (for example ErrMatchTimeout)
	Err error
}

// extractFunc matches the signature of ExtractWithTimeout.
type extractFunc func(rule Rule, content string, timeout time.Duration) (Match, bool, error)

// Scheduler runs extractions off the owner's goroutine with
// cancel-and-restart semantics: scheduling a new evaluation cancels the one
// in flight, so at most one worker per scheduler is ever active.
//
// Schedule, Cancel, Latest and State must only be called by the owning
// goroutine. Workers receive value snapshots and report through Results.
// Cancellation is cooperative; a pattern match already underway runs until
// it finishes or hits the match timeout, and its result is then dropped.
type Scheduler struct {
	results chan Evaluation
	cancel  context.CancelFunc
	seq     uint64
	state   State
	timeout time.Duration
	extract extractFunc
}

// NewScheduler creates a scheduler whose workers bound matching by timeout.
func NewScheduler(timeout time.Duration) *Scheduler {
	return &Scheduler{
		results: make(chan Evaluation),
		timeout: timeout,
		extract: ExtractWithTimeout,
	}
}

// Schedule cancels any in-flight evaluation and starts a new one for the
// given rule and content snapshot. It returns the new sequence number.
func (s *Scheduler) Schedule(name string, rule Rule, content string) uint64 {
	s.Cancel()

	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = StateRunning

	extract, timeout, results := s.extract, s.timeout, s.results
	go func() {
		if ctx.Err() != nil {
			return
		}
		m, found, err := extract(rule, content, timeout)
		if ctx.Err() != nil {
			return
		}
		select {
		case results <- Evaluation{Seq: seq, Variable: name, Rule: rule, Match: m, Found: found, Err: err}:
		case <-ctx.Done():
		}
	}()
	return seq
}

// Cancel aborts the in-flight evaluation, if any.
func (s *Scheduler) Cancel() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	if s.state == StateRunning {
		s.state = StateAborted
	}
}

// Results delivers worker results to the owner. Results may be stale;
// compare Seq with Latest before applying them.
func (s *Scheduler) Results() <-chan Evaluation {
	return s.results
}

// Latest returns the sequence number of the most recent Schedule call.
func (s *Scheduler) Latest() uint64 {
	return s.seq
}

// State returns the state of the most recent evaluation.
func (s *Scheduler) State() State {
	return s.state
}

// complete marks the latest evaluation as delivered.
func (s *Scheduler) complete(seq uint64) {
	if seq == s.seq && s.state == StateRunning {
		s.state = StateCompleted
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
}
