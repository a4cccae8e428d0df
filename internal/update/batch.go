package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JimH44/Ketarin4Linux/internal/job"
)

// Severity classifies batch log entries.
type Severity int

// Log severities
const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return "Info"
	}
}

// LogEntry is one line of the batch log.
type LogEntry struct {
	Message  string
	Severity Severity
	Time     time.Time
	// Detail carries the underlying error text, if any
	Detail string
}

// Status is the state of a batch run.
type Status int

// Batch statuses
const (
	StatusRunning Status = iota
	StatusCancelled
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusCancelled:
		return "cancelled"
	case StatusCompleted:
		return "completed"
	default:
		return "running"
	}
}

// EventKind distinguishes batch events.
type EventKind int

// Event kinds
const (
	// EventStatus carries a status line such as "Updating application 1 of 3: app"
	EventStatus EventKind = iota
	// EventProgress carries a phase or percent change
	EventProgress
	// EventLog carries a new log entry
	EventLog
)

// Event is emitted while a batch runs.
type Event struct {
	Kind EventKind
	// Index is the 1-based position of the job, Total the batch size
	Index int
	Total int
	Job   string
	// Message is set for EventStatus
	Message string
	// Progress is set for EventProgress
	Progress Progress
	// Entry is set for EventLog
	Entry LogEntry
}

// Summary is the final account of a batch run.
type Summary struct {
	RunID     string
	Installed int
	Total     int
	Status    Status
	Log       []LogEntry
	Started   time.Time
	Finished  time.Time
}

func (s Summary) String() string {
	return fmt.Sprintf("%d of %d applications installed successfully.", s.Installed, s.Total)
}

// JobUpdater updates one job. *Updater implements it.
type JobUpdater interface {
	Update(ctx context.Context, j *job.Job, progress ProgressFunc) (*Result, error)
}

// Runner drives batches of jobs through a JobUpdater.
type Runner struct {
	updater JobUpdater
	nowFunc func() time.Time
	idFunc  func() string
}

// RunnerOption is a functional option for configuring Runner
type RunnerOption func(*Runner)

// WithRunnerNowFunc sets a custom time function for testing
func WithRunnerNowFunc(fn func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.nowFunc = fn
	}
}

// NewRunner creates a batch runner.
func NewRunner(updater JobUpdater, opts ...RunnerOption) *Runner {
	r := &Runner{
		updater: updater,
		nowFunc: time.Now,
		idFunc:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes jobs sequentially on the calling goroutine. A failing job
// is logged and never stops the batch. Cancellation is checked before each
// job; the job in progress either completes or aborts between phases.
// onEvent may be nil.
func (r *Runner) Run(ctx context.Context, jobs []*job.Job, onEvent func(Event)) Summary {
	emit := func(ev Event) {
		if onEvent != nil {
			onEvent(ev)
		}
	}
	summary := Summary{
		RunID:   r.idFunc(),
		Total:   len(jobs),
		Status:  StatusRunning,
		Started: r.nowFunc(),
	}

	for i, j := range jobs {
		index := i + 1
		logf := func(sev Severity, detail error, format string, args ...any) {
			entry := LogEntry{Message: fmt.Sprintf(format, args...), Severity: sev, Time: r.nowFunc()}
			if detail != nil {
				entry.Detail = detail.Error()
			}
			summary.Log = append(summary.Log, entry)
			emit(Event{Kind: EventLog, Index: index, Total: len(jobs), Job: j.Name, Entry: entry})
		}

		if ctx.Err() != nil {
			summary.Status = StatusCancelled
			break
		}
		if !j.HasSetup() {
			logf(SeverityWarning, nil, "%s: Skipped since no setup instructions exist", j.Name)
			continue
		}

		lastVerb := ""
		progress := func(p Progress) {
			verb := "Updating"
			if p.Phase == PhaseInstalling {
				verb = "Installing"
			}
			if verb != lastVerb {
				lastVerb = verb
				emit(Event{Kind: EventStatus, Index: index, Total: len(jobs), Job: j.Name,
					Message: fmt.Sprintf("%s application %d of %d: %s", verb, index, len(jobs), j.Name)})
			}
			emit(Event{Kind: EventProgress, Index: index, Total: len(jobs), Job: j.Name, Progress: p})
		}

		res, err := r.safeUpdate(ctx, j, progress)
		if res != nil && res.UsedFallback {
			logf(SeverityWarning, res.UpdateErr, "%s: Update failed, installing previously available version", j.Name)
		}

		switch {
		case err == nil:
			summary.Installed++
			logf(SeverityInfo, nil, "%s: Installed successfully", j.Name)
		case errors.Is(err, ErrCancelled):
			logf(SeverityWarning, nil, "%s: Cancelled", j.Name)
			summary.Status = StatusCancelled
		case errors.Is(err, ErrInstallFailed):
			logf(SeverityError, err, "%s: Setup failed (%s)", j.Name, installCause(err))
		default:
			logf(SeverityError, err, "%s: Update failed", j.Name)
		}
		if summary.Status == StatusCancelled {
			break
		}
	}

	if summary.Status == StatusRunning {
		summary.Status = StatusCompleted
	}
	summary.Finished = r.nowFunc()
	return summary
}

// safeUpdate converts a panicking job into an error.
func (r *Runner) safeUpdate(ctx context.Context, j *job.Job, progress ProgressFunc) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrUpdateFailed, p)
		}
	}()
	return r.updater.Update(ctx, j, progress)
}

// installCause strips the ErrInstallFailed prefix for the log message.
func installCause(err error) string {
	msg := err.Error()
	prefix := ErrInstallFailed.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

// Batch is a batch run on its own worker goroutine.
type Batch struct {
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
	summary Summary
}

// Start runs jobs on a new worker goroutine. Events must be drained, either
// by reading Events until it is closed or by calling Wait.
func (r *Runner) Start(ctx context.Context, jobs []*job.Job) *Batch {
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		events: make(chan Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	snapshot := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		snapshot[i] = j.Clone()
	}

	go func() {
		defer close(b.done)
		defer cancel()
		b.summary = r.Run(ctx, snapshot, func(ev Event) {
			b.events <- ev
		})
		close(b.events)
	}()
	return b
}

// Events delivers batch events in order. It is closed when the run ends.
func (b *Batch) Events() <-chan Event {
	return b.events
}

// Cancel requests cooperative cancellation of the run.
func (b *Batch) Cancel() {
	b.cancel()
}

// Done is closed once the summary is available.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Wait drains remaining events, waits for the run to end and returns its summary.
func (b *Batch) Wait() Summary {
	for range b.events {
	}
	<-b.done
	return b.summary
}
