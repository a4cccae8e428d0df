// Package job provides the application job model, its TOML definition file
// and the index of downloaded artifacts.
package job

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

// ErrInvalidInstruction is returned when a setup instruction kind is unknown
var ErrInvalidInstruction = errors.New("invalid setup instruction: kind must be 'run', 'copy' or 'script'")

// InstructionKind selects what a setup instruction does.
type InstructionKind string

// Setup instruction kinds
const (
	// InstructionRun executes a command
	InstructionRun InstructionKind = "run"
	// InstructionCopy copies the downloaded file to a target path
	InstructionCopy InstructionKind = "copy"
	// InstructionScript evaluates a script hook
	InstructionScript InstructionKind = "script"
)

// ParseInstructionKind converts a configuration name into an InstructionKind.
func ParseInstructionKind(name string) (InstructionKind, error) {
	switch k := InstructionKind(strings.ToLower(strings.TrimSpace(name))); k {
	case InstructionRun, InstructionCopy, InstructionScript:
		return k, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidInstruction, name)
	}
}

// Instruction is one step of installing a downloaded artifact.
// Command, Args, Target and Script may contain {file}, {appname} and
// {category} placeholders.
type Instruction struct {
	Kind InstructionKind
	// Command and Args are used by run instructions
	Command string
	Args    []string
	// Target is the destination of copy instructions
	Target string
	// Script is the source of script instructions
	Script string
}

// Job is a tracked application.
type Job struct {
	// Name identifies the job and provides the {appname} built-in
	Name string
	// Category groups jobs and provides the {category} built-in
	Category string
	// URL is the download URL template
	URL string
	// PostData is an optional request body template for the download
	PostData string
	// UserAgent overrides the configured user agent
	UserAgent string
	// DownloadDir overrides the configured download directory
	DownloadDir string
	// Variables is the job's variable store
	Variables *variable.Store
	// Setup lists the install steps, in order
	Setup []Instruction
}

// New creates a job with an empty variable store.
func New(name string) *Job {
	return &Job{Name: name, Variables: variable.NewStore()}
}

// HasSetup reports whether the job has install steps.
func (j *Job) HasSetup() bool {
	return len(j.Setup) > 0
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	c := *j
	c.Variables = j.Variables.Clone()
	c.Setup = make([]Instruction, len(j.Setup))
	for i, in := range j.Setup {
		in.Args = append([]string(nil), in.Args...)
		c.Setup[i] = in
	}
	return &c
}

// EditVariables opens an edit session over a copy of the job's variables.
func (j *Job) EditVariables(opts ...variable.SessionOption) *variable.Session {
	return variable.OpenSession(j.Variables, opts...)
}

// SaveVariables commits an edit session into the job and returns the
// names of empty variables that were pruned.
func (j *Job) SaveVariables(s *variable.Session) ([]string, error) {
	store, pruned, err := s.Commit()
	if err != nil {
		return nil, err
	}
	j.Variables = store
	return pruned, nil
}

func (j *Job) String() string {
	if j.Category == "" {
		return j.Name
	}
	return j.Category + "/" + j.Name
}
