package job

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

// Error variables for job file errors
var (
	// ErrJobsFileNotFound is returned when the jobs file does not exist
	ErrJobsFileNotFound = errors.New("jobs file not found")
	// ErrMissingName is returned when a job or variable has no name
	ErrMissingName = errors.New("missing required field: name")
	// ErrMissingURL is returned when a job has no download URL
	ErrMissingURL = errors.New("missing required field: url")
	// ErrDuplicateJob is returned when two jobs share a name
	ErrDuplicateJob = errors.New("duplicate job name")
	// ErrMissingCommand is returned when a run instruction has no command
	ErrMissingCommand = errors.New("missing required field: command (required for run instructions)")
	// ErrMissingTarget is returned when a copy instruction has no target
	ErrMissingTarget = errors.New("missing required field: target (required for copy instructions)")
	// ErrMissingScript is returned when a script instruction has no source
	ErrMissingScript = errors.New("missing required field: script (required for script instructions)")
)

// VariableConfig is the TOML form of a variable.
type VariableConfig struct {
	Name        string `toml:"name"`
	Kind        string `toml:"kind,omitempty"`
	URL         string `toml:"url,omitempty"`
	PostData    string `toml:"post_data,omitempty"`
	Start       string `toml:"start,omitempty"`
	End         string `toml:"end,omitempty"`
	Pattern     string `toml:"pattern,omitempty"`
	RightToLeft bool   `toml:"right_to_left,omitempty"`
	Value       string `toml:"value,omitempty"`
}

// InstructionConfig is the TOML form of a setup instruction.
type InstructionConfig struct {
	Kind    string   `toml:"kind"`
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
	Target  string   `toml:"target,omitempty"`
	Script  string   `toml:"script,omitempty"`
}

// JobConfig is the TOML form of a job.
type JobConfig struct {
	Name        string              `toml:"name"`
	Category    string              `toml:"category,omitempty"`
	URL         string              `toml:"url"`
	PostData    string              `toml:"post_data,omitempty"`
	UserAgent   string              `toml:"user_agent,omitempty"`
	DownloadDir string              `toml:"download_dir,omitempty"`
	Variables   []VariableConfig    `toml:"variables,omitempty"`
	Setup       []InstructionConfig `toml:"setup,omitempty"`
}

// jobsFile matches the TOML structure of the jobs file. Jobs are an array
// of tables so that their order survives a round trip.
type jobsFile struct {
	Globals []VariableConfig `toml:"globals,omitempty"`
	Jobs    []JobConfig      `toml:"job"`
}

// File is a loaded jobs file.
type File struct {
	// Path is where the file was read from
	Path string
	// Jobs in file order
	Jobs []*Job
	// Globals are variables shared by all jobs
	Globals *variable.Store
	// Undecoded lists keys present in the file that were not understood
	Undecoded []string
}

// Load reads and validates a jobs file.
func Load(path string) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrJobsFileNotFound, path)
	}

	var raw jobsFile
	md, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	f := &File{Path: path, Globals: variable.NewStore()}
	for _, key := range md.Undecoded() {
		f.Undecoded = append(f.Undecoded, key.String())
	}

	for i := range raw.Globals {
		v, err := raw.Globals[i].toVariable()
		if err != nil {
			return nil, fmt.Errorf("global variable: %w", err)
		}
		if err := f.Globals.Add(v); err != nil {
			return nil, fmt.Errorf("global variable: %w", err)
		}
	}

	seen := make(map[string]bool)
	for i := range raw.Jobs {
		cfg := &raw.Jobs[i]
		if err := ValidateJobConfig(cfg); err != nil {
			return nil, err
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("job %s: %w", cfg.Name, ErrDuplicateJob)
		}
		seen[cfg.Name] = true

		j, err := cfg.toJob()
		if err != nil {
			return nil, err
		}
		f.Jobs = append(f.Jobs, j)
	}

	return f, nil
}

// Find returns the job called name.
func (f *File) Find(name string) (*Job, bool) {
	for _, j := range f.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// Save writes the jobs file back to its path. The write goes through a
// temp file and a rename so readers never see a partial file.
func (f *File) Save() error {
	raw := jobsFile{}
	for _, v := range f.Globals.Variables() {
		raw.Globals = append(raw.Globals, variableConfig(v))
	}
	for _, j := range f.Jobs {
		raw.Jobs = append(raw.Jobs, jobConfig(j))
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return fmt.Errorf("failed to encode jobs file: %w", err)
	}

	tmpPath := f.Path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write jobs file: %w", err)
	}
	if err := os.Rename(tmpPath, f.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename jobs file: %w", err)
	}
	return nil
}

// ValidateJobConfig checks a job definition for required fields.
func ValidateJobConfig(cfg *JobConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("job: %w", ErrMissingName)
	}
	if cfg.URL == "" {
		return fmt.Errorf("job %s: %w", cfg.Name, ErrMissingURL)
	}
	for i := range cfg.Setup {
		if err := validateInstruction(&cfg.Setup[i]); err != nil {
			return fmt.Errorf("job %s: setup step %d: %w", cfg.Name, i+1, err)
		}
	}
	return nil
}

func validateInstruction(cfg *InstructionConfig) error {
	kind, err := ParseInstructionKind(cfg.Kind)
	if err != nil {
		return err
	}
	switch kind {
	case InstructionRun:
		if cfg.Command == "" {
			return ErrMissingCommand
		}
	case InstructionCopy:
		if cfg.Target == "" {
			return ErrMissingTarget
		}
	case InstructionScript:
		if cfg.Script == "" {
			return ErrMissingScript
		}
	}
	return nil
}

func (cfg *JobConfig) toJob() (*Job, error) {
	j := New(cfg.Name)
	j.Category = cfg.Category
	j.URL = cfg.URL
	j.PostData = cfg.PostData
	j.UserAgent = cfg.UserAgent
	j.DownloadDir = cfg.DownloadDir

	for i := range cfg.Variables {
		v, err := cfg.Variables[i].toVariable()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", cfg.Name, err)
		}
		if err := j.Variables.Add(v); err != nil {
			return nil, fmt.Errorf("job %s: %w", cfg.Name, err)
		}
	}

	for _, in := range cfg.Setup {
		kind, _ := ParseInstructionKind(in.Kind)
		j.Setup = append(j.Setup, Instruction{
			Kind:    kind,
			Command: in.Command,
			Args:    append([]string(nil), in.Args...),
			Target:  in.Target,
			Script:  in.Script,
		})
	}
	return j, nil
}

func (cfg *VariableConfig) toVariable() (*variable.Variable, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("variable: %w", ErrMissingName)
	}
	kind, err := variable.ParseKind(cfg.Kind)
	if err != nil {
		return nil, fmt.Errorf("variable %s: %w", cfg.Name, err)
	}
	if kind == variable.KindPattern && cfg.Pattern != "" {
		if err := variable.ValidatePattern(cfg.Pattern); err != nil {
			return nil, fmt.Errorf("variable %s: %w", cfg.Name, err)
		}
	}
	return &variable.Variable{
		Name:     cfg.Name,
		URL:      cfg.URL,
		PostData: cfg.PostData,
		Rule: variable.Rule{
			Kind:        kind,
			StartText:   cfg.Start,
			EndText:     cfg.End,
			Pattern:     cfg.Pattern,
			RightToLeft: cfg.RightToLeft,
			Literal:     cfg.Value,
		},
	}, nil
}

func variableConfig(v *variable.Variable) VariableConfig {
	cfg := VariableConfig{
		Name:     v.Name,
		Kind:     v.Rule.Kind.String(),
		URL:      v.URL,
		PostData: v.PostData,
	}
	switch v.Rule.Kind {
	case variable.KindLiteral:
		cfg.Value = v.Rule.Literal
	case variable.KindPattern:
		cfg.Pattern = v.Rule.Pattern
		cfg.RightToLeft = v.Rule.RightToLeft
	default:
		cfg.Start = v.Rule.StartText
		cfg.End = v.Rule.EndText
	}
	return cfg
}

func jobConfig(j *Job) JobConfig {
	cfg := JobConfig{
		Name:        j.Name,
		Category:    j.Category,
		URL:         j.URL,
		PostData:    j.PostData,
		UserAgent:   j.UserAgent,
		DownloadDir: j.DownloadDir,
	}
	for _, v := range j.Variables.Variables() {
		cfg.Variables = append(cfg.Variables, variableConfig(v))
	}
	for _, in := range j.Setup {
		cfg.Setup = append(cfg.Setup, InstructionConfig{
			Kind:    string(in.Kind),
			Command: in.Command,
			Args:    in.Args,
			Target:  in.Target,
			Script:  in.Script,
		})
	}
	return cfg
}
