package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/JimH44/Ketarin4Linux/internal/common/output"
	"github.com/JimH44/Ketarin4Linux/internal/job"
	"github.com/JimH44/Ketarin4Linux/internal/update"
	"github.com/JimH44/Ketarin4Linux/internal/variable"
)

const testJobs = `
[[globals]]
name = "mirror"
kind = "literal"
value = "https://mirror.example.org"

[[job]]
name = "zeta"
category = "Tools"
url = "{mirror}/zeta-{ver}.tar.gz"

[[job.variables]]
name = "ver"
kind = "pattern"
url = "https://zeta.example.org/releases"
pattern = 'v(\d+\.\d+)'

[[job.variables]]
name = "label"
kind = "literal"
value = "{appname} {ver}"

[[job.setup]]
kind = "run"
command = "true"
`

// writeTestConfig points configPath at a temp config and jobs file.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	jobsPath := filepath.Join(dir, "jobs.toml")
	if err := os.WriteFile(jobsPath, []byte(testJobs), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg := "jobs:\n  path: " + jobsPath + "\ndownload:\n  dir: " + filepath.Join(dir, "downloads") + "\nglobals:\n  channel: stable\n  mirror: ignored\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
	return jobsPath
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"install", "check", "vars", "eval", "version", "completion"}
	for _, name := range want {
		found := false
		for _, cmd := range rootCmd.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s command should exist", name)
		}
	}
}

func TestCommandFlags(t *testing.T) {
	checks := map[string]map[string]string{
		"install": {"update": "bool", "progress": "bool"},
		"check":   {"vars": "bool"},
		"eval":    {"content-file": "string", "pattern": "string", "rtl": "bool"},
	}
	for cmdName, flags := range checks {
		cmd, _, err := rootCmd.Find([]string{cmdName})
		if err != nil {
			t.Fatalf("Find(%s) error = %v", cmdName, err)
		}
		for flagName, flagType := range flags {
			flag := cmd.Flags().Lookup(flagName)
			if flag == nil {
				t.Errorf("%s should have --%s flag", cmdName, flagName)
				continue
			}
			if flag.Value.Type() != flagType {
				t.Errorf("%s --%s type = %s, want %s", cmdName, flagName, flag.Value.Type(), flagType)
			}
		}
	}

	for _, name := range []string{"verbose", "quiet", "no-color", "log", "config"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("root should have --%s flag", name)
		}
	}
}

func TestLoadAppMergesGlobals(t *testing.T) {
	writeTestConfig(t)
	a, err := loadApp()
	if err != nil {
		t.Fatalf("loadApp() error = %v", err)
	}
	if len(a.jobs.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(a.jobs.Jobs))
	}
	if v, _ := a.globals.Get("mirror"); v.Rule.Literal != "https://mirror.example.org" {
		t.Errorf("mirror = %q, want the jobs file value", v.Rule.Literal)
	}
	if values := literalValues(a.globals); values["channel"] != "stable" {
		t.Errorf("literalValues() = %v", values)
	}
	if _, err := a.selectJobs([]string{"nope"}); err == nil {
		t.Error("selectJobs() accepted an unknown job")
	}
}

// fakeResolver returns canned resolutions.
type fakeResolver struct {
	results map[string]*update.Resolution
}

func (f *fakeResolver) Resolve(_ context.Context, j *job.Job) (*update.Resolution, error) {
	if res, ok := f.results[j.Name]; ok {
		return res, nil
	}
	return nil, errors.New("no match for {ver}")
}

func TestCheckJobs(t *testing.T) {
	output.NoColor()
	r := &fakeResolver{results: map[string]*update.Resolution{
		"zeta": {URL: "http://h/zeta-1.2.tar.gz", Values: map[string]string{"ver": "1.2"}, Order: []string{"ver"}},
	}}
	zeta := job.New("zeta")
	zeta.Category = "Tools"
	var buf bytes.Buffer

	failed := checkJobs(context.Background(), r, []*job.Job{zeta, job.New("broken")}, &buf, true)
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	out := buf.String()
	for _, want := range []string{"Tools/zeta: http://h/zeta-1.2.tar.gz", "{ver} = 1.2", "broken: no match for {ver}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// scriptedUpdater installs every job except those named in fail.
type scriptedUpdater struct {
	fail map[string]bool
}

func (s *scriptedUpdater) Update(_ context.Context, j *job.Job, progress update.ProgressFunc) (*update.Result, error) {
	progress(update.Progress{Job: j.Name, Phase: update.PhaseDownloading, Percent: 100})
	if s.fail[j.Name] {
		return &update.Result{Job: j.Name}, update.ErrUpdateFailed
	}
	return &update.Result{Job: j.Name, Installed: true}, nil
}

func TestRunBatchPrintsEvents(t *testing.T) {
	output.NoColor()
	a, b := job.New("A"), job.New("B")
	a.Setup = []job.Instruction{{Kind: job.InstructionRun, Command: "true"}}
	b.Setup = a.Setup
	var buf bytes.Buffer

	summary := runBatch(context.Background(), update.NewRunner(&scriptedUpdater{fail: map[string]bool{"B": true}}),
		[]*job.Job{a, b}, &buf, true)

	if summary.Installed != 1 || summary.Total != 2 {
		t.Errorf("summary = %+v", summary)
	}
	out := buf.String()
	for _, want := range []string{
		"Updating application 1 of 2: A",
		"[Info] A: Installed successfully",
		"[Error] B: Update failed",
		"100%",
		"1 of 2 applications installed successfully.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEvaluateWithContent(t *testing.T) {
	output.NoColor()
	writeTestConfig(t)
	a, err := loadApp()
	if err != nil {
		t.Fatalf("loadApp() error = %v", err)
	}
	j, _ := a.findJob("zeta")
	noFetch := func(context.Context, string, string) (string, error) {
		return "", errors.New("network disabled")
	}

	var buf bytes.Buffer
	err = evaluate(context.Background(), &buf, j, "ver", noFetch, nil,
		evalOptions{content: "old v1.1 new v1.2", hasContent: true})
	if err != nil {
		t.Fatalf("evaluate() error = %v", err)
	}
	if !strings.Contains(buf.String(), "{ver} = 1.1") || !strings.Contains(buf.String(), "(offset 5)") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	err = evaluate(context.Background(), &buf, j, "ver", noFetch, nil,
		evalOptions{content: "old v1.1 new v1.2", hasContent: true, rightToLeft: true, rtlChanged: true})
	if err != nil || !strings.Contains(buf.String(), "{ver} = 1.2") {
		t.Errorf("right-to-left evaluate() = %q, %v", buf.String(), err)
	}
	if v, _ := j.Variables.Get("ver"); v.Rule.RightToLeft {
		t.Error("trial rule leaked into the job")
	}

	buf.Reset()
	err = evaluate(context.Background(), &buf, j, "ver", noFetch, nil,
		evalOptions{content: "nothing here", hasContent: true})
	if !errors.Is(err, variable.ErrNoMatch) {
		t.Errorf("evaluate() error = %v, want ErrNoMatch", err)
	}
}

func TestEditJobSavesVariables(t *testing.T) {
	output.NoColor()
	jobsPath := writeTestConfig(t)

	if err := varsSetCmd.ParseFlags([]string{"--url", "https://zeta.example.org/arch", "--pattern", `arch=(\w+)`}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	err := editJob("zeta", func(s *variable.Session) error {
		return applyVarFlags(varsSetCmd, s, "arch")
	})
	if err != nil {
		t.Fatalf("editJob() error = %v", err)
	}
	if err := editJob("zeta", func(s *variable.Session) error {
		return s.Rename("label", "title")
	}); err != nil {
		t.Fatalf("rename error = %v", err)
	}

	f, err := job.Load(jobsPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	j, _ := f.Find("zeta")
	v, ok := j.Variables.Get("arch")
	if !ok || v.Rule.Kind != variable.KindPattern || v.Rule.Pattern != `arch=(\w+)` || v.URL != "https://zeta.example.org/arch" {
		t.Errorf("arch = %+v, %v", v, ok)
	}
	if got := j.Variables.Names(); strings.Join(got, ",") != "ver,title,arch" {
		t.Errorf("names = %v, want ver,title,arch", got)
	}

	err = editJob("zeta", func(s *variable.Session) error {
		return s.SetPattern("ver", "(")
	})
	if !errors.Is(err, variable.ErrInvalidPattern) {
		t.Errorf("editJob() error = %v, want ErrInvalidPattern", err)
	}
}

func TestDescribeRule(t *testing.T) {
	tests := []struct {
		v    *variable.Variable
		want string
	}{
		{variable.NewLiteral("f", "x-{ver}"), `= "x-{ver}"`},
		{&variable.Variable{Name: "t", URL: "http://h", Rule: variable.Rule{Kind: variable.KindDelimited, StartText: "<b>", EndText: "</b>"}},
			`between "<b>" and "</b>" from http://h`},
		{&variable.Variable{Name: "v", URL: "http://h", PostData: "a=1", Rule: variable.Rule{Kind: variable.KindPattern, Pattern: `v(\d)`, RightToLeft: true}},
			`matching v(\d) (last match) from http://h (POST)`},
	}
	for _, tt := range tests {
		if got := describeRule(tt.v); got != tt.want {
			t.Errorf("describeRule(%s) = %q, want %q", tt.v.Name, got, tt.want)
		}
	}
}
