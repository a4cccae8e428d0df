package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrIndexCorrupted is returned when the artifact index cannot be parsed
var ErrIndexCorrupted = errors.New("artifact index is corrupted")

// Artifact records the file most recently downloaded for a job.
type Artifact struct {
	// Path is the downloaded file
	Path string `json:"path"`
	// URL is the resolved download URL
	URL string `json:"url"`
	// Timestamp is when the download completed
	Timestamp time.Time `json:"timestamp"`
}

// indexFile represents the JSON structure stored on disk
type indexFile struct {
	Artifacts map[string]Artifact `json:"artifacts"`
}

// ArtifactIndex remembers each job's last downloaded file so it can be
// reinstalled when an update fails. It persists to disk and supports
// concurrent access.
type ArtifactIndex struct {
	artifacts map[string]Artifact
	path      string
	mu        sync.RWMutex
	nowFunc   func() time.Time
}

// IndexOption is a functional option for configuring ArtifactIndex
type IndexOption func(*ArtifactIndex)

// WithIndexNowFunc sets a custom time function for testing
func WithIndexNowFunc(fn func() time.Time) IndexOption {
	return func(a *ArtifactIndex) {
		a.nowFunc = fn
	}
}

// OpenArtifactIndex creates or loads the index stored in dir.
// A corrupted index is replaced by an empty one on the next write.
func OpenArtifactIndex(dir string, opts ...IndexOption) (*ArtifactIndex, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact index directory: %w", err)
	}

	idx := &ArtifactIndex{
		artifacts: make(map[string]Artifact),
		path:      filepath.Join(dir, "artifacts.json"),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}

	if err := idx.load(); err != nil && !os.IsNotExist(err) {
		idx.artifacts = make(map[string]Artifact)
	}
	return idx, nil
}

func (a *ArtifactIndex) load() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return err
	}

	var f indexFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexCorrupted, err)
	}
	if f.Artifacts != nil {
		a.artifacts = f.Artifacts
	}
	return nil
}

// Latest returns the artifact recorded for a job if its file still exists.
func (a *ArtifactIndex) Latest(job string) (Artifact, bool) {
	a.mu.RLock()
	art, ok := a.artifacts[job]
	a.mu.RUnlock()

	if !ok {
		return Artifact{}, false
	}
	if _, err := os.Stat(art.Path); err != nil {
		return Artifact{}, false
	}
	return art, true
}

// Entry returns the recorded artifact without checking the file.
func (a *ArtifactIndex) Entry(job string) (Artifact, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	art, ok := a.artifacts[job]
	return art, ok
}

// Record stores the artifact for a job and saves the index.
func (a *ArtifactIndex) Record(job, path, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.artifacts[job] = Artifact{
		Path:      path,
		URL:       url,
		Timestamp: a.nowFunc(),
	}
	return a.saveUnsafe()
}

// Forget removes a job from the index and saves it.
func (a *ArtifactIndex) Forget(job string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.artifacts, job)
	return a.saveUnsafe()
}

// Len returns the number of recorded artifacts.
func (a *ArtifactIndex) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.artifacts)
}

// saveUnsafe persists the index. Caller must hold the write lock.
func (a *ArtifactIndex) saveUnsafe() error {
	data, err := json.MarshalIndent(indexFile{Artifacts: a.artifacts}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact index: %w", err)
	}

	tmpPath := a.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write artifact index: %w", err)
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename artifact index: %w", err)
	}
	return nil
}
