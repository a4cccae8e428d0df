package job

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestArtifactIndexPersistence tests Property 1: Artifact Index Persistence
// **Feature: artifact-index, Property 1: Artifact Index Persistence**
func TestArtifactIndexPersistence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	// Property: a recorded artifact is returned after reopening the index
	properties.Property("recorded artifacts survive reopen", prop.ForAll(
		func(name, url string) bool {
			dir := t.TempDir()
			file := filepath.Join(dir, "setup.bin")
			if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
				return false
			}

			fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
			idx, err := OpenArtifactIndex(dir, WithIndexNowFunc(func() time.Time { return fixed }))
			if err != nil || idx.Record(name, file, url) != nil {
				return false
			}

			reopened, err := OpenArtifactIndex(dir)
			if err != nil {
				return false
			}
			art, ok := reopened.Latest(name)
			return ok && art.Path == file && art.URL == url && art.Timestamp.Equal(fixed)
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestArtifactIndexMissingFile(t *testing.T) {
	dir := t.TempDir()
	idx, err := OpenArtifactIndex(dir)
	if err != nil {
		t.Fatalf("OpenArtifactIndex() error = %v", err)
	}

	if err := idx.Record("app", filepath.Join(dir, "gone.zip"), "http://x/gone.zip"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if _, ok := idx.Latest("app"); ok {
		t.Error("Latest() returned an artifact whose file is missing")
	}
	if _, ok := idx.Entry("app"); !ok {
		t.Error("Entry() should still report the recorded artifact")
	}

	if err := idx.Forget("app"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len() = %d, want 0", idx.Len())
	}
}

func TestArtifactIndexCorrupted(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "artifacts.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	idx, err := OpenArtifactIndex(dir)
	if err != nil {
		t.Fatalf("OpenArtifactIndex() error = %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("Len() = %d, want empty index", idx.Len())
	}
	if err := idx.Record("a", "/x", "u"); err != nil {
		t.Errorf("Record() after corruption error = %v", err)
	}
}
