package variable

import (
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestStoreCloneIsolation tests Property 3: Clone Isolation
// **Feature: variable-engine, Property 3: Clone Isolation**
func TestStoreCloneIsolation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property: edits to a clone never reach the original store
	properties.Property("clone edits do not leak", prop.ForAll(
		func(value, edited string) bool {
			s := NewStore()
			if err := s.Add(NewLiteral("ver", value)); err != nil {
				return false
			}
			c := s.Clone()
			v, _ := c.Get("ver")
			v.Rule.Literal = edited
			v.LastContent = edited
			_ = c.Add(NewLiteral("extra", "x"))

			orig, _ := s.Get("ver")
			return orig.Rule.Literal == value && orig.LastContent == "" && s.Len() == 1
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestStoreAdd(t *testing.T) {
	s := NewStore()
	if err := s.Add(New("version")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		name    string
		varName string
		wantErr error
	}{
		{"duplicate", "version", ErrDuplicateName},
		{"empty", "", ErrInvalidName},
		{"whitespace", "my var", ErrInvalidName},
		{"brace", "a{b", ErrInvalidName},
		{"colon", "a:b", ErrInvalidName},
		{"reserved category", "category", ErrReservedName},
		{"reserved appname", "appname", ErrReservedName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(New(tt.varName))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add(%q) error = %v, want %v", tt.varName, err, tt.wantErr)
			}
		})
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStoreRename(t *testing.T) {
	s := NewStore()
	for _, n := range []string{"a", "b", "c"} {
		if err := s.Add(New(n)); err != nil {
			t.Fatalf("Add(%q) error = %v", n, err)
		}
	}

	if err := s.Rename("b", "build"); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if got, want := s.Names(), []string{"a", "build", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	v, ok := s.Get("build")
	if !ok || v.Name != "build" {
		t.Errorf("Get(build) = %v, %v", v, ok)
	}
	if _, ok := s.Get("b"); ok {
		t.Error("old name still present")
	}

	if err := s.Rename("a", "c"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Rename to existing error = %v, want ErrDuplicateName", err)
	}
	if err := s.Rename("missing", "x"); !errors.Is(err, ErrVariableNotFound) {
		t.Errorf("Rename missing error = %v, want ErrVariableNotFound", err)
	}
	if err := s.Rename("a", "appname"); !errors.Is(err, ErrReservedName) {
		t.Errorf("Rename to built-in error = %v, want ErrReservedName", err)
	}
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	_ = s.Add(New("a"))
	_ = s.Add(New("b"))

	if !s.Remove("a") {
		t.Error("Remove(a) = false, want true")
	}
	if s.Remove("a") {
		t.Error("second Remove(a) = true, want false")
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("Names() = %v, want [b]", got)
	}
}

func TestStorePruneEmpty(t *testing.T) {
	s := NewStore()
	_ = s.Add(New("blank"))
	_ = s.Add(NewLiteral("ver", "1.0"))
	_ = s.Add(NewLiteral("nothing", ""))

	pruned := s.PruneEmpty()
	if want := []string{"blank", "nothing"}; !reflect.DeepEqual(pruned, want) {
		t.Errorf("PruneEmpty() = %v, want %v", pruned, want)
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{"ver"}) {
		t.Errorf("Names() = %v, want [ver]", got)
	}
}

func TestNilStore(t *testing.T) {
	var s *Store
	if _, ok := s.Get("a"); ok {
		t.Error("nil store Get() found a variable")
	}
	if s.Len() != 0 || s.Names() != nil || s.Variables() != nil {
		t.Error("nil store not empty")
	}
	if c := s.Clone(); c == nil || c.Len() != 0 {
		t.Error("nil store Clone() should be empty")
	}
}
