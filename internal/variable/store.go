package variable

import (
	"errors"
	"fmt"
	"strings"
)

// Error variables for store errors
var (
	// ErrInvalidName is returned when a variable name cannot be referenced from a template
	ErrInvalidName = errors.New("invalid variable name")
	// ErrDuplicateName is returned when a name is already used in the store
	ErrDuplicateName = errors.New("variable name already exists")
	// ErrReservedName is returned when a name collides with a built-in name
	ErrReservedName = errors.New("variable name is reserved")
	// ErrVariableNotFound is returned when a name is not in the store
	ErrVariableNotFound = errors.New("variable not found")
)

// Built-in names expanded from job metadata.
const (
	BuiltinCategory = "category"
	BuiltinAppName  = "appname"
)

// IsBuiltin reports whether name is one of the built-in substitution names.
func IsBuiltin(name string) bool {
	return name == BuiltinCategory || name == BuiltinAppName
}

// ValidateName checks that name can be used as a {name} reference.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if strings.ContainsAny(name, "{}\"':") || strings.IndexFunc(name, isSpace) >= 0 {
		return fmt.Errorf("%w: %q may not contain whitespace, braces, quotes or colons", ErrInvalidName, name)
	}
	if IsBuiltin(name) {
		return fmt.Errorf("%w: %s", ErrReservedName, name)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}

// Store is an ordered, name-keyed collection of variables.
// Insertion order is kept for display and default evaluation; it does not
// affect resolution order. A Store is owned by exactly one job or edit
// session and is not safe for concurrent use.
type Store struct {
	names []string
	vars  map[string]*Variable
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{vars: make(map[string]*Variable)}
}

// Add appends a variable. The name must be valid and unused.
func (s *Store) Add(v *Variable) error {
	if err := ValidateName(v.Name); err != nil {
		return err
	}
	if _, exists := s.vars[v.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, v.Name)
	}
	s.names = append(s.names, v.Name)
	s.vars[v.Name] = v
	return nil
}

// Get returns the variable called name.
func (s *Store) Get(name string) (*Variable, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vars[name]
	return v, ok
}

// Remove deletes a variable and reports whether it existed.
func (s *Store) Remove(name string) bool {
	if _, ok := s.vars[name]; !ok {
		return false
	}
	delete(s.vars, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true
}

// Rename changes a variable's name in place, keeping its position.
func (s *Store) Rename(oldName, newName string) error {
	v, ok := s.vars[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVariableNotFound, oldName)
	}
	if oldName == newName {
		return nil
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	if _, exists := s.vars[newName]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, newName)
	}
	delete(s.vars, oldName)
	v.Name = newName
	s.vars[newName] = v
	for i, n := range s.names {
		if n == oldName {
			s.names[i] = newName
			break
		}
	}
	return nil
}

// Len returns the number of variables.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the variable names in insertion order.
func (s *Store) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Variables returns the variables in insertion order.
func (s *Store) Variables() []*Variable {
	if s == nil {
		return nil
	}
	out := make([]*Variable, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, s.vars[n])
	}
	return out
}

// Clone returns a deep copy; edits to the copy never reach the original.
func (s *Store) Clone() *Store {
	c := NewStore()
	if s == nil {
		return c
	}
	for _, n := range s.names {
		c.names = append(c.names, n)
		c.vars[n] = s.vars[n].Clone()
	}
	return c
}

// PruneEmpty removes every empty variable and returns the removed names.
func (s *Store) PruneEmpty() []string {
	var pruned []string
	for _, v := range s.Variables() {
		if v.IsEmpty() {
			pruned = append(pruned, v.Name)
		}
	}
	for _, n := range pruned {
		s.Remove(n)
	}
	return pruned
}
