package variable

import (
	"errors"
	"fmt"
	"strings"
)

// Error variables for rule validation
var (
	// ErrInvalidPattern is returned when a pattern does not compile
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrInvalidKind is returned when a rule kind name is unknown
	ErrInvalidKind = errors.New("invalid variable kind: must be 'literal', 'delimited' or 'pattern'")
)

// Kind identifies how a variable derives its value.
type Kind int

const (
	// KindLiteral returns the configured value verbatim.
	KindLiteral Kind = iota
	// KindDelimited takes the content between a start and an end text.
	KindDelimited
	// KindPattern takes the first match (or first capture group) of a pattern.
	KindPattern
)

var kindNames = map[Kind]string{
	KindLiteral:   "literal",
	KindDelimited: "delimited",
	KindPattern:   "pattern",
}

// String returns the configuration name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a configuration name into a Kind.
// An empty name selects KindDelimited, the default for new variables.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "literal", "text", "textual":
		return KindLiteral, nil
	case "", "delimited", "startend":
		return KindDelimited, nil
	case "pattern", "regex":
		return KindPattern, nil
	default:
		return 0, fmt.Errorf("%w: got %q", ErrInvalidKind, name)
	}
}

// Rule is the extraction policy of a variable. Only the fields belonging to
// Kind are meaningful. Rule is comparable, so an evaluation snapshot can be
// checked against the live rule with ==.
type Rule struct {
	Kind Kind
	// StartText and EndText delimit the value for KindDelimited
	StartText string
	EndText   string
	// Pattern and RightToLeft configure KindPattern
	Pattern     string
	RightToLeft bool
	// Literal is the value of a KindLiteral variable
	Literal string
}

// NeedsContent reports whether the rule derives its value from fetched content.
func (r Rule) NeedsContent() bool {
	return r.Kind != KindLiteral
}

// Variable is a named rule producing a value for template expansion.
type Variable struct {
	// Name is unique within the owning Store
	Name string
	// URL is the template of the page the value is extracted from
	URL string
	// PostData is an optional request body template; a non-empty body turns the fetch into a POST
	PostData string
	// Rule defines how the value is derived
	Rule Rule
	// LastContent caches the most recently fetched page content
	LastContent string
}

// New creates an empty delimited variable.
func New(name string) *Variable {
	return &Variable{
		Name: name,
		Rule: Rule{Kind: KindDelimited},
	}
}

// NewLiteral creates a literal variable holding value.
func NewLiteral(name, value string) *Variable {
	return &Variable{
		Name: name,
		Rule: Rule{Kind: KindLiteral, Literal: value},
	}
}

// Clone returns an independent copy of the variable.
func (v *Variable) Clone() *Variable {
	c := *v
	return &c
}

// IsEmpty reports whether the variable has no meaningful configuration.
// Empty variables are pruned when an edit session is committed.
func (v *Variable) IsEmpty() bool {
	switch v.Rule.Kind {
	case KindLiteral:
		return v.Rule.Literal == ""
	case KindPattern:
		return v.URL == "" && v.Rule.Pattern == ""
	default:
		return v.URL == "" && v.Rule.StartText == "" && v.Rule.EndText == ""
	}
}

// SetPattern validates and installs a new pattern. An invalid pattern is
// rejected with ErrInvalidPattern and the previous pattern stays active.
// An empty pattern disables matching.
func (v *Variable) SetPattern(pattern string) error {
	if pattern != "" {
		if err := ValidatePattern(pattern); err != nil {
			return err
		}
	}
	v.Rule.Pattern = pattern
	return nil
}

// ValidatePattern checks that pattern compiles.
func ValidatePattern(pattern string) error {
	if _, err := compilePattern(pattern, false); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return nil
}

// String returns the variable name.
func (v *Variable) String() string {
	return v.Name
}
