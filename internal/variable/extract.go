package variable

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// ErrMatchTimeout is returned when pattern matching exceeds its time bound.
var ErrMatchTimeout = errors.New("pattern match timed out")

// DefaultMatchTimeout bounds a single pattern evaluation.
const DefaultMatchTimeout = 5 * time.Second

// Match is the result of a successful extraction.
type Match struct {
	// Value is the extracted text
	Value string
	// Offset is the byte offset of Value in the content, or -1 for literal values.
	// It is only used for presentation.
	Offset int
}

// Extract applies rule to content using DefaultMatchTimeout.
// The boolean is false when the rule does not match.
func Extract(rule Rule, content string) (Match, bool, error) {
	return ExtractWithTimeout(rule, content, DefaultMatchTimeout)
}

// ExtractWithTimeout applies rule to content. Pattern matching is abandoned
// with ErrMatchTimeout after timeout; a zero timeout disables the bound.
// Extraction has no side effects.
func ExtractWithTimeout(rule Rule, content string, timeout time.Duration) (Match, bool, error) {
	switch rule.Kind {
	case KindLiteral:
		return Match{Value: rule.Literal, Offset: -1}, true, nil
	case KindDelimited:
		m, ok := extractDelimited(rule.StartText, rule.EndText, content)
		return m, ok, nil
	case KindPattern:
		return extractPattern(rule.Pattern, rule.RightToLeft, content, timeout)
	default:
		return Match{}, false, fmt.Errorf("%w: %d", ErrInvalidKind, int(rule.Kind))
	}
}

// extractDelimited returns the text strictly between the first start text
// and the first end text found after it. Only the first start position is
// tried. An empty start text starts at offset 0; an empty end text never
// matches.
func extractDelimited(start, end, content string) (Match, bool) {
	if end == "" {
		return Match{}, false
	}
	from := 0
	if start != "" {
		pos := strings.Index(content, start)
		if pos < 0 {
			return Match{}, false
		}
		from = pos + len(start)
	}

	length := strings.Index(content[from:], end)
	if length < 0 {
		return Match{}, false
	}
	return Match{Value: content[from : from+length], Offset: from}, true
}

// extractPattern returns the first capture group of the first match, or the
// whole match if the pattern has no groups. An empty pattern never matches.
func extractPattern(pattern string, rightToLeft bool, content string, timeout time.Duration) (Match, bool, error) {
	if pattern == "" {
		return Match{}, false, nil
	}

	re, err := compilePattern(pattern, rightToLeft)
	if err != nil {
		return Match{}, false, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}

	m, err := re.FindStringMatch(content)
	if err != nil {
		return Match{}, false, fmt.Errorf("%w: %v", ErrMatchTimeout, err)
	}
	if m == nil {
		return Match{}, false, nil
	}

	index, text := m.Index, m.String()
	if m.GroupCount() > 1 {
		g := m.GroupByNumber(1)
		text = g.String()
		if len(g.Captures) > 0 {
			index = g.Index
		}
	}

	return Match{Value: text, Offset: byteOffset(content, index)}, true, nil
}

// compilePattern compiles pattern with .NET-compatible syntax.
func compilePattern(pattern string, rightToLeft bool) (*regexp2.Regexp, error) {
	opts := regexp2.None
	if rightToLeft {
		opts |= regexp2.RightToLeft
	}
	return regexp2.Compile(pattern, opts)
}

// byteOffset converts a rune index reported by regexp2 into a byte offset.
func byteOffset(s string, runeIndex int) int {
	i := 0
	for pos := range s {
		if i == runeIndex {
			return pos
		}
		i++
	}
	return len(s)
}
