package variable

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// fakeContent serves page content by URL and records every request.
type fakeContent struct {
	pages    map[string]string
	requests []string
	err      error
}

func (f *fakeContent) fetch(_ context.Context, url, body string) (string, error) {
	f.requests = append(f.requests, url+"|"+body)
	if f.err != nil {
		return "", f.err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no page at %s", url)
	}
	return page, nil
}

func mustStore(t *testing.T, vars ...*Variable) *Store {
	t.Helper()
	s := NewStore()
	for _, v := range vars {
		if err := s.Add(v); err != nil {
			t.Fatalf("Add(%s) error = %v", v.Name, err)
		}
	}
	return s
}

// TestExpandWithoutReferences tests Property 4: Reference-Free Templates Are Unchanged
// **Feature: variable-engine, Property 4: Reference-Free Templates Are Unchanged**
func TestExpandWithoutReferences(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property: expanding a template without references is the identity
	properties.Property("templates without references expand to themselves", prop.ForAll(
		func(tmpl string) bool {
			tmpl = strings.ReplaceAll(tmpl, "{", "")
			out, err := NewExpander(NewStore()).Expand(context.Background(), tmpl)
			return err == nil && out == tmpl
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

// TestExpandIdempotent tests Property 5: Expansion Is Stable Within A Pass
// **Feature: variable-engine, Property 5: Expansion Is Stable Within A Pass**
func TestExpandIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property: expanding the same template twice yields the same result and
	// fetches the page only once
	properties.Property("second expansion is served from memoized values", prop.ForAll(
		func(version string) bool {
			fc := &fakeContent{pages: map[string]string{"http://h/page": "<v>" + version + "</v>"}}
			s := NewStore()
			_ = s.Add(&Variable{Name: "ver", URL: "http://h/page", Rule: Rule{Kind: KindDelimited, StartText: "<v>", EndText: "</v>"}})
			exp := NewExpander(s, WithContentFunc(fc.fetch))

			first, err1 := exp.Expand(context.Background(), "app-{ver}.tar.gz")
			second, err2 := exp.Expand(context.Background(), "app-{ver}.tar.gz")
			return err1 == nil && err2 == nil && first == second &&
				first == "app-"+version+".tar.gz" && len(fc.requests) == 1
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestExpandDownloadURL(t *testing.T) {
	fc := &fakeContent{pages: map[string]string{
		"http://h/page": "version v3.4 now available",
	}}
	s := mustStore(t, &Variable{
		Name: "ver",
		URL:  "http://h/page",
		Rule: Rule{Kind: KindPattern, Pattern: `v(\d+\.\d+)`},
	})

	exp := NewExpander(s, WithContentFunc(fc.fetch))
	got, err := exp.Expand(context.Background(), "http://h/dl/{ver}.zip")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := "http://h/dl/3.4.zip"; got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}

	m, ok := exp.Match("ver")
	if !ok || m.Offset != 9 {
		t.Errorf("Match(ver) = %+v, %v; want offset 9", m, ok)
	}
	v, _ := s.Get("ver")
	if v.LastContent != "version v3.4 now available" {
		t.Errorf("LastContent = %q, want fetched page", v.LastContent)
	}
}

func TestExpandNestedVariables(t *testing.T) {
	fc := &fakeContent{pages: map[string]string{
		"http://h/releases":      `<a href="/r/42">latest</a>`,
		"http://h/r/42":          "file: app-2.1.exe",
		"http://h/r/42?arch=x64": "unused",
	}}
	s := mustStore(t,
		&Variable{Name: "file", URL: "http://h/r/{id}", Rule: Rule{Kind: KindPattern, Pattern: `(app-[\d.]+\.exe)`}},
		&Variable{Name: "id", URL: "http://h/releases", Rule: Rule{Kind: KindDelimited, StartText: `href="/r/`, EndText: `"`}},
	)

	exp := NewExpander(s, WithContentFunc(fc.fetch))
	got, err := exp.Expand(context.Background(), "http://h/dl/{file}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := "http://h/dl/app-2.1.exe"; got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
	if want := []string{"http://h/releases|", "http://h/r/42|"}; !reflect.DeepEqual(fc.requests, want) {
		t.Errorf("requests = %v, want %v", fc.requests, want)
	}
	if want := map[string]string{"id": "42", "file": "app-2.1.exe"}; !reflect.DeepEqual(exp.Values(), want) {
		t.Errorf("Values() = %v, want %v", exp.Values(), want)
	}
}

func TestExpandPostData(t *testing.T) {
	fc := &fakeContent{pages: map[string]string{"http://h/api": "token=abc;"}}
	s := mustStore(t,
		NewLiteral("channel", "stable"),
		&Variable{Name: "token", URL: "http://h/api", PostData: "channel={channel}", Rule: Rule{Kind: KindDelimited, StartText: "token=", EndText: ";"}},
	)

	exp := NewExpander(s, WithContentFunc(fc.fetch))
	if _, err := exp.Resolve(context.Background(), "token"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if want := []string{"http://h/api|channel=stable"}; !reflect.DeepEqual(fc.requests, want) {
		t.Errorf("requests = %v, want %v", fc.requests, want)
	}
}

func TestExpandErrors(t *testing.T) {
	tests := []struct {
		name    string
		vars    []*Variable
		tmpl    string
		wantErr error
	}{
		{
			name:    "unknown variable",
			tmpl:    "http://h/{missing}",
			wantErr: ErrUnknownVariable,
		},
		{
			name:    "self reference",
			vars:    []*Variable{NewLiteral("a", "x{a}")},
			tmpl:    "{a}",
			wantErr: ErrCycle,
		},
		{
			name:    "two variable cycle",
			vars:    []*Variable{NewLiteral("a", "{b}"), NewLiteral("b", "{a}")},
			tmpl:    "{a}",
			wantErr: ErrCycle,
		},
		{
			name:    "cycle through url",
			vars:    []*Variable{{Name: "a", URL: "http://h/{a}", Rule: Rule{Kind: KindDelimited}}},
			tmpl:    "{a}",
			wantErr: ErrCycle,
		},
		{
			name:    "no match",
			vars:    []*Variable{{Name: "a", LastContent: "nothing", Rule: Rule{Kind: KindDelimited, StartText: "<v>", EndText: "</v>"}}},
			tmpl:    "{a}",
			wantErr: ErrNoMatch,
		},
		{
			name:    "no content source",
			vars:    []*Variable{{Name: "a", URL: "http://h/", Rule: Rule{Kind: KindDelimited, StartText: "<v>"}}},
			tmpl:    "{a}",
			wantErr: ErrNoContentSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := NewExpander(mustStore(t, tt.vars...), WithCachedContent(true))
			_, err := exp.Expand(context.Background(), tt.tmpl)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expand() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrResolution) {
				t.Errorf("Expand() error = %v, want a resolution error", err)
			}
			var re *ResolutionError
			if !errors.As(err, &re) || re.Variable == "" {
				t.Errorf("error %v is not a *ResolutionError naming the variable", err)
			}
		})
	}
}

func TestExpandDepthExceeded(t *testing.T) {
	s := NewStore()
	for i := 0; i < MaxDepth+5; i++ {
		_ = s.Add(NewLiteral(fmt.Sprintf("v%d", i), fmt.Sprintf("{v%d}", i+1)))
	}
	_ = s.Add(NewLiteral(fmt.Sprintf("v%d", MaxDepth+5), "end"))

	_, err := NewExpander(s).Expand(context.Background(), "{v0}")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Expand() error = %v, want ErrDepthExceeded", err)
	}

	_, err = NewExpander(s).Order("{v0}")
	if !errors.Is(err, ErrDepthExceeded) {
		t.Errorf("Order() error = %v, want ErrDepthExceeded", err)
	}
}

func TestExpandFetchError(t *testing.T) {
	errBoom := errors.New("connection refused")
	fc := &fakeContent{err: errBoom}
	s := mustStore(t, &Variable{Name: "ver", URL: "http://h/", Rule: Rule{Kind: KindPattern, Pattern: `\d+`}})

	_, err := NewExpander(s, WithContentFunc(fc.fetch)).Expand(context.Background(), "{ver}")
	if !errors.Is(err, errBoom) {
		t.Fatalf("Expand() error = %v, want fetch error", err)
	}
	if errors.Is(err, ErrResolution) {
		t.Errorf("fetch failure reported as resolution error: %v", err)
	}
}

func TestExpandBuiltinsAndGlobals(t *testing.T) {
	globals := mustStore(t, NewLiteral("mirror", "http://mirror.example"), NewLiteral("arch", "x86"))
	s := mustStore(t, NewLiteral("arch", "x64"))

	exp := NewExpander(s, WithGlobals(globals), WithJobInfo("Tools", "Foo"))
	got, err := exp.Expand(context.Background(), "{mirror}/{category}/{appname}-{arch}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := "http://mirror.example/Tools/Foo-x64"; got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandLeavesJSONBodies(t *testing.T) {
	s := mustStore(t, NewLiteral("ver", "1.0"))
	got, err := NewExpander(s).Expand(context.Background(), `{"version": "{ver}"}`)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if want := `{"version": "1.0"}`; got != want {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func TestExpandCachedContent(t *testing.T) {
	s := mustStore(t, &Variable{
		Name:        "ver",
		URL:         "http://h/never-fetched",
		LastContent: "<v>9.9</v>",
		Rule:        Rule{Kind: KindDelimited, StartText: "<v>", EndText: "</v>"},
	})

	got, err := NewExpander(s, WithCachedContent(true)).Expand(context.Background(), "{ver}")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if got != "9.9" {
		t.Errorf("Expand() = %q, want 9.9", got)
	}
}

func TestExpandCancelledContext(t *testing.T) {
	fc := &fakeContent{pages: map[string]string{"http://h/": "1"}}
	s := mustStore(t, &Variable{Name: "ver", URL: "http://h/", Rule: Rule{Kind: KindPattern, Pattern: `\d`}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExpander(s, WithContentFunc(fc.fetch)).Expand(ctx, "{ver}")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expand() error = %v, want context.Canceled", err)
	}
	if len(fc.requests) != 0 {
		t.Errorf("requests = %v, want none", fc.requests)
	}
}

func TestOrder(t *testing.T) {
	s := mustStore(t,
		&Variable{Name: "file", URL: "http://h/{id}/{arch}", Rule: Rule{Kind: KindPattern, Pattern: `\S+`}},
		&Variable{Name: "id", URL: "http://h/{appname}", Rule: Rule{Kind: KindPattern, Pattern: `\d+`}},
		NewLiteral("arch", "x64"),
		NewLiteral("unused", "x"),
	)

	got, err := NewExpander(s).Order("http://h/dl/{file}", "{arch}")
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if want := []string{"id", "arch", "file"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}

	s2 := mustStore(t, NewLiteral("a", "{b}"), NewLiteral("b", "{c}"), NewLiteral("c", "{a}"))
	_, err = NewExpander(s2).Order("{a}")
	var re *ResolutionError
	if !errors.As(err, &re) || !errors.Is(err, ErrCycle) {
		t.Fatalf("Order() error = %v, want cycle", err)
	}
	if want := []string{"a", "b", "c", "a"}; !reflect.DeepEqual(re.Chain, want) {
		t.Errorf("Chain = %v, want %v", re.Chain, want)
	}
}

func TestReferences(t *testing.T) {
	got := References("{a}/{b}-{a} {not a ref} {\"json\": 1} {}")
	if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("References() = %v, want %v", got, want)
	}
}
