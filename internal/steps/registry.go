// Package steps holds the step registry and the built-in step library.
//
// A step pattern is plain text with "{name}" placeholders:
//
//	Я ввел в поле "{target}" значение "{value}"
//
// Patterns are compiled to anchored regular expressions. A placeholder
// between double quotes never captures a quote, so "{link}" cannot run
// into the next quoted argument; a bare placeholder captures anything.
// The captured values reach the handler as Args keyed by placeholder name, after
// "{{ variable }}" substitution against the run's Variable Store.
package steps

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/cucumber/godog"

	"zapp/internal/driver"
	"zapp/internal/template"
	"zapp/pkg/logging"
)

var (
	// ErrUnavailable is returned by a step that cannot run on the active
	// platform and is declared to fail there.
	ErrUnavailable = errors.New("step is not available on this platform")
	// ErrUndefined is returned by Run when no definition matches.
	ErrUndefined = errors.New("undefined step")
)

// Section groups steps in the step catalogue.
type Section string

const (
	SectionClick        Section = "Нажатия мыши"
	SectionInput        Section = "Ввод значений"
	SectionNavigation   Section = "Навигация"
	SectionService      Section = "Служебные"
	SectionVisibility   Section = "Видимость/невидимость"
	SectionClickability Section = "Доступность/недоступность"
	SectionValue        Section = "Сравнение значений"
	SectionAPI          Section = "Работа с API"
)

// Args are the placeholder values captured from a step text.
type Args map[string]string

// Handler runs one step.
type Handler func(ctx context.Context, args Args) error

// Definition binds a pattern to a handler.
type Definition struct {
	Pattern string
	Handler Handler
	Section Section
	Doc     string
	// Unavailable lists the platforms the step does nothing on.
	Unavailable []driver.Platform
	// FailOnUnavailable turns the no-op into ErrUnavailable.
	FailOnUnavailable bool
	// Deprecated names the pattern to use instead; using the step logs a
	// warning and is reported in the run metrics.
	Deprecated string
}

type compiled struct {
	Definition
	re    *regexp.Regexp
	names []string
}

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Compile turns a "{name}" pattern into an anchored expression and the
// ordered list of placeholder names.
func Compile(pattern string) (*regexp.Regexp, []string, error) {
	var (
		b     strings.Builder
		names []string
		last  int
	)
	b.WriteString("^")
	for _, loc := range placeholder.FindAllStringSubmatchIndex(pattern, -1) {
		name := pattern[loc[2]:loc[3]]
		if slices.Contains(names, name) {
			return nil, nil, fmt.Errorf("pattern %q repeats placeholder %q", pattern, name)
		}
		names = append(names, name)
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))
		if quoted(pattern, loc[0], loc[1]) {
			b.WriteString(`([^"]*)`)
		} else {
			b.WriteString("(.*?)")
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, names, nil
}

func quoted(pattern string, start, end int) bool {
	return start > 0 && end < len(pattern) && pattern[start-1] == '"' && pattern[end] == '"'
}

// Registry is the ordered set of step definitions. The first matching
// definition wins, so more specific patterns are added first.
type Registry struct {
	defs      []*compiled
	platform  func() driver.Platform
	templates *template.Engine
	resolver  template.Resolver

	mu         sync.Mutex
	deprecated map[string]struct{}
}

// NewRegistry returns an empty registry. platform reports the platform of
// the active session at call time; resolver feeds "{{ name }}"
// substitution and may be nil.
func NewRegistry(platform func() driver.Platform, resolver template.Resolver) *Registry {
	return &Registry{
		platform:   platform,
		templates:  template.New(),
		resolver:   resolver,
		deprecated: map[string]struct{}{},
	}
}

// Add registers definitions in order. It fails on an invalid or duplicate
// pattern.
func (r *Registry) Add(defs ...Definition) error {
	for _, d := range defs {
		if d.Handler == nil {
			return fmt.Errorf("step %q has no handler", d.Pattern)
		}
		for _, existing := range r.defs {
			if existing.Pattern == d.Pattern {
				return fmt.Errorf("step %q is already registered", d.Pattern)
			}
		}
		re, names, err := Compile(d.Pattern)
		if err != nil {
			return err
		}
		r.defs = append(r.defs, &compiled{Definition: d, re: re, names: names})
	}
	return nil
}

// Definitions returns the registered definitions in order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, c := range r.defs {
		out = append(out, c.Definition)
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int { return len(r.defs) }

// Match finds the definition for a step text and its arguments.
func (r *Registry) Match(text string) (Definition, Args, bool) {
	c, values := r.match(text)
	if c == nil {
		return Definition{}, nil, false
	}
	args := make(Args, len(values))
	for i, name := range c.names {
		args[name] = values[i]
	}
	return c.Definition, args, true
}

func (r *Registry) match(text string) (*compiled, []string) {
	text = strings.TrimSpace(text)
	for _, c := range r.defs {
		if m := c.re.FindStringSubmatch(text); m != nil {
			return c, m[1:]
		}
	}
	return nil, nil
}

// Run executes the step whose pattern matches text.
func (r *Registry) Run(ctx context.Context, text string) error {
	c, values := r.match(text)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUndefined, text)
	}
	return r.invoke(ctx, c, values)
}

// DeprecatedUsed returns the deprecated patterns used so far, sorted.
func (r *Registry) DeprecatedUsed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.deprecated))
	for p := range r.deprecated {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) invoke(ctx context.Context, c *compiled, values []string) error {
	if r.platform != nil {
		p := r.platform()
		if slices.Contains(c.Unavailable, p) {
			if c.FailOnUnavailable {
				return fmt.Errorf("%w: %q on %s", ErrUnavailable, c.Pattern, p)
			}
			logging.Warn("Steps", "Step %q is not available on %s, skipped", c.Pattern, p)
			return nil
		}
	}

	if c.Deprecated != "" {
		r.mu.Lock()
		r.deprecated[c.Pattern] = struct{}{}
		r.mu.Unlock()
		logging.Warn("Steps", "Step %q is deprecated, use %q", c.Pattern, c.Deprecated)
	}

	args := make(Args, len(values))
	for i, name := range c.names {
		v := values[i]
		if r.resolver != nil {
			var err error
			if v, err = r.templates.ReplaceString(v, r.resolver); err != nil {
				return fmt.Errorf("argument %q: %w", name, err)
			}
		}
		args[name] = v
	}
	return c.Handler(ctx, args)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	stringType  = reflect.TypeOf("")
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Bind registers every definition with a godog scenario.
func (r *Registry) Bind(sc *godog.ScenarioContext) {
	for _, c := range r.defs {
		sc.Step(c.re, r.godogHandler(c))
	}
}

// godogHandler builds a func(context.Context, string...) error with one
// string parameter per placeholder, the shape godog calls with the
// expression's submatches.
func (r *Registry) godogHandler(c *compiled) any {
	in := []reflect.Type{contextType}
	for range c.names {
		in = append(in, stringType)
	}
	fnType := reflect.FuncOf(in, []reflect.Type{errorType}, false)

	return reflect.MakeFunc(fnType, func(params []reflect.Value) []reflect.Value {
		ctx, ok := params[0].Interface().(context.Context)
		if !ok {
			ctx = context.Background()
		}
		values := make([]string, 0, len(params)-1)
		for _, p := range params[1:] {
			values = append(values, p.String())
		}

		out := reflect.Zero(errorType)
		if err := r.invoke(ctx, c, values); err != nil {
			out = reflect.ValueOf(&err).Elem()
		}
		return []reflect.Value{out}
	}).Interface()
}
