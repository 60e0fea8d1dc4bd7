// Package locator holds the Locator Registry: the read-only mapping from
// symbolic element names used in feature files to CSS or XPath selectors.
package locator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"zapp/pkg/logging"
)

// Kind is the selector dialect of a locator.
type Kind string

const (
	CSS   Kind = "css selector"
	XPath Kind = "xpath"
)

// KindOf infers the selector dialect: selectors starting with "/" (which
// includes "/html/") are XPath, everything else is CSS.
func KindOf(selector string) Kind {
	if strings.HasPrefix(selector, "/") {
		return XPath
	}
	return CSS
}

// ErrNotFound matches every *NotFoundError through errors.Is.
var ErrNotFound = errors.New("locator not found")

// NotFoundError is returned when a name has no registered selector.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("locator %q not found; make sure it is declared in one of the *_locators files", e.Name)
}

// Entry is one registered locator with the source that declared it.
type Entry struct {
	Name     string
	Selector string
	Source   string
}

// Registry maps names to selectors. It is populated by a Builder and never
// modified afterwards, so concurrent reads are safe.
type Registry struct {
	entries map[string]Entry
}

// Lookup returns the selector registered under name.
func (r *Registry) Lookup(name string) (string, error) {
	if r != nil {
		if e, ok := r.entries[name]; ok {
			return e.Selector, nil
		}
	}
	logging.Error("Locators", nil, "Locator %q not found", name)
	return "", &NotFoundError{Name: name}
}

// Entry returns the full entry for name.
func (r *Registry) Entry(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[name]
	return e, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered locators.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Builder collects locators from several sources. Later sources win on
// collision and every collision is reported as a warning.
type Builder struct {
	entries    map[string]Entry
	collisions []Collision
}

// Collision records a name declared by more than one source.
type Collision struct {
	Name     string
	Previous Entry
	Current  Entry
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string]Entry)}
}

// Add registers every locator of one source.
func (b *Builder) Add(source string, locators map[string]string) {
	names := make([]string, 0, len(locators))
	for name := range locators {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		current := Entry{Name: name, Selector: locators[name], Source: source}
		if previous, ok := b.entries[name]; ok {
			logging.Warn("Locators", "Locator %q from %s overrides the one from %s", name, source, previous.Source)
			b.collisions = append(b.collisions, Collision{Name: name, Previous: previous, Current: current})
		}
		b.entries[name] = current
	}
}

// Collisions returns every overlap seen so far.
func (b *Builder) Collisions() []Collision {
	return b.collisions
}

// Build freezes the collected locators into a Registry.
func (b *Builder) Build() *Registry {
	entries := make(map[string]Entry, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &Registry{entries: entries}
}
