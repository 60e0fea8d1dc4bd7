// Package variables holds the Variable Store: the run-wide,
// case-insensitive mapping of names to values that steps read from and
// write into. Values come from Vault secrets, then the process environment,
// then runtime captures made by steps.
//
// The store is shared by every scenario of a run, so a value saved in one
// scenario stays visible to the following ones.
package variables

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"zapp/pkg/logging"
)

// NotFoundError is returned by MustGet and by Resolve in strict mode.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found", e.Name)
}

type source int

const (
	fromSecrets source = iota
	fromEnvironment
	fromRuntime
)

type entry struct {
	name   string
	value  any
	source source
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	strict  bool
}

// Option configures a Store.
type Option func(*Store)

// WithStrict makes Resolve fail on missing names instead of logging.
func WithStrict(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// New builds a store from secrets overlaid with the environment.
func New(secrets map[string]any, environ map[string]string, opts ...Option) *Store {
	s := &Store{entries: make(map[string]entry, len(secrets)+len(environ))}
	for _, opt := range opts {
		opt(s)
	}
	for k, v := range secrets {
		s.put(k, v, fromSecrets)
	}
	for k, v := range environ {
		s.put(k, v, fromEnvironment)
	}
	return s
}

// Environ converts os.Environ-style pairs into a map.
func Environ(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func (s *Store) put(name string, value any, src source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(name)] = entry{name: name, value: value, source: src}
}

// Strict reports whether the store runs in strict mode.
func (s *Store) Strict() bool { return s.strict }

// Set stores a runtime value, overwriting any previous one.
func (s *Store) Set(name string, value any) {
	s.put(name, value, fromRuntime)
	logging.Debug("Variables", "Saved %q: %v", name, value)
}

// Lookup returns the value for name without logging. A name that is not a
// key itself is resolved as a chain whose first segment is a key.
func (s *Store) Lookup(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[strings.ToLower(strings.TrimSpace(name))]; ok {
		return e.value, true
	}

	segments := SplitChain(name)
	if len(segments) == 0 {
		return nil, false
	}
	head, indexes := parseSegment(segments[0])
	e, ok := s.entries[strings.ToLower(head)]
	if !ok {
		return nil, false
	}
	rest := segments[1:]
	if len(indexes) > 0 {
		// re-attach the indexes of the head segment as a key-less segment
		idx := ""
		for _, i := range indexes {
			idx += fmt.Sprintf("[%d]", i)
		}
		rest = append([]string{idx}, rest...)
	}
	return walk(e.value, rest)
}

// Get returns the value for name. A miss is logged and reported as
// (nil, false).
func (s *Store) Get(name string) (any, bool) {
	v, ok := s.Lookup(name)
	if !ok {
		logging.Warn("Variables", "Variable %q not found", name)
		return nil, false
	}
	logging.Debug("Variables", "%q: %v", name, v)
	return v, true
}

// MustGet returns the value for name or a *NotFoundError.
func (s *Store) MustGet(name string) (any, error) {
	v, ok := s.Lookup(name)
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return v, nil
}

// Resolve is what steps use: in strict mode it is MustGet, otherwise a
// miss is logged and yields (nil, nil).
func (s *Store) Resolve(name string) (any, error) {
	if s.strict {
		return s.MustGet(name)
	}
	v, _ := s.Get(name)
	return v, nil
}

// GetString returns the value formatted as a string; a miss gives "".
func (s *Store) GetString(name string) string {
	v, ok := s.Get(name)
	if !ok || v == nil {
		return ""
	}
	return String(v)
}

// Keys returns the stored names, in their original case, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		keys = append(keys, e.name)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies every entry.
func (s *Store) Snapshot() map[string]any {
	return s.collect(func(entry) bool { return true })
}

// Export copies the entries written at runtime. Secrets and environment
// values are never exported.
func (s *Store) Export() map[string]any {
	return s.collect(func(e entry) bool { return e.source == fromRuntime })
}

func (s *Store) collect(keep func(entry) bool) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for _, e := range s.entries {
		if keep(e) {
			out[e.name] = e.value
		}
	}
	return out
}

// String formats a stored value the way it is typed into the UI.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
