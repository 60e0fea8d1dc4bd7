package variables

import (
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	chainSeparators = regexp.MustCompile(`[,.>]`)
	indexSuffix     = regexp.MustCompile(`\[(\d+)\]`)
)

// IsChain reports whether name contains a chain separator.
func IsChain(name string) bool {
	return chainSeparators.MatchString(name)
}

// SplitChain splits a chain into trimmed segments. The separators ".",
// "," and ">" are interchangeable.
func SplitChain(chain string) []string {
	parts := chainSeparators.Split(chain, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// FieldByChain walks value along chain. A segment is a mapping key, a
// "[n]" sequence index, or a key followed by one or more indexes such as
// "items[0]".
func FieldByChain(value any, chain string) (any, bool) {
	return walk(value, SplitChain(chain))
}

func walk(value any, segments []string) (any, bool) {
	current := value
	for _, seg := range segments {
		key, indexes := parseSegment(seg)
		if key != "" {
			next, ok := field(current, key)
			if !ok {
				return nil, false
			}
			current = next
		}
		for _, i := range indexes {
			next, ok := index(current, i)
			if !ok {
				return nil, false
			}
			current = next
		}
	}
	return current, true
}

func parseSegment(seg string) (string, []int) {
	loc := indexSuffix.FindStringIndex(seg)
	if loc == nil {
		return seg, nil
	}
	key := strings.TrimSpace(seg[:loc[0]])
	var indexes []int
	for _, m := range indexSuffix.FindAllStringSubmatch(seg[loc[0]:], -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			indexes = append(indexes, n)
		}
	}
	return key, indexes
}

// field reads key from a mapping. An exact key wins; otherwise the key is
// matched case-insensitively.
func field(value any, key string) (any, bool) {
	switch m := value.(type) {
	case map[string]any:
		if v, ok := m[key]; ok {
			return v, true
		}
		for k, v := range m {
			if strings.EqualFold(k, key) {
				return v, true
			}
		}
		return nil, false
	case map[string]string:
		v, ok := m[key]
		return v, ok
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	for _, k := range rv.MapKeys() {
		if strings.EqualFold(k.String(), key) {
			return rv.MapIndex(k).Interface(), true
		}
	}
	return nil, false
}

func index(value any, i int) (any, bool) {
	if s, ok := value.([]any); ok {
		if i < 0 || i >= len(s) {
			return nil, false
		}
		return s[i], true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if i < 0 || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

// FindKey searches a decoded JSON document depth first for the first
// value stored under key. Mapping keys are visited in sorted order.
func FindKey(value any, key string) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		if found, ok := v[key]; ok {
			return found, true
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if found, ok := FindKey(v[k], key); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range v {
			if found, ok := FindKey(item, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Lookup resolves name in a decoded document: chains are walked, plain
// names are searched anywhere in the document.
func Lookup(value any, name string) (any, bool) {
	if IsChain(name) || indexSuffix.MatchString(name) {
		return FieldByChain(value, name)
	}
	return FindKey(value, name)
}
