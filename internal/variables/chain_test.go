package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_Document(t *testing.T) {
	doc := map[string]any{
		"data": map[string]any{
			"user": map[string]any{"id": "u-1", "roles": []any{"admin"}},
		},
		"meta": map[string]any{"id": "m-1"},
	}

	tests := []struct {
		name  string
		found bool
		want  any
	}{
		{"data.user.id", true, "u-1"},
		{"data > user > roles[0]", true, "admin"},
		{"user", true, map[string]any{"id": "u-1", "roles": []any{"admin"}}},
		{"roles", true, []any{"admin"}},
		{"id", true, "u-1"},
		{"absent", false, nil},
		{"data.absent", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(doc, tt.name)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitChain(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c", "d"}, SplitChain("a . b > c,d"))
	assert.True(t, IsChain("a>b"))
	assert.False(t, IsChain("plain"))
}

func TestFieldByChain_TypedMaps(t *testing.T) {
	v, ok := FieldByChain(map[string]map[string]int{"a": {"B": 2}}, "a.b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = FieldByChain(map[string]any{"list": []string{"x", "y"}}, "list[1]")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}
