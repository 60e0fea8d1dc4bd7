package strings

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateDescription(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short string unchanged", input: "hello", maxLen: 10, expected: "hello"},
		{name: "exact length unchanged", input: "hello", maxLen: 5, expected: "hello"},
		{name: "long string truncated", input: "hello world this is a long string", maxLen: 15, expected: "hello world ..."},
		{name: "newlines collapsed", input: "div.menu\n  > a", maxLen: 60, expected: "div.menu > a"},
		{name: "whitespace only becomes empty", input: "   \n\t  ", maxLen: 10, expected: ""},
		{name: "maxLen clamped", input: "hello", maxLen: 0, expected: "h..."},
		{name: "short string with small maxLen unchanged", input: "hi", maxLen: 3, expected: "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TruncateDescription(tt.input, tt.maxLen))
		})
	}
}

func TestTruncateDescription_RuneLength(t *testing.T) {
	result := TruncateDescription("элемент не найден", 8)
	assert.Equal(t, "элеме...", result)
	assert.Equal(t, 8, utf8.RuneCountInString(result))
}

func TestTruncate(t *testing.T) {
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'я'
	}

	got := Truncate(string(long), 100)
	assert.Equal(t, 103, utf8.RuneCountInString(got))
	assert.Equal(t, "...", got[len(got)-3:])

	assert.Equal(t, "line one\nline two", Truncate("line one\nline two", 100))
	assert.Equal(t, "", Truncate("", 100))
	assert.Equal(t, "...", Truncate("abc", -1))
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Login works", "Login-works"},
		{"2024-01-02 10:11:12.123", "2-24--1--2-1--11-12-123"},
		{"", ""},
		{"a/b\\c", "a-b-c"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}
