package zephyr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zapp/internal/tracker"
)

func TestParseTags(t *testing.T) {
	tags := ParseTags([]string{"@smoke", "@ZephyrLabel/ZAPP/login", "@JiraStory/ZAPP-42"})
	assert.Equal(t, "ZephyrLabel/ZAPP/login", tags.Label)
	assert.Equal(t, "ZAPP-42", tags.Story)

	tags = ParseTags([]string{"JiraStory"})
	assert.Empty(t, tags.Label)
	assert.Empty(t, tags.Story)
}

func TestFormatSteps(t *testing.T) {
	steps := []Step{
		{Keyword: When, Type: When, Name: "I open the page"},
		{Keyword: And, Type: When, Name: "I click login"},
		{Keyword: Then, Type: Then, Name: "the form is visible"},
		{Keyword: And, Type: Then, Name: "the button is enabled"},
		{Keyword: When, Type: When, Name: "I submit"},
		{Keyword: Given, Type: Given, Name: "ignored"},
	}
	texts, results := FormatSteps(steps)
	assert.Equal(t, []string{
		"*When* I open the page\n\n*And* I click login",
		"*When* I submit",
	}, texts)
	assert.Equal(t, []string{
		"*Then* the form is visible\n\n*And* the button is enabled",
	}, results)
}

func TestFormatSteps_LeadingAnd(t *testing.T) {
	texts, _ := FormatSteps([]Step{{Keyword: And, Type: When, Name: "x"}})
	assert.Equal(t, []string{"*And* x"}, texts)
}

func TestFormatBackground(t *testing.T) {
	assert.Empty(t, FormatBackground(nil))
	got := FormatBackground([]Step{
		{Keyword: Given, Name: "a user"},
		{Keyword: And, Name: "a cart"},
	})
	assert.Equal(t, "Background:\n\nGiven a user\nAnd a cart\n", got)
}

func TestStepText(t *testing.T) {
	last := StepText("default", Step{Keyword: When, Type: When, Name: "open"})
	assert.Equal(t, "*When* open", last)
	last = StepText(last, Step{Keyword: And, Type: When, Name: "click"})
	assert.Equal(t, "*When* open\n\n*And* click", last)
	assert.Empty(t, StepText(last, Step{Keyword: Then, Type: Then, Name: "see"}))
	assert.Empty(t, StepText(last, Step{Keyword: And, Type: Then, Name: "see"}))
}

func TestFormatLite(t *testing.T) {
	steps := []Step{
		{Keyword: Given, Type: Given, Name: "a user"},
		{Keyword: And, Type: Given, Name: "a cart"},
		{Keyword: When, Type: When, Name: "open"},
		{Keyword: When, Type: When, Name: "click"},
		{Keyword: Then, Type: Then, Name: "done"},
		{Keyword: And, Type: Then, Name: "clean"},
	}
	texts, results := FormatLite(steps)
	assert.Equal(t, []string{
		"_*Дано*_ a user\n\n_*И*_\ta cart",
		"_*Когда*_ open",
		"_*Когда*_ click",
	}, texts)
	assert.Equal(t, []string{
		"",
		"",
		"_*Тогда*_\tdone\n\n_*И*_ clean",
	}, results)
}

func TestPairSteps(t *testing.T) {
	pairs := pairSteps([]string{"a", "b"}, []string{"r"})
	assert.Equal(t, []stepPair{{"a", "r"}, {"b", ""}}, pairs)

	pairs = pairSteps(nil, []string{"r1", "r2"})
	assert.Equal(t, []stepPair{{"", "r1"}, {"", "r2"}}, pairs)
}

func TestSameSteps(t *testing.T) {
	want := []stepPair{{"a", "r"}}
	assert.True(t, sameSteps(want, []tracker.TestStep{{ID: "1", Step: "a", Result: "r"}}))
	assert.False(t, sameSteps(want, []tracker.TestStep{{Step: "a", Result: ""}}))
	assert.False(t, sameSteps(want, nil))
	assert.True(t, sameSteps(nil, nil))
}

func TestCycleName(t *testing.T) {
	at := time.Date(2026, time.October, 8, 9, 5, 0, 0, time.UTC)
	assert.Equal(t, "STAGE 09:05 8 октября 2026", CycleName("STAGE", at))
	assert.Equal(t, "8/10/26", JiraDate(at))
}

func TestClockDuration(t *testing.T) {
	assert.Equal(t, "0:00:00", clockDuration(0))
	assert.Equal(t, "0:01:05", clockDuration(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "2:00:01", clockDuration(2*time.Hour+time.Second))
}
