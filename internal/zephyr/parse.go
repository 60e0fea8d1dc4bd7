package zephyr

import (
	"fmt"
	"strings"
	"time"

	"zapp/internal/tracker"
)

// Keyword is the canonical (English) Gherkin keyword of a step.
type Keyword string

const (
	Given Keyword = "Given"
	When  Keyword = "When"
	Then  Keyword = "Then"
	And   Keyword = "And"
	But   Keyword = "But"
)

// Step is one Gherkin step as the synchronizers see it.
type Step struct {
	Keyword Keyword
	// Type is the effective keyword: And/But steps inherit it from the
	// previous primary keyword.
	Type       Keyword
	Name       string
	Background bool
}

// Scenario is a scenario about to run.
type Scenario struct {
	Name       string
	Tags       []string
	Background []Step
	Steps      []Step
	// Seed is the scenario seed, used to suggest a missing label.
	Seed string
}

// StepOutcome is a finished step.
type StepOutcome struct {
	Step Step
	// Status is the runner status name (passed, failed, skipped, undefined).
	Status     string
	Err        error
	Trace      string
	Screenshot []byte
}

// ScenarioOutcome is a finished scenario.
type ScenarioOutcome struct {
	Scenario       Scenario
	Status         string
	Err            error
	Elapsed        time.Duration
	ScreenshotPath string
}

// Failed reports whether the scenario failed.
func (o ScenarioOutcome) Failed() bool { return o.Status == "failed" }

// Results maps scenario names to their execution links.
type Results map[string]string

// Tags holds the tracker tags of a scenario.
type Tags struct {
	// Label is the whole ZephyrLabel tag, e.g. "ZephyrLabel/ZAPP/login".
	Label string
	// Story is the key of a JiraStory/KEY tag.
	Story string
}

// ParseTags extracts the label and the story key. A leading "@" is
// ignored.
func ParseTags(tags []string) Tags {
	var t Tags
	for _, tag := range tags {
		tag = strings.TrimPrefix(tag, "@")
		if strings.Contains(tag, "ZephyrLabel") {
			t.Label = tag
		}
		if strings.Contains(tag, "JiraStory") {
			if parts := strings.Split(tag, "/"); len(parts) > 1 {
				t.Story = parts[1]
			}
		}
	}
	return t
}

// FormatSteps renders scenario steps as tracker step and result texts:
// When opens a step, Then opens a result and And/But extends the last
// one of its type.
func FormatSteps(steps []Step) (texts, results []string) {
	for _, s := range steps {
		line := fmt.Sprintf("*%s* %s", s.Keyword, s.Name)
		switch s.Keyword {
		case When:
			texts = append(texts, line)
		case Then:
			results = append(results, line)
		case And, But:
			switch s.Type {
			case When:
				texts = extendLast(texts, "\n\n"+line)
			case Then:
				results = extendLast(results, "\n\n"+line)
			}
		}
	}
	return texts, results
}

func extendLast(list []string, suffix string) []string {
	if len(list) == 0 {
		return append(list, strings.TrimPrefix(suffix, "\n\n"))
	}
	list[len(list)-1] += suffix
	return list
}

// FormatBackground renders background steps for the issue description.
func FormatBackground(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Background:\n\n")
	for _, s := range steps {
		fmt.Fprintf(&b, "%s %s\n", s.Keyword, s.Name)
	}
	return b.String()
}

// StepText is the tracker text a running step contributes to, given the
// text of the previous step. Steps outside When blocks give "".
func StepText(last string, s Step) string {
	switch {
	case s.Keyword == When:
		return fmt.Sprintf("*%s* %s", s.Keyword, s.Name)
	case (s.Keyword == And || s.Keyword == But) && s.Type == When:
		return fmt.Sprintf("%s\n\n*%s* %s", last, s.Keyword, s.Name)
	default:
		return ""
	}
}

// Russian step markers used by the lite formatting.
const (
	liteGiven = "_*Дано*_"
	liteWhen  = "_*Когда*_"
	liteThen  = "_*Тогда*_"
	liteAnd   = "_*И*_"
)

// FormatLite renders background and scenario steps with Russian
// keywords. Given steps open a step with an empty result; consecutive
// When steps get an empty result for the earlier one.
func FormatLite(steps []Step) (texts, results []string) {
	var last Keyword
	for _, s := range steps {
		switch s.Keyword {
		case Given:
			texts = append(texts, liteGiven+" "+s.Name)
			results = append(results, "")
		case When:
			texts = append(texts, liteWhen+" "+s.Name)
			if last == When {
				results = append(results, "")
			}
		case Then:
			results = append(results, liteThen+"\t"+s.Name)
		case And, But:
			switch s.Type {
			case When, Given:
				texts = extendLast(texts, "\n\n"+liteAnd+"\t"+s.Name)
			case Then:
				results = extendLast(results, "\n\n"+liteAnd+" "+s.Name)
			}
		}
		last = s.Keyword
	}
	return texts, results
}

// stepPair is one tracker test step.
type stepPair struct {
	Step   string
	Result string
}

// pairSteps zips step and result texts, padding the shorter side with
// empty strings.
func pairSteps(texts, results []string) []stepPair {
	n := max(len(texts), len(results))
	pairs := make([]stepPair, n)
	for i := range pairs {
		if i < len(texts) {
			pairs[i].Step = texts[i]
		}
		if i < len(results) {
			pairs[i].Result = results[i]
		}
	}
	return pairs
}

func sameSteps(want []stepPair, have []tracker.TestStep) bool {
	if len(want) != len(have) {
		return false
	}
	for i := range want {
		if want[i].Step != have[i].Step || want[i].Result != have[i].Result {
			return false
		}
	}
	return true
}

var russianMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// CycleName is "{ENV} HH:MM D month YYYY" with the Russian month name.
func CycleName(env string, t time.Time) string {
	return fmt.Sprintf("%s %02d:%02d %d %s %d",
		env, t.Hour(), t.Minute(), t.Day(), russianMonths[t.Month()-1], t.Year())
}

// JiraDate formats t the way Zephyr expects cycle dates (d/MM/yy).
func JiraDate(t time.Time) string {
	return t.Format("2/01/06")
}
