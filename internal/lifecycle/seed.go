package lifecycle

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// SeedGenerator produces run and scenario seeds: short unique strings that
// feature files use to build unique test data.
type SeedGenerator struct {
	Project string
	Now     func() time.Time
	// Letters returns n random lowercase letters.
	Letters func(n int) string
}

// Run returns a new run seed.
func (g SeedGenerator) Run() string { return g.generate("run") }

// Scenario returns a new scenario seed.
func (g SeedGenerator) Scenario() string { return g.generate("scenario") }

// generate builds kind's first letter followed by the first 18 characters
// of the fractional unix time, the decimal point replaced with the project
// key and a random slug.
func (g SeedGenerator) generate(kind string) string {
	now, letters := g.Now, g.Letters
	if now == nil {
		now = time.Now
	}
	if letters == nil {
		letters = randomLetters
	}

	slug := letters(4)
	project := strings.ToLower(g.Project) + strings.ToUpper(slug[:1]) + slug[1:]
	if len(project) > 5 {
		project = project[:5]
	}

	t := now()
	unix := float64(t.UnixNano()) / float64(time.Second)
	moment := strconv.FormatFloat(unix, 'f', -1, 64) + reverse(slug)
	if len(moment) > 18 {
		moment = moment[:18]
	}
	return kind[:1] + strings.Replace(moment, ".", project, 1)
}

func randomLetters(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return string(b)
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
