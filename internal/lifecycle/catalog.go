package lifecycle

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	gherkin "github.com/cucumber/gherkin/go/v26"
	messages "github.com/cucumber/messages/go/v21"

	"zapp/internal/zephyr"
)

// CatalogScenario is a pickle together with what the runner does not
// carry: the original keywords, background membership and the line to
// re-run it from.
type CatalogScenario struct {
	Scenario zephyr.Scenario
	URI      string
	// Line is the line of the scenario or outline keyword. Every example
	// of an outline shares it.
	Line int64
	// Index is the position of the pickle in its feature file.
	Index int
	texts []string
}

// Location is the "path:line" form accepted by the runner.
func (c CatalogScenario) Location() string {
	return fmt.Sprintf("%s:%d", c.URI, c.Line)
}

// Key identifies the pickle within the run.
func (c CatalogScenario) Key() string {
	return fmt.Sprintf("%s#%d %s", c.URI, c.Index, c.Scenario.Name)
}

// Steps returns background and scenario steps in execution order.
func (c CatalogScenario) Steps() []zephyr.Step {
	out := make([]zephyr.Step, 0, len(c.Scenario.Background)+len(c.Scenario.Steps))
	out = append(out, c.Scenario.Background...)
	return append(out, c.Scenario.Steps...)
}

// Catalog parses feature files on demand and maps runner pickles back to
// their Gherkin source. It is safe for concurrent use.
type Catalog struct {
	mu       sync.Mutex
	features map[string][]CatalogScenario
	read     func(string) ([]byte, error)
}

// NewCatalog returns a catalog reading feature files from disk.
func NewCatalog() *Catalog {
	return &Catalog{features: map[string][]CatalogScenario{}, read: os.ReadFile}
}

// Scenarios returns every scenario of the feature file at uri.
func (c *Catalog) Scenarios(uri string) ([]CatalogScenario, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if scs, ok := c.features[uri]; ok {
		return scs, nil
	}
	data, err := c.read(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to read feature %s: %w", uri, err)
	}
	scs, err := parseFeature(uri, string(data))
	if err != nil {
		return nil, err
	}
	c.features[uri] = scs
	return scs, nil
}

// Lookup finds the scenario a pickle was compiled from. Pickles are
// matched by name and step texts since the runner numbers AST nodes
// across the whole run.
func (c *Catalog) Lookup(p *messages.Pickle) (CatalogScenario, error) {
	uri, _ := splitLocation(p.Uri)
	scs, err := c.Scenarios(uri)
	if err != nil {
		return CatalogScenario{}, err
	}
	texts := make([]string, 0, len(p.Steps))
	for _, st := range p.Steps {
		texts = append(texts, st.Text)
	}
	for _, sc := range scs {
		if sc.Scenario.Name == p.Name && slices.Equal(sc.texts, texts) {
			return sc, nil
		}
	}
	return CatalogScenario{}, fmt.Errorf("scenario %q not found in %s", p.Name, uri)
}

// splitLocation splits "path:line" into its parts; line is 0 when absent.
func splitLocation(loc string) (string, int64) {
	i := strings.LastIndex(loc, ":")
	if i < 0 {
		return loc, 0
	}
	line, err := strconv.ParseInt(loc[i+1:], 10, 64)
	if err != nil {
		return loc, 0
	}
	return loc[:i], line
}

type astStep struct {
	step       *messages.Step
	background bool
}

func parseFeature(uri, content string) ([]CatalogScenario, error) {
	newID := (&messages.Incrementing{}).NewId
	doc, err := gherkin.ParseGherkinDocument(strings.NewReader(content), newID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature %s: %w", uri, err)
	}
	if doc.Feature == nil {
		return nil, nil
	}

	dialect := gherkin.DialectsBuiltin().GetDialect(doc.Feature.Language)
	if dialect == nil {
		dialect = gherkin.DialectsBuiltin().GetDialect(gherkin.DefaultDialect)
	}

	steps := map[string]astStep{}
	lines := map[string]int64{}
	indexBackground := func(bg *messages.Background) {
		for _, st := range bg.Steps {
			steps[st.Id] = astStep{step: st, background: true}
		}
	}
	indexScenario := func(sc *messages.Scenario) {
		lines[sc.Id] = sc.Location.Line
		for _, st := range sc.Steps {
			steps[st.Id] = astStep{step: st}
		}
	}
	for _, child := range doc.Feature.Children {
		switch {
		case child.Background != nil:
			indexBackground(child.Background)
		case child.Scenario != nil:
			indexScenario(child.Scenario)
		case child.Rule != nil:
			for _, rc := range child.Rule.Children {
				if rc.Background != nil {
					indexBackground(rc.Background)
				}
				if rc.Scenario != nil {
					indexScenario(rc.Scenario)
				}
			}
		}
	}

	pickles := gherkin.Pickles(*doc, uri, newID)
	out := make([]CatalogScenario, 0, len(pickles))
	for i, p := range pickles {
		cs := CatalogScenario{URI: uri, Index: i, Line: lines[p.AstNodeIds[0]]}
		cs.Scenario.Name = p.Name
		for _, tag := range p.Tags {
			cs.Scenario.Tags = append(cs.Scenario.Tags, tag.Name)
		}

		var last zephyr.Keyword
		for _, ps := range p.Steps {
			cs.texts = append(cs.texts, ps.Text)
			ast := steps[ps.AstNodeIds[0]]
			step := zephyr.Step{Name: ps.Text, Background: ast.background}
			step.Keyword, step.Type = keywordOf(dialect, ast.step, last)
			last = step.Type
			if ast.background {
				cs.Scenario.Background = append(cs.Scenario.Background, step)
			} else {
				cs.Scenario.Steps = append(cs.Scenario.Steps, step)
			}
		}
		out = append(out, cs)
	}
	return out, nil
}

// keywordOf maps a localized keyword to the canonical keyword and the
// effective type; conjunctions take the type of the previous step.
func keywordOf(d *gherkin.Dialect, st *messages.Step, previous zephyr.Keyword) (keyword, typ zephyr.Keyword) {
	if previous == "" {
		previous = zephyr.Given
	}
	if st == nil {
		return zephyr.And, previous
	}

	switch st.KeywordType {
	case messages.StepKeywordType_CONTEXT:
		return zephyr.Given, zephyr.Given
	case messages.StepKeywordType_ACTION:
		return zephyr.When, zephyr.When
	case messages.StepKeywordType_OUTCOME:
		return zephyr.Then, zephyr.Then
	}

	for _, kw := range d.Keywords["but"] {
		if strings.TrimSpace(kw) != "*" && kw == st.Keyword {
			return zephyr.But, previous
		}
	}
	return zephyr.And, previous
}
