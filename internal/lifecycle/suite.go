package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cucumber/godog"

	"zapp/internal/steps"
	"zapp/internal/zephyr"
	"zapp/pkg/logging"
)

// ErrOptions is returned when the runner rejects its options, e.g. an
// unknown feature path or an invalid tag expression.
var ErrOptions = errors.New("invalid run options")

// reportPatterns are the report files a run owns in the reports directory.
var reportPatterns = []string{"*.xml", "*.json"}

// SuiteConfig configures the runner.
type SuiteConfig struct {
	Name string
	// Paths are feature files or directories, optionally "path:line".
	Paths []string
	// Tags is a godog tag expression, e.g. "@smoke && ~@wip".
	Tags     string
	Format   string
	Output   io.Writer
	NoColors bool
	// ReportsDir receives the cucumber JSON and JUnit reports of every
	// attempt.
	ReportsDir string
	// RetryAfterFail re-runs failed tagged scenarios up to MaxAttempts
	// attempts in total.
	RetryAfterFail bool
	MaxAttempts    int
	StopOnFailure  bool
}

// Suite runs feature files through godog with the run hooks attached.
type Suite struct {
	run      *Run
	registry *steps.Registry
	catalog  *Catalog
	cfg      SuiteConfig
}

// NewSuite returns a suite running registry's steps with run's hooks.
func NewSuite(run *Run, registry *steps.Registry, cfg SuiteConfig) *Suite {
	if cfg.Name == "" {
		cfg.Name = "zapp"
	}
	if cfg.Format == "" {
		cfg.Format = "pretty"
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Suite{run: run, registry: registry, catalog: NewCatalog(), cfg: cfg}
}

// Run executes the whole run: BeforeAll, every attempt, AfterAll.
func (s *Suite) Run(ctx context.Context) (Report, error) {
	if s.cfg.ReportsDir != "" {
		if err := cleanReports(s.cfg.ReportsDir); err != nil {
			logging.Warn("Lifecycle", "Failed to clean reports in %s: %v", s.cfg.ReportsDir, err)
		}
		s.run.SetOutput(func() any { return readReports(s.cfg.ReportsDir) })
	}

	s.run.BeforeAll(ctx)

	var runErr error
	paths := s.cfg.Paths
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		status := s.attempt(ctx, attempt, paths)
		if status == 2 {
			runErr = ErrOptions
			break
		}
		if !s.cfg.RetryAfterFail {
			break
		}
		paths = s.retryable()
		if len(paths) == 0 {
			break
		}
		if attempt < s.cfg.MaxAttempts {
			logging.Info("Lifecycle", "Повторный запуск упавших сценариев (%d): попытка %d из %d", len(paths), attempt+1, s.cfg.MaxAttempts)
		}
	}

	return s.run.AfterAll(ctx), runErr
}

// retryable lists the locations of failed scenarios that carry tags.
func (s *Suite) retryable() []string {
	var out []string
	for _, res := range s.run.report().Scenarios {
		if res.Status != StatusFailed {
			continue
		}
		if res.Tagged && !slices.Contains(out, res.Location) {
			out = append(out, res.Location)
		}
	}
	return out
}

func (s *Suite) attempt(ctx context.Context, attempt int, paths []string) int {
	format := s.cfg.Format
	if s.cfg.ReportsDir != "" {
		if err := os.MkdirAll(s.cfg.ReportsDir, 0o755); err != nil {
			logging.Warn("Lifecycle", "Failed to create reports directory %s: %v", s.cfg.ReportsDir, err)
		} else {
			suffix := ""
			if attempt > 1 {
				suffix = fmt.Sprintf("-retry%d", attempt-1)
			}
			format += fmt.Sprintf(",cucumber:%s,junit:%s",
				filepath.Join(s.cfg.ReportsDir, "cucumber"+suffix+".json"),
				filepath.Join(s.cfg.ReportsDir, "junit"+suffix+".xml"))
		}
	}

	suite := godog.TestSuite{
		Name:                s.cfg.Name,
		ScenarioInitializer: s.initScenario,
		Options: &godog.Options{
			Format:         format,
			Output:         s.cfg.Output,
			NoColors:       s.cfg.NoColors,
			Paths:          paths,
			Tags:           s.cfg.Tags,
			Concurrency:    1,
			// the registry resolves overlapping patterns by order, which
			// strict mode reports as ambiguous
			Strict:         false,
			StopOnFailure:  s.cfg.StopOnFailure,
			DefaultContext: ctx,
		},
	}
	return suite.Run()
}

// initScenario is called by godog once per scenario.
func (s *Suite) initScenario(sc *godog.ScenarioContext) {
	s.registry.Bind(sc)

	byID := map[string]zephyr.Step{}
	sc.Before(func(ctx context.Context, p *godog.Scenario) (context.Context, error) {
		cs, err := s.catalog.Lookup(p)
		if err != nil {
			logging.Warn("Lifecycle", "Scenario source not resolved: %v", err)
			cs = fallbackScenario(p)
		}
		for i, st := range cs.Steps() {
			if i < len(p.Steps) {
				byID[p.Steps[i].Id] = st
			}
		}
		s.run.BeforeScenario(ctx, cs)
		return ctx, nil
	})

	sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
		s.run.BeforeStep(ctx, stepOf(byID, st))
		return ctx, nil
	})

	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		s.run.AfterStep(ctx, stepOf(byID, st), status.String(), err)
		return ctx, nil
	})

	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		status := StatusPassed
		switch {
		case errors.Is(err, godog.ErrSkip):
			status = StatusSkipped
		case err != nil:
			status = StatusFailed
		}
		s.run.AfterScenario(ctx, status, err)
		return ctx, nil
	})
}

func stepOf(byID map[string]zephyr.Step, st *godog.Step) zephyr.Step {
	if step, ok := byID[st.Id]; ok {
		return step
	}
	return zephyr.Step{Keyword: zephyr.Given, Type: zephyr.Given, Name: st.Text}
}

// fallbackScenario describes a pickle whose source could not be read.
// Keywords are unknown, so every step counts as Given.
func fallbackScenario(p *godog.Scenario) CatalogScenario {
	uri, line := splitLocation(p.Uri)
	cs := CatalogScenario{URI: uri, Line: line, Index: -1}
	cs.Scenario.Name = p.Name
	for _, tag := range p.Tags {
		cs.Scenario.Tags = append(cs.Scenario.Tags, tag.Name)
	}
	for _, st := range p.Steps {
		cs.texts = append(cs.texts, st.Text)
		cs.Scenario.Steps = append(cs.Scenario.Steps, zephyr.Step{Keyword: zephyr.Given, Type: zephyr.Given, Name: st.Text})
	}
	return cs
}

func cleanReports(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	fsys := os.DirFS(dir)
	for _, pattern := range reportPatterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return err
		}
		for _, m := range matches {
			if err := os.Remove(filepath.Join(dir, m)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

// readReports collects the cucumber JSON reports keyed by file name.
func readReports(dir string) any {
	out := map[string]any{}
	matches, err := doublestar.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return out
	}
	for _, m := range matches {
		data, err := os.ReadFile(filepath.Join(dir, m))
		if err != nil {
			continue
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			logging.Debug("Lifecycle", "Report %s is not JSON: %v", m, err)
			continue
		}
		out[m] = doc
	}
	return out
}
