// Package zephyr mirrors scenario results into Jira/Zephyr.
//
// Sync talks to the tracker while the run executes: each scenario gets its
// test issue reconciled, an execution in the run's test cycle and one step
// result per When block. The first tracker failure disables it for the
// rest of the run.
//
// Lite only collects results while the run executes and pushes them in a
// bounded fan-out when the run ends.
package zephyr

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"zapp/internal/tracker"
	"zapp/pkg/logging"
)

// State is the synchronization state of a Sync.
type State int

const (
	// Active syncs talk to the tracker.
	Active State = iota
	// Disabled syncs never talk to the tracker again.
	Disabled
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "disabled"
}

// ErrMissingLabel interrupts the sync when a scenario has no ZephyrLabel
// tag.
var ErrMissingLabel = errors.New("scenario has no ZephyrLabel tag")

const (
	cycleDescription = "Тестовый цикл был создан автоматически с помощью ZAPP"
	defaultStepText  = "default"
	traceFileName    = "traceback.txt"
	screenshotName   = "screenshot.png"
)

// scenarioState is the per-scenario bookkeeping of a Sync.
type scenarioState struct {
	name        string
	background  string
	tags        Tags
	issue       tracker.Issue
	pending     []string
	executionID tracker.ID
	stepIDs     []tracker.ID
	lastStep    string
	resultID    tracker.ID
	// firstResult is set while the step result opened at scenario start
	// has not been claimed by a step yet.
	firstResult bool
}

// Sync is the synchronous tracker synchronizer.
type Sync struct {
	client *tracker.Client
	cfg    Config
	now    func() time.Time

	mu      sync.Mutex
	state   State
	project project
	cycleID tracker.ID
	current *scenarioState
	results Results
	order   []string
}

// NewSync returns an active Sync. Nothing is sent before BeforeAll.
func NewSync(client *tracker.Client, cfg Config) *Sync {
	return &Sync{
		client:  client,
		cfg:     cfg,
		now:     time.Now,
		state:   Active,
		results: Results{},
	}
}

// WithClock replaces the clock used for cycle names and dates.
func (s *Sync) WithClock(now func() time.Time) *Sync {
	s.now = now
	return s
}

// State returns the current synchronization state.
func (s *Sync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// call runs fn unless the sync is disabled. A failure is logged with its
// code and interrupts the sync.
func (s *Sync) call(ctx context.Context, code string, fn func() error) bool {
	if s.state != Active {
		return false
	}
	if err := fn(); err != nil {
		logging.Error("Zephyr", err, "Zephyr request failed [%s]", code)
		s.interrupt(ctx)
		return false
	}
	return true
}

// Interrupt blocks the current execution, if any, and disables the sync
// for the rest of the run.
func (s *Sync) Interrupt(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupt(ctx)
}

func (s *Sync) interrupt(ctx context.Context) {
	if s.state == Disabled {
		return
	}
	if sc := s.current; sc != nil && sc.executionID != "" {
		if err := s.client.SetExecutionStatus(ctx, sc.executionID, tracker.Blocked, sc.background); err != nil {
			logging.Error("Zephyr", err, "Failed to block execution %s", sc.executionID)
		}
	}
	s.state = Disabled
	logging.Warn("Zephyr", "Zephyr synchronization interrupted")
}

// BeforeAll looks up the project and creates the run's test cycle.
func (s *Sync) BeforeAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.call(ctx, "JP-S2", func() error {
		p, err := lookupProject(ctx, s.client, s.cfg)
		s.project = p
		return err
	})

	now := s.now()
	s.call(ctx, "TC-C1", func() error {
		id, err := s.client.CreateCycle(ctx, tracker.Cycle{
			Description: cycleDescription,
			Environment: s.cfg.Env,
			Name:        CycleName(s.cfg.Env, now),
			StartDate:   JiraDate(now),
			ProjectID:   s.project.ID,
			VersionID:   s.project.VersionID,
			Build:       s.project.VersionName,
		})
		s.cycleID = id
		return err
	})
}

// BeforeScenario resolves and reconciles the scenario's test issue, adds
// it to the cycle and opens its execution and first step result.
func (s *Sync) BeforeScenario(ctx context.Context, sc Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()

	texts, results := FormatSteps(sc.Steps)
	st := &scenarioState{
		name:       sc.Name,
		background: FormatBackground(sc.Background),
		tags:       ParseTags(sc.Tags),
		pending:    slices.Clone(texts),
		lastStep:   defaultStepText,
	}
	s.current = st

	if s.state != Active {
		return
	}
	if st.tags.Label == "" {
		logging.Error("Zephyr", ErrMissingLabel, "Scenario %q needs a ZephyrLabel tag for Zephyr synchronization", sc.Name)
		s.interrupt(ctx)
		return
	}

	ok := s.call(ctx, "JI-S5", func() error {
		issue, err := resolveIssue(ctx, s.client, s.project.ID, st.tags.Label, sc.Name, st.background)
		st.issue = issue
		return err
	})
	ok = ok && s.call(ctx, "JI-S2", func() error {
		return reconcileIssue(ctx, s.client, st.issue, sc.Name, st.background, pairSteps(texts, results))
	})
	ok = ok && s.call(ctx, "TC-F1", func() error {
		_, err := s.client.AddTestsToCycle(ctx, tracker.AddTests{
			CycleID:   s.cycleID,
			Issues:    []string{st.issue.Key},
			ProjectID: s.project.ID,
			VersionID: s.project.VersionID,
		})
		return err
	})
	ok = ok && s.call(ctx, "EX-I2", func() error {
		execs, err := s.client.Executions(ctx, s.cycleID, s.project.ID, s.project.VersionID)
		if err != nil {
			return err
		}
		if len(execs) == 0 {
			return fmt.Errorf("no executions in cycle %s, check that %s belongs to project %s",
				s.cycleID, st.issue.Key, s.cfg.ProjectKey)
		}
		ids := make([]tracker.ID, 0, len(execs))
		for _, e := range execs {
			ids = append(ids, e.ID)
		}
		st.executionID = tracker.MaxID(ids)
		logging.Debug("Zephyr", "Execution ids: %v", ids)
		return nil
	})
	ok = ok && s.call(ctx, "EX-U3", func() error {
		return s.client.SetExecutionStatus(ctx, st.executionID, tracker.InProgress, st.background)
	})
	ok = ok && s.call(ctx, "TS-I2", func() error {
		steps, err := s.client.TestSteps(ctx, st.issue.ID)
		st.stepIDs = stepIDs(steps)
		return err
	})
	if !ok {
		return
	}

	s.openStepResult(ctx)
	st.firstResult = true

	if st.tags.Story != "" {
		s.call(ctx, "JI-L1", func() error {
			if err := s.client.Link(ctx, st.tags.Story, st.issue.Key); err != nil {
				return fmt.Errorf("failed to link %s to %s: %w", st.issue.Key, st.tags.Story, err)
			}
			logging.Info("Zephyr", "Test %s linked to %s", s.client.BrowseURL(st.issue.Key), s.client.BrowseURL(st.tags.Story))
			return nil
		})
	}
}

// openStepResult consumes the next step id and opens an in-progress step
// result for it.
func (s *Sync) openStepResult(ctx context.Context) {
	st := s.current
	if st == nil || len(st.stepIDs) == 0 {
		return
	}
	stepID := st.stepIDs[0]
	st.stepIDs = st.stepIDs[1:]

	s.call(ctx, "SR-C1", func() error {
		id, err := s.client.CreateStepResult(ctx, tracker.StepResult{
			StepID:      stepID,
			IssueID:     st.issue.ID,
			ExecutionID: st.executionID,
			Status:      tracker.InProgress,
		})
		st.resultID = id
		return err
	})
}

// BeforeStep opens a new step result when the step completes the next
// pending tracker step.
func (s *Sync) BeforeStep(ctx context.Context, step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || step.Background || s.state != Active {
		return
	}

	st.lastStep = StepText(st.lastStep, step)
	i := slices.Index(st.pending, st.lastStep)
	if i < 0 {
		return
	}
	st.pending = slices.Delete(st.pending, i, i+1)

	if st.firstResult {
		st.firstResult = false
		return
	}
	s.openStepResult(ctx)
}

// AfterStep pushes the step status to the open step result. A failed step
// attaches the screenshot and the error trace.
func (s *Sync) AfterStep(ctx context.Context, out StepOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || out.Step.Background || st.resultID == "" {
		return
	}

	var comment *string
	if out.Err != nil {
		msg := out.Err.Error()
		comment = &msg
	}
	s.call(ctx, "SR-U3", func() error {
		return s.client.UpdateStepResult(ctx, st.resultID, tracker.StatusOf(out.Status), comment)
	})

	if out.Status != "failed" {
		return
	}
	s.call(ctx, "SR-A1", func() error {
		var files []tracker.Attachment
		if len(out.Screenshot) > 0 {
			files = append(files, tracker.Attachment{Name: screenshotName, Data: out.Screenshot})
		}
		files = append(files, tracker.Attachment{Name: traceFileName, Data: []byte(traceText(out.Err, out.Trace))})
		return s.client.UploadAttachments(ctx, tracker.EntityStepResult, st.resultID, files)
	})
}

// AfterScenario pushes the execution status and records its link. A
// failed execution is reassigned to the project lead.
func (s *Sync) AfterScenario(ctx context.Context, out ScenarioOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.current
	if st == nil || st.executionID == "" {
		return
	}

	s.call(ctx, "EX-U3", func() error {
		return s.client.SetExecutionStatus(ctx, st.executionID, tracker.StatusOf(out.Status), st.background)
	})
	s.record(out.Scenario.Name, s.client.ResultsURL(st.executionID))

	if out.Failed() {
		s.call(ctx, "EX-A3", func() error {
			return s.client.AssignExecution(ctx, st.executionID, s.project.Lead)
		})
	}
}

func (s *Sync) record(name, url string) {
	if _, ok := s.results[name]; !ok {
		s.order = append(s.order, name)
	}
	s.results[name] = url
}

// AfterAll closes the test cycle and returns the scenario links.
func (s *Sync) AfterAll(ctx context.Context) Results {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cycleID != "" {
		s.call(ctx, "TC-U3", func() error {
			return s.client.CloseCycle(ctx, s.cycleID, JiraDate(s.now()))
		})
	}
	logResults(s.results, s.order)

	out := make(Results, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}

func traceText(err error, trace string) string {
	if trace != "" {
		return trace
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
