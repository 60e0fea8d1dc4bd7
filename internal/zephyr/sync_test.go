package zephyr

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapp/internal/testing/mock"
	"zapp/internal/tracker"
)

const testLabel = "ZephyrLabel/ZAPP/login"

var testConfig = Config{ProjectKey: "ZAPP", Env: "STAGE"}

func newTrackerClient(t *testing.T, tr *mock.Tracker) *tracker.Client {
	t.Helper()
	c, err := tracker.New(tracker.Config{Host: tr.URL(), User: "bot", Password: "secret"})
	require.NoError(t, err)
	return c
}

func loginScenario() Scenario {
	return Scenario{
		Name: "Login",
		Tags: []string{"@" + testLabel, "@JiraStory/STORY-1"},
		Steps: []Step{
			{Keyword: When, Type: When, Name: "A"},
			{Keyword: Then, Type: Then, Name: "B"},
			{Keyword: When, Type: When, Name: "C"},
			{Keyword: And, Type: When, Name: "D"},
		},
	}
}

func newSync(t *testing.T) (*Sync, *mock.Tracker) {
	t.Helper()
	tr := mock.NewTracker(t)
	clk := mock.NewMockClock(time.Date(2026, time.October, 18, 9, 5, 0, 0, time.UTC))
	s := NewSync(newTrackerClient(t, tr), testConfig).WithClock(clk.Now)
	return s, tr
}

func executionByID(t *testing.T, tr *mock.Tracker, id int64) mock.Execution {
	t.Helper()
	for _, e := range tr.Executions() {
		if e.ID == id {
			return e
		}
	}
	t.Fatalf("execution %d not found", id)
	return mock.Execution{}
}

func TestSync_FullScenario(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)

	s.BeforeAll(ctx)
	require.Equal(t, Active, s.State())
	cycles := tr.Cycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, "STAGE 09:05 18 октября 2026", cycles[0].Payload["name"])
	assert.Equal(t, "18/10/26", cycles[0].Payload["startDate"])
	assert.Equal(t, "103", cycles[0].Payload["versionId"])

	sc := loginScenario()
	s.BeforeScenario(ctx, sc)
	require.Equal(t, Active, s.State())

	issue, ok := tr.IssueByLabel(testLabel)
	require.True(t, ok)
	assert.Equal(t, "Login", issue.Summary)
	require.Len(t, issue.Steps, 2)
	assert.Equal(t, "*When* A", issue.Steps[0].Step)
	assert.Equal(t, "*Then* B", issue.Steps[0].Result)
	assert.Equal(t, "*When* C\n\n*And* D", issue.Steps[1].Step)
	assert.Equal(t, [][2]string{{"STORY-1", issue.Key}}, tr.Links())
	assert.Equal(t, 1, tr.Calls(mock.EndpointNewStepResult))

	execs := tr.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "3", execs[0].Status)

	for _, st := range sc.Steps[:3] {
		s.BeforeStep(ctx, st)
		s.AfterStep(ctx, StepOutcome{Step: st, Status: "passed"})
	}
	assert.Equal(t, 1, tr.Calls(mock.EndpointNewStepResult))

	last := sc.Steps[3]
	s.BeforeStep(ctx, last)
	assert.Equal(t, 2, tr.Calls(mock.EndpointNewStepResult))
	s.AfterStep(ctx, StepOutcome{
		Step:       last,
		Status:     "failed",
		Err:        errors.New("element not found"),
		Trace:      "trace",
		Screenshot: []byte("png"),
	})

	results := tr.StepResults()
	require.Len(t, results, 2)
	assert.Equal(t, "1", results[0].Status)
	assert.Nil(t, results[0].Comment)
	assert.Equal(t, "2", results[1].Status)
	require.NotNil(t, results[1].Comment)
	assert.Equal(t, "element not found", *results[1].Comment)

	uploads := tr.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, tracker.EntityStepResult, uploads[0].EntityType)
	assert.Equal(t, []string{"screenshot.png", "traceback.txt"}, uploads[0].Files)

	s.AfterScenario(ctx, ScenarioOutcome{Scenario: sc, Status: "failed"})
	exec := executionByID(t, tr, execs[0].ID)
	assert.Equal(t, "2", exec.Status)
	assert.Equal(t, tr.Lead(), exec.Assignee)

	out := s.AfterAll(ctx)
	require.Contains(t, out, "Login")
	assert.True(t, strings.HasSuffix(out["Login"], "secure/enav/#/"+exec.IDString()))
	assert.Equal(t, "18/10/26", tr.Cycles()[0].EndDate)
	assert.Equal(t, Active, s.State())
}

func TestSync_Reconcile(t *testing.T) {
	matching := []mock.TestStep{
		{Step: "*When* A", Result: "*Then* B"},
		{Step: "*When* C\n\n*And* D"},
	}
	stale := []mock.TestStep{{Step: "old 1"}, {Step: "old 2"}, {Step: "old 3"}}

	tests := []struct {
		name        string
		summary     string
		steps       []mock.TestStep
		wantUpdates int
		wantDeletes int
		wantCreates int
	}{
		{"steps and fields match", "Login", matching, 0, 0, 0},
		{"summary differs", "Old login", matching, 1, 0, 0},
		{"steps differ", "Login", stale, 0, 3, 2},
		{"no steps yet", "Login", nil, 0, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s, tr := newSync(t)
			tr.AddIssue(mock.Issue{Key: "ZAPP-7", Label: testLabel, Summary: tt.summary, Steps: tt.steps})

			s.BeforeAll(ctx)
			s.BeforeScenario(ctx, loginScenario())
			require.Equal(t, Active, s.State())

			assert.Equal(t, 0, tr.Calls(mock.EndpointCreateIssue))
			assert.Equal(t, tt.wantUpdates, tr.Calls(mock.EndpointUpdateIssue))
			assert.Equal(t, tt.wantDeletes, tr.Calls(mock.EndpointDeleteStep))
			assert.Equal(t, tt.wantCreates, tr.Calls(mock.EndpointCreateStep))

			issue, _ := tr.Issue("ZAPP-7")
			assert.Equal(t, "Login", issue.Summary)
			assert.Len(t, issue.Steps, 2)
		})
	}
}

func TestSync_FailureDisablesForTheRun(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	s.BeforeAll(ctx)

	tr.FailOn(mock.EndpointSearch, http.StatusInternalServerError)
	sc := loginScenario()
	s.BeforeScenario(ctx, sc)
	assert.Equal(t, Disabled, s.State())

	calls := tr.TotalCalls()
	for _, st := range sc.Steps {
		s.BeforeStep(ctx, st)
		s.AfterStep(ctx, StepOutcome{Step: st, Status: "failed", Err: errors.New("boom")})
	}
	s.AfterScenario(ctx, ScenarioOutcome{Scenario: sc, Status: "failed"})
	s.BeforeScenario(ctx, sc)
	out := s.AfterAll(ctx)

	assert.Equal(t, calls, tr.TotalCalls())
	assert.Equal(t, 1, tr.Calls(mock.EndpointSearch))
	assert.Empty(t, out)
	assert.Equal(t, Disabled, s.State())
}

func TestSync_InterruptBlocksExecution(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	tr.FailOn(mock.EndpointNewStepResult, http.StatusBadRequest)

	s.BeforeAll(ctx)
	s.BeforeScenario(ctx, loginScenario())

	assert.Equal(t, Disabled, s.State())
	execs := tr.Executions()
	require.Len(t, execs, 1)
	assert.Equal(t, "4", execs[0].Status)
}

func TestSync_MissingLabel(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	s.BeforeAll(ctx)
	calls := tr.TotalCalls()

	sc := loginScenario()
	sc.Tags = []string{"@smoke"}
	s.BeforeScenario(ctx, sc)

	assert.Equal(t, Disabled, s.State())
	assert.Equal(t, calls, tr.TotalCalls())
}

func TestSync_AmbiguousLabel(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	tr.AddIssue(mock.Issue{Key: "ZAPP-1", Label: testLabel})
	tr.AddIssue(mock.Issue{Key: "ZAPP-2", Label: testLabel})

	s.BeforeAll(ctx)
	s.BeforeScenario(ctx, loginScenario())

	assert.Equal(t, Disabled, s.State())
	assert.Equal(t, 0, tr.Calls(mock.EndpointCreateIssue))
	assert.Equal(t, 0, tr.Calls(mock.EndpointAddTests))
}

func TestSync_ProjectLookupFailure(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	tr.FailOn(mock.EndpointProject, http.StatusForbidden)

	s.BeforeAll(ctx)

	assert.Equal(t, Disabled, s.State())
	assert.Equal(t, 0, tr.Calls(mock.EndpointCreateCycle))
}

func TestSync_BackgroundStepsAreIgnored(t *testing.T) {
	ctx := context.Background()
	s, tr := newSync(t)
	s.BeforeAll(ctx)

	sc := loginScenario()
	sc.Background = []Step{{Keyword: Given, Type: Given, Name: "a user", Background: true}}
	s.BeforeScenario(ctx, sc)

	issue, ok := tr.IssueByLabel(testLabel)
	require.True(t, ok)
	assert.Equal(t, "Background:\n\nGiven a user\n", issue.Description)

	calls := tr.TotalCalls()
	bg := sc.Background[0]
	s.BeforeStep(ctx, bg)
	s.AfterStep(ctx, StepOutcome{Step: bg, Status: "passed"})
	assert.Equal(t, calls, tr.TotalCalls())
}
