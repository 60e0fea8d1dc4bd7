package zephyr

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapp/internal/testing/mock"
	"zapp/internal/tracker"
)

func newLite(t *testing.T, cfg LiteConfig) (*Lite, *mock.Tracker) {
	t.Helper()
	tr := mock.NewTracker(t)
	cfg.Config = testConfig
	l, err := NewLite(context.Background(), newTrackerClient(t, tr), cfg)
	require.NoError(t, err)
	return l, tr
}

func liteScenarioSteps() []Step {
	return []Step{
		{Keyword: Given, Type: Given, Name: "a user"},
		{Keyword: When, Type: When, Name: "open"},
		{Keyword: And, Type: When, Name: "click"},
		{Keyword: Then, Type: Then, Name: "done"},
	}
}

func runLiteScenario(ctx context.Context, l *Lite, sc Scenario, statuses []string, err error, screenshot string) {
	l.ScenarioStarted(ctx, sc)
	status := "passed"
	for i, st := range append(append([]Step{}, sc.Background...), sc.Steps...) {
		out := StepOutcome{Step: st, Status: statuses[i]}
		if statuses[i] == "failed" {
			out.Err = err
			status = "failed"
		}
		l.StepFinished(ctx, out)
	}
	l.ScenarioFinished(ctx, ScenarioOutcome{
		Scenario:       sc,
		Status:         status,
		Elapsed:        65 * time.Second,
		ScreenshotPath: screenshot,
	})
}

func TestLite_Flush(t *testing.T) {
	ctx := context.Background()
	l, tr := newLite(t, LiteConfig{VideoURL: "https://vnc.example.com/video/run.mp4"})
	l.WithClock(mock.NewMockClock(time.Date(2026, time.October, 18, 9, 5, 0, 0, time.UTC)).Now)

	shot := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(shot, []byte("png"), 0o644))

	passing := Scenario{Name: "Passing", Tags: []string{"@ZephyrLabel/ZAPP/pass"}, Steps: liteScenarioSteps()}
	failing := Scenario{Name: "Failing", Tags: []string{"@ZephyrLabel/ZAPP/fail", "@JiraStory/STORY-9"}, Steps: liteScenarioSteps()}
	unlabeled := Scenario{Name: "Unlabeled", Seed: "abc123", Steps: liteScenarioSteps()}

	runLiteScenario(ctx, l, passing, []string{"passed", "passed", "passed", "passed"}, nil, "")
	longErr := errors.New(string(make([]byte, 150)))
	runLiteScenario(ctx, l, failing, []string{"passed", "passed", "failed", "skipped"}, longErr, shot)
	runLiteScenario(ctx, l, unlabeled, []string{"passed", "passed", "passed", "passed"}, nil, "")

	assert.Equal(t, 2, tr.Calls(mock.EndpointSearch))
	assert.Equal(t, 0, tr.Calls(mock.EndpointCreateCycle))
	assert.Equal(t, [][2]string{{"STORY-9", "ZAPP-2"}}, tr.Links())

	records := l.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Failing", records[1].Scenario)
	assert.Len(t, []rune(records[1].Exception), 103)

	issue, ok := tr.Issue("ZAPP-1")
	require.True(t, ok)
	require.Len(t, issue.Steps, 2)
	assert.Equal(t, "_*Дано*_ a user", issue.Steps[0].Step)
	assert.Equal(t, "_*Когда*_ open\n\n_*И*_\tclick", issue.Steps[1].Step)
	assert.Equal(t, "_*Тогда*_\tdone", issue.Steps[1].Result)

	out := l.Flush(ctx)
	require.Len(t, out, 2)
	assert.Contains(t, out, "Passing")
	assert.Contains(t, out, "Failing")

	assert.Equal(t, 1, tr.Calls(mock.EndpointCreateCycle))
	assert.Equal(t, 1, tr.Calls(mock.EndpointAddTests))
	assert.Equal(t, 2, tr.Calls(mock.EndpointJobProgress))
	assert.Equal(t, 2, tr.Calls(mock.EndpointNewExecution))
	assert.Equal(t, 4, tr.Calls(mock.EndpointNewStepResult))

	failIssue, _ := tr.Issue("ZAPP-2")
	var failExec mock.Execution
	for _, e := range tr.Executions() {
		if e.IssueID == failIssue.ID && e.Status == "2" {
			failExec = e
		}
	}
	require.NotZero(t, failExec.ID)
	assert.Equal(t,
		"Запись прохождения: https://vnc.example.com/video/run.mp4\nВремя ошибки на видео: ~0:01:05",
		failExec.Comment)

	var statuses []string
	for _, sr := range tr.StepResults() {
		if sr.ExecutionID == failExec.IDString() {
			statuses = append(statuses, sr.Status)
			if sr.Status == "2" {
				require.NotNil(t, sr.Comment)
				assert.Equal(t, records[1].Exception, *sr.Comment)
			}
		}
	}
	assert.ElementsMatch(t, []string{"1", "2"}, statuses)

	uploads := tr.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, tracker.EntityExecution, uploads[0].EntityType)
	assert.Equal(t, failExec.IDString(), uploads[0].EntityID)
	assert.Equal(t, []string{"screenshot.png", "traceback.txt"}, uploads[0].Files)
}

func TestLite_FlushWithoutRecords(t *testing.T) {
	l, tr := newLite(t, LiteConfig{})
	calls := tr.TotalCalls()

	assert.Empty(t, l.Flush(context.Background()))
	assert.Equal(t, calls, tr.TotalCalls())
}

func TestLite_FailedRequestsAreSkipped(t *testing.T) {
	ctx := context.Background()
	l, tr := newLite(t, LiteConfig{Workers: 2})

	sc := Scenario{Name: "Passing", Tags: []string{"@ZephyrLabel/ZAPP/pass"}, Steps: liteScenarioSteps()}
	runLiteScenario(ctx, l, sc, []string{"passed", "passed", "passed", "passed"}, nil, "")

	tr.FailOn(mock.EndpointNewStepResult, http.StatusInternalServerError)
	out := l.Flush(ctx)

	assert.Len(t, out, 1)
	assert.Equal(t, 2, tr.Calls(mock.EndpointNewStepResult))
	for _, e := range tr.Executions() {
		if e.Comment == "" && e.Status == "1" {
			return
		}
	}
	t.Fatal("execution status was not sent")
}

func TestLite_IssueLookupFailureSkipsScenario(t *testing.T) {
	ctx := context.Background()
	l, tr := newLite(t, LiteConfig{})
	tr.FailOn(mock.EndpointSearch, http.StatusInternalServerError)

	sc := Scenario{Name: "Passing", Tags: []string{"@ZephyrLabel/ZAPP/pass"}, Steps: liteScenarioSteps()}
	runLiteScenario(ctx, l, sc, []string{"passed", "passed", "passed", "passed"}, nil, "")
	assert.Empty(t, l.Records())

	tr.FailOn(mock.EndpointSearch, 0)
	runLiteScenario(ctx, l, sc, []string{"passed", "passed", "passed", "passed"}, nil, "")
	assert.Len(t, l.Records(), 1)
}

func TestNewLite_ProjectFailure(t *testing.T) {
	tr := mock.NewTracker(t)
	tr.FailOn(mock.EndpointProject, http.StatusUnauthorized)

	_, err := NewLite(context.Background(), newTrackerClient(t, tr), LiteConfig{Config: testConfig})
	assert.Error(t, err)
}

func TestStepResults_WorstOfAndPadding(t *testing.T) {
	rec := &IssueRecord{ID: "10", Exception: "boom", executionID: "99"}
	ids := []tracker.ID{"1", "2", "3"}
	groups := [][]tracker.Status{
		{tracker.Passed},
		{tracker.Passed, tracker.Failed, tracker.Skipped},
	}

	got := stepResults(rec, ids, groups)
	require.Len(t, got, 3)
	assert.Equal(t, tracker.Passed, got[0].Status)
	assert.Empty(t, got[0].Comment)
	assert.Equal(t, tracker.Failed, got[1].Status)
	assert.Equal(t, "boom", got[1].Comment)
	assert.Equal(t, tracker.Untested, got[2].Status)
	assert.Equal(t, tracker.ID("99"), got[2].ExecutionID)

	assert.Len(t, stepResults(rec, ids[:1], groups), 1)
}

func TestStatusGroups(t *testing.T) {
	var g statusGroups
	g.add(1, tracker.Passed)
	g.add(2, tracker.Passed)
	g.add(2, tracker.Failed)
	assert.Equal(t, [][]tracker.Status{{tracker.Passed}, {tracker.Passed, tracker.Failed}}, g.list())
}
