package zephyr

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"zapp/internal/tracker"
	"zapp/pkg/logging"
	zstrings "zapp/pkg/strings"
)

const (
	// DefaultLiteWorkers bounds the flush fan-out.
	DefaultLiteWorkers = 100
	// DefaultLiteTimeout bounds the whole flush fan-out.
	DefaultLiteTimeout = 30 * time.Second
	// DefaultJobPoll is the pause between add-tests job progress polls.
	DefaultJobPoll = 500 * time.Millisecond

	exceptionLimit = 100
)

// LiteConfig configures a Lite synchronizer.
type LiteConfig struct {
	Config
	Workers int
	Timeout time.Duration
	// VideoURL links the run recording. Empty leaves execution comments
	// blank.
	VideoURL string
	JobPoll  time.Duration
}

// IssueRecord is one finished scenario waiting for the flush.
type IssueRecord struct {
	ID             tracker.ID
	Key            string
	Scenario       string
	Status         string
	ScreenshotPath string
	// Exception is the error text cut to 100 characters.
	Exception string
	Trace     string
	Elapsed   time.Duration

	executionID tracker.ID
}

func (r *IssueRecord) failed() bool { return r.Status == "failed" }

// statusGroups collects step statuses per Given/When block, in order.
type statusGroups struct {
	keys   []int
	groups map[int][]tracker.Status
}

func (g *statusGroups) add(key int, s tracker.Status) {
	if g.groups == nil {
		g.groups = map[int][]tracker.Status{}
	}
	if _, ok := g.groups[key]; !ok {
		g.keys = append(g.keys, key)
	}
	g.groups[key] = append(g.groups[key], s)
}

func (g *statusGroups) list() [][]tracker.Status {
	out := make([][]tracker.Status, 0, len(g.keys))
	for _, k := range g.keys {
		out = append(out, g.groups[k])
	}
	return out
}

type liteScenario struct {
	name     string
	tags     Tags
	texts    []string
	results  []string
	skip     bool
	counter  int
	statuses statusGroups
	err      error
	trace    string
}

// Lite is the batched tracker synchronizer. Scenario hooks only talk to
// Jira to resolve issues; executions and results go out in Flush.
type Lite struct {
	client *tracker.Client
	cfg    LiteConfig
	now    func() time.Time

	mu       sync.Mutex
	project  project
	current  *liteScenario
	records  []*IssueRecord
	stepIDs  map[string][]tracker.ID
	statuses map[string][][]tracker.Status
}

// NewLite looks up the project and returns a Lite synchronizer.
func NewLite(ctx context.Context, client *tracker.Client, cfg LiteConfig) (*Lite, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultLiteWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLiteTimeout
	}
	if cfg.JobPoll < 0 {
		cfg.JobPoll = 0
	}

	p, err := lookupProject(ctx, client, cfg.Config)
	if err != nil {
		return nil, err
	}
	return &Lite{
		client:   client,
		cfg:      cfg,
		now:      time.Now,
		project:  p,
		stepIDs:  map[string][]tracker.ID{},
		statuses: map[string][][]tracker.Status{},
	}, nil
}

// WithClock replaces the clock used for cycle names and dates.
func (l *Lite) WithClock(now func() time.Time) *Lite {
	l.now = now
	return l
}

// Records returns the scenarios collected so far.
func (l *Lite) Records() []IssueRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]IssueRecord, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, *r)
	}
	return out
}

// ScenarioStarted prepares the step texts of a scenario. A scenario
// without a ZephyrLabel tag is skipped.
func (l *Lite) ScenarioStarted(_ context.Context, sc Scenario) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := &liteScenario{name: sc.Name, tags: ParseTags(sc.Tags)}
	l.current = st
	if st.tags.Label == "" {
		logging.Error("Zephyr", ErrMissingLabel, "Zephyr synchronization is impossible: scenario %q must be tagged @ZephyrLabel/%s/%s",
			sc.Name, l.cfg.ProjectKey, sc.Seed)
		st.skip = true
		return
	}

	all := make([]Step, 0, len(sc.Background)+len(sc.Steps))
	all = append(all, sc.Background...)
	all = append(all, sc.Steps...)
	st.texts, st.results = FormatLite(all)
}

// StepFinished records the status of a step in the current Given/When
// block.
func (l *Lite) StepFinished(_ context.Context, out StepOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.current
	if st == nil {
		return
	}
	if out.Step.Keyword == Given || out.Step.Keyword == When {
		st.counter++
	}
	st.statuses.add(st.counter, tracker.StatusOf(out.Status))

	if out.Status == "failed" {
		st.err = out.Err
		st.trace = out.Trace
	}
}

// ScenarioFinished resolves and reconciles the scenario's test issue and
// queues its result for the flush.
func (l *Lite) ScenarioFinished(ctx context.Context, out ScenarioOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.current
	if st == nil || st.skip {
		return
	}

	issue, err := resolveIssue(ctx, l.client, l.project.ID, st.tags.Label, st.name, "")
	if err != nil {
		logging.Error("Zephyr", err, "Skipping Zephyr results of %q", st.name)
		return
	}

	rec := &IssueRecord{
		ID:             issue.ID,
		Key:            issue.Key,
		Scenario:       st.name,
		Status:         out.Status,
		ScreenshotPath: out.ScreenshotPath,
		Trace:          st.trace,
		Elapsed:        out.Elapsed,
	}
	cause := out.Err
	if cause == nil {
		cause = st.err
	}
	if cause != nil {
		rec.Exception = zstrings.Truncate(cause.Error(), exceptionLimit)
		if rec.Trace == "" {
			rec.Trace = cause.Error()
		}
	}
	l.records = append(l.records, rec)
	l.statuses[st.name] = st.statuses.list()

	if err := reconcileIssue(ctx, l.client, issue, st.name, "", pairSteps(st.texts, st.results)); err != nil {
		logging.Error("Zephyr", err, "Failed to reconcile %s", issue.Key)
	}
	if st.tags.Story != "" {
		if err := l.client.Link(ctx, st.tags.Story, issue.Key); err != nil {
			logging.Error("Zephyr", err, "Failed to link %s to %s", issue.Key, st.tags.Story)
		}
	}

	steps, err := l.client.TestSteps(ctx, issue.ID)
	if err != nil {
		logging.Error("Zephyr", err, "Failed to fetch test steps of %s", issue.Key)
		return
	}
	l.stepIDs[st.name] = stepIDs(steps)
}

// Flush creates the test cycle and sends every collected result. Failed
// requests are logged and skipped. It returns the scenario links.
func (l *Lite) Flush(ctx context.Context) Results {
	l.mu.Lock()
	defer l.mu.Unlock()

	results := Results{}
	if len(l.records) == 0 {
		return results
	}

	now := l.now()
	cycleID, err := l.client.CreateCycle(ctx, tracker.Cycle{
		Description: cycleDescription,
		Environment: l.cfg.Env,
		Name:        CycleName(l.cfg.Env, now),
		StartDate:   JiraDate(now),
		ProjectID:   l.project.ID,
		VersionID:   l.project.VersionID,
		Build:       l.project.VersionName,
	})
	if err != nil {
		logging.Error("Zephyr", err, "Failed to create test cycle [TC-C1]")
		return results
	}

	if err := l.addTests(ctx, cycleID); err != nil {
		logging.Error("Zephyr", err, "Failed to add tests to cycle %s [SL-A1]", cycleID)
		return results
	}
	l.createExecutions(ctx, cycleID)

	var order []string
	var jobs []func(context.Context) error
	for _, rec := range l.records {
		if rec.executionID == "" {
			continue
		}
		jobs = append(jobs, l.jobs(rec)...)
		if _, ok := results[rec.Scenario]; !ok {
			order = append(order, rec.Scenario)
		}
		results[rec.Scenario] = l.client.ResultsURL(rec.executionID)
	}

	l.send(ctx, jobs)
	logResults(results, order)
	return results
}

func (l *Lite) addTests(ctx context.Context, cycleID tracker.ID) error {
	keys := make([]string, 0, len(l.records))
	for _, r := range l.records {
		keys = append(keys, r.Key)
	}

	token, err := l.client.AddTestsToCycle(ctx, tracker.AddTests{
		Method:    "1",
		CycleID:   cycleID,
		Issues:    keys,
		ProjectID: l.project.ID,
		VersionID: l.project.VersionID,
	})
	if err != nil || token == "" {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	for {
		progress, err := l.client.JobProgress(ctx, token)
		if err != nil {
			return err
		}
		if progress >= 1.0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("add tests job %s did not finish: %w", token, ctx.Err())
		case <-time.After(l.cfg.JobPoll):
		}
	}
}

func (l *Lite) createExecutions(ctx context.Context, cycleID tracker.ID) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for _, rec := range l.records {
		g.Go(func() error {
			id, err := l.client.CreateExecution(gctx, cycleID, rec.ID, l.project.ID, l.project.VersionID)
			if err != nil {
				logging.Error("Zephyr", err, "Failed to create execution of %s", rec.Key)
				return nil
			}
			rec.executionID = id
			return nil
		})
	}
	_ = g.Wait()
}

// jobs builds the requests that publish one record: the execution
// status, the failure attachments and one step result per step.
func (l *Lite) jobs(rec *IssueRecord) []func(context.Context) error {
	var jobs []func(context.Context) error

	comment := ""
	if l.cfg.VideoURL != "" {
		comment = fmt.Sprintf("Запись прохождения: %s\n", l.cfg.VideoURL)
		if rec.failed() {
			comment += fmt.Sprintf("Время ошибки на видео: ~%s", clockDuration(rec.Elapsed))
		}
	}
	status := tracker.StatusOf(rec.Status)
	jobs = append(jobs, func(ctx context.Context) error {
		return l.client.SetExecutionStatus(ctx, rec.executionID, status, comment)
	})

	if rec.failed() {
		files := l.attachments(rec)
		jobs = append(jobs, func(ctx context.Context) error {
			return l.client.UploadAttachments(ctx, tracker.EntityExecution, rec.executionID, files)
		})
	}

	for _, sr := range stepResults(rec, l.stepIDs[rec.Scenario], l.statuses[rec.Scenario]) {
		jobs = append(jobs, func(ctx context.Context) error {
			_, err := l.client.CreateStepResult(ctx, sr)
			return err
		})
	}
	return jobs
}

func (l *Lite) attachments(rec *IssueRecord) []tracker.Attachment {
	var files []tracker.Attachment
	if rec.ScreenshotPath != "" {
		data, err := os.ReadFile(rec.ScreenshotPath)
		if err != nil {
			logging.Error("Zephyr", err, "Failed to read screenshot %s", rec.ScreenshotPath)
		} else {
			files = append(files, tracker.Attachment{Name: screenshotName, Data: data})
		}
	}
	return append(files, tracker.Attachment{Name: traceFileName, Data: []byte(rec.Trace)})
}

// stepResults zips step ids with status groups. Missing groups are
// untested and each group reduces to its worst status. Steps without an
// id are dropped.
func stepResults(rec *IssueRecord, ids []tracker.ID, groups [][]tracker.Status) []tracker.StepResult {
	out := make([]tracker.StepResult, 0, len(ids))
	for i, id := range ids {
		status := tracker.Untested
		if i < len(groups) {
			status = tracker.Worst(groups[i]...)
		}
		sr := tracker.StepResult{
			StepID:      id,
			IssueID:     rec.ID,
			ExecutionID: rec.executionID,
			Status:      status,
		}
		if status == tracker.Failed {
			sr.Comment = rec.Exception
		}
		out = append(out, sr)
	}
	return out
}

// send runs jobs on a bounded pool within the flush timeout.
func (l *Lite) send(ctx context.Context, jobs []func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	p := pool.New().
		WithMaxGoroutines(l.cfg.Workers).
		WithErrors().
		WithContext(ctx)
	for _, job := range jobs {
		p.Go(job)
	}
	if err := p.Wait(); err != nil {
		logging.Error("Zephyr", err, "Some results were not sent to Zephyr [SL-S1]")
	}
}

// clockDuration renders d as H:MM:SS.
func clockDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
