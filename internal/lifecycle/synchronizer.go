package lifecycle

import (
	"context"
	"fmt"
	"time"

	"zapp/internal/config"
	"zapp/internal/tracker"
	"zapp/internal/zephyr"
	"zapp/pkg/logging"
)

// Synchronizer is what the run hooks drive for tracker reporting. Every
// method is best effort: failures are logged by the implementation and
// never fail a scenario.
type Synchronizer interface {
	BeforeAll(ctx context.Context)
	BeforeScenario(ctx context.Context, sc zephyr.Scenario)
	BeforeStep(ctx context.Context, step zephyr.Step)
	AfterStep(ctx context.Context, out zephyr.StepOutcome)
	AfterScenario(ctx context.Context, out zephyr.ScenarioOutcome)
	AfterAll(ctx context.Context) zephyr.Results
}

// SyncMode names the active synchronizer.
type SyncMode string

const (
	SyncNone SyncMode = "none"
	SyncFull SyncMode = "zephyr"
	SyncLite SyncMode = "zephyr-lite"
)

type noSync struct{}

func (noSync) BeforeAll(context.Context)                             {}
func (noSync) BeforeScenario(context.Context, zephyr.Scenario)       {}
func (noSync) BeforeStep(context.Context, zephyr.Step)               {}
func (noSync) AfterStep(context.Context, zephyr.StepOutcome)         {}
func (noSync) AfterScenario(context.Context, zephyr.ScenarioOutcome) {}
func (noSync) AfterAll(context.Context) zephyr.Results               { return zephyr.Results{} }

// liteSync adapts the batched synchronizer: it ignores step starts and
// sends everything at the end of the run.
type liteSync struct {
	lite *zephyr.Lite
	// flushing is shown while the batch is sent; may be nil.
	flushing func() func()
}

func (l *liteSync) BeforeAll(context.Context) {}

func (l *liteSync) BeforeScenario(ctx context.Context, sc zephyr.Scenario) {
	l.lite.ScenarioStarted(ctx, sc)
}

func (l *liteSync) BeforeStep(context.Context, zephyr.Step) {}

func (l *liteSync) AfterStep(ctx context.Context, out zephyr.StepOutcome) {
	l.lite.StepFinished(ctx, out)
}

func (l *liteSync) AfterScenario(ctx context.Context, out zephyr.ScenarioOutcome) {
	l.lite.ScenarioFinished(ctx, out)
}

func (l *liteSync) AfterAll(ctx context.Context) zephyr.Results {
	if l.flushing != nil {
		defer l.flushing()()
	}
	return l.lite.Flush(ctx)
}

// newSynchronizer picks the synchronizer for the run. A Lite
// synchronizer that cannot reach the tracker disables synchronization.
func newSynchronizer(ctx context.Context, s config.Settings, client *tracker.Client, videoURL string, flushing func() func()) (Synchronizer, SyncMode) {
	kind := "Zephyr"
	if s.ZephyrLite {
		kind = "Zephyr (lite)"
	}

	syncer, mode := pickSynchronizer(ctx, s, client, videoURL, flushing)
	state := "включена"
	if mode == SyncNone {
		state = "отключена"
	}
	logging.Info("Lifecycle", "Синхронизация с Jira/%s: %s", kind, state)
	return syncer, mode
}

func pickSynchronizer(ctx context.Context, s config.Settings, client *tracker.Client, videoURL string, flushing func() func()) (Synchronizer, SyncMode) {
	if !s.ZephyrUse() || client == nil {
		return noSync{}, SyncNone
	}

	cfg := zephyr.Config{
		ProjectKey:  s.Project,
		Env:         s.Env,
		VersionName: s.VersionName,
		Deploy:      s.Deploy,
	}
	if !s.ZephyrLite {
		return zephyr.NewSync(client, cfg), SyncFull
	}

	lite, err := zephyr.NewLite(ctx, client, zephyr.LiteConfig{
		Config:   cfg,
		Workers:  s.LiteWorkers,
		Timeout:  s.LiteTimeout,
		VideoURL: videoURL,
		JobPoll:  zephyr.DefaultJobPoll,
	})
	if err != nil {
		logging.Error("Lifecycle", err, "Failed to initialize tracker synchronization")
		return noSync{}, SyncNone
	}
	return &liteSync{lite: lite, flushing: flushing}, SyncLite
}

// elapsedClock formats a duration the way video players show positions.
func elapsedClock(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	return fmt.Sprintf("%d:%02d:%02d", h, m, d/time.Second)
}
