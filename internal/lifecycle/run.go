// Package lifecycle drives a test run: it wires the run hooks to the
// tracker synchronizers, the reporting backend, metrics and
// notifications, and adapts them to the godog runner.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"zapp/internal/backend"
	"zapp/internal/config"
	"zapp/internal/driver"
	"zapp/internal/metrics"
	"zapp/internal/notify"
	"zapp/internal/steps"
	"zapp/internal/tracker"
	"zapp/internal/wait"
	"zapp/internal/zephyr"
	"zapp/pkg/logging"
	zstrings "zapp/pkg/strings"
)

// slothDelay is the force delay of scenarios tagged @sloth.
const slothDelay = 2 * time.Second

// Step statuses as reported by the runner.
const (
	StatusPassed    = "passed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusUndefined = "undefined"
)

// Deps are the collaborators of a run. Tracker, Backend, Metrics and
// Notifier may be nil.
type Deps struct {
	Settings config.Settings
	Session  *steps.Session
	Registry *steps.Registry
	Tracker  *tracker.Client
	Backend  *backend.Client
	Metrics  *metrics.Emitter
	Notifier *notify.Notifier
	Version  string
	// Capture holds the run log sent to the backend.
	Capture *logging.Capture
	Now     func() time.Time
	// Flushing is called when the batched tracker upload starts and
	// returns the function that ends it.
	Flushing func() func()
	Seeds    SeedGenerator
}

// ScenarioResult is the last attempt of one scenario.
type ScenarioResult struct {
	Name     string
	Location string
	Tagged   bool
	Status   string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

// Report is the outcome of a finished run.
type Report struct {
	Scenarios []ScenarioResult
	Passed    int
	Failed    int
	// Sync maps scenario names to tracker execution links.
	Sync       zephyr.Results
	SyncMode   SyncMode
	Deprecated []string
	VideoURL   string
	SessionURL string
}

// Success reports whether at least one scenario ran and none failed.
func (r Report) Success() bool {
	return r.Failed == 0 && r.Passed > 0
}

type scenarioRun struct {
	source CatalogScenario
	start  time.Time
	shot   []byte
}

// Run holds the state of one test run across the hooks.
type Run struct {
	deps Deps
	now  func() time.Time

	mu         sync.Mutex
	start      time.Time
	runSeed    string
	syncer     Synchronizer
	mode       SyncMode
	tests      int
	failed     int
	exceptions []string
	current    *scenarioRun
	results    map[string]*ScenarioResult
	order      []string
	outputs    func() any
}

// New returns a run. Hooks must be called in runner order.
func New(deps Deps) *Run {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Seeds.Project == "" {
		deps.Seeds.Project = deps.Settings.Project
	}
	if deps.Seeds.Now == nil {
		deps.Seeds.Now = now
	}
	return &Run{
		deps:    deps,
		now:     now,
		syncer:  noSync{},
		mode:    SyncNone,
		results: map[string]*ScenarioResult{},
	}
}

// SyncMode returns the synchronizer picked in BeforeAll.
func (r *Run) SyncMode() SyncMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetOutput registers the source of the run report sent to the backend.
func (r *Run) SetOutput(fn func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = fn
}

func (r *Run) platform() driver.Platform {
	return r.deps.Session.Platform()
}

func (r *Run) videoURL() string {
	s := r.deps.Settings
	if !s.Video || s.RemoteExecutor == "" {
		return ""
	}
	return s.SelenoidUIURL + "video/" + s.VideoName
}

// BeforeAll prepares the run. Nothing here fails the run: unreachable
// services are logged and skipped.
func (r *Run) BeforeAll(ctx context.Context) {
	s := r.deps.Settings
	logging.Info("Lifecycle", "Версия ZAPP: %s", r.deps.Version)

	if b := r.deps.Backend; b != nil && s.BackendLocalSessionRegister && s.RegistrableRun() && !b.Running() {
		if _, err := b.Start(ctx, s.Env, s.Project, map[string]any{}); err != nil {
			logging.Warn("Lifecycle", "Не удалось зарегистрировать сессию в zapp-backend")
			logging.Debug("Lifecycle", "Backend session: %v", err)
		} else if u, err := b.SessionURL(); err == nil {
			logging.Info("Lifecycle", "Зарегистрирована сессия в zapp-backend %s", u)
		}
	}

	r.mu.Lock()
	r.start = r.now()
	r.runSeed = r.deps.Seeds.Run()
	r.mu.Unlock()

	vars := r.deps.Session.Vars
	vars.Set("run_seed", r.runSeed)
	vars.Set("scenario_seed", "")

	syncer, mode := newSynchronizer(ctx, s, r.deps.Tracker, r.videoURL(), r.deps.Flushing)
	syncer.BeforeAll(ctx)
	r.mu.Lock()
	r.syncer, r.mode = syncer, mode
	r.mu.Unlock()

	if s.BackendRun() && !strings.EqualFold(strings.TrimSpace(s.TGNotificationMode), string(notify.Disable)) {
		if _, ok := notify.ParseMode(s.TGNotificationMode); ok {
			logging.Info("Lifecycle", "Отправка уведомлений в telegram включена")
		} else {
			logging.Warn("Lifecycle", "Параметр TG_NOTIFICATION_MODE содержит недопустимое значение")
		}
	}

	vars.Set("context_host", r.deps.Session.Stand)

	logging.Info("Lifecycle", "Платформа: %s, браузер: %s %s", r.platform(), s.Browser, s.BrowserVersion)
	if s.RemoteExecutor != "" && s.SelenoidUIURL != "" {
		logging.Info("Lifecycle", "Просмотр выполнения сценария на удалённой машине: %s#/sessions/", s.SelenoidUIURL)
	}

	if b := r.deps.Backend; b != nil && b.Running() {
		if _, err := b.Update(ctx, map[string]any{"platform": string(r.platform())}); err != nil {
			logging.Warn("Lifecycle", "Не удалось обновить сессию в zapp-backend")
			logging.Debug("Lifecycle", "Backend session: %v", err)
		}
	}
}

// BeforeScenario starts a scenario attempt.
func (r *Run) BeforeScenario(ctx context.Context, cs CatalogScenario) {
	start := r.now()
	logging.Info("Lifecycle", "Выполнение сценария %q начато: %s", cs.Scenario.Name, start.Format(time.DateTime))

	seed := r.deps.Seeds.Scenario()
	r.deps.Session.Vars.Set("scenario_seed", seed)
	r.deps.Session.ResetResponse()
	cs.Scenario.Seed = seed

	r.mu.Lock()
	r.tests++
	r.current = &scenarioRun{source: cs, start: start}
	syncer := r.syncer
	r.mu.Unlock()

	syncer.BeforeScenario(ctx, cs.Scenario)

	if timing := r.timing(); timing != nil {
		if hasTag(cs.Scenario.Tags, "sloth") {
			timing.SetForceDelay(slothDelay)
		} else {
			timing.RestoreForceDelay()
		}
		logging.Debug("Lifecycle", "FORCE_DELAY: %s", timing.ForceDelay())
	}

	if r.deps.Settings.CanaryCookie != "" && r.platform() == driver.Web {
		if err := r.setCanaryCookie(); err != nil {
			logging.Warn("Lifecycle", "Не удалось добавить cookie для канареечного деплоя: %v", err)
		}
	}
}

func (r *Run) timing() *wait.Timing {
	if w := r.deps.Session.Wait; w != nil {
		return w.Timing
	}
	return nil
}

func (r *Run) setCanaryCookie() error {
	name, value, ok := strings.Cut(r.deps.Settings.CanaryCookie, "=")
	if !ok || name == "" {
		return fmt.Errorf("CANARY_COOKIE %q is not name=value", r.deps.Settings.CanaryCookie)
	}
	d := r.deps.Session.Driver
	stand := r.deps.Session.Stand
	if err := d.Get(stand); err != nil {
		return err
	}
	if err := d.AddCookie(driver.Cookie{Name: name, Value: value}); err != nil {
		return err
	}
	logging.Info("Lifecycle", "Добавлена cookie для канареечного деплоя: name=%s, value=%s на %s", name, value, stand)
	return d.Get(stand)
}

// BeforeStep is called before every step, background steps included.
func (r *Run) BeforeStep(ctx context.Context, step zephyr.Step) {
	r.mu.Lock()
	syncer := r.syncer
	r.mu.Unlock()
	syncer.BeforeStep(ctx, step)
}

// AfterStep records a finished step.
func (r *Run) AfterStep(ctx context.Context, step zephyr.Step, status string, err error) {
	out := zephyr.StepOutcome{Step: step, Status: status, Err: err}
	if status == StatusFailed {
		if err != nil {
			out.Trace = fmt.Sprintf("%+v", err)
		}
		out.Screenshot = r.screenshot()
	}

	r.mu.Lock()
	syncer := r.syncer
	if r.current != nil && status == StatusFailed {
		r.current.shot = out.Screenshot
	}
	r.mu.Unlock()

	syncer.AfterStep(ctx, out)

	if err == nil || status != StatusFailed {
		return
	}
	kind := ExceptionType(err)
	logging.Debug("Lifecycle", "EXCEPTION_TYPE: %s", kind)

	r.mu.Lock()
	r.exceptions = append(r.exceptions, kind)
	elapsed := r.now().Sub(r.start)
	r.mu.Unlock()

	s := r.deps.Settings
	if s.RemoteExecutor != "" && s.Video {
		logging.Warn("Lifecycle", "Примерное время ошибки на видео: %s", elapsedClock(elapsed))
	}
}

func (r *Run) screenshot() []byte {
	d := r.deps.Session.Driver
	if d == nil || r.platform() == driver.API {
		return nil
	}
	png, err := d.Screenshot()
	if err != nil {
		logging.Debug("Lifecycle", "Screenshot failed: %v", err)
		return nil
	}
	return png
}

// AfterScenario finishes a scenario attempt.
func (r *Run) AfterScenario(ctx context.Context, status string, err error) {
	end := r.now()

	r.mu.Lock()
	cur := r.current
	r.current = nil
	syncer, mode, runStart := r.syncer, r.mode, r.start
	r.mu.Unlock()
	if cur == nil {
		return
	}

	name := cur.source.Scenario.Name
	logging.Info("Lifecycle", "Выполнение сценария %q закончено: %s", name, end.Format(time.DateTime))

	failed := status == StatusFailed
	out := zephyr.ScenarioOutcome{Scenario: cur.source.Scenario, Status: status, Err: err}
	if mode == SyncLite && failed {
		out.ScreenshotPath = r.saveScreenshot(name, cur.shot, runStart)
		out.Elapsed = end.Sub(runStart)
	}
	syncer.AfterScenario(ctx, out)

	if failed && mode != SyncLite && r.deps.Settings.LocalScreenshotsEnabled() {
		r.saveScreenshot(name, cur.shot, runStart)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if failed {
		r.failed++
	}
	key := cur.source.Key()
	res, ok := r.results[key]
	if !ok {
		res = &ScenarioResult{
			Name:     name,
			Location: cur.source.Location(),
			Tagged:   len(cur.source.Scenario.Tags) > 0,
		}
		r.results[key] = res
		r.order = append(r.order, key)
	}
	res.Status = status
	res.Err = err
	res.Attempts++
	res.Elapsed = end.Sub(cur.start)
}

// saveScreenshot writes a failure screenshot under the run directory
// and returns its path, or "" when there is nothing to save.
func (r *Run) saveScreenshot(name string, png []byte, runStart time.Time) string {
	if png == nil {
		png = r.screenshot()
	}
	if png == nil {
		return ""
	}
	dir := filepath.Join(r.deps.Settings.ScreenshotDir, zstrings.Slugify(runStart.Format("2006-01-02 15:04:05.000000")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Warn("Lifecycle", "Failed to create screenshot directory %s: %v", dir, err)
		return ""
	}
	path, err := filepath.Abs(filepath.Join(dir, zstrings.Slugify(name)+".png"))
	if err != nil {
		return ""
	}
	if err := os.WriteFile(path, png, 0o644); err != nil {
		logging.Warn("Lifecycle", "Failed to save screenshot %s: %v", path, err)
		return ""
	}
	logging.Info("Lifecycle", "Скриншот сохранён: %s", path)
	return path
}

// AfterAll finishes the run: notifications, tracker results, the backend
// session report and metrics. The driver session is closed last.
func (r *Run) AfterAll(ctx context.Context) Report {
	s := r.deps.Settings
	report := r.report()
	report.VideoURL = r.videoURL()
	if report.VideoURL != "" {
		logging.Info("Lifecycle", "Запись прохождения теста будет доступна по ссылке: %s", report.VideoURL)
	}

	b := r.deps.Backend
	if b != nil && b.Running() {
		report.SessionURL, _ = b.SessionURL()
	}

	if s.BackendRun() && r.deps.Notifier != nil {
		outcome := notify.OutcomeOf(report.Passed, report.Failed)
		if err := r.deps.Notifier.Notify(ctx, outcome, report.SessionURL); err != nil {
			logging.Warn("Lifecycle", "Не удалось отправить уведомление в telegram: %v", err)
		}
	}

	r.mu.Lock()
	syncer, outputs := r.syncer, r.outputs
	r.mu.Unlock()
	report.Sync = syncer.AfterAll(ctx)
	report.SyncMode = r.SyncMode()

	if b != nil && b.Running() {
		stop := backend.StopReport{
			ZephyrSyncResults: report.Sync,
			ExportVariables:   r.deps.Session.Vars.Export(),
			VideoURL:          report.VideoURL,
		}
		if !s.BackendRun() {
			passed := report.Success()
			stop.TestsPassed = &passed
			if outputs != nil {
				stop.OutputJSON = outputs()
			}
			raw := ""
			if r.deps.Capture != nil {
				raw = r.deps.Capture.String()
			}
			stop.RawLogs = &raw
		}
		if err := b.Stop(ctx, stop); err != nil {
			logging.Warn("Lifecycle", "Не удалось завершить сессию в zapp-backend")
			logging.Debug("Lifecycle", "Backend session: %v", err)
		}
	}

	if r.deps.Registry != nil {
		report.Deprecated = r.deps.Registry.DeprecatedUsed()
	}
	for _, p := range report.Deprecated {
		logging.Warn("Lifecycle", "Использован устаревший шаг: %s", p)
	}

	if r.deps.Metrics != nil {
		r.mu.Lock()
		run := metrics.Run{
			Start:           r.start,
			End:             r.now(),
			Tests:           r.tests,
			Failed:          r.failed,
			Exceptions:      append([]string(nil), r.exceptions...),
			DeprecatedSteps: report.Deprecated,
			Browser:         s.Browser,
			BrowserVersion:  s.BrowserVersion,
			Seed:            r.runSeed,
		}
		r.mu.Unlock()
		r.deps.Metrics.Send(run)
	}

	if d := r.deps.Session.Driver; d != nil {
		if err := d.Quit(); err != nil {
			logging.Debug("Lifecycle", "Driver quit: %v", err)
		}
	}
	return report
}

// report summarizes the last attempt of every scenario.
func (r *Run) report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rep Report
	for _, key := range r.order {
		res := *r.results[key]
		rep.Scenarios = append(rep.Scenarios, res)
		switch res.Status {
		case StatusPassed:
			rep.Passed++
		case StatusFailed:
			rep.Failed++
		}
	}
	return rep
}

// ExceptionType names the innermost error type, the way step exceptions
// are counted in metrics.
func ExceptionType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

func hasTag(tags []string, name string) bool {
	for _, t := range tags {
		if strings.TrimPrefix(t, "@") == name {
			return true
		}
	}
	return false
}
