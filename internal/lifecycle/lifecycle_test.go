package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapp/internal/apiclient"
	"zapp/internal/backend"
	"zapp/internal/config"
	"zapp/internal/driver"
	"zapp/internal/locator"
	"zapp/internal/retry"
	"zapp/internal/steps"
	"zapp/internal/testing/mock"
	"zapp/internal/tracker"
	"zapp/internal/variables"
	"zapp/internal/wait"
	"zapp/internal/zephyr"
)

const loginFeature = `# language: ru
Функция: Вход в систему

  Предыстория:
    Дано Я перешел по ссылке "https://stand.example.com/login"
    * Я очистил cookies

  @ZephyrLabel/ZAPP/login
  Сценарий: Успешный вход
    Когда Я ввел в поле "Логин" значение "user"
    И Я нажал на кнопку "Войти"
    Но Я убедился что "Баннер" отображается

  Структура сценария: Ввод <value>
    Когда Я ввел в поле "Логин" значение "<value>"

    Примеры:
      | value |
      | a     |
      | b     |
`

const brokenFeature = `# language: ru
Функция: Выход

  @ZephyrLabel/ZAPP/logout
  Сценарий: Кнопки выхода нет
    Когда Я нажал на кнопку "Выйти"
`

var fixedNow = time.Date(2026, time.October, 18, 9, 5, 0, 0, time.UTC)

func fixedSeeds() SeedGenerator {
	return SeedGenerator{
		Now:     func() time.Time { return fixedNow },
		Letters: func(n int) string { return "abcd"[:n] },
	}
}

func newSession(t *testing.T, d *mock.Driver) *steps.Session {
	t.Helper()
	b := locator.NewBuilder()
	b.Add("test", map[string]string{
		"Логин":  "#login",
		"Войти":  "#submit",
		"Баннер": ".banner",
	})
	w := wait.New(d, b.Build(), wait.NewTiming(30*time.Millisecond, 0), 100*time.Millisecond)
	w.PollInterval = 5 * time.Millisecond
	w.InvisibilityDelay = time.Millisecond
	w.Retry.Wait = time.Millisecond

	api := apiclient.New()
	api.Policy = retry.Attempts(1, 0)
	return &steps.Session{
		Driver: d,
		Wait:   w,
		Vars:   variables.New(nil, nil),
		API:    api,
		Stand:  "https://stand.example.com/",
	}
}

func newDriver() *mock.Driver {
	d := mock.NewDriver()
	d.Put("#login", mock.NewElement(""))
	d.Put("#submit", mock.NewElement("Войти"))
	d.Put(".banner", mock.NewElement("Добро пожаловать"))
	return d
}

func writeFeature(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFeature(t *testing.T) {
	scs, err := parseFeature("features/login.feature", loginFeature)
	require.NoError(t, err)
	require.Len(t, scs, 3)

	login := scs[0]
	assert.Equal(t, "Успешный вход", login.Scenario.Name)
	assert.Equal(t, []string{"@ZephyrLabel/ZAPP/login"}, login.Scenario.Tags)
	assert.Equal(t, int64(9), login.Line)
	assert.Equal(t, "features/login.feature:9", login.Location())
	assert.Equal(t, []zephyr.Step{
		{Keyword: zephyr.Given, Type: zephyr.Given, Name: `Я перешел по ссылке "https://stand.example.com/login"`, Background: true},
		{Keyword: zephyr.And, Type: zephyr.Given, Name: "Я очистил cookies", Background: true},
	}, login.Scenario.Background)
	assert.Equal(t, []zephyr.Step{
		{Keyword: zephyr.When, Type: zephyr.When, Name: `Я ввел в поле "Логин" значение "user"`},
		{Keyword: zephyr.And, Type: zephyr.When, Name: `Я нажал на кнопку "Войти"`},
		{Keyword: zephyr.But, Type: zephyr.When, Name: `Я убедился что "Баннер" отображается`},
	}, login.Scenario.Steps)
	assert.Len(t, login.Steps(), 5)

	for i, want := range []string{"a", "b"} {
		sc := scs[i+1]
		assert.Equal(t, "Ввод "+want, sc.Scenario.Name)
		assert.Equal(t, int64(14), sc.Line)
		assert.Empty(t, sc.Scenario.Tags)
		require.Len(t, sc.Scenario.Steps, 1)
		assert.Equal(t, `Я ввел в поле "Логин" значение "`+want+`"`, sc.Scenario.Steps[0].Name)
	}
	assert.NotEqual(t, scs[1].Key(), scs[2].Key())
}

func TestParseFeature_Invalid(t *testing.T) {
	_, err := parseFeature("bad.feature", "Feature: x\n  Scenario: y\n    Given a\n  Oops\n")
	assert.Error(t, err)
}

func TestSplitLocation(t *testing.T) {
	tests := []struct {
		in   string
		path string
		line int64
	}{
		{in: "features/a.feature", path: "features/a.feature"},
		{in: "features/a.feature:12", path: "features/a.feature", line: 12},
		{in: "C:/features/a.feature", path: "C:/features/a.feature"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			path, line := splitLocation(tt.in)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.line, line)
		})
	}
}

func TestSeedGenerator(t *testing.T) {
	g := SeedGenerator{
		Project: "ZAPP",
		Now:     func() time.Time { return time.Unix(1700000000, 500000000) },
		Letters: func(n int) string { return "abcd"[:n] },
	}
	assert.Equal(t, "r1700000000zappA5dcba", g.Run())
	assert.Equal(t, "s1700000000zappA5dcba", g.Scenario())

	random := SeedGenerator{Project: "ZAPP"}
	assert.NotEqual(t, random.Run(), "")
	assert.Equal(t, byte('s'), random.Scenario()[0])
}

type stepError struct{ msg string }

func (e *stepError) Error() string { return e.msg }

func TestExceptionType(t *testing.T) {
	inner := &stepError{msg: "boom"}
	assert.Equal(t, "lifecycle.stepError", ExceptionType(inner))
	assert.Equal(t, "lifecycle.stepError", ExceptionType(fmt.Errorf("step: %w", inner)))
	assert.Equal(t, "errors.errorString", ExceptionType(errors.New("plain")))
}

func TestElapsedClock(t *testing.T) {
	assert.Equal(t, "0:00:00", elapsedClock(0))
	assert.Equal(t, "0:01:05", elapsedClock(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "2:03:04", elapsedClock(2*time.Hour+3*time.Minute+4*time.Second))
}

func TestPickSynchronizer(t *testing.T) {
	tr := mock.NewTracker(t)
	client, err := tracker.New(tracker.Config{Host: tr.URL(), User: "bot", Password: "secret"})
	require.NoError(t, err)

	base := config.Settings{UseZephyr: true, Env: "STAGE", Project: "ZAPP"}
	tests := []struct {
		name   string
		mutate func(*config.Settings)
		client *tracker.Client
		want   SyncMode
	}{
		{name: "disabled", mutate: func(s *config.Settings) { s.UseZephyr = false }, client: client, want: SyncNone},
		{name: "qa without deploy", mutate: func(s *config.Settings) { s.Env = "QA" }, client: client, want: SyncNone},
		{name: "no tracker", mutate: func(*config.Settings) {}, want: SyncNone},
		{name: "full", mutate: func(*config.Settings) {}, client: client, want: SyncFull},
		{name: "lite", mutate: func(s *config.Settings) { s.ZephyrLite = true }, client: client, want: SyncLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			_, mode := pickSynchronizer(context.Background(), s, tt.client, "", nil)
			assert.Equal(t, tt.want, mode)
		})
	}

	t.Run("lite without project", func(t *testing.T) {
		tr.FailOn(mock.EndpointProject, http.StatusForbidden)
		s := base
		s.ZephyrLite = true
		syncer, mode := pickSynchronizer(context.Background(), s, client, "", nil)
		assert.Equal(t, SyncNone, mode)
		assert.Equal(t, zephyr.Results{}, syncer.AfterAll(context.Background()))
	})
}

func TestRun_Hooks(t *testing.T) {
	ctx := context.Background()
	d := newDriver()
	session := newSession(t, d)
	settings := config.Settings{
		Project:      "ZAPP",
		CanaryCookie: "canary=always",
		RunType:      "local",
	}
	run := New(Deps{Settings: settings, Session: session, Version: "1.2.3", Seeds: fixedSeeds()})

	run.BeforeAll(ctx)
	assert.Equal(t, SyncNone, run.SyncMode())
	assert.Equal(t, "https://stand.example.com/", session.Vars.GetString("context_host"))
	runSeed := session.Vars.GetString("run_seed")
	assert.NotEmpty(t, runSeed)
	assert.Equal(t, byte('r'), runSeed[0])

	cs := CatalogScenario{URI: "a.feature", Line: 3}
	cs.Scenario = zephyr.Scenario{Name: "Медленный", Tags: []string{"@sloth"}}
	run.BeforeScenario(ctx, cs)
	assert.Equal(t, slothDelay, session.Wait.Timing.ForceDelay())
	assert.Equal(t, byte('s'), session.Vars.GetString("scenario_seed")[0])

	cookies, err := d.Cookies()
	require.NoError(t, err)
	assert.Contains(t, cookies, driver.Cookie{Name: "canary", Value: "always"})

	step := zephyr.Step{Keyword: zephyr.When, Type: zephyr.When, Name: "step"}
	run.BeforeStep(ctx, step)
	run.AfterStep(ctx, step, StatusFailed, &stepError{msg: "boom"})
	run.AfterScenario(ctx, StatusFailed, &stepError{msg: "boom"})

	cs.Line = 9
	cs.Scenario = zephyr.Scenario{Name: "Быстрый"}
	run.BeforeScenario(ctx, cs)
	assert.Equal(t, time.Duration(0), session.Wait.Timing.ForceDelay())
	run.AfterScenario(ctx, StatusPassed, nil)

	report := run.AfterAll(ctx)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Success())
	require.Len(t, report.Scenarios, 2)
	assert.Equal(t, "a.feature:3", report.Scenarios[0].Location)
	assert.Equal(t, 1, report.Scenarios[0].Attempts)
	assert.True(t, report.Scenarios[0].Tagged)
	assert.True(t, d.Quitted())
	assert.Equal(t, []string{"lifecycle.stepError"}, run.exceptions)
}

type fakeBackend struct {
	mu       sync.Mutex
	requests map[string]map[string]any
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.requests[r.Method+" "+r.URL.Path] = body
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/api/v1/sessions/run_local" {
		_, _ = w.Write([]byte(`{"zapp_session_id": 7}`))
		return
	}
	_, _ = w.Write([]byte(`{}`))
}

func (f *fakeBackend) body(key string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.requests[key]
	return b, ok
}

func TestSuite_Run(t *testing.T) {
	dir := t.TempDir()
	reports := filepath.Join(dir, "reports")
	require.NoError(t, os.MkdirAll(reports, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "stale.xml"), []byte("<x/>"), 0o644))

	login := writeFeature(t, dir, "login.feature", loginFeature)
	broken := writeFeature(t, dir, "broken.feature", brokenFeature)

	fb := &fakeBackend{requests: map[string]map[string]any{}}
	srv := httptest.NewServer(fb)
	t.Cleanup(srv.Close)
	bc, err := backend.New(backend.Config{BackendURL: srv.URL + "/", FrontendURL: "https://zapp.example.com/"})
	require.NoError(t, err)

	d := newDriver()
	session := newSession(t, d)
	registry, err := steps.NewLibrary(session)
	require.NoError(t, err)

	settings := config.Settings{
		Project:                     "ZAPP",
		Env:                         "STAGE",
		RunType:                     "local",
		BackendLocalSessionRegister: true,
	}
	run := New(Deps{
		Settings: settings,
		Session:  session,
		Registry: registry,
		Backend:  bc,
		Version:  "1.2.3",
		Seeds:    fixedSeeds(),
	})
	suite := NewSuite(run, registry, SuiteConfig{
		Paths:          []string{login, broken},
		Output:         io.Discard,
		NoColors:       true,
		ReportsDir:     reports,
		RetryAfterFail: true,
		MaxAttempts:    2,
	})

	report, err := suite.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Passed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Scenarios, 4)

	byName := map[string]ScenarioResult{}
	for _, sc := range report.Scenarios {
		byName[sc.Name] = sc
	}
	assert.Equal(t, StatusPassed, byName["Успешный вход"].Status)
	assert.Equal(t, 1, byName["Успешный вход"].Attempts)
	assert.Equal(t, StatusFailed, byName["Кнопки выхода нет"].Status)
	assert.Equal(t, 2, byName["Кнопки выхода нет"].Attempts)
	assert.Error(t, byName["Кнопки выхода нет"].Err)

	assert.Equal(t, "https://zapp.example.com/test-runs/7", report.SessionURL)
	assert.True(t, d.Quitted())

	assert.NoFileExists(t, filepath.Join(reports, "stale.xml"))
	assert.FileExists(t, filepath.Join(reports, "cucumber.json"))
	assert.FileExists(t, filepath.Join(reports, "cucumber-retry1.json"))
	assert.FileExists(t, filepath.Join(reports, "junit.xml"))

	_, ok := fb.body("POST /api/v1/sessions/run_local")
	assert.True(t, ok)
	stop, ok := fb.body("PATCH /api/v1/sessions/7/add_results")
	require.True(t, ok)
	assert.Equal(t, false, stop["tests_passed"])
	assert.Contains(t, stop, "zapp_raw_logs")
	output, ok := stop["output_json"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, output, "cucumber.json")
	exported, ok := stop["export_variables"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, exported, "run_seed")
}

func TestSuite_InvalidPath(t *testing.T) {
	d := newDriver()
	session := newSession(t, d)
	registry, err := steps.NewLibrary(session)
	require.NoError(t, err)

	run := New(Deps{Session: session, Registry: registry, Seeds: fixedSeeds()})
	suite := NewSuite(run, registry, SuiteConfig{
		Paths:    []string{filepath.Join(t.TempDir(), "missing.feature")},
		Output:   io.Discard,
		NoColors: true,
	})

	report, err := suite.Run(context.Background())
	assert.ErrorIs(t, err, ErrOptions)
	assert.Empty(t, report.Scenarios)
	assert.True(t, d.Quitted())
}
