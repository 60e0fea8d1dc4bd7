package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"

	"zapp/internal/apiclient"
	"zapp/internal/backend"
	"zapp/internal/config"
	"zapp/internal/driver"
	"zapp/internal/formatting"
	"zapp/internal/locator"
	"zapp/internal/metrics"
	"zapp/internal/notify"
	"zapp/internal/steps"
	"zapp/internal/tracker"
	"zapp/internal/variables"
	"zapp/internal/vault"
	"zapp/internal/wait"
	"zapp/pkg/logging"
)

// loadSettings reads the settings and initializes CLI logging from them.
// Invalid settings are fatal: the detailed report goes to errOut.
func loadSettings(errOut io.Writer) (config.Settings, error) {
	settings, err := config.Load(configPath, nil)
	level := logging.LevelInfo
	if settings.Debug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, os.Stderr)

	if err != nil {
		var errs config.ConfigurationErrorCollection
		if errors.As(err, &errs) {
			fmt.Fprintln(errOut, errs.GetDetailedReport())
		}
		return settings, err
	}
	return settings, nil
}

// newFormatter returns the formatter selected by the persistent flags.
func newFormatter(out io.Writer) (formatting.Formatter, error) {
	format, ok := formatting.ParseFormat(outputFormat)
	if !ok {
		return nil, fmt.Errorf("unknown output format %q", outputFormat)
	}
	return formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: format,
		Quiet:  quiet,
		Color:  !noColor,
		Out:    out,
	}), nil
}

// loadLocators builds the registry from the locators directory and logs
// every overridden name.
func loadLocators(settings config.Settings) (*locator.Registry, []locator.Collision, error) {
	registry, collisions, err := locator.Load(settings.LocatorsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load locators from %s: %w", settings.LocatorsDir, err)
	}
	for _, c := range collisions {
		logging.Warn("Locators", "Locator %q from %s overrides %s", c.Name, c.Current.Source, c.Previous.Source)
	}
	return registry, collisions, nil
}

// openDriver starts the UI session, or the no-op driver for API runs.
func openDriver(settings config.Settings) (driver.Driver, error) {
	platform := driver.ParsePlatform(settings.Browser)
	if platform == driver.API {
		return driver.NewAPI(), nil
	}
	caps := map[string]interface{}{}
	if settings.Video && !platform.Mobile() {
		caps["selenoid:options"] = map[string]interface{}{
			"enableVNC":   true,
			"enableVideo": true,
			"videoName":   settings.VideoName,
		}
	}
	return driver.OpenRemote(driver.RemoteConfig{
		URL:            settings.RemoteExecutor,
		Browser:        settings.Browser,
		BrowserVersion: settings.BrowserVersion,
		Platform:       platform,
		Capabilities:   caps,
	})
}

// newSession assembles the step library state around d.
func newSession(ctx context.Context, settings config.Settings, d driver.Driver, locators *locator.Registry) *steps.Session {
	secrets := vault.LoadSecrets(ctx, vault.Config{
		Enabled: settings.VaultUse,
		Host:    settings.VaultHost,
		Token:   settings.VaultSecretStorageToken,
		Mount:   settings.VaultSecretStorage,
		Version: settings.VaultSecretStorageVersion,
		Path:    settings.VaultSecretStoragePath,
	})
	timing := wait.NewTiming(settings.SmartwaitTimeout(), settings.ForceDelayDuration())
	return &steps.Session{
		Driver: d,
		Wait:   wait.New(d, locators, timing, settings.RetryBudget()),
		Vars:   variables.New(secrets, variables.Environ(os.Environ())),
		API:    apiclient.New(),
		Stand:  settings.StandURL(),
	}
}

// newTracker returns nil when Jira credentials are missing, which
// disables the synchronization.
func newTracker(settings config.Settings) *tracker.Client {
	if settings.JiraHost == "" || settings.JiraUser == "" || settings.JiraPassword == "" {
		if settings.ZephyrUse() {
			logging.Warn("Tracker", "Jira credentials are not set, synchronization disabled")
		}
		return nil
	}
	client, err := tracker.New(tracker.Config{
		Host:      settings.JiraHost,
		User:      settings.JiraUser,
		Password:  settings.JiraPassword,
		RateLimit: settings.TrackerRateLimit,
	})
	if err != nil {
		logging.Warn("Tracker", "Tracker client unavailable: %v", err)
		return nil
	}
	return client
}

func newBackend(settings config.Settings) *backend.Client {
	client, err := backend.New(backend.Config{
		Origin:    settings.BackendOrigin,
		SessionID: settings.SessionID,
	})
	if err != nil {
		logging.Warn("Backend", "Backend reporter unavailable: %v", err)
		return nil
	}
	return client
}

func newNotifier(settings config.Settings, api *apiclient.Client) *notify.Notifier {
	// unknown modes disable notifications
	mode, _ := notify.ParseMode(settings.TGNotificationMode)
	return notify.New(notify.Config{
		Mode:     mode,
		Token:    settings.TGBotToken,
		ChatID:   settings.TGChatID,
		Nickname: settings.TGNickname,
	}, api)
}

func newMetrics(settings config.Settings) *metrics.Emitter {
	return metrics.New(metrics.ConfigFromSettings(settings), GetVersion())
}

// flushSpinner shows a spinner on w while the batched tracker upload runs.
func flushSpinner(w io.Writer) func() func() {
	return func() func() {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		s.Suffix = " Выгрузка результатов в Zephyr"
		s.Start()
		return s.Stop
	}
}
