package config

import (
	"strings"
	"time"
)

// Settings is the complete run configuration. Every field is bound to an
// environment variable (the primary invocation surface) and may also be set
// from an optional YAML file, which the environment overrides.
type Settings struct {
	RunType       string `yaml:"run_type" env:"RUN_TYPE"`
	SessionID     string `yaml:"session_id" env:"SESSION_ID"`
	BackendOrigin string `yaml:"backend_origin" env:"BACKEND_ORIGIN"`

	TestStand     string `yaml:"test_stand" env:"TEST_STAND"`
	StandTemplate string `yaml:"stand_template" env:"STAND_TEMPLATE"`

	JiraHost     string `yaml:"jira_host" env:"JIRA_HOST"`
	JiraUser     string `yaml:"jira_user" env:"JIRA_USER"`
	JiraPassword string `yaml:"-" env:"JIRA_PASSWORD"`
	VersionName  string `yaml:"version" env:"VERSION"`
	Project      string `yaml:"project" env:"PROJECT"`

	Debug  bool   `yaml:"debug" env:"DEBUG"`
	Deploy bool   `yaml:"deploy" env:"DEPLOY"`
	Env    string `yaml:"env" env:"ENV"`

	UseZephyr  bool `yaml:"use_zephyr" env:"USE_ZEPHYR"`
	ZephyrLite bool `yaml:"zephyr_lite" env:"ZEPHYR_LITE"`
	// LiteWorkers bounds the Zephyr-Lite flush fan-out.
	LiteWorkers int `yaml:"zephyr_lite_workers" env:"ZEPHYR_LITE_WORKERS"`
	// LiteTimeout is how long the flush waits for the fan-out to complete.
	LiteTimeout time.Duration `yaml:"zephyr_lite_timeout" env:"ZEPHYR_LITE_TIMEOUT"`
	// TrackerRateLimit caps tracker requests per second, 0 disables the limiter.
	TrackerRateLimit float64 `yaml:"tracker_rate_limit" env:"TRACKER_RATE_LIMIT"`

	Browser        string `yaml:"browser" env:"BROWSER"`
	BrowserVersion string `yaml:"browser_version" env:"BROWSER_VERSION"`
	RemoteExecutor string `yaml:"remote_executor" env:"REMOTE_EXECUTOR"`
	SelenoidUIURL  string `yaml:"selenoid_ui_url" env:"SELENOID_UI_URL"`
	CanaryCookie   string `yaml:"canary_cookie" env:"CANARY_COOKIE"`

	Video     bool   `yaml:"video" env:"VIDEO"`
	VideoName string `yaml:"video_name" env:"VIDEO_NAME"`
	VideoDir  string `yaml:"video_dir" env:"VIDEO_DIR"`

	// RetryDelay is the wall-clock budget of the transient-error retry in milliseconds.
	RetryDelay int `yaml:"retry_delay" env:"RETRY_DELAY"`
	// SmartwaitDelay is the default element wait timeout in seconds.
	SmartwaitDelay float64 `yaml:"smartwait_delay" env:"SMARTWAIT_DELAY"`
	// ForceDelay is slept before every wait, in seconds.
	ForceDelay float64 `yaml:"force_delay" env:"FORCE_DELAY"`

	ScreenshotDir    string `yaml:"screenshot_dir" env:"SCREENSHOT_DIR"`
	LocalScreenshots bool   `yaml:"local_screenshots" env:"LOCAL_SCREENSHOTS"`
	LocatorsDir      string `yaml:"locators_dir" env:"LOCATORS_DIR"`
	ReportsDir       string `yaml:"reports_dir" env:"REPORTS_DIR"`

	VaultUse                  bool   `yaml:"vault_use" env:"VAULT_USE"`
	VaultHost                 string `yaml:"vault_host" env:"VAULT_HOST"`
	VaultSecretStorageToken   string `yaml:"-" env:"VAULT_SECRET_STORAGE_TOKEN"`
	VaultSecretStorage        string `yaml:"vault_secret_storage" env:"VAULT_SECRET_STORAGE"`
	VaultSecretStorageVersion int    `yaml:"vault_secret_storage_version" env:"VAULT_SECRET_STORAGE_VERSION"`
	VaultSecretStoragePath    string `yaml:"vault_secret_storage_path" env:"VAULT_SECRET_STORAGE_PATH"`

	InfluxUse  bool   `yaml:"influx_use" env:"INFLUX_USE"`
	InfluxHost string `yaml:"influx_host" env:"INFLUX_HOST"`
	InfluxPort string `yaml:"influx_port" env:"INFLUX_PORT"`
	InfluxDB   string `yaml:"influx_db" env:"INFLUX_DB"`

	BackendLocalSessionRegister bool `yaml:"backend_local_session_register" env:"BACKEND_LOCAL_SESSION_REGISTER"`

	TGNickname         string `yaml:"tg_nickname_for_notification" env:"TG_NICKNAME_FOR_NOTIFICATION"`
	TGBotToken         string `yaml:"-" env:"TG_BOT_TOKEN"`
	TGChatID           string `yaml:"tg_chat_id" env:"TG_CHAT_ID"`
	TGNotificationMode string `yaml:"tg_notification_mode" env:"TG_NOTIFICATION_MODE"`

	RetryAfterFail bool `yaml:"retry_after_fail" env:"RETRY_AFTER_FAIL"`
	MaxAttempts    int  `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
}

// Run types that register a local session on the reporting backend.
var registrableRunTypes = []string{"local", "npm", "ci"}

// Run types started by the reporting backend itself.
var backendRunTypes = []string{"backend", "quality_gate", "generator"}

// ZephyrUse reports whether tracker synchronization is enabled. QA runs only
// synchronize when they are deploy runs.
func (s Settings) ZephyrUse() bool {
	condition := !(strings.EqualFold(s.Env, "qa") && !s.Deploy)
	return condition && s.UseZephyr
}

// RegistrableRun reports whether the run type registers a backend session.
func (s Settings) RegistrableRun() bool {
	return contains(registrableRunTypes, s.RunType)
}

// BackendRun reports whether the run was started by the reporting backend.
func (s Settings) BackendRun() bool {
	return contains(backendRunTypes, s.RunType)
}

// SmartwaitTimeout converts SmartwaitDelay into a duration.
func (s Settings) SmartwaitTimeout() time.Duration {
	return seconds(s.SmartwaitDelay)
}

// ForceDelayDuration converts ForceDelay into a duration.
func (s Settings) ForceDelayDuration() time.Duration {
	return seconds(s.ForceDelay)
}

// RetryBudget converts RetryDelay into a duration.
func (s Settings) RetryBudget() time.Duration {
	return time.Duration(s.RetryDelay) * time.Millisecond
}

// LocalScreenshotsEnabled reports whether failed scenarios save screenshots
// locally. Only interactive run types keep local screenshots.
func (s Settings) LocalScreenshotsEnabled() bool {
	return s.LocalScreenshots && (s.RunType == "npm" || s.RunType == "local")
}

// StandURL resolves TEST_STAND into an absolute URL. Values that already are
// URLs are used as is; anything else is a stand name substituted into
// STAND_TEMPLATE ("prod" and "production" select the bare template).
func (s Settings) StandURL() string {
	if strings.HasPrefix(s.TestStand, "http://") || strings.HasPrefix(s.TestStand, "https://") {
		return s.TestStand
	}
	prefix := "-" + s.TestStand
	switch strings.ToLower(s.TestStand) {
	case "prod", "production", "zapp":
		prefix = ""
	}
	return strings.ReplaceAll(s.StandTemplate, "{}", prefix)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
