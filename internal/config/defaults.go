package config

import (
	"fmt"
	"time"
)

const (
	DefaultSmartwaitDelay = 7.0
	DefaultRetryDelay     = 100000
	MaxForceDelay         = 2.0
	DefaultLiteWorkers    = 100
	DefaultLiteTimeout    = 30 * time.Second
)

// Default returns the settings used when neither the config file nor the
// environment provides a value.
func Default() Settings {
	return Settings{
		RunType:       "cli",
		StandTemplate: "http://localhost:8080",

		JiraHost: "https://jira.example.com/",
		Env:      "QA",

		ZephyrLite:  true,
		LiteWorkers: DefaultLiteWorkers,
		LiteTimeout: DefaultLiteTimeout,

		Browser:       "chrome",
		SelenoidUIURL: "https://zapp-vnc.example.com/",

		VideoName: fmt.Sprintf("zapp_%s.mp4", time.Now().Format("2006-01-02_15-04")),
		VideoDir:  "video",

		RetryDelay:     DefaultRetryDelay,
		SmartwaitDelay: DefaultSmartwaitDelay,

		ScreenshotDir: "_screenshots",
		LocatorsDir:   "features",
		ReportsDir:    "reports",

		VaultHost:                 "vault.example.com",
		VaultSecretStorage:        "kv",
		VaultSecretStorageVersion: 2,
		VaultSecretStoragePath:    "zapp/test_secrets",

		InfluxHost: "http://influx.example.com",
		InfluxPort: "8086",
		InfluxDB:   "zapp_metrics",

		TGNotificationMode: "disable",
		MaxAttempts:        2,
	}
}
