package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_ZephyrUse(t *testing.T) {
	tests := []struct {
		name      string
		env       string
		deploy    bool
		useZephyr bool
		expected  bool
	}{
		{name: "qa without deploy never syncs", env: "QA", useZephyr: true, expected: false},
		{name: "qa deploy run syncs", env: "QA", deploy: true, useZephyr: true, expected: true},
		{name: "stage syncs", env: "STAGE", useZephyr: true, expected: true},
		{name: "toggle off", env: "PROD", deploy: true, useZephyr: false, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{Env: tt.env, Deploy: tt.deploy, UseZephyr: tt.useZephyr}
			assert.Equal(t, tt.expected, s.ZephyrUse())
		})
	}
}

func TestSettings_RunTypes(t *testing.T) {
	assert.True(t, Settings{RunType: "local"}.RegistrableRun())
	assert.False(t, Settings{RunType: "cli"}.RegistrableRun())
	assert.True(t, Settings{RunType: "quality_gate"}.BackendRun())
	assert.False(t, Settings{RunType: "ci"}.BackendRun())
}

func TestSettings_LocalScreenshotsEnabled(t *testing.T) {
	assert.True(t, Settings{RunType: "npm", LocalScreenshots: true}.LocalScreenshotsEnabled())
	assert.False(t, Settings{RunType: "ci", LocalScreenshots: true}.LocalScreenshotsEnabled())
	assert.False(t, Settings{RunType: "local"}.LocalScreenshotsEnabled())
}

func TestSettings_StandURL(t *testing.T) {
	tests := []struct {
		stand    string
		template string
		expected string
	}{
		{"https://my.stand", "https://app{}.example.com", "https://my.stand"},
		{"dev", "https://app{}.example.com", "https://app-dev.example.com"},
		{"prod", "https://app{}.example.com", "https://app.example.com"},
		{"Production", "https://app{}.example.com", "https://app.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.stand, func(t *testing.T) {
			s := Settings{TestStand: tt.stand, StandTemplate: tt.template}
			assert.Equal(t, tt.expected, s.StandURL())
		})
	}
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("https://jira.example.com/"))
	assert.True(t, ValidURL("http://localhost:4444/wd/hub"))
	assert.False(t, ValidURL("localhost:8080"))
	assert.False(t, ValidURL("ftp://files.example.com"))
	assert.False(t, ValidURL(""))
}

func TestConfigurationError_DetailedError(t *testing.T) {
	err := ConfigurationError{
		Setting:     "PROJECT",
		Value:       "zapp",
		ErrorType:   "format",
		Message:     "must be upper-case",
		Suggestions: []string{"PROJECT=ZAPP"},
	}

	assert.Equal(t, "[format] PROJECT: must be upper-case", err.Error())
	detailed := err.DetailedError()
	assert.Contains(t, detailed, `Value: "zapp"`)
	assert.Contains(t, detailed, "- PROJECT=ZAPP")
}
