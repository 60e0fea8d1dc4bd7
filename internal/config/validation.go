package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	projectPattern  = regexp.MustCompile(`^[A-Z]+$`)
	envPattern      = regexp.MustCompile(`^(QA|STAGE|PROD)$`)
	jiraUserPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)
)

var notificationModes = []string{"disable", "always", "on_errors", "on_success"}

// Validate checks every setting and returns all problems at once.
func Validate(s Settings) ConfigurationErrorCollection {
	var errs ConfigurationErrorCollection

	if strings.TrimSpace(s.TestStand) == "" {
		errs.Add(required("TEST_STAND", "test stand name or URL is required"))
	}

	if strings.TrimSpace(s.Project) == "" {
		errs.Add(required("PROJECT", "project key is required"))
	} else if !projectPattern.MatchString(s.Project) {
		errs.Add(ConfigurationError{
			Setting:     "PROJECT",
			Value:       s.Project,
			ErrorType:   "format",
			Message:     "must be the Jira project key in upper-case latin letters",
			Suggestions: []string{"Use the key as it appears in Jira URLs, e.g. PROJECT=ZAPP"},
		})
	}

	if !envPattern.MatchString(s.Env) {
		errs.Add(ConfigurationError{
			Setting:   "ENV",
			Value:     s.Env,
			ErrorType: "format",
			Message:   "must be one of QA, STAGE or PROD",
		})
	}

	if !jiraUserPattern.MatchString(s.JiraUser) {
		errs.Add(ConfigurationError{
			Setting:     "JIRA_USER",
			Value:       s.JiraUser,
			ErrorType:   "format",
			Message:     "must contain only the login (no email, no special characters)",
			Suggestions: []string{"Use the Jira login, e.g. JIRA_USER=ivanov_ii"},
		})
	}

	if s.ForceDelay > MaxForceDelay || s.ForceDelay < 0 {
		errs.Add(ConfigurationError{
			Setting:   "FORCE_DELAY",
			Value:     fmt.Sprintf("%g", s.ForceDelay),
			ErrorType: "range",
			Message:   fmt.Sprintf("must be between 0 and %g seconds", MaxForceDelay),
		})
	}

	if s.SmartwaitDelay <= 0 {
		errs.Add(ConfigurationError{
			Setting:   "SMARTWAIT_DELAY",
			Value:     fmt.Sprintf("%g", s.SmartwaitDelay),
			ErrorType: "range",
			Message:   "must be a positive number of seconds",
		})
	}

	if s.VaultSecretStorageVersion != 1 && s.VaultSecretStorageVersion != 2 {
		errs.Add(ConfigurationError{
			Setting:   "VAULT_SECRET_STORAGE_VERSION",
			Value:     fmt.Sprintf("%d", s.VaultSecretStorageVersion),
			ErrorType: "range",
			Message:   "must be 1 or 2",
		})
	}

	if !contains(notificationModes, strings.ToLower(s.TGNotificationMode)) {
		errs.Add(ConfigurationError{
			Setting:   "TG_NOTIFICATION_MODE",
			Value:     s.TGNotificationMode,
			ErrorType: "format",
			Message:   "must be one of " + strings.Join(notificationModes, ", "),
		})
	}

	for setting, value := range map[string]string{
		"JIRA_HOST":       s.JiraHost,
		"SELENOID_UI_URL": s.SelenoidUIURL,
		"REMOTE_EXECUTOR": s.RemoteExecutor,
	} {
		if value == "" && setting == "REMOTE_EXECUTOR" {
			continue
		}
		if !ValidURL(value) {
			errs.Add(ConfigurationError{
				Setting:   setting,
				Value:     value,
				ErrorType: "format",
				Message:   "must be a valid http(s) URL",
			})
		}
	}

	if s.TestStand != "" && !ValidURL(s.StandURL()) {
		errs.Add(ConfigurationError{
			Setting:     "STAND_TEMPLATE",
			Value:       s.StandTemplate,
			ErrorType:   "format",
			Message:     "test stand does not resolve to a valid URL",
			Suggestions: []string{"Pass a full URL in TEST_STAND or a template with {} in STAND_TEMPLATE"},
		})
	}

	return errs
}

// ValidURL reports whether raw is an absolute http or https URL with a host.
func ValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func required(setting, message string) ConfigurationError {
	return ConfigurationError{
		Setting:   setting,
		ErrorType: "required",
		Message:   message,
	}
}
