package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"zapp/internal/driver"
	"zapp/internal/lifecycle"
	"zapp/internal/steps"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check settings, locators and the step library",
	Long: `Check that the settings are valid, the locator files load and the
built-in step library compiles. Nothing is sent to the test stand.

Invalid settings are listed with suggestions and exit with code 2.

Examples:
  zapp check
  zapp check -o json`,
	Args:                  cobra.NoArgs,
	DisableFlagsInUseLine: true,
	RunE:                  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	locators, collisions, err := loadLocators(settings)
	if err != nil {
		return err
	}
	session := newSession(cmd.Context(), settings, driver.NewAPI(), locators)
	registry, err := steps.NewLibrary(session)
	if err != nil {
		return fmt.Errorf("step library is invalid: %w", err)
	}

	syncMode := lifecycle.SyncNone
	if settings.ZephyrUse() {
		syncMode = lifecycle.SyncFull
		if settings.ZephyrLite {
			syncMode = lifecycle.SyncLite
		}
	}

	return formatter.FormatData(map[string]interface{}{
		"stand":      settings.StandURL(),
		"run_type":   settings.RunType,
		"platform":   string(driver.ParsePlatform(settings.Browser)),
		"sync":       string(syncMode),
		"locators":   locators.Len(),
		"collisions": len(collisions),
		"steps":      registry.Len(),
	})
}
