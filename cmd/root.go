package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"zapp/internal/config"
	"zapp/internal/lifecycle"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates that every scenario passed.
	ExitCodeSuccess = 0
	// ExitCodeError indicates failed scenarios or a general error.
	ExitCodeError = 1
	// ExitCodeConfig indicates invalid settings or runner options; no test was run.
	ExitCodeConfig = 2
)

// errScenariosFailed is returned by run when the report is not a success.
var errScenariosFailed = errors.New("scenarios failed")

var (
	configPath   string
	outputFormat string
	quiet        bool
	noColor      bool
)

// rootCmd represents the base command for the zapp application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "zapp",
	Short: "Run BDD UI tests against a test stand",
	Long: `zapp runs Gherkin feature files against web, mobile and API test stands.

Steps are written in Russian and refer to elements by locator names. Results
are synchronized with Jira/Zephyr, reported to the zapp backend and written
to metrics, depending on the settings.

Settings are read from zapp.yaml and the environment; the environment wins.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "zapp version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for CI pipelines.
func getExitCode(err error) int {
	var collection config.ConfigurationErrorCollection
	if errors.As(err, &collection) {
		return ExitCodeConfig
	}

	var single config.ConfigurationError
	if errors.As(err, &single) {
		return ExitCodeConfig
	}

	if errors.Is(err, lifecycle.ErrOptions) {
		return ExitCodeConfig
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFile, "Settings file; a missing file is ignored")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (console, table, json, yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
