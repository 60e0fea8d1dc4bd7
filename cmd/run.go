package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"zapp/internal/lifecycle"
	"zapp/internal/steps"
	"zapp/pkg/logging"
)

// defaultFeaturesDir is run when no paths are given.
const defaultFeaturesDir = "features"

var (
	runTags          string
	runFormat        string
	runStopOnFailure bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Run feature files",
	Long: `Run feature files or directories against the configured test stand.

Paths may point at a single scenario with "file:line". Without paths the
features directory is run.

Exit codes:
  0  every scenario passed
  1  a scenario failed or nothing passed
  2  invalid settings or runner options, nothing was run

Examples:
  zapp run
  zapp run features/login.feature:12
  zapp run --tags "@smoke && ~@wip" features/`,
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTags, "tags", "t", "", "Tag expression selecting scenarios")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "pretty", "Runner output format (pretty, progress, events)")
	runCmd.Flags().BoolVar(&runStopOnFailure, "stop-on-failure", false, "Stop after the first failed scenario")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	paths := args
	if len(paths) == 0 {
		paths = []string{defaultFeaturesDir}
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	capture := logging.StartCapture()
	defer logging.StopCapture()

	locators, _, err := loadLocators(settings)
	if err != nil {
		return err
	}
	d, err := openDriver(settings)
	if err != nil {
		return err
	}
	session := newSession(ctx, settings, d, locators)
	registry, err := steps.NewLibrary(session)
	if err != nil {
		return fmt.Errorf("failed to build the step library: %w", err)
	}

	run := lifecycle.New(lifecycle.Deps{
		Settings: settings,
		Session:  session,
		Registry: registry,
		Tracker:  newTracker(settings),
		Backend:  newBackend(settings),
		Metrics:  newMetrics(settings),
		Notifier: newNotifier(settings, session.API),
		Version:  GetVersion(),
		Capture:  capture,
		Flushing: flushSpinner(cmd.ErrOrStderr()),
	})
	suite := lifecycle.NewSuite(run, registry, lifecycle.SuiteConfig{
		Paths:          paths,
		Tags:           runTags,
		Format:         runFormat,
		Output:         cmd.OutOrStdout(),
		NoColors:       noColor,
		ReportsDir:     settings.ReportsDir,
		RetryAfterFail: settings.RetryAfterFail,
		MaxAttempts:    settings.MaxAttempts,
		StopOnFailure:  runStopOnFailure,
	})

	report, err := suite.Run(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(formatter.FormatReport(report), "\n"))
	if err != nil {
		return err
	}
	if !report.Success() {
		return errScenariosFailed
	}
	return nil
}
