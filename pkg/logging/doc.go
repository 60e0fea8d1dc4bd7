// Package logging provides subsystem-tagged logging for zapp on top of the
// standard slog package.
//
// Every record carries a subsystem attribute so run logs can be filtered by
// component (Wait, Zephyr, ZephyrLite, Backend, Metrics, Vault, Lifecycle...).
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Lifecycle", "Scenario %q started", name)
//	logging.Debug("Wait", "Polling %s every %s", selector, interval)
//	logging.Warn("Zephyr", "Sync interrupted")
//	logging.Error("Backend", err, "Failed to update session %s", id)
//
// # Capturing the run log
//
// StartCapture tees the log stream into memory. The lifecycle uses it to send
// the plaintext run log to the reporting backend when the session stops.
//
//	c := logging.StartCapture()
//	defer logging.StopCapture()
//	...
//	report.RawLogs = c.String()
//
// The package is safe for concurrent use; the Zephyr-Lite fan-out logs from
// many goroutines at once.
package logging
