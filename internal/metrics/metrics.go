// Package metrics writes run statistics to InfluxDB.
//
// Every run produces a "main" point, one "exception" point per step
// exception and one "deprecated_step" point per deprecated step used.
// Sending is fire-and-forget: failures are logged and never reach the run.
package metrics

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"zapp/internal/config"
	"zapp/pkg/logging"
)

const (
	// Measurement is the InfluxDB measurement of every point.
	Measurement = "zapp_test_run"

	RecordMain       = "main"
	RecordException  = "exception"
	RecordDeprecated = "deprecated_step"
)

// Run is the statistics of one finished run.
type Run struct {
	Start           time.Time
	End             time.Time
	Tests           int
	Failed          int
	Exceptions      []string
	DeprecatedSteps []string
	Browser         string
	BrowserVersion  string
	Seed            string
}

// Config configures an Emitter.
type Config struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	Timeout  time.Duration
	// Tags are added to every point.
	Tags map[string]string
}

// ConfigFromSettings builds the emitter config, tagging points with the
// run settings.
func ConfigFromSettings(s config.Settings) Config {
	return Config{
		Enabled:  s.InfluxUse,
		Host:     s.InfluxHost,
		Port:     s.InfluxPort,
		Database: s.InfluxDB,
		Tags: map[string]string{
			"DEBUG":             formatBool(s.Debug),
			"DEPLOY":            formatBool(s.Deploy),
			"ENV":               s.Env,
			"FORCE_DELAY":       formatFloat(s.ForceDelay),
			"LOCAL_SCREENSHOTS": formatBool(s.LocalScreenshots),
			"PROJECT_KEY":       s.Project,
			"REMOTE_EXECUTOR":   s.RemoteExecutor,
			"RUN_TYPE":          s.RunType,
			"SMARTWAIT_DELAY":   formatFloat(s.SmartwaitDelay),
			"STAND":             s.TestStand,
			"ZEPHYR_USE":        formatBool(s.ZephyrUse()),
			"VERSION_NAME":      s.VersionName,
		},
	}
}

// falsy values are dropped from tags
func formatBool(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Emitter writes run points.
type Emitter struct {
	cfg     Config
	version string
	now     func() time.Time
}

// New returns an emitter tagging points with the zapp version.
func New(cfg Config, version string) *Emitter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Emitter{
		cfg:     cfg,
		version: version,
		now:     time.Now,
	}
}

// Addr is the InfluxDB HTTP address.
func (e *Emitter) Addr() string {
	host := strings.TrimSuffix(e.cfg.Host, "/")
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if e.cfg.Port == "" {
		return host
	}
	return host + ":" + e.cfg.Port
}

func (e *Emitter) tags(run Run, record string) map[string]string {
	tags := map[string]string{}
	for k, v := range e.cfg.Tags {
		tags[k] = v
	}
	tags["BROWSER"] = run.Browser
	tags["BROWSER_VERSION"] = run.BrowserVersion
	tags["RECORD"] = record
	tags["ZAPP_VERSION"] = e.version
	tags["GO_VERSION"] = strings.TrimPrefix(runtime.Version(), "go")
	tags["RUN_SEED"] = run.Seed

	for k, v := range tags {
		if v == "" {
			delete(tags, k)
		}
	}
	return tags
}

func fields(run Run, end time.Time) map[string]interface{} {
	f := map[string]interface{}{}
	if ms := float64(end.Sub(run.Start)) / float64(time.Millisecond); !run.Start.IsZero() && ms > 0 {
		f["time_length"] = ms
	}
	if run.Tests > 0 {
		f["tests_count"] = run.Tests
	}
	if run.Failed > 0 {
		f["failed_tests_count"] = run.Failed
	}
	return f
}

// Points builds every point of run.
func (e *Emitter) Points(run Run) ([]*client.Point, error) {
	end := run.End
	if end.IsZero() {
		end = e.now()
	}
	f := fields(run, end)

	var points []*client.Point
	add := func(record string, extra map[string]string) error {
		tags := e.tags(run, record)
		for k, v := range extra {
			if v != "" {
				tags[k] = v
			}
		}
		pt, err := client.NewPoint(Measurement, tags, f, end)
		if err != nil {
			return fmt.Errorf("failed to build %s point: %w", record, err)
		}
		points = append(points, pt)
		return nil
	}

	if err := add(RecordMain, nil); err != nil {
		return nil, err
	}
	for _, exc := range run.Exceptions {
		if err := add(RecordException, map[string]string{"EXCEPTION": exc}); err != nil {
			return nil, err
		}
	}
	for _, step := range distinct(run.DeprecatedSteps) {
		if err := add(RecordDeprecated, map[string]string{"DEPRECATED_STEP": step}); err != nil {
			return nil, err
		}
	}
	return points, nil
}

func distinct(list []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range list {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// Send writes the points of run. It does nothing when metrics are
// disabled and only logs failures.
func (e *Emitter) Send(run Run) {
	if !e.cfg.Enabled {
		logging.Debug("Metrics", "INFLUX_USE is off, metrics not sent")
		return
	}
	if err := e.write(run); err != nil {
		logging.Error("Metrics", err, "Failed to send run metrics")
		return
	}
	logging.Debug("Metrics", "Run metrics sent to %s", e.Addr())
}

func (e *Emitter) write(run Run) error {
	points, err := e.Points(run)
	if err != nil {
		return err
	}

	c, err := client.NewHTTPClient(client.HTTPConfig{Addr: e.Addr(), Timeout: e.cfg.Timeout})
	if err != nil {
		return fmt.Errorf("failed to create influx client: %w", err)
	}
	defer c.Close()

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: e.cfg.Database})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}
	bp.AddPoints(points)
	if err := c.Write(bp); err != nil {
		return fmt.Errorf("failed to write %d points: %w", len(points), err)
	}
	return nil
}
