// Package backend registers local runs as sessions on the reporting
// backend and ships their results when the run ends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"zapp/internal/apiclient"
	"zapp/pkg/logging"
)

// Backend and frontend locations per BACKEND_ORIGIN.
var (
	backendURLs = map[string]string{
		"QA":   "https://zapp-backend.example.com",
		"PROD": "https://zapp-backend.example.com",
		"DEV":  "http://localhost:8000",
	}
	frontendURLs = map[string]string{
		"QA":   "https://zapp-front.example.com",
		"PROD": "https://zapp-front.example.com",
		"DEV":  "http://localhost:3000",
	}
)

// URLs returns the backend and frontend base URLs of origin. Unknown
// origins use PROD.
func URLs(origin string) (backendURL, frontendURL string) {
	key := strings.ToUpper(strings.TrimSpace(origin))
	if _, ok := backendURLs[key]; !ok {
		key = "PROD"
	}
	return backendURLs[key], frontendURLs[key]
}

var (
	// ErrSessionRunning is returned when starting while a session runs.
	ErrSessionRunning = errors.New("session already started")
	// ErrNoSession is returned when no session is running.
	ErrNoSession = errors.New("no session registered")
)

// SessionError wraps every failure of a session operation.
type SessionError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("backend session %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend session %s %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// State is the lifecycle state of the session.
type State int

const (
	NoSession State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "no session"
	}
}

// Config configures a Client.
type Config struct {
	// Origin selects the backend (QA, PROD, DEV).
	Origin string
	// SessionID adopts a session registered by the caller of the run.
	SessionID string
	// BackendURL and FrontendURL override the origin URLs.
	BackendURL  string
	FrontendURL string
	Timeout     time.Duration
}

// Client is the session reporter. It never retries.
type Client struct {
	backendURL  *url.URL
	frontendURL *url.URL
	http        *retryablehttp.Client

	mu        sync.Mutex
	state     State
	sessionID string
}

// New returns a client, Running when cfg.SessionID is set.
func New(cfg Config) (*Client, error) {
	backendRaw, frontendRaw := URLs(cfg.Origin)
	if cfg.BackendURL != "" {
		backendRaw = cfg.BackendURL
	}
	if cfg.FrontendURL != "" {
		frontendRaw = cfg.FrontendURL
	}
	backendURL, err := parseBase(backendRaw)
	if err != nil {
		return nil, err
	}
	frontendURL, err := parseBase(frontendRaw)
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.CheckRetry = func(ctx context.Context, _ *http.Response, _ error) (bool, error) {
		return false, ctx.Err()
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = apiclient.Logger{Subsystem: "Backend"}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rc.HTTPClient.Timeout = timeout

	c := &Client{backendURL: backendURL, frontendURL: frontendURL, http: rc}
	if cfg.SessionID != "" {
		c.state = Running
		c.sessionID = cfg.SessionID
	}
	return c, nil
}

func parseBase(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", raw)
	}
	return u, nil
}

// State returns the session state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Running reports whether a session is running.
func (c *Client) Running() bool { return c.State() == Running }

// SessionID returns the current session id.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start registers a local run and returns the new session id.
func (c *Client) Start(ctx context.Context, envType, project string, runParams map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Running {
		return "", &SessionError{Op: "start", SessionID: c.sessionID, Err: ErrSessionRunning}
	}
	if runParams == nil {
		runParams = map[string]any{}
	}

	var res struct {
		SessionID any `json:"zapp_session_id"`
	}
	payload := map[string]any{
		"env_type":   envType,
		"bb_project": project,
		"run_params": runParams,
	}
	if err := c.do(ctx, http.MethodPost, "api/v1/sessions/run_local", payload, &res); err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}
	id := ""
	if res.SessionID != nil {
		id = fmt.Sprint(res.SessionID)
	}
	if id == "" {
		return "", &SessionError{Op: "start", Err: errors.New("backend returned no session id")}
	}

	c.sessionID = id
	c.state = Running
	logging.Debug("Backend", "Session %s registered", c.sessionID)
	return c.sessionID, nil
}

// Update sends intermediate session fields and returns the backend
// answer.
func (c *Client) Update(ctx context.Context, fields map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.update(ctx, "update", fields)
}

func (c *Client) update(ctx context.Context, op string, fields map[string]any) (map[string]any, error) {
	if c.state != Running {
		return nil, &SessionError{Op: op, SessionID: c.sessionID, Err: ErrNoSession}
	}
	var res map[string]any
	path := "api/v1/sessions/" + url.PathEscape(c.sessionID) + "/add_results"
	if err := c.do(ctx, http.MethodPatch, path, fields, &res); err != nil {
		return nil, &SessionError{Op: op, SessionID: c.sessionID, Err: err}
	}
	return res, nil
}

// StopReport is what a finished run sends to the backend.
type StopReport struct {
	OutputJSON        any
	ZephyrSyncResults map[string]string
	ExportVariables   map[string]any
	VideoURL          string
	// TestsPassed and RawLogs are only sent for runs not started by the
	// backend itself.
	TestsPassed *bool
	RawLogs     *string
}

func (r StopReport) payload() map[string]any {
	p := map[string]any{
		"infra_ok":            true,
		"output_json":         r.OutputJSON,
		"zephyr_sync_results": r.ZephyrSyncResults,
		"export_variables":    r.ExportVariables,
		"video_url":           r.VideoURL,
	}
	if p["output_json"] == nil {
		p["output_json"] = map[string]any{}
	}
	if r.ZephyrSyncResults == nil {
		p["zephyr_sync_results"] = map[string]string{}
	}
	if r.ExportVariables == nil {
		p["export_variables"] = map[string]any{}
	}
	if r.TestsPassed != nil {
		p["tests_passed"] = *r.TestsPassed
	}
	if r.RawLogs != nil {
		p["zapp_raw_logs"] = *r.RawLogs
	}
	return p
}

// Stop sends the run results and stops the session.
func (c *Client) Stop(ctx context.Context, report StopReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.update(ctx, "stop", report.payload()); err != nil {
		return err
	}
	c.state = Stopped
	logging.Debug("Backend", "Session %s stopped", c.sessionID)
	return nil
}

// SessionURL is the frontend page of the running session.
func (c *Client) SessionURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return "", &SessionError{Op: "url", SessionID: c.sessionID, Err: ErrNoSession}
	}
	ref := &url.URL{Path: "test-runs/" + c.sessionID}
	return c.frontendURL.ResolveReference(ref).String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	target := c.backendURL.ResolveReference(&url.URL{Path: path}).String()

	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", method, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, target, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, target, err)
	}
	return nil
}
