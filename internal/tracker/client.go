// Package tracker is the REST client for Jira and its Zephyr test
// management API. It covers the endpoints the result synchronization
// needs and nothing else.
//
// The client never retries: the sync components own failure handling and
// stop talking to the tracker after the first failure.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"zapp/internal/apiclient"
	"zapp/pkg/logging"
)

const (
	jiraBase   = "rest/api/2/"
	zephyrBase = "rest/zapi/latest/"
)

// HTTPError is returned for non-2xx answers.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Config configures a Client.
type Config struct {
	// Host is the Jira base URL.
	Host     string
	User     string
	Password string
	// RateLimit caps requests per second; zero disables the limiter.
	RateLimit float64
	Timeout   time.Duration
}

// Client talks to one Jira instance.
type Client struct {
	base     *url.URL
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	user     string
	password string
}

// New returns a client for cfg.Host.
func New(cfg Config) (*Client, error) {
	host := cfg.Host
	if !strings.HasSuffix(host, "/") {
		host += "/"
	}
	base, err := url.Parse(host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid jira host %q", cfg.Host)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.CheckRetry = noRetry
	rc.Logger = apiclient.Logger{Subsystem: "Tracker"}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	rc.HTTPClient.Timeout = timeout

	c := &Client{base: base, http: rc, user: cfg.User, password: cfg.Password}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// noRetry hands every answer back as is, so non-2xx statuses surface as
// HTTPError.
func noRetry(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	return false, ctx.Err()
}

// BrowseURL is the human link to an issue.
func (c *Client) BrowseURL(key string) string {
	return c.resolve("browse/"+key, nil)
}

// ResultsURL is the human link to an execution.
func (c *Client) ResultsURL(executionID ID) string {
	return c.resolve("secure/enav/", nil) + "#/" + executionID.String()
}

func (c *Client) resolve(path string, query url.Values) string {
	ref := &url.URL{Path: path}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.base.ResolveReference(ref).String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, query, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	target := c.resolve(path, query)
	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.HasPrefix(contentType, "multipart/") {
		req.Header.Set("X-Atlassian-Token", "no-check")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s %s: %w", method, target, err)
	}
	logging.Debug("Tracker", "%s %s: %d", method, target, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Method: method, URL: target, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", method, target, err)
	}
	return nil
}

func (c *Client) upload(ctx context.Context, path string, query url.Values, files []Attachment) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := w.CreateFormFile("file", f.Name)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, query, &buf, w.FormDataContentType(), nil)
}
