// Package apiclient sends the HTTP requests issued by API steps. Requests
// share the cookies of the UI session and are retried while the server
// answers with a non-2xx status.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"zapp/internal/driver"
	"zapp/internal/retry"
	"zapp/internal/variables"
	"zapp/pkg/logging"
)

const (
	DefaultAttempts = 2
	DefaultWait     = 5 * time.Second

	// RequestIDHeader correlates a request with the run log.
	RequestIDHeader = "X-Request-Id"
)

// DefaultPolicy is used when a request does not override the retry.
func DefaultPolicy() retry.Policy {
	return retry.Attempts(DefaultAttempts, DefaultWait)
}

// Options are the per-request arguments.
type Options struct {
	Headers map[string]string
	Params  map[string]string
	// JSON is encoded as the request body; it wins over Data.
	JSON any
	Data string
	// Retry overrides the client policy for this request.
	Retry *retry.Policy
}

// Response is a fully read HTTP response.
type Response struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response of %s %s: %w", r.Method, r.URL, err)
	}
	return nil
}

// Field extracts a value from a JSON body. A chain such as
// "fruits > [0] > color" is walked; a plain name returns the first value
// found under that key anywhere in the document.
func (r *Response) Field(name string) (any, bool, error) {
	var doc any
	if err := r.JSON(&doc); err != nil {
		return nil, false, err
	}
	v, ok := variables.Lookup(doc, name)
	return v, ok, nil
}

// Client keeps one cookie jar for all requests of a run.
type Client struct {
	httpClient *http.Client
	// Policy applies to requests without a Retry option.
	Policy retry.Policy
}

// New returns a client with the default policy.
func New() *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		httpClient: &http.Client{Jar: jar, Timeout: 2 * time.Minute},
		Policy:     DefaultPolicy(),
	}
}

// Request sends one logical request. Non-2xx responses are retried under
// the policy; when attempts run out the last response is returned without
// an error and the caller inspects the status. Transport errors are
// retried the same way and returned once the policy gives up.
func (c *Client) Request(ctx context.Context, method, rawURL string, cookies []driver.Cookie, opts Options) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if len(opts.Params) > 0 {
		q := u.Query()
		for k, v := range opts.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	c.applyCookies(u, cookies)

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	policy := c.Policy
	if opts.Retry != nil {
		policy = *opts.Retry
	}

	resp, err := c.retryable(policy).Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%s %s failed: %w", method, u.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", method, u.Redacted(), err)
	}

	out := &Response{
		Method:     method,
		URL:        u.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}
	logging.Debug("API", "REQUEST: %s %s, RESPONSE: %d, SUCCESS: %t, ID: %s",
		method, u.Redacted(), out.StatusCode, out.OK(), req.Header.Get(RequestIDHeader))
	return out, nil
}

func (c *Client) applyCookies(u *url.URL, cookies []driver.Cookie) {
	if len(cookies) == 0 || c.httpClient.Jar == nil {
		return
	}
	jarCookies := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		jarCookies = append(jarCookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	c.httpClient.Jar.SetCookies(u, jarCookies)
}

// retryable builds the retrying transport for one policy.
func (c *Client) retryable(p retry.Policy) *retryablehttp.Client {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	start := time.Now()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = c.httpClient
	rc.Logger = Logger{Subsystem: "API"}
	rc.RetryMax = attempts - 1
	rc.RetryWaitMin = p.Wait
	rc.RetryWaitMax = p.Wait
	rc.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration {
		return p.Wait
	}
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if p.MaxElapsed > 0 && time.Since(start)+p.Wait > p.MaxElapsed {
			return false, err
		}
		if err != nil {
			return p.Retryable(err), err
		}
		ok := resp.StatusCode >= 200 && resp.StatusCode < 300
		return !ok, nil
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

func encodeBody(opts Options) (io.Reader, string, error) {
	switch {
	case opts.JSON != nil:
		data, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode json body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	case opts.Data != "":
		return bytes.NewReader([]byte(opts.Data)), "", nil
	default:
		return nil, "", nil
	}
}
