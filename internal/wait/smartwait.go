// Package wait implements SmartWait, the polling condition wait used by
// every UI step.
//
// A wait resolves its target through the Locator Registry, sleeps the
// force delay (or the invisibility settle delay), then polls the condition
// until it holds or the smart wait delay elapses. The whole operation is
// retried under a wall-clock budget when the driver reports one of the
// transient failures listed in driver.Transient.
package wait

import (
	"context"
	"errors"
	"time"

	"zapp/internal/driver"
	"zapp/internal/locator"
	"zapp/internal/retry"
	"zapp/pkg/logging"
)

const (
	// DefaultPollInterval is the delay between two condition checks.
	DefaultPollInterval = 500 * time.Millisecond
	// DefaultInvisibilityDelay is slept before the first check of an
	// invisibility wait so a not yet rendered element is not mistaken for
	// a hidden one.
	DefaultInvisibilityDelay = 500 * time.Millisecond
)

// Request describes one wait.
type Request struct {
	// Target is a locator name resolved through the registry.
	Target string
	// Locator is a raw selector; it takes precedence over Target.
	Locator string
	// Kind forces the selector dialect; inferred from Locator when empty.
	Kind      locator.Kind
	Condition Condition
	// Negate waits for the condition to stop holding.
	Negate bool
	// Timeout overrides the run's smart wait delay.
	Timeout time.Duration
}

// Result is the outcome of a wait. Found is false only when an
// invisibility wait timed out.
type Result struct {
	Found    bool
	Elements []driver.Element
}

// Element returns the first matched element, if any.
func (r Result) Element() driver.Element {
	if len(r.Elements) == 0 {
		return nil
	}
	return r.Elements[0]
}

// Engine runs waits against one driver session.
type Engine struct {
	Driver   driver.Driver
	Locators *locator.Registry
	Timing   *Timing
	// Retry wraps every wait; see retry.Transient.
	Retry             retry.Policy
	PollInterval      time.Duration
	InvisibilityDelay time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an engine with the default intervals. budget bounds the
// transient-error retry of a single wait.
func New(d driver.Driver, locators *locator.Registry, timing *Timing, budget time.Duration) *Engine {
	return &Engine{
		Driver:            d,
		Locators:          locators,
		Timing:            timing,
		Retry:             retry.Transient(budget),
		PollInterval:      DefaultPollInterval,
		InvisibilityDelay: DefaultInvisibilityDelay,
		sleep:             sleepContext,
	}
}

// ForElement waits for one element, visible by default.
func (e *Engine) ForElement(ctx context.Context, req Request) (driver.Element, error) {
	if req.Condition.IsZero() {
		req.Condition = Visibility
	}
	res, err := e.Wait(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Element(), nil
}

// ForElements waits for all matching elements, all visible by default.
func (e *Engine) ForElements(ctx context.Context, req Request) ([]driver.Element, error) {
	if req.Condition.IsZero() {
		req.Condition = VisibilityOfAll
	}
	res, err := e.Wait(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.Elements, nil
}

// For waits until the condition holds and discards the result.
func (e *Engine) For(ctx context.Context, req Request) error {
	_, err := e.Wait(ctx, req)
	return err
}

// Wait blocks until req's condition holds or times out.
func (e *Engine) Wait(ctx context.Context, req Request) (Result, error) {
	if req.Condition.IsZero() {
		req.Condition = Visibility
	}

	selector := req.Locator
	if selector == "" && req.Target != "" {
		var err error
		selector, err = e.Locators.Lookup(req.Target)
		if err != nil {
			return Result{}, err
		}
	}
	if selector == "" && req.Condition.needsLocator() {
		return Result{}, ErrNoLocator
	}

	kind := req.Kind
	if kind == "" {
		kind = locator.KindOf(selector)
	}
	by := driver.By(kind)

	return retry.DoValue(ctx, e.Retry, func() (Result, error) {
		return e.attempt(ctx, req, by, selector)
	})
}

func (e *Engine) attempt(ctx context.Context, req Request, by driver.By, selector string) (Result, error) {
	invisible := req.Condition.invisible(req.Negate)

	if err := e.pause(ctx, e.settleDelay(invisible)); err != nil {
		return Result{}, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.Timing.Smartwait()
	}
	deadline := time.Now().Add(timeout)

	for {
		ok, els, err := req.Condition.check(e.Driver, by, selector)
		if err != nil && !(req.Negate && driver.IsNoSuchElement(err)) {
			return Result{}, err
		}
		if req.Negate {
			ok = !ok || err != nil
			els = nil
		}
		if ok {
			if invisible {
				logging.Debug("SmartWait", "Element %q (%s) is not visible as expected", req.Target, selector)
			}
			return Result{Found: true, Elements: els}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := e.pause(ctx, min(e.pollInterval(), remaining)); err != nil {
			return Result{}, err
		}
	}

	switch {
	case invisible:
		return Result{Found: false}, nil
	case req.Target != "" && selector != "":
		err := &ElementNotFoundError{Target: req.Target, Locator: selector}
		logging.Error("SmartWait", err, "Element not found")
		return Result{}, err
	default:
		err := &TimeoutError{Condition: req.Condition, Locator: selector, Timeout: timeout}
		logging.Error("SmartWait", err, "Wait timed out")
		return Result{}, err
	}
}

// settleDelay is slept before the first check. Invisibility waits sleep
// at least the invisibility delay; a larger force delay replaces it.
func (e *Engine) settleDelay(invisible bool) time.Duration {
	force := e.Timing.ForceDelay()
	if invisible && force < e.InvisibilityDelay {
		return e.InvisibilityDelay
	}
	return force
}

func (e *Engine) pollInterval() time.Duration {
	if e.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return e.PollInterval
}

func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if e.sleep == nil {
		return sleepContext(ctx, d)
	}
	return e.sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}

// IsNotFound reports whether err means the element could not be located,
// either because the name is unknown or because the wait timed out.
func IsNotFound(err error) bool {
	var notFound *ElementNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, locator.ErrNotFound)
}
