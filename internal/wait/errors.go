package wait

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoLocator is returned when a locator-based condition has neither a
// target nor a raw locator.
var ErrNoLocator = errors.New("wait request needs a target or a locator")

// ElementNotFoundError is returned when a named element does not satisfy
// its condition in time.
type ElementNotFoundError struct {
	Target  string
	Locator string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q with locator %q not found; make sure it exists, is visible and is not covered by another element", e.Target, e.Locator)
}

// TimeoutError is returned when a condition did not hold in time and no
// target name is known.
type TimeoutError struct {
	Condition Condition
	Locator   string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("%s condition did not hold within %s; try increasing the wait delay", e.Condition, e.Timeout)
	}
	return fmt.Sprintf("%s condition on %q did not hold within %s; try increasing the wait delay", e.Condition, e.Locator, e.Timeout)
}
