package wait

import (
	"zapp/internal/driver"
)

type conditionKind int

const (
	unset conditionKind = iota
	presence
	visibility
	visibilityOfAll
	invisibility
	clickable
	custom
)

// Condition is the predicate a wait polls for.
type Condition struct {
	kind conditionKind
	fn   func(driver.Driver) (bool, error)
}

var (
	// Presence holds once the element is in the DOM.
	Presence = Condition{kind: presence}
	// Visibility holds once the element is in the DOM and displayed.
	Visibility = Condition{kind: visibility}
	// VisibilityOfAll holds once at least one element matches and every
	// match is displayed.
	VisibilityOfAll = Condition{kind: visibilityOfAll}
	// Invisibility holds when the element is absent or hidden.
	Invisibility = Condition{kind: invisibility}
	// Clickable holds once the element is displayed and enabled.
	Clickable = Condition{kind: clickable}
)

// Custom wraps an arbitrary predicate over the driver. Custom conditions
// do not need a target or locator.
func Custom(fn func(driver.Driver) (bool, error)) Condition {
	return Condition{kind: custom, fn: fn}
}

func (c Condition) String() string {
	switch c.kind {
	case presence:
		return "presence"
	case visibility:
		return "visibility"
	case visibilityOfAll:
		return "visibility of all"
	case invisibility:
		return "invisibility"
	case clickable:
		return "clickable"
	case custom:
		return "custom"
	default:
		return "unset"
	}
}

// IsZero reports whether no condition was chosen.
func (c Condition) IsZero() bool { return c.kind == unset }

func (c Condition) needsLocator() bool {
	return c.kind != custom
}

// invisible reports whether a timeout of this wait counts as "not found"
// rather than a failure.
func (c Condition) invisible(negate bool) bool {
	if c.kind == invisibility {
		return true
	}
	return negate && (c.kind == visibility || c.kind == visibilityOfAll)
}

// check evaluates the condition once. A "no such element" failure is
// reported as not satisfied; every other driver error is returned.
func (c Condition) check(d driver.Driver, by driver.By, selector string) (bool, []driver.Element, error) {
	switch c.kind {
	case custom:
		ok, err := c.fn(d)
		return ok, nil, err

	case visibilityOfAll:
		els, err := d.FindElements(by, selector)
		if err != nil {
			return false, nil, err
		}
		if len(els) == 0 {
			return false, nil, nil
		}
		for _, el := range els {
			shown, err := el.IsDisplayed()
			if err != nil || !shown {
				return false, nil, err
			}
		}
		return true, els, nil
	}

	el, err := d.FindElement(by, selector)
	if err != nil {
		if driver.IsNoSuchElement(err) {
			return c.kind == invisibility, nil, nil
		}
		return false, nil, err
	}

	switch c.kind {
	case presence:
		return true, []driver.Element{el}, nil

	case invisibility:
		shown, err := el.IsDisplayed()
		if err != nil {
			// the element went away between lookup and check
			if kind, ok := driver.KindOf(err); ok && kind == driver.StaleElement {
				return true, nil, nil
			}
			return false, nil, err
		}
		return !shown, nil, nil

	case clickable:
		shown, err := el.IsDisplayed()
		if err != nil || !shown {
			return false, nil, err
		}
		enabled, err := el.IsEnabled()
		if err != nil || !enabled {
			return false, nil, err
		}
		return true, []driver.Element{el}, nil

	default:
		shown, err := el.IsDisplayed()
		if err != nil || !shown {
			return false, nil, err
		}
		return true, []driver.Element{el}, nil
	}
}
