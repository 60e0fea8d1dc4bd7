package driver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
)

// ErrorKind is the W3C WebDriver error code.
type ErrorKind string

const (
	StaleElement        ErrorKind = "stale element reference"
	NotInteractable     ErrorKind = "element not interactable"
	ClickIntercepted    ErrorKind = "element click intercepted"
	InvalidElementState ErrorKind = "invalid element state"
	NoSuchContext       ErrorKind = "no such context"
	NoSuchElement       ErrorKind = "no such element"
	NoSuchFrame         ErrorKind = "no such frame"
)

// transientKinds are the driver failures caused by racing DOM mutations or
// animations; the whole wait is retried when one of them occurs.
var transientKinds = []ErrorKind{
	StaleElement,
	NotInteractable,
	ClickIntercepted,
	InvalidElementState,
	NoSuchContext,
}

var knownKinds = append([]ErrorKind{NoSuchElement, NoSuchFrame}, transientKinds...)

// Error is a classified driver failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf extracts the WebDriver error code from err, looking at classified
// errors, Selenium wire errors and finally the message text.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}

	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}

	var se *selenium.Error
	if errors.As(err, &se) && se.Err != "" {
		return ErrorKind(se.Err), true
	}

	msg := strings.ToLower(err.Error())
	for _, kind := range knownKinds {
		if strings.Contains(msg, string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// Transient reports whether err is one of the retryable driver failures.
func Transient(err error) bool {
	kind, ok := KindOf(err)
	if !ok {
		return false
	}
	for _, k := range transientKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsNoSuchElement reports whether err means the element is not (yet) in the DOM.
func IsNoSuchElement(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == NoSuchElement
}
