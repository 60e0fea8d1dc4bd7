package mock

import (
	"fmt"
	"sync"

	"zapp/internal/driver"
)

// Element is a scriptable driver.Element.
type Element struct {
	mu        sync.Mutex
	text      string
	attrs     map[string]string
	displayed bool
	enabled   bool
	clicks    int
	typed     []string

	// ClickErr, when set, is returned by every Click call.
	ClickErr error

	failures map[string][]error
}

// NewElement returns a displayed, enabled element with the given text.
func NewElement(text string) *Element {
	return &Element{text: text, attrs: map[string]string{}, displayed: true, enabled: true}
}

// WithAttr sets an attribute and returns the element for chaining.
func (e *Element) WithAttr(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// SetDisplayed toggles visibility.
func (e *Element) SetDisplayed(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.displayed = v
}

// SetEnabled toggles the enabled state.
func (e *Element) SetEnabled(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = v
}

// FailNext queues errs for the next calls of method ("Click", "SendKeys",
// "Clear", "Text" or "GetAttribute"), one error per call.
func (e *Element) FailNext(method string, errs ...error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failures == nil {
		e.failures = map[string][]error{}
	}
	e.failures[method] = append(e.failures[method], errs...)
	return e
}

func (e *Element) nextFailure(method string) error {
	queue := e.failures[method]
	if len(queue) == 0 {
		return nil
	}
	e.failures[method] = queue[1:]
	return queue[0]
}

// Clicks returns how many successful clicks the element received.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Typed returns the text sent with SendKeys, in order.
func (e *Element) Typed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.typed...)
}

func (e *Element) Click() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nextFailure("Click"); err != nil {
		return err
	}
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.clicks++
	return nil
}

func (e *Element) SendKeys(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nextFailure("SendKeys"); err != nil {
		return err
	}
	e.typed = append(e.typed, text)
	e.text += text
	return nil
}

func (e *Element) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nextFailure("Clear"); err != nil {
		return err
	}
	e.text = ""
	return nil
}

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nextFailure("Text"); err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *Element) GetAttribute(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.nextFailure("GetAttribute"); err != nil {
		return "", err
	}
	if name == "value" {
		if v, ok := e.attrs[name]; ok {
			return v, nil
		}
		return e.text, nil
	}
	return e.attrs[name], nil
}

func (e *Element) IsDisplayed() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.displayed, nil
}

func (e *Element) IsEnabled() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

// Driver is an in-memory driver.Driver. Elements are registered per
// selector; lookups of unknown selectors fail with a "no such element"
// driver error the way a real session does.
type Driver struct {
	mu         sync.Mutex
	platform   driver.Platform
	url        string
	title      string
	elements   map[string][]*Element
	cookies    []driver.Cookie
	scripts    []string
	finds      int
	screenshot []byte
	quit       bool

	// FindHook runs before every lookup; a non-nil error is returned
	// instead of the element.
	FindHook func(by driver.By, value string) error
}

// NewDriver returns a web platform driver with no elements.
func NewDriver() *Driver {
	return &Driver{
		platform:   driver.Web,
		elements:   map[string][]*Element{},
		screenshot: []byte("\x89PNG"),
	}
}

// WithPlatform changes the platform tag.
func (d *Driver) WithPlatform(p driver.Platform) *Driver {
	d.platform = p
	return d
}

// Put registers elements under a selector, replacing previous ones.
func (d *Driver) Put(selector string, els ...*Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.elements[selector] = els
}

// Remove drops every element registered under selector.
func (d *Driver) Remove(selector string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, selector)
}

// FindCalls returns the number of FindElement/FindElements calls.
func (d *Driver) FindCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds
}

// Scripts returns the executed scripts in order.
func (d *Driver) Scripts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.scripts...)
}

// Quitted reports whether Quit was called.
func (d *Driver) Quitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quit
}

func (d *Driver) Platform() driver.Platform { return d.platform }

func (d *Driver) Get(url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	return nil
}

func (d *Driver) CurrentURL() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

// SetTitle sets the page title.
func (d *Driver) SetTitle(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.title = title
}

func (d *Driver) Title() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.title, nil
}

func (d *Driver) lookup(by driver.By, value string) ([]*Element, error) {
	d.mu.Lock()
	d.finds++
	hook := d.FindHook
	els := d.elements[value]
	d.mu.Unlock()

	if hook != nil {
		if err := hook(by, value); err != nil {
			return nil, err
		}
	}
	return els, nil
}

func (d *Driver) FindElement(by driver.By, value string) (driver.Element, error) {
	els, err := d.lookup(by, value)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, &driver.Error{
			Kind:    driver.NoSuchElement,
			Message: fmt.Sprintf("unable to locate element: {%q: %q}", by, value),
		}
	}
	return els[0], nil
}

func (d *Driver) FindElements(by driver.By, value string) ([]driver.Element, error) {
	els, err := d.lookup(by, value)
	if err != nil {
		return nil, err
	}
	out := make([]driver.Element, 0, len(els))
	for _, e := range els {
		out = append(out, e)
	}
	return out, nil
}

func (d *Driver) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts = append(d.scripts, script)
	return nil, nil
}

func (d *Driver) Cookies() ([]driver.Cookie, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.Cookie(nil), d.cookies...), nil
}

func (d *Driver) AddCookie(c driver.Cookie) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.cookies {
		if existing.Name == c.Name {
			d.cookies[i] = c
			return nil
		}
	}
	d.cookies = append(d.cookies, c)
	return nil
}

func (d *Driver) DeleteAllCookies() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cookies = nil
	return nil
}

func (d *Driver) Screenshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshot, nil
}

func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quit = true
	return nil
}

var _ driver.Driver = (*Driver)(nil)
var _ driver.Element = (*Element)(nil)
