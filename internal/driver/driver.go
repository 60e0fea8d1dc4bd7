// Package driver defines the UI driver capability consumed by the wait
// engine and the step library, and adapts Selenium/Appium sessions to it.
package driver

import (
	"errors"
	"strings"
)

// By is the element lookup strategy, using the WebDriver wire names.
type By string

const (
	ByCSS   By = "css selector"
	ByXPath By = "xpath"
)

// Platform tags the kind of session a run drives. Steps may declare that
// they are unavailable on some platforms.
type Platform string

const (
	Web     Platform = "web"
	Android Platform = "android"
	IOS     Platform = "ios"
	// API runs have no UI session at all; only HTTP steps work.
	API Platform = "api"
)

// ParsePlatform maps the BROWSER setting onto a platform.
func ParsePlatform(browser string) Platform {
	switch strings.ToLower(strings.TrimSpace(browser)) {
	case "android", "mobile":
		return Android
	case "ios":
		return IOS
	case "api", "none":
		return API
	default:
		return Web
	}
}

// Mobile reports whether the platform is driven through Appium.
func (p Platform) Mobile() bool {
	return p == Android || p == IOS
}

// Cookie is a browser cookie shared between the UI session and API calls.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// Element is a located UI element.
type Element interface {
	Click() error
	SendKeys(text string) error
	Clear() error
	Text() (string, error)
	GetAttribute(name string) (string, error)
	IsDisplayed() (bool, error)
	IsEnabled() (bool, error)
}

// Driver is the capability set the framework needs from a browser or mobile
// automation session.
type Driver interface {
	Platform() Platform
	Get(url string) error
	CurrentURL() (string, error)
	Title() (string, error)
	FindElement(by By, value string) (Element, error)
	FindElements(by By, value string) ([]Element, error)
	ExecuteScript(script string, args ...interface{}) (interface{}, error)
	Cookies() ([]Cookie, error)
	AddCookie(c Cookie) error
	DeleteAllCookies() error
	Screenshot() ([]byte, error)
	Quit() error
}

// ErrNoUI is returned by the API platform driver for every UI operation.
var ErrNoUI = errors.New("no UI session: the run uses the api platform")

type apiDriver struct{}

// NewAPI returns the driver used by API-only runs. It has no cookies and
// rejects every UI operation.
func NewAPI() Driver {
	return apiDriver{}
}

func (apiDriver) Platform() Platform { return API }
func (apiDriver) Get(string) error { return ErrNoUI }
func (apiDriver) CurrentURL() (string, error) { return "", ErrNoUI }
func (apiDriver) Title() (string, error) { return "", ErrNoUI }
func (apiDriver) FindElement(By, string) (Element, error) { return nil, ErrNoUI }
func (apiDriver) FindElements(By, string) ([]Element, error) { return nil, ErrNoUI }
func (apiDriver) ExecuteScript(string, ...interface{}) (interface{}, error) { return nil, ErrNoUI }
func (apiDriver) Cookies() ([]Cookie, error) { return nil, nil }
func (apiDriver) AddCookie(Cookie) error { return ErrNoUI }
func (apiDriver) DeleteAllCookies() error { return nil }
func (apiDriver) Screenshot() ([]byte, error) { return nil, ErrNoUI }
func (apiDriver) Quit() error { return nil }
