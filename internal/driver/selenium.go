package driver

import (
	"fmt"

	"zapp/pkg/logging"

	"github.com/tebeka/selenium"
)

// RemoteConfig describes a remote WebDriver or Appium session.
type RemoteConfig struct {
	URL            string
	Browser        string
	BrowserVersion string
	Platform       Platform
	// Capabilities are merged over the generated ones.
	Capabilities map[string]interface{}
}

// capabilities builds the session capabilities for cfg.
func (cfg RemoteConfig) capabilities() selenium.Capabilities {
	caps := selenium.Capabilities{}
	if cfg.Platform.Mobile() {
		caps["platformName"] = string(cfg.Platform)
		caps["appium:newCommandTimeout"] = 300
	} else {
		caps["browserName"] = cfg.Browser
		if cfg.BrowserVersion != "" {
			caps["browserVersion"] = cfg.BrowserVersion
		}
	}
	for k, v := range cfg.Capabilities {
		caps[k] = v
	}
	return caps
}

// OpenRemote starts a new session on the remote executor.
func OpenRemote(cfg RemoteConfig) (Driver, error) {
	wd, err := selenium.NewRemote(cfg.capabilities(), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s session on %s: %w", cfg.Platform, cfg.URL, err)
	}
	logging.Info("Driver", "Started %s session %s on %s", cfg.Platform, wd.SessionID(), cfg.URL)
	return Wrap(wd, cfg.Platform), nil
}

// Wrap adapts an existing Selenium session.
func Wrap(wd selenium.WebDriver, platform Platform) Driver {
	return &seleniumDriver{wd: wd, platform: platform}
}

type seleniumDriver struct {
	wd       selenium.WebDriver
	platform Platform
}

func (d *seleniumDriver) Platform() Platform { return d.platform }

func (d *seleniumDriver) Get(url string) error {
	return d.wd.Get(url)
}

func (d *seleniumDriver) CurrentURL() (string, error) {
	return d.wd.CurrentURL()
}

func (d *seleniumDriver) Title() (string, error) {
	return d.wd.Title()
}

func (d *seleniumDriver) FindElement(by By, value string) (Element, error) {
	el, err := d.wd.FindElement(string(by), value)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (d *seleniumDriver) FindElements(by By, value string) ([]Element, error) {
	found, err := d.wd.FindElements(string(by), value)
	if err != nil {
		return nil, err
	}
	elements := make([]Element, len(found))
	for i, el := range found {
		elements[i] = el
	}
	return elements, nil
}

func (d *seleniumDriver) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	if args == nil {
		args = []interface{}{}
	}
	return d.wd.ExecuteScript(script, args)
}

func (d *seleniumDriver) Cookies() ([]Cookie, error) {
	raw, err := d.wd.GetCookies()
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, len(raw))
	for i, c := range raw {
		cookies[i] = Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path}
	}
	return cookies, nil
}

func (d *seleniumDriver) AddCookie(c Cookie) error {
	return d.wd.AddCookie(&selenium.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
}

func (d *seleniumDriver) DeleteAllCookies() error {
	return d.wd.DeleteAllCookies()
}

func (d *seleniumDriver) Screenshot() ([]byte, error) {
	return d.wd.Screenshot()
}

func (d *seleniumDriver) Quit() error {
	return d.wd.Quit()
}
