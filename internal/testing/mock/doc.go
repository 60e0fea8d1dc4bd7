// Package mock provides test doubles shared by the zapp packages: an
// in-memory UI driver, a recording fake of the Jira/Zephyr REST API and a
// controllable clock.
//
// Driver and Element implement the driver interfaces without a browser.
// Elements are registered per selector and can be made visible, hidden,
// disabled or failing at any point of a test, which lets the wait engine
// and the step library be exercised deterministically:
//
//	d := mock.NewDriver()
//	btn := mock.NewElement("Войти")
//	d.Put("#login", btn)
//
// Tracker is an httptest server speaking the subset of the Jira and
// Zephyr endpoints used by the sync components. It keeps issues, test
// steps, cycles and executions in memory and counts every call per
// endpoint so tests can assert exact call counts:
//
//	tr := mock.NewTracker(t)
//	tr.AddIssue(mock.Issue{ID: "10", Key: "ZAPP-1", Label: "login"})
//	client := tracker.New(tracker.Config{Host: tr.URL() + "/", ...})
//
// Failures can be injected per endpoint with Tracker.FailOn.
package mock
