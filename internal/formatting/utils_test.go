package formatting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"zapp/internal/driver"
	"zapp/internal/lifecycle"
	"zapp/internal/steps"
)

func TestPrettyJSON_VariableDump(t *testing.T) {
	dump := map[string]interface{}{
		"deal_id": 89,
		"user":    map[string]interface{}{"login": "иванов"},
	}
	want := "{\n  \"deal_id\": 89,\n  \"user\": {\n    \"login\": \"иванов\"\n  }\n}"
	assert.Equal(t, want, PrettyJSON(dump))

	assert.Equal(t, "null", PrettyJSON(nil))
	assert.NotEmpty(t, PrettyJSON(make(chan int)), "values that cannot be marshaled are printed as is")
}

func TestViewReport(t *testing.T) {
	report := lifecycle.Report{
		Scenarios: []lifecycle.ScenarioResult{
			{Name: "Оплата", Location: "pay.feature:4", Status: lifecycle.StatusFailed, Attempts: 3, Elapsed: 2340 * time.Millisecond, Err: errors.New("timeout")},
		},
		Failed:     1,
		Deprecated: []string{`Я ввел в "{target}" значение "{value}"`},
	}

	v := viewReport(report)
	assert.False(t, v.Success)
	assert.Equal(t, 1, v.Failed)
	assert.Equal(t, report.Deprecated, v.Deprecated)
	assert.Equal(t, scenarioView{
		Name:     "Оплата",
		Location: "pay.feature:4",
		Status:   lifecycle.StatusFailed,
		Attempts: 3,
		Elapsed:  "2.3s",
		Error:    "timeout",
	}, v.Scenarios[0])

	assert.NotNil(t, viewReport(lifecycle.Report{}).Scenarios, "empty report keeps a scenarios array")
}

func TestViewSteps(t *testing.T) {
	got := viewSteps([]steps.Definition{
		{Pattern: `Я очистил cookies`, Section: steps.SectionService, Unavailable: []driver.Platform{driver.Android, driver.IOS}},
	})
	assert.Equal(t, []string{string(driver.Android), string(driver.IOS)}, got[0].Unavailable)
	assert.Equal(t, string(steps.SectionService), got[0].Section)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0s", formatElapsed(0))
	assert.Equal(t, "42ms", formatElapsed(41600*time.Microsecond))
	assert.Equal(t, "1.5s", formatElapsed(1520*time.Millisecond))
	assert.Equal(t, "1m2.1s", formatElapsed(62080*time.Millisecond))
}
