package formatting

import (
	"encoding/json"
	"fmt"
	"time"

	"zapp/internal/lifecycle"
	"zapp/internal/locator"
	"zapp/internal/steps"
)

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt.Sprintf when the value cannot be marshaled.
//
// Example:
//
//	data := map[string]interface{}{"name": "test", "value": 42}
//	fmt.Println(formatting.PrettyJSON(data))
//	// Output:
//	// {
//	//   "name": "test",
//	//   "value": 42
//	// }
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Serializable views shared by the JSON and YAML formatters.

type scenarioView struct {
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
	Status   string `json:"status" yaml:"status"`
	Attempts int    `json:"attempts" yaml:"attempts"`
	Elapsed  string `json:"elapsed" yaml:"elapsed"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

type reportView struct {
	Success    bool              `json:"success" yaml:"success"`
	Passed     int               `json:"passed" yaml:"passed"`
	Failed     int               `json:"failed" yaml:"failed"`
	SyncMode   string            `json:"sync_mode,omitempty" yaml:"sync_mode,omitempty"`
	Sync       map[string]string `json:"zephyr_sync_results,omitempty" yaml:"zephyr_sync_results,omitempty"`
	SessionURL string            `json:"session_url,omitempty" yaml:"session_url,omitempty"`
	VideoURL   string            `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	Deprecated []string          `json:"deprecated_steps,omitempty" yaml:"deprecated_steps,omitempty"`
	Scenarios  []scenarioView    `json:"scenarios" yaml:"scenarios"`
}

type locatorView struct {
	Name     string `json:"name" yaml:"name"`
	Selector string `json:"selector" yaml:"selector"`
	Kind     string `json:"kind" yaml:"kind"`
	Source   string `json:"source" yaml:"source"`
}

type stepView struct {
	Pattern     string   `json:"pattern" yaml:"pattern"`
	Section     string   `json:"section" yaml:"section"`
	Doc         string   `json:"doc,omitempty" yaml:"doc,omitempty"`
	Unavailable []string `json:"unavailable_on,omitempty" yaml:"unavailable_on,omitempty"`
	Deprecated  string   `json:"replaced_by,omitempty" yaml:"replaced_by,omitempty"`
}

func viewReport(r lifecycle.Report) reportView {
	v := reportView{
		Success:    r.Success(),
		Passed:     r.Passed,
		Failed:     r.Failed,
		SyncMode:   string(r.SyncMode),
		Sync:       r.Sync,
		SessionURL: r.SessionURL,
		VideoURL:   r.VideoURL,
		Deprecated: r.Deprecated,
		Scenarios:  make([]scenarioView, 0, len(r.Scenarios)),
	}
	for _, sc := range r.Scenarios {
		sv := scenarioView{
			Name:     sc.Name,
			Location: sc.Location,
			Status:   sc.Status,
			Attempts: sc.Attempts,
			Elapsed:  formatElapsed(sc.Elapsed),
		}
		if sc.Err != nil {
			sv.Error = sc.Err.Error()
		}
		v.Scenarios = append(v.Scenarios, sv)
	}
	return v
}

func viewLocators(entries []locator.Entry) []locatorView {
	out := make([]locatorView, 0, len(entries))
	for _, e := range entries {
		out = append(out, locatorView{
			Name:     e.Name,
			Selector: e.Selector,
			Kind:     string(locator.KindOf(e.Selector)),
			Source:   e.Source,
		})
	}
	return out
}

func viewSteps(defs []steps.Definition) []stepView {
	out := make([]stepView, 0, len(defs))
	for _, d := range defs {
		sv := stepView{Pattern: d.Pattern, Section: string(d.Section), Doc: d.Doc, Deprecated: d.Deprecated}
		for _, p := range d.Unavailable {
			sv.Unavailable = append(sv.Unavailable, string(p))
		}
		out = append(out, sv)
	}
	return out
}

// formatElapsed rounds durations for display.
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
