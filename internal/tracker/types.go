package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is a Zephyr execution or step result status code.
type Status string

const (
	Passed     Status = "1"
	Failed     Status = "2"
	InProgress Status = "3"
	Untested   Status = "4"
	Blocked    Status = "4"
	Skipped    Status = "-1"
)

var statusNames = map[string]Status{
	"passed":      Passed,
	"failed":      Failed,
	"in_progress": InProgress,
	"untested":    Untested,
	"blocked":     Blocked,
	"skipped":     Skipped,
}

// StatusOf maps a result name onto its status code. Unknown names
// (undefined or pending steps) are reported as untested.
func StatusOf(name string) Status {
	if s, ok := statusNames[strings.ToLower(name)]; ok {
		return s
	}
	return Untested
}

// Severity orders statuses for worst-of reduction: a larger value is
// worse.
func (s Status) Severity() int {
	n, err := strconv.Atoi(string(s))
	if err != nil {
		return 0
	}
	return n
}

// Worst reduces statuses to the most severe one. An empty list is
// untested.
func Worst(statuses ...Status) Status {
	if len(statuses) == 0 {
		return Untested
	}
	worst := statuses[0]
	for _, s := range statuses[1:] {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// ID is a tracker-assigned identifier. Jira sends ids as strings and
// Zephyr as numbers; both decode into ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int returns the numeric value of the id, or -1.
func (id ID) Int() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// MaxID returns the numerically largest id.
func MaxID(ids []ID) ID {
	var best ID
	for _, id := range ids {
		if best == "" || id.Int() > best.Int() {
			best = id
		}
	}
	return best
}

// Version is a Jira project version.
type Version struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Released bool   `json:"released"`
	Archived bool   `json:"archived"`
}

// Project is the subset of a Jira project the sync needs.
type Project struct {
	ID   ID     `json:"id"`
	Key  string `json:"key"`
	Lead struct {
		Name string `json:"name"`
	} `json:"lead"`
	Versions []Version `json:"versions"`
}

const (
	// UnplannedVersionID and UnplannedVersionName select no version.
	UnplannedVersionID   ID = "-1"
	UnplannedVersionName    = "Unplanned"
)

// SelectVersion picks the version cycles are created in. An explicit
// name wins; STAGE runs use the newest unreleased version and PROD runs
// the newest version whose release flag differs from deploy. Anything
// else is unplanned.
func (p Project) SelectVersion(env, name string, deploy bool) (ID, string) {
	var (
		chosen *Version
		keep   func(Version) bool
	)

	switch {
	case len(p.Versions) == 0:
	case name != "":
		for i := range p.Versions {
			if p.Versions[i].Name == name {
				chosen = &p.Versions[i]
				break
			}
		}
	case strings.EqualFold(env, "stage"):
		keep = func(v Version) bool { return !v.Released && !v.Archived }
	case strings.EqualFold(env, "prod"):
		keep = func(v Version) bool { return v.Released != deploy && !v.Archived }
	}

	if keep != nil {
		for i := range p.Versions {
			v := p.Versions[i]
			if keep(v) && (chosen == nil || v.ID.Int() > chosen.ID.Int()) {
				chosen = &p.Versions[i]
			}
		}
	}

	if chosen == nil {
		return UnplannedVersionID, UnplannedVersionName
	}
	return chosen.ID, chosen.Name
}

// Issue is a Jira test issue.
type Issue struct {
	ID     ID     `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
	} `json:"fields"`
}

// SearchResult is the answer of a label search.
type SearchResult struct {
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}

// TestStep is one Zephyr test step of an issue.
type TestStep struct {
	ID     ID     `json:"id"`
	Step   string `json:"step"`
	Result string `json:"result"`
}

// Execution is one Zephyr execution of an issue in a cycle.
type Execution struct {
	ID      ID `json:"id"`
	IssueID ID `json:"issueId"`
}

// Cycle is the payload of a test cycle creation.
type Cycle struct {
	Description string `json:"description"`
	Environment string `json:"environment"`
	Name        string `json:"name"`
	StartDate   string `json:"startDate"`
	ProjectID   ID     `json:"projectId"`
	VersionID   ID     `json:"versionId"`
	Build       string `json:"build"`
}

// StepResult is the payload of a step result creation.
type StepResult struct {
	StepID      ID     `json:"stepId"`
	IssueID     ID     `json:"issueId"`
	ExecutionID ID     `json:"executionId"`
	Status      Status `json:"status"`
	Comment     string `json:"comment,omitempty"`
}

// Attachment is one uploaded file.
type Attachment struct {
	Name string
	Data []byte
}

// Attachment entity types.
const (
	EntityStepResult = "TESTSTEPRESULT"
	EntityExecution  = "SCHEDULE"
)
