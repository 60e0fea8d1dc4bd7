package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Tracker endpoint names used by Calls and FailOn.
const (
	EndpointProject       = "GET project"
	EndpointSearch        = "GET search"
	EndpointCreateIssue   = "POST issue"
	EndpointUpdateIssue   = "PUT issue"
	EndpointLink          = "POST issueLink"
	EndpointCreateCycle   = "POST cycle"
	EndpointUpdateCycle   = "PUT cycle"
	EndpointAddTests      = "POST addTestsToCycle"
	EndpointJobProgress   = "GET jobProgress"
	EndpointExecutions    = "GET execution"
	EndpointNewExecution  = "POST execution"
	EndpointExecute       = "PUT execute"
	EndpointTestSteps     = "GET teststep"
	EndpointCreateStep    = "POST teststep"
	EndpointDeleteStep    = "DELETE teststep"
	EndpointNewStepResult = "POST stepResult"
	EndpointStepResult    = "PUT stepResult"
	EndpointAttachment    = "POST attachment"
)

// TestStep is a stored Zephyr test step.
type TestStep struct {
	ID     int64  `json:"id"`
	Step   string `json:"step"`
	Result string `json:"result"`
}

// Issue is a stored Jira test issue.
type Issue struct {
	ID          string
	Key         string
	Label       string
	Summary     string
	Description string
	Steps       []TestStep
}

// Execution is a stored Zephyr execution.
type Execution struct {
	ID       int64
	CycleID  string
	IssueID  string
	Status   string
	Comment  string
	Assignee string
}

// IDString returns the execution id as the tracker client sees it.
func (e Execution) IDString() string { return strconv.FormatInt(e.ID, 10) }

// StepResult is a stored Zephyr step result.
type StepResult struct {
	ID          int64
	StepID      string
	IssueID     string
	ExecutionID string
	Status      string
	Comment     *string
}

// Cycle is a stored test cycle.
type Cycle struct {
	ID      string
	Payload map[string]any
	EndDate string
}

// Upload is one attachment request.
type Upload struct {
	EntityType string
	EntityID   string
	Files      []string
}

// Version is a project version served by the fake.
type Version struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Released bool   `json:"released"`
	Archived bool   `json:"archived"`
}

// Tracker is an in-memory Jira/Zephyr server.
type Tracker struct {
	srv *httptest.Server

	mu          sync.Mutex
	projectID   string
	projectKey  string
	lead        string
	versions    []Version
	issues      []*Issue
	cycles      []*Cycle
	executions  []*Execution
	stepResults []*StepResult
	uploads     []Upload
	links       [][2]string
	jobs        map[string]float64
	calls       map[string]int
	failOn      map[string]int
	nextID      int64
}

// NewTracker starts a fake tracker for project "ZAPP" and stops it when
// the test ends.
func NewTracker(t testing.TB) *Tracker {
	tr := &Tracker{
		projectID:  "10000",
		projectKey: "ZAPP",
		lead:       "lead.user",
		versions: []Version{
			{ID: "101", Name: "1.0", Released: true},
			{ID: "102", Name: "1.1"},
			{ID: "103", Name: "1.2"},
			{ID: "104", Name: "old", Archived: true},
		},
		jobs:   map[string]float64{},
		calls:  map[string]int{},
		failOn: map[string]int{},
		nextID: 1000,
	}

	mux := http.NewServeMux()
	tr.route(mux, "GET /rest/api/2/project/{key}", EndpointProject, tr.project)
	tr.route(mux, "GET /rest/api/2/search", EndpointSearch, tr.search)
	tr.route(mux, "POST /rest/api/2/issue/{$}", EndpointCreateIssue, tr.createIssue)
	tr.route(mux, "PUT /rest/api/2/issue/{id}", EndpointUpdateIssue, tr.updateIssue)
	tr.route(mux, "POST /rest/api/2/issueLink/{$}", EndpointLink, tr.link)
	tr.route(mux, "POST /rest/zapi/latest/cycle/{$}", EndpointCreateCycle, tr.createCycle)
	tr.route(mux, "PUT /rest/zapi/latest/cycle/{$}", EndpointUpdateCycle, tr.updateCycle)
	tr.route(mux, "POST /rest/zapi/latest/execution/addTestsToCycle", EndpointAddTests, tr.addTests)
	tr.route(mux, "GET /rest/zapi/latest/execution/jobProgress/{token}", EndpointJobProgress, tr.jobProgress)
	tr.route(mux, "GET /rest/zapi/latest/execution/{$}", EndpointExecutions, tr.listExecutions)
	tr.route(mux, "POST /rest/zapi/latest/execution/{$}", EndpointNewExecution, tr.createExecution)
	tr.route(mux, "PUT /rest/zapi/latest/execution/{id}/execute", EndpointExecute, tr.execute)
	tr.route(mux, "GET /rest/zapi/latest/teststep/{issue}", EndpointTestSteps, tr.testSteps)
	tr.route(mux, "POST /rest/zapi/latest/teststep/{issue}", EndpointCreateStep, tr.createStep)
	tr.route(mux, "DELETE /rest/zapi/latest/teststep/{issue}/{step}", EndpointDeleteStep, tr.deleteStep)
	tr.route(mux, "POST /rest/zapi/latest/stepResult/{$}", EndpointNewStepResult, tr.createStepResult)
	tr.route(mux, "PUT /rest/zapi/latest/stepResult/{id}", EndpointStepResult, tr.updateStepResult)
	tr.route(mux, "POST /rest/zapi/latest/attachment", EndpointAttachment, tr.attachment)

	tr.srv = httptest.NewServer(mux)
	t.Cleanup(tr.srv.Close)
	return tr
}

// URL is the Jira base URL of the fake, with a trailing slash.
func (tr *Tracker) URL() string { return tr.srv.URL + "/" }

// ProjectID is the id of the served project.
func (tr *Tracker) ProjectID() string { return tr.projectID }

// Lead is the project lead name.
func (tr *Tracker) Lead() string { return tr.lead }

// FailOn makes every call to endpoint answer with status.
func (tr *Tracker) FailOn(endpoint string, status int) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.failOn[endpoint] = status
}

// Calls returns how many requests endpoint received.
func (tr *Tracker) Calls(endpoint string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.calls[endpoint]
}

// TotalCalls returns the number of requests received.
func (tr *Tracker) TotalCalls() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	total := 0
	for _, n := range tr.calls {
		total += n
	}
	return total
}

// ResetCalls clears the call counters.
func (tr *Tracker) ResetCalls() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.calls = map[string]int{}
}

// AddIssue stores an existing issue. Step ids are assigned when zero.
func (tr *Tracker) AddIssue(issue Issue) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if issue.ID == "" {
		issue.ID = tr.newID()
	}
	for i := range issue.Steps {
		if issue.Steps[i].ID == 0 {
			id, _ := strconv.ParseInt(tr.newID(), 10, 64)
			issue.Steps[i].ID = id
		}
	}
	stored := issue
	tr.issues = append(tr.issues, &stored)
}

// Issue returns a copy of the issue with key.
func (tr *Tracker) Issue(key string) (Issue, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, is := range tr.issues {
		if is.Key == key {
			c := *is
			c.Steps = append([]TestStep(nil), is.Steps...)
			return c, true
		}
	}
	return Issue{}, false
}

// IssueByLabel returns a copy of the first issue carrying label.
func (tr *Tracker) IssueByLabel(label string) (Issue, bool) {
	tr.mu.Lock()
	key := ""
	for _, is := range tr.issues {
		if is.Label == label {
			key = is.Key
			break
		}
	}
	tr.mu.Unlock()
	if key == "" {
		return Issue{}, false
	}
	return tr.Issue(key)
}

// Executions returns copies of every execution.
func (tr *Tracker) Executions() []Execution {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Execution, 0, len(tr.executions))
	for _, e := range tr.executions {
		out = append(out, *e)
	}
	return out
}

// StepResults returns copies of every step result.
func (tr *Tracker) StepResults() []StepResult {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]StepResult, 0, len(tr.stepResults))
	for _, s := range tr.stepResults {
		out = append(out, *s)
	}
	return out
}

// Cycles returns copies of every cycle.
func (tr *Tracker) Cycles() []Cycle {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]Cycle, 0, len(tr.cycles))
	for _, c := range tr.cycles {
		out = append(out, *c)
	}
	return out
}

// Uploads returns every attachment request.
func (tr *Tracker) Uploads() []Upload {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Upload(nil), tr.uploads...)
}

// Links returns the (story, issue) pairs linked so far.
func (tr *Tracker) Links() [][2]string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([][2]string(nil), tr.links...)
}

func (tr *Tracker) newID() string {
	tr.nextID++
	return strconv.FormatInt(tr.nextID, 10)
}

func (tr *Tracker) route(mux *http.ServeMux, pattern, endpoint string, h func(http.ResponseWriter, *http.Request)) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		tr.mu.Lock()
		tr.calls[endpoint]++
		status := tr.failOn[endpoint]
		tr.mu.Unlock()

		if status != 0 {
			http.Error(w, fmt.Sprintf(`{"errorMessages":["%s failed"]}`, endpoint), status)
			return
		}
		h(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

func (tr *Tracker) project(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("key") != tr.projectKey {
		http.Error(w, "no project", http.StatusNotFound)
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	writeJSON(w, map[string]any{
		"id":       tr.projectID,
		"key":      tr.projectKey,
		"lead":     map[string]any{"name": tr.lead},
		"versions": tr.versions,
	})
}

func (tr *Tracker) search(w http.ResponseWriter, r *http.Request) {
	jql := r.URL.Query().Get("jql")
	label := ""
	if i := strings.Index(jql, `in("`); i >= 0 {
		label = strings.TrimSuffix(jql[i+4:], `")`)
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	var found []map[string]any
	for _, is := range tr.issues {
		if is.Label == label {
			found = append(found, map[string]any{
				"id":  is.ID,
				"key": is.Key,
				"fields": map[string]any{
					"summary":     is.Summary,
					"description": is.Description,
				},
			})
		}
	}
	writeJSON(w, map[string]any{"total": len(found), "issues": found})
}

func (tr *Tracker) createIssue(w http.ResponseWriter, r *http.Request) {
	fields, _ := readJSON(r)["fields"].(map[string]any)
	labels, _ := fields["labels"].([]any)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	is := &Issue{
		ID:          tr.newID(),
		Summary:     str(fields["summary"]),
		Description: str(fields["description"]),
	}
	is.Key = fmt.Sprintf("%s-%d", tr.projectKey, len(tr.issues)+1)
	if len(labels) > 0 {
		is.Label = str(labels[0])
	}
	tr.issues = append(tr.issues, is)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{"id": is.ID, "key": is.Key})
}

func (tr *Tracker) findIssue(id string) *Issue {
	for _, is := range tr.issues {
		if is.ID == id {
			return is
		}
	}
	return nil
}

func (tr *Tracker) updateIssue(w http.ResponseWriter, r *http.Request) {
	fields, _ := readJSON(r)["fields"].(map[string]any)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	is := tr.findIssue(r.PathValue("id"))
	if is == nil {
		http.Error(w, "no issue", http.StatusNotFound)
		return
	}
	is.Summary = str(fields["summary"])
	is.Description = str(fields["description"])
	w.WriteHeader(http.StatusNoContent)
}

func (tr *Tracker) link(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	inward, _ := body["inwardIssue"].(map[string]any)
	outward, _ := body["outwardIssue"].(map[string]any)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.links = append(tr.links, [2]string{str(inward["key"]), str(outward["key"])})
	w.WriteHeader(http.StatusCreated)
}

func (tr *Tracker) createCycle(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	c := &Cycle{ID: tr.newID(), Payload: body}
	tr.cycles = append(tr.cycles, c)
	writeJSON(w, map[string]any{"id": c.ID, "responseMessage": "Cycle created"})
}

func (tr *Tracker) updateCycle(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, c := range tr.cycles {
		if c.ID == str(body["id"]) {
			c.EndDate = str(body["endDate"])
		}
	}
	writeJSON(w, map[string]any{"id": body["id"]})
}

func (tr *Tracker) addExecution(cycleID, issueID string) *Execution {
	id, _ := strconv.ParseInt(tr.newID(), 10, 64)
	e := &Execution{ID: id, CycleID: cycleID, IssueID: issueID, Status: "-1"}
	tr.executions = append(tr.executions, e)
	return e
}

func (tr *Tracker) addTests(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	keys, _ := body["issues"].([]any)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, k := range keys {
		for _, is := range tr.issues {
			if is.Key == str(k) {
				tr.addExecution(str(body["cycleId"]), is.ID)
			}
		}
	}
	token := "job-" + tr.newID()
	tr.jobs[token] = 0
	writeJSON(w, map[string]any{"jobProgressToken": token})
}

func (tr *Tracker) jobProgress(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	tr.mu.Lock()
	defer tr.mu.Unlock()
	progress, ok := tr.jobs[token]
	if !ok {
		http.Error(w, "no job", http.StatusNotFound)
		return
	}
	progress += 0.5
	if progress > 1 {
		progress = 1
	}
	tr.jobs[token] = progress
	writeJSON(w, map[string]any{"progress": progress})
}

func (tr *Tracker) listExecutions(w http.ResponseWriter, r *http.Request) {
	cycleID := r.URL.Query().Get("cycleId")
	tr.mu.Lock()
	defer tr.mu.Unlock()
	list := []map[string]any{}
	for _, e := range tr.executions {
		if e.CycleID == cycleID {
			list = append(list, map[string]any{"id": e.ID, "issueId": e.IssueID})
		}
	}
	writeJSON(w, map[string]any{"executions": list})
}

func (tr *Tracker) createExecution(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	e := tr.addExecution(str(body["cycleId"]), str(body["issueId"]))
	writeJSON(w, map[string]any{
		strconv.FormatInt(e.ID, 10): map[string]any{"id": e.ID, "issueId": e.IssueID},
	})
}

func (tr *Tracker) execute(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, e := range tr.executions {
		if e.ID != id {
			continue
		}
		if s, ok := body["status"]; ok {
			e.Status = str(s)
			e.Comment = str(body["comment"])
		}
		if a, ok := body["assignee"]; ok {
			e.Assignee = str(a)
		}
		writeJSON(w, map[string]any{"id": e.ID})
		return
	}
	http.Error(w, "no execution", http.StatusNotFound)
}

type stepCollection struct {
	StepBeanCollection      []TestStep `json:"stepBeanCollection"`
	IsPreconditionAvailable bool       `json:"isPreconditionAvailable"`
}

func (tr *Tracker) testSteps(w http.ResponseWriter, r *http.Request) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	is := tr.findIssue(r.PathValue("issue"))
	if is == nil {
		http.Error(w, "no issue", http.StatusNotFound)
		return
	}
	writeJSON(w, stepCollection{StepBeanCollection: append([]TestStep{}, is.Steps...)})
}

func (tr *Tracker) createStep(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	is := tr.findIssue(r.PathValue("issue"))
	if is == nil {
		http.Error(w, "no issue", http.StatusNotFound)
		return
	}
	id, _ := strconv.ParseInt(tr.newID(), 10, 64)
	step := TestStep{ID: id, Step: str(body["step"]), Result: str(body["result"])}
	is.Steps = append(is.Steps, step)
	writeJSON(w, step)
}

func (tr *Tracker) deleteStep(w http.ResponseWriter, r *http.Request) {
	stepID, _ := strconv.ParseInt(r.PathValue("step"), 10, 64)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	is := tr.findIssue(r.PathValue("issue"))
	if is == nil {
		http.Error(w, "no issue", http.StatusNotFound)
		return
	}
	kept := is.Steps[:0]
	for _, s := range is.Steps {
		if s.ID != stepID {
			kept = append(kept, s)
		}
	}
	is.Steps = kept
	writeJSON(w, map[string]any{})
}

func (tr *Tracker) createStepResult(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	id, _ := strconv.ParseInt(tr.newID(), 10, 64)
	sr := &StepResult{
		ID:          id,
		StepID:      str(body["stepId"]),
		IssueID:     str(body["issueId"]),
		ExecutionID: str(body["executionId"]),
		Status:      str(body["status"]),
	}
	if c, ok := body["comment"].(string); ok {
		sr.Comment = &c
	}
	tr.stepResults = append(tr.stepResults, sr)
	writeJSON(w, map[string]any{"id": sr.ID})
}

func (tr *Tracker) updateStepResult(w http.ResponseWriter, r *http.Request) {
	body := readJSON(r)
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, sr := range tr.stepResults {
		if sr.ID == id {
			sr.Status = str(body["status"])
			sr.Comment = nil
			if c, ok := body["comment"].(string); ok {
				sr.Comment = &c
			}
			writeJSON(w, map[string]any{"id": sr.ID})
			return
		}
	}
	http.Error(w, "no step result", http.StatusNotFound)
}

func (tr *Tracker) attachment(w http.ResponseWriter, r *http.Request) {
	up := Upload{
		EntityType: r.URL.Query().Get("entityType"),
		EntityID:   r.URL.Query().Get("entityId"),
	}
	if err := r.ParseMultipartForm(10 << 20); err == nil && r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["file"] {
			up.Files = append(up.Files, fh.Filename)
		}
	}
	sort.Strings(up.Files)
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.uploads = append(tr.uploads, up)
	writeJSON(w, map[string]any{"success": true})
}
