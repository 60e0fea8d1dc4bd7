package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
)

// CreateCycle creates a test cycle and returns its id.
func (c *Client) CreateCycle(ctx context.Context, cycle Cycle) (ID, error) {
	var res struct {
		ID ID `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, zephyrBase+"cycle/", nil, cycle, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", fmt.Errorf("cycle creation returned no id")
	}
	return res.ID, nil
}

// CloseCycle sets the end date of a cycle.
func (c *Client) CloseCycle(ctx context.Context, id ID, endDate string) error {
	payload := map[string]any{"id": id, "endDate": endDate}
	return c.doJSON(ctx, http.MethodPut, zephyrBase+"cycle/", nil, payload, nil)
}

// AddTests describes a bulk addition of issues to a cycle.
type AddTests struct {
	// Method "1" adds individual issues; empty lets Zephyr pick.
	Method    string   `json:"method,omitempty"`
	CycleID   ID       `json:"cycleId"`
	Issues    []string `json:"issues"`
	ProjectID ID       `json:"projectId"`
	VersionID ID       `json:"versionId"`
}

// AddTestsToCycle starts adding issues to a cycle and returns the job
// progress token, which is empty when Zephyr ran the job inline.
func (c *Client) AddTestsToCycle(ctx context.Context, req AddTests) (string, error) {
	var res struct {
		Token string `json:"jobProgressToken"`
	}
	err := c.doJSON(ctx, http.MethodPost, zephyrBase+"execution/addTestsToCycle", nil, req, &res)
	return res.Token, err
}

// JobProgress returns the completion ratio of an add-tests job.
func (c *Client) JobProgress(ctx context.Context, token string) (float64, error) {
	var res struct {
		Progress float64 `json:"progress"`
	}
	query := url.Values{"type": {"add_tests_to_cycle_job_progress"}}
	err := c.doJSON(ctx, http.MethodGet, zephyrBase+"execution/jobProgress/"+url.PathEscape(token), query, nil, &res)
	return res.Progress, err
}

// Executions lists the executions of a cycle.
func (c *Client) Executions(ctx context.Context, cycleID, projectID, versionID ID) ([]Execution, error) {
	var res struct {
		Executions []Execution `json:"executions"`
	}
	query := url.Values{
		"cycleId":   {cycleID.String()},
		"projectId": {projectID.String()},
		"versionId": {versionID.String()},
	}
	err := c.doJSON(ctx, http.MethodGet, zephyrBase+"execution/", query, nil, &res)
	return res.Executions, err
}

// CreateExecution adds one execution of an issue to a cycle.
func (c *Client) CreateExecution(ctx context.Context, cycleID, issueID, projectID, versionID ID) (ID, error) {
	payload := map[string]any{
		"cycleId":   cycleID,
		"issueId":   issueID,
		"projectId": projectID,
		"versionId": versionID,
	}
	// the answer is keyed by the new execution id
	var res map[string]json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, zephyrBase+"execution/", nil, payload, &res); err != nil {
		return "", err
	}
	keys := make([]string, 0, len(res))
	for k := range res {
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("execution creation returned no id")
	}
	sort.Strings(keys)
	return ID(keys[0]), nil
}

// UpdateExecution sends an execute payload for an execution.
func (c *Client) UpdateExecution(ctx context.Context, id ID, payload any) error {
	return c.doJSON(ctx, http.MethodPut, zephyrBase+"execution/"+id.String()+"/execute", nil, payload, nil)
}

// SetExecutionStatus sets the status of an execution with a comment.
func (c *Client) SetExecutionStatus(ctx context.Context, id ID, status Status, comment string) error {
	return c.UpdateExecution(ctx, id, map[string]any{"status": status, "comment": comment})
}

// AssignExecution reassigns an execution.
func (c *Client) AssignExecution(ctx context.Context, id ID, assignee string) error {
	return c.UpdateExecution(ctx, id, map[string]any{
		"assigneeType":   "assignee",
		"assignee":       assignee,
		"changeAssignee": true,
	})
}

// TestSteps lists the test steps of an issue in order.
func (c *Client) TestSteps(ctx context.Context, issueID ID) ([]TestStep, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, zephyrBase+"teststep/"+issueID.String(), nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeSteps(raw)
}

// decodeSteps accepts both a bare list and an object whose first member
// holds the list.
func decodeSteps(raw json.RawMessage) ([]TestStep, error) {
	var steps []TestStep
	if err := json.Unmarshal(raw, &steps); err == nil {
		return steps, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("unexpected test steps payload")
	}
	if !dec.More() {
		return nil, nil
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read test steps: %w", err)
	}
	if err := dec.Decode(&steps); err != nil {
		return nil, fmt.Errorf("failed to decode test steps: %w", err)
	}
	return steps, nil
}

// CreateTestStep appends a step to an issue.
func (c *Client) CreateTestStep(ctx context.Context, issueID ID, step, result string) error {
	payload := map[string]any{"step": step, "result": result}
	return c.doJSON(ctx, http.MethodPost, zephyrBase+"teststep/"+issueID.String(), nil, payload, nil)
}

// DeleteTestStep removes a step from an issue.
func (c *Client) DeleteTestStep(ctx context.Context, issueID, stepID ID) error {
	return c.doJSON(ctx, http.MethodDelete, zephyrBase+"teststep/"+issueID.String()+"/"+stepID.String(), nil, nil, nil)
}

// CreateStepResult opens a step result and returns its id.
func (c *Client) CreateStepResult(ctx context.Context, sr StepResult) (ID, error) {
	var res struct {
		ID ID `json:"id"`
	}
	err := c.doJSON(ctx, http.MethodPost, zephyrBase+"stepResult/", nil, sr, &res)
	return res.ID, err
}

// UpdateStepResult sets the status of a step result. A nil comment is
// sent as null.
func (c *Client) UpdateStepResult(ctx context.Context, id ID, status Status, comment *string) error {
	payload := map[string]any{"status": status, "comment": comment}
	return c.doJSON(ctx, http.MethodPut, zephyrBase+"stepResult/"+id.String(), nil, payload, nil)
}

// UploadAttachments attaches files to a step result or an execution.
func (c *Client) UploadAttachments(ctx context.Context, entityType string, entityID ID, files []Attachment) error {
	query := url.Values{"entityType": {entityType}, "entityId": {entityID.String()}}
	return c.upload(ctx, zephyrBase+"attachment", query, files)
}
