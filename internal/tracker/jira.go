package tracker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// TestIssueTypeID is the Jira issue type of tests.
const TestIssueTypeID = "11500"

// LinkType is the Jira link between a story and its test.
const LinkType = "Связан"

// Project fetches a project by key.
func (c *Client) Project(ctx context.Context, key string) (Project, error) {
	var p Project
	err := c.doJSON(ctx, http.MethodGet, jiraBase+"project/"+url.PathEscape(key), nil, nil, &p)
	return p, err
}

// SearchByLabel finds the test issues carrying label.
func (c *Client) SearchByLabel(ctx context.Context, label string) (SearchResult, error) {
	var res SearchResult
	query := url.Values{"jql": {fmt.Sprintf(`issuetype=тест and labels in("%s")`, label)}}
	err := c.doJSON(ctx, http.MethodGet, jiraBase+"search", query, nil, &res)
	return res, err
}

// NewIssue describes a test issue to create.
type NewIssue struct {
	ProjectID   ID
	Summary     string
	Label       string
	Description string
}

// CreateIssue creates a test issue and returns its id and key.
func (c *Client) CreateIssue(ctx context.Context, n NewIssue) (Issue, error) {
	payload := map[string]any{
		"fields": map[string]any{
			"project":     map[string]any{"id": n.ProjectID},
			"summary":     n.Summary,
			"issuetype":   map[string]any{"id": TestIssueTypeID},
			"labels":      []string{n.Label},
			"description": n.Description,
			"assignee":    map[string]any{"name": ""},
		},
	}
	var issue Issue
	if err := c.doJSON(ctx, http.MethodPost, jiraBase+"issue/", nil, payload, &issue); err != nil {
		return Issue{}, err
	}
	issue.Fields.Summary = n.Summary
	issue.Fields.Description = n.Description
	return issue, nil
}

// UpdateIssue rewrites the summary and description of an issue.
func (c *Client) UpdateIssue(ctx context.Context, id ID, summary, description string) error {
	payload := map[string]any{
		"fields": map[string]any{"summary": summary, "description": description},
	}
	return c.doJSON(ctx, http.MethodPut, jiraBase+"issue/"+id.String(), nil, payload, nil)
}

// Link relates a story to a test issue.
func (c *Client) Link(ctx context.Context, storyKey, issueKey string) error {
	payload := map[string]any{
		"type":         map[string]any{"name": LinkType},
		"inwardIssue":  map[string]any{"key": storyKey},
		"outwardIssue": map[string]any{"key": issueKey},
	}
	return c.doJSON(ctx, http.MethodPost, jiraBase+"issueLink/", nil, payload, nil)
}
