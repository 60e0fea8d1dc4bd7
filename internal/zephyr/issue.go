package zephyr

import (
	"context"
	"errors"
	"fmt"

	"zapp/internal/tracker"
	"zapp/pkg/logging"
)

// ErrAmbiguousLabel is returned when more than one test issue carries a
// label.
var ErrAmbiguousLabel = errors.New("zephyr label must be unique per test")

// Config selects the tracker project and version.
type Config struct {
	ProjectKey  string
	Env         string
	VersionName string
	Deploy      bool
}

type project struct {
	ID          tracker.ID
	Lead        string
	VersionID   tracker.ID
	VersionName string
}

func lookupProject(ctx context.Context, c *tracker.Client, cfg Config) (project, error) {
	p, err := c.Project(ctx, cfg.ProjectKey)
	if err != nil {
		return project{}, fmt.Errorf("failed to look up project %s: %w", cfg.ProjectKey, err)
	}
	versionID, versionName := p.SelectVersion(cfg.Env, cfg.VersionName, cfg.Deploy)
	logging.Debug("Zephyr", "Project lead: %s", p.Lead.Name)
	logging.Debug("Zephyr", "Project version: name=%s, id=%s", versionName, versionID)
	return project{ID: p.ID, Lead: p.Lead.Name, VersionID: versionID, VersionName: versionName}, nil
}

// resolveIssue finds the test issue carrying label, creating it when
// there is none.
func resolveIssue(ctx context.Context, c *tracker.Client, projectID tracker.ID, label, summary, description string) (tracker.Issue, error) {
	res, err := c.SearchByLabel(ctx, label)
	if err != nil {
		return tracker.Issue{}, fmt.Errorf("failed to search issue by label %s: %w", label, err)
	}

	switch {
	case res.Total == 1 && len(res.Issues) == 1:
		return res.Issues[0], nil
	case res.Total == 0:
		logging.Warn("Zephyr", "No test issue found with label %s", label)
		issue, err := c.CreateIssue(ctx, tracker.NewIssue{
			ProjectID:   projectID,
			Summary:     summary,
			Label:       label,
			Description: description,
		})
		if err != nil {
			return tracker.Issue{}, fmt.Errorf("failed to create test issue: %w", err)
		}
		logging.Info("Zephyr", "Created test issue %s", c.BrowseURL(issue.Key))
		return issue, nil
	default:
		for _, is := range res.Issues {
			logging.Error("Zephyr", ErrAmbiguousLabel, "Label %q found in %s", label, c.BrowseURL(is.Key))
		}
		return tracker.Issue{}, fmt.Errorf("%w: %s", ErrAmbiguousLabel, label)
	}
}

// reconcileIssue makes the issue match the scenario: summary and
// description are updated when they differ, and the test steps are fully
// replaced unless they already match.
func reconcileIssue(ctx context.Context, c *tracker.Client, issue tracker.Issue, summary, description string, pairs []stepPair) error {
	if issue.Fields.Summary != summary || issue.Fields.Description != description {
		logging.Warn("Zephyr", "Scenario name or background differs from %s", issue.Key)
		if err := c.UpdateIssue(ctx, issue.ID, summary, description); err != nil {
			return fmt.Errorf("failed to update issue %s: %w", issue.Key, err)
		}
		logging.Info("Zephyr", "Updated test issue %s", c.BrowseURL(issue.Key))
	}

	current, err := c.TestSteps(ctx, issue.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch test steps of %s: %w", issue.Key, err)
	}
	if sameSteps(pairs, current) {
		logging.Info("Zephyr", "Scenario steps match %s", issue.Key)
		return nil
	}

	logging.Warn("Zephyr", "Scenario steps differ from %s, replacing them", issue.Key)
	for _, step := range current {
		if err := c.DeleteTestStep(ctx, issue.ID, step.ID); err != nil {
			return fmt.Errorf("failed to delete test step %s: %w", step.ID, err)
		}
	}
	for _, p := range pairs {
		if err := c.CreateTestStep(ctx, issue.ID, p.Step, p.Result); err != nil {
			return fmt.Errorf("failed to create test step: %w", err)
		}
	}
	logging.Info("Zephyr", "Test steps replaced in %s", c.BrowseURL(issue.Key))
	return nil
}

func stepIDs(steps []tracker.TestStep) []tracker.ID {
	ids := make([]tracker.ID, 0, len(steps))
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	return ids
}

func logResults(results Results, order []string) {
	logging.Info("Zephyr", "Scenario results:")
	for _, name := range order {
		logging.Info("Zephyr", "\t%q: %s", name, results[name])
	}
}
