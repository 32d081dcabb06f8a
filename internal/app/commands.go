package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gi8lino/jiralink/internal/config"
	"github.com/gi8lino/jiralink/internal/domain"
	"github.com/gi8lino/jiralink/internal/flag"
	"github.com/gi8lino/jiralink/internal/jira"
	"github.com/gi8lino/jiralink/internal/tracker"
)

// commandEnv carries everything a command needs.
type commandEnv struct {
	client *jira.Client
	cfg    config.Config
	flags  flag.Config
	logger *slog.Logger
}

// countResult is the output of the count command.
type countResult struct {
	JQL   string `json:"jql"`
	Total int    `json:"total"`
}

// statusResult is the output of the status and transition commands.
type statusResult struct {
	Key    string `json:"key"`
	Status string `json:"status,omitempty"`
	Action string `json:"action,omitempty"`
	DryRun bool   `json:"dryRun,omitempty"`
}

// dispatch runs the parsed command and returns its JSON-encodable result.
func dispatch(ctx context.Context, env *commandEnv) (any, error) {
	args := env.flags.Args
	switch env.flags.Command {
	case "search":
		if err := requireArgs(args, 1, "<jql>"); err != nil {
			return nil, err
		}
		return env.client.Search(ctx, strings.Join(args, " "))

	case "count":
		if err := requireArgs(args, 1, "<jql>"); err != nil {
			return nil, err
		}
		jql := strings.Join(args, " ")
		total, err := env.client.Count(ctx, jql)
		if err != nil {
			return nil, err
		}
		return countResult{JQL: jql, Total: total}, nil

	case "issue":
		if err := requireArgs(args, 1, "<key>"); err != nil {
			return nil, err
		}
		key := tracker.StripHash(args[0])
		is, found, err := env.client.FindByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("issue %s not found", key)
		}
		return is, nil

	case "versions":
		project, err := projectArg(args, env.cfg.Project)
		if err != nil {
			return nil, err
		}
		return env.client.FindVersionsForProject(ctx, project)

	case "fields":
		idx, err := env.client.CustomFields(ctx)
		if err != nil {
			return nil, err
		}
		return sortedFields(idx), nil

	case "options":
		if err := requireArgs(args, 1, "<field>"); err != nil {
			return nil, err
		}
		if env.cfg.Project == "" || env.cfg.IssueType == "" {
			return nil, fmt.Errorf("options needs project and issueType in the config")
		}
		return env.client.CascadingOptions(ctx, env.cfg.Project, env.cfg.IssueType, strings.Join(args, " ")), nil

	case "comments":
		if err := requireArgs(args, 1, "<key>"); err != nil {
			return nil, err
		}
		return env.client.GetCommentsFor(ctx, tracker.StripHash(args[0]))

	case "comment":
		if err := requireArgs(args, 1, "<key>..."); err != nil {
			return nil, err
		}
		updater, err := tracker.NewUpdater(env.client, tracker.Options{
			Marker:    env.cfg.Comment.Marker,
			Template:  env.cfg.Comment.Template,
			ReportURL: env.cfg.Comment.ReportURL,
			DryRun:    env.flags.DryRun,
			Logger:    env.logger,
		})
		if err != nil {
			return nil, err
		}
		return updater.Sync(ctx, args, env.flags.Report)

	case "status":
		if err := requireArgs(args, 1, "<key>"); err != nil {
			return nil, err
		}
		key := tracker.StripHash(args[0])
		status, err := env.client.GetStatusFor(ctx, key)
		if err != nil {
			return nil, err
		}
		return statusResult{Key: key, Status: status}, nil

	case "transition":
		if err := requireArgs(args, 2, "<key> <action>"); err != nil {
			return nil, err
		}
		key, action := tracker.StripHash(args[0]), strings.Join(args[1:], " ")
		if env.flags.DryRun {
			env.logger.Info("--- DRY RUN ONLY: tracker will not be updated ---", "issue", key, "action", action)
			return statusResult{Key: key, Action: action, DryRun: true}, nil
		}
		if err := env.client.DoTransition(ctx, key, action); err != nil {
			return nil, err
		}
		status, err := env.client.GetStatusFor(ctx, key)
		if err != nil {
			return nil, err
		}
		return statusResult{Key: key, Status: status, Action: action}, nil

	default:
		return nil, fmt.Errorf("unknown command %q", env.flags.Command)
	}
}

// requireArgs checks that at least n arguments were given.
func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("missing arguments: %s", usage)
	}
	return nil
}

// projectArg returns the first argument, or the configured project.
func projectArg(args []string, fallback string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if fallback == "" {
		return "", fmt.Errorf("missing arguments: <project> (or set project in the config)")
	}
	return fallback, nil
}

// sortedFields returns the field definitions ordered by name.
func sortedFields(idx jira.FieldIndex) []domain.CustomField {
	out := make([]domain.CustomField, 0, len(idx))
	for _, f := range idx {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
