package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/template"

	"github.com/gi8lino/jiralink/internal/domain"
)

// Actions reported per synced issue.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionKept    = "unchanged"
	ActionSkipped = "skipped" // dry run
)

// CommentClient is the subset of the tracker client the Updater needs.
type CommentClient interface {
	GetCommentsFor(ctx context.Context, issueKey string) ([]domain.Comment, error)
	AddComment(ctx context.Context, issueKey, text string) (domain.Comment, error)
	UpdateComment(ctx context.Context, issueKey string, comment domain.Comment) (domain.Comment, error)
}

// Options configures an Updater.
type Options struct {
	Marker    string // identifies the managed comment
	Template  string // text/template for the comment body
	ReportURL string
	DryRun    bool
	Logger    *slog.Logger
}

// Updater keeps one report-link comment per issue up to date.
type Updater struct {
	client    CommentClient
	marker    string
	tmpl      *template.Template
	reportURL string
	dryRun    bool
	logger    *slog.Logger
}

// TemplateData is passed to the comment template.
type TemplateData struct {
	Marker     string
	ReportURL  string
	ReportName string
	Key        string
}

// Result is the outcome of syncing one issue.
type Result struct {
	Key       string `json:"key"`
	Action    string `json:"action"`
	CommentID int64  `json:"commentId,omitempty"`
	Text      string `json:"text"`
}

// NewUpdater parses the comment template and returns an Updater.
func NewUpdater(client CommentClient, opts Options) (*Updater, error) {
	if client == nil {
		return nil, errors.New("missing comment client")
	}
	if strings.TrimSpace(opts.Marker) == "" {
		return nil, errors.New("missing comment marker")
	}
	tmpl, err := template.New("comment").
		Funcs(TemplateFuncMap()).
		Option("missingkey=error").
		Parse(opts.Template)
	if err != nil {
		return nil, fmt.Errorf("parse comment template: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Updater{
		client:    client,
		marker:    opts.Marker,
		tmpl:      tmpl,
		reportURL: strings.TrimRight(opts.ReportURL, "/"),
		dryRun:    opts.DryRun,
		logger:    logger,
	}, nil
}

// Sync adds or updates the report-link comment on every issue.
// Issue references may carry a leading '#'. It stops at the first failing issue.
func (u *Updater) Sync(ctx context.Context, issueKeys []string, reportName string) ([]Result, error) {
	results := make([]Result, 0, len(issueKeys))
	for _, ref := range issueKeys {
		key := StripHash(ref)
		if key == "" {
			continue
		}
		res, err := u.syncOne(ctx, key, reportName)
		if err != nil {
			return results, fmt.Errorf("sync comment on %s: %w", key, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// syncOne adds or updates the comment of a single issue.
func (u *Updater) syncOne(ctx context.Context, key, reportName string) (Result, error) {
	text, err := u.render(key, reportName)
	if err != nil {
		return Result{}, err
	}

	if u.dryRun {
		u.logger.Info("--- DRY RUN ONLY: tracker will not be updated ---", "issue", key)
	}
	u.logger.Info("updating tracker issue", "issue", key)

	comments, err := u.client.GetCommentsFor(ctx, key)
	if err != nil {
		return Result{}, err
	}
	existing, found := u.findExisting(comments)

	switch {
	case found && existing.Text == text:
		return Result{Key: key, Action: ActionKept, CommentID: existing.ID, Text: text}, nil
	case u.dryRun:
		return Result{Key: key, Action: ActionSkipped, CommentID: existing.ID, Text: text}, nil
	case found:
		existing.Text = text
		updated, err := u.client.UpdateComment(ctx, key, existing)
		if err != nil {
			return Result{}, err
		}
		return Result{Key: key, Action: ActionUpdated, CommentID: pickID(updated.ID, existing.ID), Text: text}, nil
	default:
		added, err := u.client.AddComment(ctx, key, text)
		if err != nil {
			return Result{}, err
		}
		return Result{Key: key, Action: ActionAdded, CommentID: added.ID, Text: text}, nil
	}
}

// findExisting returns the first comment carrying the marker.
func (u *Updater) findExisting(comments []domain.Comment) (domain.Comment, bool) {
	for _, c := range comments {
		if strings.Contains(c.Text, u.marker) {
			return c, true
		}
	}
	return domain.Comment{}, false
}

// render executes the comment template for one issue.
// The result must contain the marker, otherwise the comment could not be found again.
func (u *Updater) render(key, reportName string) (string, error) {
	var buf bytes.Buffer
	err := u.tmpl.Execute(&buf, TemplateData{
		Marker:     u.marker,
		ReportURL:  u.reportURL,
		ReportName: reportName,
		Key:        key,
	})
	if err != nil {
		return "", fmt.Errorf("render comment: %w", err)
	}
	text := buf.String()
	if !strings.Contains(text, u.marker) {
		return "", fmt.Errorf("rendered comment %q does not contain marker %q", text, u.marker)
	}
	return text, nil
}

// StripHash removes surrounding spaces and one leading '#' from an issue reference.
func StripHash(ref string) string {
	return strings.TrimPrefix(strings.TrimSpace(ref), "#")
}

// pickID returns id, or fallback when the server did not echo one.
func pickID(id, fallback int64) int64 {
	if id != 0 {
		return id
	}
	return fallback
}
