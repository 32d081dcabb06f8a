package jira

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gi8lino/jiralink/internal/cache"
	"github.com/gi8lino/jiralink/internal/domain"
	"github.com/gi8lino/jiralink/internal/metrics"
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	SkipTLSVerify bool
	Timeout       time.Duration
	BatchSize     int
	CacheSize     int
	CustomFields  []string // custom field names resolved on every issue
	Logger        *slog.Logger
	Metrics       *metrics.Collector
	HTTPClient    *http.Client // overrides the tuned default client
}

// lookup is a cached findByKey outcome; found is false for issues that do not exist.
type lookup struct {
	issue domain.IssueSummary
	found bool
}

// Client handles communication with the tracker REST API.
// It is safe for concurrent use.
type Client struct {
	APIURL *url.URL     // Base API URL (must include /rest/api/X)
	Client *http.Client // Underlying HTTP client

	auth         AuthFunc
	logger       *slog.Logger
	metrics      *metrics.Collector
	batchSize    int
	customFields []string

	byKey      *cache.Loader[lookup]
	byQuery    *cache.Loader[[]domain.IssueSummary]
	fieldIndex *cache.Loader[FieldIndex]
}

// NewClient returns a client for apiURL that authenticates every request with auth.
func NewClient(apiURL *url.URL, auth AuthFunc, opts Options) (*Client, error) {
	if apiURL == nil {
		return nil, errors.New("missing tracker API URL")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = newHTTPClient(opts.SkipTLSVerify, opts.Timeout)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	byKey, err := cache.NewLoader[lookup]("byKey", opts.CacheSize, opts.Metrics)
	if err != nil {
		return nil, err
	}
	byQuery, err := cache.NewLoader[[]domain.IssueSummary]("byQuery", opts.CacheSize, opts.Metrics)
	if err != nil {
		return nil, err
	}
	fieldIndex, err := cache.NewLoader[FieldIndex]("fields", 1, opts.Metrics)
	if err != nil {
		return nil, err
	}

	return &Client{
		APIURL:       apiURL,
		Client:       hc,
		auth:         auth,
		logger:       logger,
		metrics:      opts.Metrics,
		batchSize:    batch,
		customFields: slices.Clone(opts.CustomFields),
		byKey:        byKey,
		byQuery:      byQuery,
		fieldIndex:   fieldIndex,
	}, nil
}

// BatchSize returns the page size used by Search.
func (c *Client) BatchSize() int { return c.batchSize }

// Search returns every issue matching jql in server order.
// Results are memoized per exact query string.
func (c *Client) Search(ctx context.Context, jql string) ([]domain.IssueSummary, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, errors.New("missing JQL query")
	}
	issues, err := c.byQuery.Get(ctx, jql, func(ctx context.Context) ([]domain.IssueSummary, error) {
		return c.searchAll(ctx, jql)
	})
	if err != nil {
		return nil, abandoned("search", err)
	}
	return slices.Clone(issues), nil
}

// FindByKey returns the issue with the given key. A missing issue is reported as
// found == false with a nil error. Results are memoized per key.
func (c *Client) FindByKey(ctx context.Context, key string) (issue domain.IssueSummary, found bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IssueSummary{}, false, errors.New("missing issue key")
	}
	res, err := c.byKey.Get(ctx, key, func(ctx context.Context) (lookup, error) {
		return c.loadByKey(ctx, key)
	})
	if err != nil {
		return domain.IssueSummary{}, false, abandoned("issue/"+key, err)
	}
	return res.issue, res.found, nil
}

// loadByKey fetches and decodes one issue.
func (c *Client) loadByKey(ctx context.Context, key string) (lookup, error) {
	resolve, _, err := c.resolver(ctx)
	if err != nil {
		return lookup{}, err
	}

	path := "issue/" + url.PathEscape(key)
	status, body, err := c.get(ctx, path, map[string]string{"expand": "renderedFields"})
	if err != nil {
		return lookup{}, fmt.Errorf("find issue %s: %w", key, err)
	}
	if status == http.StatusNotFound {
		c.logger.Debug("issue not found", "key", key)
		return lookup{}, nil
	}
	if status != http.StatusOK {
		return lookup{}, Classify(status, path, body)
	}

	is, err := DecodeIssue(body, resolve)
	if err != nil {
		c.logDecodeFailure(err)
		return lookup{}, err
	}
	return lookup{issue: is, found: true}, nil
}

// FindVersionsForProject returns all versions of a project.
func (c *Client) FindVersionsForProject(ctx context.Context, project string) ([]domain.Version, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, errors.New("missing project")
	}

	path := "project/" + url.PathEscape(project) + "/versions"
	status, body, err := c.get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("find versions of %s: %w", project, err)
	}
	if status != http.StatusOK {
		return nil, Classify(status, path, body)
	}

	versions, err := DecodeVersions(body)
	if err != nil {
		c.logDecodeFailure(err)
		return nil, err
	}
	return versions, nil
}

// Invalidate drops cached results for an issue key and any cached queries.
func (c *Client) Invalidate(key string) {
	c.byKey.Invalidate(key)
	c.byQuery.Purge()
}

// logDecodeFailure logs a decode error together with the offending payload.
func (c *Client) logDecodeFailure(err error) {
	var de *DecodeError
	if !errors.As(err, &de) {
		return
	}
	c.logger.Error("failed to decode tracker response",
		"what", de.What,
		"error", de.Err,
		"raw", string(trim([]byte(de.Raw), 2048)),
	)
}
