package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
)

// DefaultBatchSize is the page size used when none is configured.
const DefaultBatchSize = 100

// searchFields are the issue fields requested for every search page.
var searchFields = []string{"key", "summary", "description", "issuetype", "labels", "fixVersions"}

// searchPage is one decoded page of a search.
type searchPage struct {
	total  int // -1 when the page did not report a total
	issues []domain.IssueSummary
}

// searchAll collects every issue matching jql, page by page and in server order.
// The next page starts after the issues actually received, so a server capping
// maxResults below the batch size leaves no gaps. It is all-or-nothing: any failing
// page, or a result that ends short of the total without the total shrinking,
// aborts the search.
func (c *Client) searchAll(ctx context.Context, jql string) ([]domain.IssueSummary, error) {
	total, err := c.Count(ctx, jql)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []domain.IssueSummary{}, nil
	}

	resolve, idx, err := c.resolver(ctx)
	if err != nil {
		return nil, err
	}
	fields := append(append([]string{}, searchFields...), idx.IDs(c.customFields)...)

	issues := make([]domain.IssueSummary, 0, total)
	seen := make(map[string]struct{}, total)
	for startAt := 0; len(issues) < total; {
		page, err := c.fetchPage(ctx, jql, startAt, fields, resolve)
		if err != nil {
			return nil, err
		}
		// a shrinking total is accepted, never re-queried
		if page.total >= 0 && page.total < total {
			total = page.total
		}
		if len(page.issues) < c.batchSize && len(issues)+len(page.issues) < total {
			c.logger.Debug("tracker returned a short page",
				"jql", jql,
				"startAt", startAt,
				"requested", c.batchSize,
				"received", len(page.issues),
			)
		}

		for _, is := range page.issues {
			if _, dup := seen[is.Key()]; dup {
				continue
			}
			seen[is.Key()] = struct{}{}
			issues = append(issues, is)
		}
		startAt += len(page.issues)

		if len(issues) >= total {
			break
		}
		if len(page.issues) == 0 || startAt >= total {
			return nil, &Error{
				Kind: KindTracker,
				Op:   "search",
				Err:  fmt.Errorf("incomplete result for %q: received %d of %d issues", jql, len(issues), total),
			}
		}
	}

	if len(issues) > total {
		issues = issues[:total]
	}
	return issues, nil
}

// Count returns the server-reported number of issues matching jql using a zero-result probe.
// A 400 answer counts as zero matches: a malformed query simply matches nothing.
func (c *Client) Count(ctx context.Context, jql string) (int, error) {
	if strings.TrimSpace(jql) == "" {
		return 0, errors.New("missing JQL query")
	}

	status, body, err := c.get(ctx, "search", map[string]string{
		"jql":        jql,
		"startAt":    "0",
		"maxResults": "0",
	})
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", jql, err)
	}
	if status == http.StatusBadRequest {
		c.logger.Debug("query rejected by tracker, treating as empty", "jql", jql)
		return 0, nil
	}
	if status != http.StatusOK {
		return 0, Classify(status, "search", body)
	}

	total := gjson.GetBytes(body, "total")
	if total.Type != gjson.Number || total.Int() < 0 {
		err := &DecodeError{What: "search count", Raw: string(body), Err: errors.New(`missing or invalid "total"`)}
		c.logDecodeFailure(err)
		return 0, err
	}
	c.logger.Debug("search count", "jql", jql, "total", total.Int())
	return int(total.Int()), nil
}

// fetchPage requests and decodes one page of at most batchSize issues starting at startAt.
func (c *Client) fetchPage(ctx context.Context, jql string, startAt int, fields []string, resolve CustomFieldResolver) (searchPage, error) {
	status, body, err := c.get(ctx, "search", map[string]string{
		"jql":        jql,
		"startAt":    strconv.Itoa(startAt),
		"maxResults": strconv.Itoa(c.batchSize),
		"fields":     strings.Join(fields, ","),
		"expand":     "renderedFields",
	})
	if err != nil {
		return searchPage{}, fmt.Errorf("search %q at %d: %w", jql, startAt, err)
	}
	if status != http.StatusOK {
		return searchPage{}, Classify(status, "search", body)
	}

	doc := gjson.ParseBytes(body)
	entries := doc.Get("issues")
	if !gjson.ValidBytes(body) || !entries.IsArray() {
		err := &DecodeError{What: "search page", Raw: string(body), Err: errors.New(`missing "issues"`)}
		c.logDecodeFailure(err)
		return searchPage{}, err
	}

	page := searchPage{total: -1}
	if t := doc.Get("total"); t.Type == gjson.Number {
		page.total = int(t.Int())
	}
	for _, e := range entries.Array() {
		is, err := decodeIssue(e, resolve)
		if err != nil {
			c.logDecodeFailure(err)
			return searchPage{}, err
		}
		page.issues = append(page.issues, is)
	}
	c.logger.Debug("search page",
		"jql", jql,
		"startAt", startAt,
		"maxResults", c.batchSize,
		"received", len(page.issues),
		"total", page.total,
	)
	return page, nil
}
