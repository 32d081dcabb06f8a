package jira

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(r *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// hitCounter counts requests per path.
type hitCounter struct {
	mu   sync.Mutex
	hits map[string]int
	reqs []*http.Request
}

func (h *hitCounter) record(r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.hits == nil {
		h.hits = map[string]int{}
	}
	h.hits[r.URL.Path]++
	h.reqs = append(h.reqs, r)
}

func (h *hitCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

func (h *hitCounter) requests() []*http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*http.Request(nil), h.reqs...)
}

func (h *hitCounter) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reqs)
}

// newTestClient starts handler behind an httptest server and returns a client for its /rest/api/2 base.
func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) (*Client, *hitCounter, *bytes.Buffer) {
	t.Helper()

	hits := &hitCounter{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.record(r)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	apiURL, err := url.Parse(srv.URL + "/rest/api/2/")
	require.NoError(t, err)

	var logs bytes.Buffer
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	opts.HTTPClient = srv.Client()

	c, err := NewClient(apiURL, NewBasicAuth("user", "secret"), opts)
	require.NoError(t, err)
	return c, hits, &logs
}

// issueJSON renders a minimal valid issue object.
func issueJSON(id int, extra string) string {
	fields := fmt.Sprintf(`"summary":"Issue %d","description":"desc %d","issuetype":{"name":"Story"},"labels":["l%d"],"fixVersions":[{"name":"1.%d"}]`, id, id, id, id)
	if extra != "" {
		fields += "," + extra
	}
	return fmt.Sprintf(`{"self":"https://jira.example.com/rest/api/2/issue/%d","id":"%d","key":"DEMO-%d","fields":{%s}}`, id, id, id, fields)
}

// writeJSON writes body with status.
func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body)) // nolint:errcheck
}

// joinIssues renders a search page body.
func joinIssues(total int, issues []string) string {
	return fmt.Sprintf(`{"startAt":0,"total":%d,"issues":[%s]}`, total, strings.Join(issues, ","))
}
