package jira

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gi8lino/jiralink/internal/metrics"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("missing url", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient(nil, nil, Options{})
		assert.EqualError(t, err, "missing tracker API URL")
	})

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		u, _ := url.Parse("https://jira.example.com/rest/api/2/")
		c, err := NewClient(u, nil, Options{})
		require.NoError(t, err)
		assert.Equal(t, DefaultBatchSize, c.BatchSize())
		assert.Equal(t, 15*time.Second, c.Client.Timeout)
	})

	t.Run("custom batch size and timeout", func(t *testing.T) {
		t.Parallel()

		u, _ := url.Parse("https://jira.example.com/rest/api/2/")
		c, err := NewClient(u, nil, Options{BatchSize: 25, Timeout: time.Second})
		require.NoError(t, err)
		assert.Equal(t, 25, c.BatchSize())
		assert.Equal(t, time.Second, c.Client.Timeout)
	})
}

func TestFindByKey(t *testing.T) {
	t.Parallel()

	t.Run("second call is served from cache", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{})

		first, found, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		require.True(t, found)
		second, found, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		require.True(t, found)

		assert.True(t, first.Equal(second))
		assert.Equal(t, 1, hits.total())

		reqs := hits.requests()
		assert.Equal(t, "/rest/api/2/issue/DEMO-1", reqs[0].URL.Path)
		assert.Equal(t, "renderedFields", reqs[0].URL.Query().Get("expand"))
	})

	t.Run("concurrent callers share one request", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		var calls atomic.Int32
		c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			<-release
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{})

		const callers = 8
		var wg sync.WaitGroup
		keys := make([]string, callers)
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				is, _, err := c.FindByKey(t.Context(), "DEMO-1")
				if err == nil {
					keys[i] = is.Key()
				}
			}()
		}

		require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load())
		for _, k := range keys {
			assert.Equal(t, "DEMO-1", k)
		}
	})

	t.Run("cancelled caller leaves shared request to other callers", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		var calls atomic.Int32
		c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			<-release
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{})

		ctxA, cancelA := context.WithCancel(t.Context())
		errA := make(chan error, 1)
		go func() {
			_, _, err := c.FindByKey(ctxA, "DEMO-1")
			errA <- err
		}()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

		type lookupResult struct {
			key   string
			found bool
			err   error
		}
		resB := make(chan lookupResult, 1)
		go func() {
			is, found, err := c.FindByKey(context.Background(), "DEMO-1")
			resB <- lookupResult{is.Key(), found, err}
		}()

		cancelA()
		err := <-errA
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, context.Canceled)

		close(release)
		b := <-resB
		require.NoError(t, b.err)
		assert.True(t, b.found)
		assert.Equal(t, "DEMO-1", b.key)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("missing issue is absent and cached", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"errorMessages":["Issue Does Not Exist"]}`)
		}, Options{})

		_, found, err := c.FindByKey(t.Context(), "DEMO-404")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = c.FindByKey(t.Context(), "DEMO-404")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, 1, hits.total())
	})

	t.Run("decode failure is not cached", func(t *testing.T) {
		t.Parallel()

		var broken atomic.Bool
		broken.Store(true)
		c, hits, logs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if broken.Load() {
				writeJSON(w, http.StatusOK, `{"self":"nope","id":"1","key":"DEMO-1","fields":{"issuetype":{}}}`)
				return
			}
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{})

		_, _, err := c.FindByKey(t.Context(), "DEMO-1")
		assert.ErrorIs(t, err, ErrDecode)
		assert.Contains(t, logs.String(), "failed to decode tracker response")

		broken.Store(false)
		is, found, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "Issue 1", is.Summary())
		assert.Equal(t, 2, hits.total())
	})

	t.Run("server errors are classified and not cached", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, ``)
		}, Options{})

		_, _, err := c.FindByKey(t.Context(), "DEMO-1")
		assert.ErrorIs(t, err, ErrAuthentication)
		_, _, err = c.FindByKey(t.Context(), "DEMO-1")
		assert.ErrorIs(t, err, ErrAuthentication)
		assert.Equal(t, 2, hits.total())
	})

	t.Run("invalidate forces a reload", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{})

		_, _, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		c.Invalidate("DEMO-1")
		_, _, err = c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		assert.Equal(t, 2, hits.total())
	})

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, Options{})
		_, _, err := c.FindByKey(t.Context(), " ")
		assert.EqualError(t, err, "missing issue key")
		assert.Equal(t, 0, hits.total())
	})
}

func TestFindVersionsForProject(t *testing.T) {
	t.Parallel()

	t.Run("versions", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `[
				{"self":"https://jira.example.com/rest/api/2/version/1","id":"1","name":"1.0","released":true},
				{"self":"https://jira.example.com/rest/api/2/version/2","id":"2","name":"2.0"}
			]`)
		}, Options{})

		vs, err := c.FindVersionsForProject(t.Context(), "DEMO")
		require.NoError(t, err)
		require.Len(t, vs, 2)
		assert.Equal(t, "2.0", vs[1].Name)
		assert.Equal(t, 1, hits.count("/rest/api/2/project/DEMO/versions"))
	})

	t.Run("unknown project", func(t *testing.T) {
		t.Parallel()

		c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{}`)
		}, Options{})

		_, err := c.FindVersionsForProject(t.Context(), "NOPE")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("proxy auth", func(t *testing.T) {
		t.Parallel()

		c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusProxyAuthRequired, ``)
		}, Options{})

		_, err := c.FindVersionsForProject(t.Context(), "DEMO")
		assert.ErrorIs(t, err, ErrProxyAuth)
	})
}

func TestClientMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, issueJSON(1, ""))
	}, Options{Metrics: m})

	for range 3 {
		_, _, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
	}

	expected := `
# HELP jiralink_cache_requests_total Result cache lookups by cache and outcome.
# TYPE jiralink_cache_requests_total counter
jiralink_cache_requests_total{cache="byKey",result="hit"} 2
jiralink_cache_requests_total{cache="byKey",result="miss"} 1
# HELP jiralink_requests_total Tracker HTTP requests by endpoint and status code (0 = no response).
# TYPE jiralink_requests_total counter
jiralink_requests_total{endpoint="issue",status="200"} 1
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected),
		"jiralink_requests_total", "jiralink_cache_requests_total")
	assert.NoError(t, err)
	assert.Equal(t, 1.0, m.TotalRequests())
}
