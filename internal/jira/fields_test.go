package jira

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/gi8lino/jiralink/internal/domain"
)

const fieldMeta = `[
	{"id":"summary","name":"Summary","custom":false,"schema":{"type":"string"}},
	{"id":"customfield_100","name":"Team","custom":true,"schema":{"type":"string"}},
	{"id":"customfield_200","name":"Area","custom":true,"schema":{"type":"array"}},
	{"id":"customfield_300","name":"Points","custom":true,"schema":{"type":"number"}}
]`

func TestFieldIndexResolve(t *testing.T) {
	t.Parallel()

	idx := NewFieldIndex([]domain.CustomField{
		{ID: "customfield_100", Name: "Team", Type: domain.FieldTypeString},
		{ID: "customfield_200", Name: "Area", Type: domain.FieldTypeArray},
		{ID: "customfield_300", Name: "Points", Type: "number"},
		{ID: "customfield_999", Name: "Team", Type: domain.FieldTypeArray},
	})

	resolve := func(fields string, wanted ...string) map[string]any {
		return idx.Resolve(gjson.Parse(fields), wanted)
	}

	t.Run("cascade path", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_200":{"value":"A","child":{"value":"B"}}}`, "Area")
		assert.Equal(t, map[string]any{"Area": []string{"A", "B"}}, got)
	})

	t.Run("deep cascade path", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_200":{"value":"A","child":{"value":"B","child":{"value":"C"}}}}`, "Area")
		assert.Equal(t, []string{"A", "B", "C"}, got["Area"])
	})

	t.Run("multi value array", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_200":[{"value":"x"},"y"]}`, "Area")
		assert.Equal(t, []string{"x", "y"}, got["Area"])
	})

	t.Run("option object", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_100":{"self":"https://x/1","value":"Core","id":"1"}}`, "Team")
		assert.Equal(t, map[string]any{"Team": "Core"}, got)
	})

	t.Run("plain string", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_100":"Core"}`, "Team")
		assert.Equal(t, "Core", got["Team"])
	})

	t.Run("null is absent", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_100":null,"customfield_200":null}`, "Team", "Area")
		assert.Empty(t, got)
	})

	t.Run("missing and unknown are absent", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"summary":"x"}`, "Team", "Nope")
		assert.Empty(t, got)
	})

	t.Run("other types keep raw json", func(t *testing.T) {
		t.Parallel()

		got := resolve(`{"customfield_300":3.5}`, "Points")
		assert.Equal(t, "3.5", got["Points"])
	})

	t.Run("first duplicate wins", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, "customfield_100", idx["Team"].ID)
		assert.Equal(t, []string{"customfield_100", "customfield_200"}, idx.IDs([]string{"Team", "Missing", "Area"}))
	})
}

func TestCustomFieldsOnIssues(t *testing.T) {
	t.Parallel()

	t.Run("field index is fetched once and values are attached", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/rest/api/2/field":
				writeJSON(w, http.StatusOK, fieldMeta)
			case "/rest/api/2/issue/DEMO-1":
				writeJSON(w, http.StatusOK, issueJSON(1, `"customfield_100":{"value":"Core"},"customfield_200":{"value":"A","child":{"value":"B"}}`))
			case "/rest/api/2/issue/DEMO-2":
				writeJSON(w, http.StatusOK, issueJSON(2, `"customfield_100":null`))
			default:
				http.NotFound(w, r)
			}
		}, Options{CustomFields: []string{"Team", "Area"}})

		one, found, err := c.FindByKey(t.Context(), "DEMO-1")
		require.NoError(t, err)
		require.True(t, found)
		team, _ := one.CustomFieldString("Team")
		assert.Equal(t, "Core", team)
		area, _ := one.CustomFieldStrings("Area")
		assert.Equal(t, []string{"A", "B"}, area)

		two, found, err := c.FindByKey(t.Context(), "DEMO-2")
		require.NoError(t, err)
		require.True(t, found)
		assert.Empty(t, two.CustomFieldValues())

		assert.Equal(t, 1, hits.count("/rest/api/2/field"))
	})

	t.Run("search requests custom field ids", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case r.URL.Path == "/rest/api/2/field":
				writeJSON(w, http.StatusOK, fieldMeta)
			case r.URL.Query().Get("maxResults") == "0":
				writeJSON(w, http.StatusOK, joinIssues(1, nil))
			default:
				writeJSON(w, http.StatusOK, joinIssues(1, []string{issueJSON(1, `"customfield_100":"Core"`)}))
			}
		}, Options{CustomFields: []string{"Team"}})

		issues, err := c.Search(t.Context(), "project = DEMO")
		require.NoError(t, err)
		require.Len(t, issues, 1)
		team, ok := issues[0].CustomFieldString("Team")
		assert.True(t, ok)
		assert.Equal(t, "Core", team)

		reqs := hits.requests()
		last := reqs[len(reqs)-1].URL.Query().Get("fields")
		assert.Equal(t, "key,summary,description,issuetype,labels,fixVersions,customfield_100", last)
	})

	t.Run("field metadata failure fails the lookup and is retried", func(t *testing.T) {
		t.Parallel()

		c, hits, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/rest/api/2/field" {
				writeJSON(w, http.StatusForbidden, `{}`)
				return
			}
			writeJSON(w, http.StatusOK, issueJSON(1, ""))
		}, Options{CustomFields: []string{"Team"}})

		_, _, err := c.FindByKey(t.Context(), "DEMO-1")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, _, err = c.FindByKey(t.Context(), "DEMO-1")
		assert.ErrorIs(t, err, ErrAuthorization)
		assert.Equal(t, 2, hits.count("/rest/api/2/field"))
	})
}
