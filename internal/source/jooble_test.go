package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobpilot/automation-service/internal/model"
)

func newTestJooble(serverURL string) *Jooble {
	j := NewJooble("secret-key")
	j.baseURL = serverURL + "/api/"
	return j
}

func TestJooble_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/secret-key", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "backend engineer", body["keywords"])
		assert.Equal(t, "Berlin", body["location"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"jobs": [
				{
					"id": 987654321,
					"title": "Backend Engineer",
					"company": "Acme",
					"location": "Berlin",
					"snippet": "Go and PostgreSQL",
					"link": "https://jooble.example/987654321",
					"updated": "2026-08-02T08:30:00Z"
				},
				{
					"id": 555,
					"title": "Data Engineer",
					"company": "Globex",
					"location": "Remote",
					"snippet": "Spark",
					"link": "https://jooble.example/555"
				}
			]
		}`))
	}))
	defer server.Close()

	results, err := newTestJooble(server.URL).Search(context.Background(), model.SearchCriteria{
		Keywords: "backend engineer",
		Location: "Berlin",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, "jooble_987654321", first.ExternalID)
	assert.Equal(t, "Backend Engineer", first.Title)
	assert.Equal(t, "Acme", first.Company)
	assert.Equal(t, "Go and PostgreSQL", first.Description)
	assert.Equal(t, "https://jooble.example/987654321", first.SourceURL)
	assert.Equal(t, 2026, first.PostedAt.Year())
}

func TestJooble_SearchHonorsLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jobs": [
			{"id": 1, "title": "A"}, {"id": 2, "title": "B"}, {"id": 3, "title": "C"}
		]}`))
	}))
	defer server.Close()

	results, err := newTestJooble(server.URL).Search(context.Background(), model.SearchCriteria{
		Keywords: "engineer",
		Limit:    2,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestJooble_MissingKeySkips(t *testing.T) {
	results, err := NewJooble("").Search(context.Background(), model.SearchCriteria{
		Keywords: "engineer",
	})
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestJooble_ForbiddenIsCredentialsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestJooble(server.URL).Search(context.Background(), model.SearchCriteria{
		Keywords: "engineer",
	})
	var credErr *CredentialsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, "jooble", credErr.Source)
}

func TestJooble_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestJooble(server.URL).Search(context.Background(), model.SearchCriteria{
		Keywords: "engineer",
	})
	var transient *TransientError
	assert.ErrorAs(t, err, &transient)
}
