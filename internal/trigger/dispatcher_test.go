package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alekspetrov/qa-handoff/internal/testutil"
)

func testGitHubConfig(baseURL string) GitHubConfig {
	return GitHubConfig{
		Token:    testutil.FakeGitHubToken,
		Owner:    "acme",
		Repo:     "storefront",
		Workflow: "qa-handoff.yml",
		Ref:      "release",
		BaseURL:  baseURL + "/",
	}
}

func TestGitHubDispatcher_Dispatch(t *testing.T) {
	var got dispatchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/storefront/actions/workflows/qa-handoff.yml/dispatches", r.URL.Path)
		assert.Equal(t, "Bearer "+testutil.FakeGitHubToken, r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d, err := NewGitHubDispatcher(testGitHubConfig(server.URL), nil)
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), Job{TaskID: "1200", Mode: "final"}))
	assert.Equal(t, "release", got.Ref)
	assert.Equal(t, map[string]string{"task_id": "1200", "mode": "final"}, got.Inputs)
}

func TestGitHubDispatcher_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer server.Close()

	d, err := NewGitHubDispatcher(testGitHubConfig(server.URL), nil)
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), Job{TaskID: "1200"})
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusNotFound, upstream.StatusCode)
	assert.Contains(t, upstream.Error(), "Not Found")
}

func TestNewGitHubDispatcher_Validation(t *testing.T) {
	_, err := NewGitHubDispatcher(GitHubConfig{Owner: "a", Repo: "b", Workflow: "c"}, nil)
	assert.Error(t, err)

	_, err = NewGitHubDispatcher(GitHubConfig{Token: testutil.FakeGitHubToken, Owner: "a"}, nil)
	assert.Error(t, err)

	d, err := NewGitHubDispatcher(GitHubConfig{Token: testutil.FakeGitHubToken, Owner: "a", Repo: "b", Workflow: "c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "main", d.cfg.Ref)
	assert.Equal(t, GitHubAPIURL, d.cfg.BaseURL)
}
