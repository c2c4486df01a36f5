package moltbook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltbook-governance/recruiter/internal/config"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(config.MoltbookConfig{
		APIURL:         server.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	})
	return client, server
}

func TestClient_SearchAgents(t *testing.T) {
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/agents", r.URL.Path)
		assert.Equal(t, "governance", r.URL.Query().Get("q"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"agents": [{"username": "alice", "karma": 500}, {"username": "bob", "karma": 80}]}`))
	}))
	defer server.Close()

	agents, err := client.SearchAgents(context.Background(), "governance")
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "alice", agents[0].Username)
	assert.Equal(t, 500, agents[0].Karma)
}

func TestClient_SearchAgents_ServerError(t *testing.T) {
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := client.SearchAgents(context.Background(), "governance")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 500")
}

func TestClient_FetchProfile(t *testing.T) {
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/alice/profile", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"username": "alice",
			"karma": 500,
			"specializations": ["research"],
			"posts_per_month": 15,
			"followers": 50,
			"days_since_last_post": 1,
			"community_rating": 4.8
		}`))
	}))
	defer server.Close()

	candidate, err := client.FetchProfile(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, candidate)
	assert.Equal(t, 500, candidate.Karma)
	assert.Equal(t, []string{"research"}, candidate.Specializations)
	require.NotNil(t, candidate.DaysSinceLastPost)
	assert.Equal(t, 1, *candidate.DaysSinceLastPost)
	assert.InDelta(t, 4.8, candidate.CommunityRating, 0.001)
}

func TestClient_FetchProfile_NotFound(t *testing.T) {
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	candidate, err := client.FetchProfile(context.Background(), "ghost")
	require.NoError(t, err, "a missing profile is an answer, not a failure")
	assert.Nil(t, candidate)
}

func TestClient_SendDirectMessage(t *testing.T) {
	var received map[string]string
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages/direct", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := client.SendDirectMessage(context.Background(), "alice", "welcome aboard")
	require.NoError(t, err)
	assert.Equal(t, "alice", received["recipient"])
	assert.Equal(t, "welcome aboard", received["message"])
	assert.Equal(t, "governance_invitation", received["type"])
}

func TestClient_SendDirectMessage_Rejected(t *testing.T) {
	client, server := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := client.SendDirectMessage(context.Background(), "alice", "welcome")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 403")
}
