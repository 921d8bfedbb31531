package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentbridge/pkg/agent/apierrors"
	"agentbridge/pkg/agent/resilience/ratelimit"
	"agentbridge/pkg/agent/resilience/retry"
)

func testOptions(srv *httptest.Server) Options {
	return Options{
		APIKey:    "test-key",
		AgentID:   "agent-1",
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		Policy:    retry.Policy{MaxRetries: 1, BaseBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
		RateLimit: ratelimit.Config{RatePerSecond: 10000, Burst: 100, DefaultCooldown: 10 * time.Millisecond},
	}
}

func TestModeSelection(t *testing.T) {
	c := New(Options{APIKey: "k", AgentID: "a"})
	assert.Equal(t, "session", c.Mode())

	// Both endpoint URL and access key must be present for endpoint mode.
	c = New(Options{APIKey: "k", AgentID: "a", AgentEndpoint: "https://agent.example.com"})
	assert.Equal(t, "session", c.Mode())

	c = New(Options{AgentEndpoint: "https://agent.example.com/", AgentAccessKey: "ak"})
	assert.Equal(t, "endpoint", c.Mode())
}

func TestStartConversationSessionShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested session object", `{"session": {"id": "sess-1"}}`, "sess-1"},
		{"top-level id", `{"id": "abc"}`, "abc"},
		{"top-level session_id", `{"session_id": "s42"}`, "s42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/agents/agent-1/sessions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(testOptions(srv))
			sid, err := c.StartConversation(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, sid)
		})
	}
}

func TestStartConversationMissingIDIsIntegrationFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status": "created"}`))
	}))
	defer srv.Close()

	c := New(testOptions(srv))
	_, err := c.StartConversation(context.Background())
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.FaultIntegration), "got: %v", err)
}

func TestStartConversationEndpointModeIsLocal(t *testing.T) {
	// No server at all: endpoint mode must not touch the network.
	c := New(Options{AgentEndpoint: "https://agent.example.com", AgentAccessKey: "ak"})

	first, err := c.StartConversation(context.Background())
	require.NoError(t, err)
	second, err := c.StartConversation(context.Background())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "endpoint-"))
	assert.Len(t, first, len("endpoint-")+32)
	assert.NotEqual(t, first, second, "handles must never be reused across conversations")
}

func TestSendTurnSessionMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sessions/sess-1/messages", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "user", payload["role"])
		assert.Equal(t, "ping", payload["content"])

		_, _ = w.Write([]byte(`{"message": {"content": "pong"}}`))
	}))
	defer srv.Close()

	c := New(testOptions(srv))
	reply, err := c.SendTurn(context.Background(), "sess-1", "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Message)
	assert.NotNil(t, reply.Raw)
}

func TestSendTurnEndpointMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer access-key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		msgs, ok := payload["messages"].([]any)
		require.True(t, ok)
		require.Len(t, msgs, 1)
		assert.Equal(t, false, payload["stream"])
		assert.Equal(t, false, payload["include_retrieval_info"])

		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "hi"}}]}`))
	}))
	defer srv.Close()

	opts := testOptions(srv)
	opts.AgentEndpoint = srv.URL
	opts.AgentAccessKey = "access-key"
	c := New(opts)

	reply, err := c.SendTurn(context.Background(), "endpoint-abc", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Message)
}

func TestSendTurnRateLimitedFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "0.01")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message": "slow down"}`))
	}))
	defer srv.Close()

	c := New(testOptions(srv))
	_, err := c.SendTurn(context.Background(), "sess-1", "ping")
	require.Error(t, err)
	assert.True(t, apierrors.IsRateLimited(err), "got: %v", err)
}

func TestSendTurnServiceFaultCarriesDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": "upstream exploded"}`))
	}))
	defer srv.Close()

	c := New(testOptions(srv))
	_, err := c.SendTurn(context.Background(), "sess-1", "ping")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.FaultService), "got: %v", err)

	var fault *apierrors.Error
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, http.StatusBadGateway, fault.StatusCode)
	assert.Contains(t, fault.BodyStub, "upstream exploded")
}

func TestSendTurnNonJSONBodyDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("plain text answer"))
	}))
	defer srv.Close()

	c := New(testOptions(srv))
	reply, err := c.SendTurn(context.Background(), "sess-1", "ping")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", reply.Raw["raw_text"])
}

func TestExtractSessionIDNumeric(t *testing.T) {
	sid, ok := extractSessionID(decode(t, `{"id": 12345}`))
	require.True(t, ok)
	assert.Equal(t, "12345", sid)
}
