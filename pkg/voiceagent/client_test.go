package voiceagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		wantID  string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body:   `{"conversation_id": "conv-123", "signed_url": "wss://example.test/conv-123"}`,
			wantID: "conv-123",
		},
		{
			name:    "rate_limit",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "rate limit exceeded"}`,
			wantErr: "unexpected status 429",
		},
		{
			name:    "server_error",
			status:  http.StatusInternalServerError,
			body:    `{"error": "internal server error"}`,
			wantErr: "unexpected status 500",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/convai/conversations", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "agent-1", body["agent_id"])

				override := body["conversation_config_override"].(map[string]any)["agent"].(map[string]any)
				assert.Equal(t, "opening line", override["first_message"])
				assert.Equal(t, "persona", override["prompt"].(map[string]any)["prompt"])

				dyn := body["dynamic_variables"].(map[string]any)
				assert.Equal(t, "plan snapshot", dyn["interview_progress"])

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))

			session, err := client.CreateSession(context.Background(), SessionDescriptor{
				AgentID:      "agent-1",
				Prompt:       "persona",
				FirstMessage: "opening line",
				Progress:     "plan snapshot",
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, session)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, session)
			assert.Equal(t, tt.wantID, session.ID)
			assert.Equal(t, "wss://example.test/conv-123", session.SignedURL)
		})
	}
}

func TestCreateSession_Metadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		meta := body["metadata"].(map[string]any)
		assert.Equal(t, "forge-1", meta["forge_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"conversation_id": "conv-1", "signed_url": "wss://example.test/conv-1"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.CreateSession(context.Background(), SessionDescriptor{
		AgentID:  "agent-1",
		Metadata: map[string]string{"forge_id": "forge-1"},
	})
	require.NoError(t, err)
}

func TestSendContextualUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/convai/conversations/conv-1/context", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "contextual_update", body["type"])
		assert.Equal(t, "updated plan", body["text"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	err := client.SendContextualUpdate(context.Background(), "conv-1", "updated plan")
	require.NoError(t, err)
}

func TestEndSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/convai/conversations/conv-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	require.NoError(t, client.EndSession(context.Background(), "conv-1"))
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := client.EndSession(ctx, "conv-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestErrorResponseIncludesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	err := client.SendContextualUpdate(context.Background(), "conv-1", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.NotNil(t, hc.http)
	assert.NotNil(t, hc.http.Transport)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	custom := &http.Client{}
	c := NewClient("my-key", WithHTTPClient(custom))
	hc := c.(*httpClient)
	assert.Equal(t, custom, hc.http)
}
