package voiceagent

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Client manages externally hosted voice agent sessions. The platform
// owns the audio loop; we only seed the session, inject out-of-band
// context and tear it down.
type Client interface {
	CreateSession(ctx context.Context, desc SessionDescriptor) (*Session, error)
	SendContextualUpdate(ctx context.Context, sessionID, text string) error
	EndSession(ctx context.Context, sessionID string) error
}

// SessionDescriptor seeds a new voice session: the agent identity plus
// the dynamic overrides for this interview.
type SessionDescriptor struct {
	AgentID      string            `json:"agent_id"`
	Prompt       string            `json:"prompt"`
	FirstMessage string            `json:"first_message"`
	Progress     string            `json:"progress"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Session is a live voice session handle.
type Session struct {
	ID        string `json:"conversation_id"`
	SignedURL string `json:"signed_url"`
}

// UtteranceEvent is one finalized utterance delivered on the platform's
// webhook, tagged by speaker role.
type UtteranceEvent struct {
	SessionID string `json:"conversation_id"`
	ForgeID   string `json:"forge_id"`
	Role      string `json:"role"` // "user" or "agent"
	Text      string `json:"text"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a voice platform API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateSession(ctx context.Context, desc SessionDescriptor) (*Session, error) {
	body := map[string]any{
		"agent_id": desc.AgentID,
		"conversation_config_override": map[string]any{
			"agent": map[string]any{
				"prompt":        map[string]any{"prompt": desc.Prompt},
				"first_message": desc.FirstMessage,
			},
		},
		"dynamic_variables": map[string]any{
			"interview_progress": desc.Progress,
		},
	}
	if len(desc.Metadata) > 0 {
		body["metadata"] = desc.Metadata
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/v1/convai/conversations", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *httpClient) SendContextualUpdate(ctx context.Context, sessionID, text string) error {
	body := map[string]any{
		"type": "contextual_update",
		"text": text,
	}
	return c.do(ctx, http.MethodPost, "/v1/convai/conversations/"+sessionID+"/context", body, nil)
}

func (c *httpClient) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/convai/conversations/"+sessionID, nil, nil)
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "voiceagent: marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "voiceagent: create request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "voiceagent: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "voiceagent: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return eris.Errorf("voiceagent: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "voiceagent: unmarshal response")
		}
	}
	return nil
}
