// Package agent provides the client facade for the DigitalOcean GenAI Agent
// Service, routing conversation turns through the resilient request pipeline.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentbridge/pkg/agent/apierrors"
	"agentbridge/pkg/agent/metrics"
	"agentbridge/pkg/agent/resilience/ratelimit"
	"agentbridge/pkg/agent/resilience/retry"
	"agentbridge/pkg/logx"
)

// DefaultBaseURL is the Agent Service API root used when none is configured.
const DefaultBaseURL = "https://api.digitalocean.com/v2/ai"

// Options configures a Client. Endpoint mode is selected when both
// AgentEndpoint and AgentAccessKey are set; otherwise session mode is used.
// The choice is fixed at construction.
type Options struct {
	APIKey         string
	AgentID        string
	BaseURL        string
	AgentEndpoint  string
	AgentAccessKey string

	Timeout   time.Duration
	Policy    retry.Policy
	RateLimit ratelimit.Config

	// HTTPClient overrides the default transport; mainly for tests.
	HTTPClient *http.Client
	// Recorder receives pipeline metrics; nil disables them.
	Recorder metrics.Recorder
}

// Reply is the normalized result of one conversation turn: the extracted
// message plus the raw decoded body, preserved for diagnostics.
type Reply struct {
	Message string
	Raw     map[string]any
}

// Client is the facade over the Agent Service. Safe for concurrent use by
// many logical conversations.
type Client struct {
	mode     wireMode
	exec     *retry.Executor
	recorder metrics.Recorder
	logger   *logx.Logger
}

// New creates a client with the wire mode resolved from opts.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	opts.AgentEndpoint = strings.TrimRight(opts.AgentEndpoint, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.Nop()
	}

	transport := opts.HTTPClient
	if transport == nil {
		transport = &http.Client{Timeout: opts.Timeout}
	}

	logger := logx.NewLogger("agent")
	limiter := ratelimit.New(opts.RateLimit)
	exec := retry.NewExecutor(transport, limiter, opts.Policy, opts.Recorder, logger.WithComponent("agent.retry"))

	var mode wireMode
	if opts.AgentEndpoint != "" && opts.AgentAccessKey != "" {
		mode = &endpointMode{endpoint: opts.AgentEndpoint, accessKey: opts.AgentAccessKey}
	} else {
		mode = &sessionMode{baseURL: opts.BaseURL, agentID: opts.AgentID, apiKey: opts.APIKey}
	}

	return &Client{
		mode:     mode,
		exec:     exec,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Mode returns the active wire mode name ("session" or "endpoint").
func (c *Client) Mode() string {
	return c.mode.name()
}

// StartConversation creates a session handle for a new logical conversation.
// In session mode this issues a session-creation call; in endpoint mode a
// fresh local handle is synthesized without any network traffic.
func (c *Client) StartConversation(ctx context.Context) (string, error) {
	spec, remote := c.mode.sessionRequest()
	if !remote {
		sid := syntheticSessionID()
		c.logger.Debug("endpoint mode active, generated session id %s", sid)
		return sid, nil
	}

	data, err := c.roundTrip(ctx, spec)
	if err != nil {
		return "", err
	}

	sid, ok := extractSessionID(data)
	if !ok {
		// Missing identifier on a successful response is a contract
		// mismatch, not a transient condition.
		return "", apierrors.New(apierrors.FaultIntegration,
			"agent service response did not include a session identifier")
	}
	return sid, nil
}

// SendTurn sends one user message on the given session and returns the
// normalized agent reply.
func (c *Client) SendTurn(ctx context.Context, sessionID, text string) (Reply, error) {
	spec := c.mode.turnRequest(sessionID, text)
	c.logger.Debug("sending turn on session %s via %s", sessionID, spec.url)

	data, err := c.roundTrip(ctx, spec)
	if err != nil {
		return Reply{}, err
	}

	message := extractReply(data, c.mode.replyPaths()...)
	return Reply{Message: message, Raw: data}, nil
}

// roundTrip drives one logical call through the executor and classifies the
// outcome: 429 after exhaustion becomes a RateLimited fault, any other
// non-2xx a ServiceFault, and a 2xx body is decoded as JSON.
func (c *Client) roundTrip(ctx context.Context, spec requestSpec) (map[string]any, error) {
	start := time.Now()
	resp, err := c.exec.Do(ctx, spec.factory())
	if err != nil {
		c.recorder.ObserveRequest(c.mode.name(), 0, time.Since(start))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	c.recorder.ObserveRequest(c.mode.name(), resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.NewWithCause(apierrors.FaultTransient, err, "read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		fault := apierrors.NewWithStatus(apierrors.FaultRateLimited, resp.StatusCode, string(raw))
		fault.Message = "agent service rate limited after retry exhaustion"
		return nil, fault
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("agent service returned status %d: %s",
			resp.StatusCode, apierrors.TruncateBody(string(raw)))
		return nil, apierrors.NewWithStatus(apierrors.FaultService, resp.StatusCode, string(raw))
	}

	return decodeBody(raw), nil
}

// decodeBody decodes a JSON object body, degrading to a raw_text wrapper for
// non-JSON payloads so the caller always gets a traversable map.
func decodeBody(raw []byte) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{"raw_text": string(raw)}
	}
	return data
}

// requestSpec describes one wire request to be rebuilt per attempt.
type requestSpec struct {
	method string
	url    string
	header http.Header
	body   any
}

// factory returns a RequestFactory that rebuilds the request for each attempt.
func (s requestSpec) factory() retry.RequestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if s.body != nil {
			payload, err := json.Marshal(s.body)
			if err != nil {
				return nil, fmt.Errorf("marshal payload: %w", err)
			}
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, s.method, s.url, body)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		for k, vs := range s.header {
			req.Header[k] = vs
		}
		return req, nil
	}
}

// sessionIDPaths lists the known shapes of a session-creation response,
// tried in order.
//
//nolint:gochecknoglobals // Static lookup table
var sessionIDPaths = [][]string{
	{"session", "id"},
	{"id"},
	{"session_id"},
}

// extractSessionID pulls a session identifier out of a session-creation
// response, accepting string and numeric forms.
func extractSessionID(data map[string]any) (string, bool) {
	for _, path := range sessionIDPaths {
		node, ok := traverse(data, path)
		if !ok {
			continue
		}
		switch v := node.(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%f", v), "0"), "."), true
		}
	}
	return "", false
}

func bearerHeader(token string) http.Header {
	return http.Header{
		"Authorization": []string{"Bearer " + token},
		"Content-Type":  []string{"application/json"},
		"Accept":        []string{"application/json"},
	}
}
