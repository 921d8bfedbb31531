package agent

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// wireMode is the closed set of request-building/response-parsing strategies.
// The pipeline itself stays mode-agnostic; only payload shape, URLs, auth,
// and reply extraction differ between the two variants.
type wireMode interface {
	name() string
	// sessionRequest returns the session-creation request, or remote=false
	// when the mode synthesizes handles locally.
	sessionRequest() (spec requestSpec, remote bool)
	turnRequest(sessionID, text string) requestSpec
	// replyPaths returns candidate path lists in extraction order.
	replyPaths() [][][]string
}

// sessionMode talks to the managed Agent Service API: server-issued sessions
// and single role/content turn payloads.
type sessionMode struct {
	baseURL string
	agentID string
	apiKey  string
}

func (m *sessionMode) name() string { return "session" }

func (m *sessionMode) sessionRequest() (requestSpec, bool) {
	return requestSpec{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/agents/%s/sessions", m.baseURL, m.agentID),
		header: bearerHeader(m.apiKey),
	}, true
}

func (m *sessionMode) turnRequest(sessionID, text string) requestSpec {
	return requestSpec{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/sessions/%s/messages", m.baseURL, sessionID),
		header: bearerHeader(m.apiKey),
		body:   map[string]any{"role": "user", "content": text},
	}
}

func (m *sessionMode) replyPaths() [][][]string {
	return [][][]string{sessionReplyPaths}
}

// endpointMode talks directly to a deployed agent endpoint with its own
// access key: chat-completion payloads, no server-side session state.
type endpointMode struct {
	endpoint  string
	accessKey string
}

func (m *endpointMode) name() string { return "endpoint" }

func (m *endpointMode) sessionRequest() (requestSpec, bool) {
	return requestSpec{}, false
}

func (m *endpointMode) turnRequest(_, text string) requestSpec {
	return requestSpec{
		method: http.MethodPost,
		url:    m.endpoint + "/api/v1/chat/completions",
		header: bearerHeader(m.accessKey),
		body: map[string]any{
			"messages":                []map[string]any{{"role": "user", "content": text}},
			"stream":                  false,
			"include_retrieval_info":  false,
			"include_functions_info":  false,
			"include_guardrails_info": false,
		},
	}
}

func (m *endpointMode) replyPaths() [][][]string {
	// Endpoint deployments usually answer in chat-completion shape, but some
	// still emit the general agent shape; fall back to it.
	return [][][]string{endpointReplyPaths, sessionReplyPaths}
}

// syntheticSessionID creates a local handle for endpoint-mode conversations,
// which have no remote session to correlate with.
func syntheticSessionID() string {
	u := uuid.New()
	return fmt.Sprintf("endpoint-%x", u[:])
}
