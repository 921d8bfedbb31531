package retry

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"
)

// bodyHintPaths lists the nested JSON fields a 429 body may carry a
// retry-delay hint in, tried in order.
//
//nolint:gochecknoglobals // Static lookup table
var bodyHintPaths = [][]string{
	{"retry_after"},
	{"retryAfter"},
	{"error", "retry_after"},
	{"error", "retryAfter"},
	{"meta", "retry_after"},
}

// RetryHint extracts a resume hint from a rate-limited response: the
// Retry-After header first (plain seconds or an HTTP date), then the known
// body field paths. The response body is restored so the caller can still
// read it. Returns false when no usable hint is present.
func RetryHint(resp *http.Response) (time.Duration, bool) {
	if d, ok := parseRetryAfterHeader(resp.Header.Get("Retry-After")); ok {
		return d, true
	}
	return hintFromBody(resp)
}

// parseRetryAfterHeader handles both forms of the standard header: a plain
// (possibly fractional) seconds value, or an HTTP date.
func parseRetryAfterHeader(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	delta := time.Until(when)
	if delta < 0 {
		delta = 0
	}
	return delta, true
}

// hintFromBody scans the decoded JSON body for known retry-delay field paths.
// The body is read fully and restored on resp.
func hintFromBody(resp *http.Response) (time.Duration, bool) {
	if resp.Body == nil {
		return 0, false
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return 0, false
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, false
	}

	for _, path := range bodyHintPaths {
		if secs, ok := traverseNumber(body, path); ok {
			if secs < 0 {
				secs = 0
			}
			return time.Duration(secs * float64(time.Second)), true
		}
	}
	return 0, false
}

// traverseNumber walks a path of object keys and returns the numeric leaf.
func traverseNumber(body map[string]any, path []string) (float64, bool) {
	var node any = body
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return 0, false
		}
		node, ok = obj[key]
		if !ok {
			return 0, false
		}
	}
	switch v := node.(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
