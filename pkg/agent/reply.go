package agent

import (
	"fmt"
	"strconv"
)

// Candidate reply field paths per wire shape. Numeric path elements index
// into arrays.
//
//nolint:gochecknoglobals // Static lookup tables
var (
	sessionReplyPaths = [][]string{
		{"message", "content"},
		{"response", "output"},
		{"response", "output_text"},
		{"data", "message", "content"},
	}
	endpointReplyPaths = [][]string{
		{"choices", "0", "message", "content"},
		{"choices", "0", "text"},
	}
)

// extractReply tries each candidate path list in order and returns the first
// string value whose full traversal succeeds. When nothing resolves, the
// whole body is rendered as a diagnostic string: a garbled reply beats a
// silently dropped turn.
func extractReply(data map[string]any, pathLists ...[][]string) string {
	for _, paths := range pathLists {
		for _, path := range paths {
			node, ok := traverse(data, path)
			if !ok {
				continue
			}
			if s, ok := node.(string); ok {
				return s
			}
		}
	}
	return fmt.Sprintf("%v", data)
}

// traverse walks a path through nested JSON objects and arrays. Numeric path
// elements are array indices; everything else is an object key.
func traverse(data map[string]any, path []string) (any, bool) {
	var node any = data
	for _, key := range path {
		switch v := node.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, false
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			node = v[idx]
		default:
			return nil, false
		}
	}
	return node, true
}
