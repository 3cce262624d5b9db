package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status int
	Detail string
	Method string
	Path   string
	Body   []byte
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Detail)
}

// ErrorResponse matches the error bodies the backend and dashboard emit.
// FastAPI uses "detail"; the dashboard uses "error".
type ErrorResponse struct {
	Error  string          `json:"error,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

func newError(resp *http.Response, body []byte) *Error {
	e := &Error{
		Status: resp.StatusCode,
		Body:   body,
		Detail: parseDetail(body),
	}
	if resp.Request != nil {
		e.Method = resp.Request.Method
		e.Path = resp.Request.URL.Path
	}
	if e.Detail == "" {
		e.Detail = http.StatusText(resp.StatusCode)
	}
	return e
}

// parseDetail extracts a human-readable message from an error body.
func parseDetail(body []byte) string {
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			return errResp.Error
		}
		if len(errResp.Detail) > 0 {
			var s string
			if json.Unmarshal(errResp.Detail, &s) == nil {
				return s
			}
			// FastAPI validation errors: [{"loc": [...], "msg": "..."}]
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(errResp.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				if len(msgs) > 0 {
					return strings.Join(msgs, "; ")
				}
			}
			return string(errResp.Detail)
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// modelKeywords mark backend failures that come from the AI pipeline rather than the request.
var modelKeywords = []string{"model", "llm", "openai", "gpt", "token limit", "rate limit", "quota", "context length"}

func mentionsModel(detail string) bool {
	lower := strings.ToLower(detail)
	for _, kw := range modelKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Detail returns the backend-provided detail for err, or fallback if err
// did not come from the backend.
func Detail(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// StatusCode returns the HTTP status of a backend error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
