package daemon

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/index"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing    = "ping"
	MethodStatus  = "status"
	MethodSearch  = "search"
	MethodStats   = "stats"
	MethodRefresh = "refresh"
	MethodRebuild = "rebuild"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes.
const (
	ErrCodeIndexUnavailable = -32001
	ErrCodeSearchFailed     = -32002
	ErrCodeIndexLocked      = -32003
	ErrCodeRebuildFailed    = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{JSONRPC: "2.0", Result: result, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Query is the search query (required).
	Query string `json:"query"`

	// Limit is the maximum number of results (default: 10).
	Limit int `json:"limit,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return fmt.Errorf("query is required")
	}
	if p.Limit <= 0 {
		p.Limit = index.DefaultSearchLimit
	}
	return nil
}

// StatusResult describes the serving process.
type StatusResult struct {
	PID       int           `json:"pid"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Watching  bool          `json:"watching"`
	Scheduler *async.Status `json:"scheduler,omitempty"`
}

// RefreshResult reports whether a refresh was queued.
type RefreshResult struct {
	// Queued is false when a refresh was already pending.
	Queued bool `json:"queued"`
}

// RebuildResult mirrors index.Result for the wire.
type RebuildResult struct {
	Outcome       string  `json:"outcome"`
	Message       string  `json:"message"`
	Processed     int     `json:"processed"`
	Failed        int     `json:"failed"`
	Batches       int     `json:"batches"`
	FailedBatches int     `json:"failed_batches"`
	DurationSecs  float64 `json:"duration_seconds"`
}

// NewRebuildResult converts a coordinator result.
func NewRebuildResult(r *index.Result) RebuildResult {
	return RebuildResult{
		Outcome:       string(r.Outcome),
		Message:       r.Message(),
		Processed:     r.Processed,
		Failed:        r.Failed,
		Batches:       r.Batches,
		FailedBatches: r.FailedBatches,
		DurationSecs:  r.Duration.Seconds(),
	}
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
