package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanindex/internal/index"
)

// ErrNotRunning is returned when no server is listening on the socket.
var ErrNotRunning = errors.New("server is not running")

// Client talks to a running server over its control socket.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a new client.
func NewClient(cfg Config) *Client {
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    cfg.Timeout,
	}
}

// Connect establishes a connection to the server.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	return conn, nil
}

// IsRunning checks if a server is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Ping checks if the server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var out PingResult
	return c.call(ctx, MethodPing, nil, &out, true)
}

// Status retrieves the serving process's status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var out StatusResult
	if err := c.call(ctx, MethodStatus, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a search in the server.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]index.SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	var out []index.SearchResult
	if err := c.call(ctx, MethodSearch, params, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats retrieves index statistics from the server.
func (c *Client) Stats(ctx context.Context) (*index.Stats, error) {
	var out index.Stats
	if err := c.call(ctx, MethodStats, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh asks the server to run a refresh cycle soon.
func (c *Client) Refresh(ctx context.Context) (*RefreshResult, error) {
	var out RefreshResult
	if err := c.call(ctx, MethodRefresh, nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rebuild asks the server to rebuild the index and waits for it. Only ctx
// bounds the wait.
func (c *Client) Rebuild(ctx context.Context) (*RebuildResult, error) {
	var out RebuildResult
	if err := c.call(ctx, MethodRebuild, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// call sends one request and decodes its result into out. bounded applies
// the client timeout as well as ctx.
func (c *Client) call(ctx context.Context, method string, params, out any, bounded bool) error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	if bounded {
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set deadline: %w", err)
		}
	}
	// Cancellation unblocks the pending read.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID()}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

// nextID generates a unique request ID.
func (c *Client) nextID() string {
	id := c.requestID.Add(1)
	return fmt.Sprintf("req-%d", id)
}
