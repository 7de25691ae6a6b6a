package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanindex/internal/async"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
)

// mockHandler implements Handler for testing.
type mockHandler struct {
	searchFn  func(ctx context.Context, query string, k int) ([]index.SearchResult, error)
	statsFn   func(ctx context.Context) (index.Stats, error)
	rebuildFn func(ctx context.Context) (*index.Result, error)
}

func (m *mockHandler) Search(ctx context.Context, query string, k int) ([]index.SearchResult, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, k)
	}
	return nil, nil
}

func (m *mockHandler) Stats(ctx context.Context) (index.Stats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return index.Stats{}, nil
}

func (m *mockHandler) ForceRebuild(ctx context.Context) (*index.Result, error) {
	if m.rebuildFn != nil {
		return m.rebuildFn(ctx)
	}
	return &index.Result{Outcome: index.OutcomeRebuilt}, nil
}

var _ Handler = (*index.Coordinator)(nil)

// fakeRefresher queues one trigger at a time.
type fakeRefresher struct {
	pending atomic.Bool
}

func (f *fakeRefresher) Trigger() bool { return f.pending.CompareAndSwap(false, true) }

func (f *fakeRefresher) Status() async.Status {
	return async.Status{Running: true, Cycles: 4}
}

var _ Refresher = (*async.Scheduler)(nil)

// socketDir returns a short directory; Unix socket paths are length-limited.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "aid")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// startServer runs a server until the test ends and returns a client for it.
func startServer(t *testing.T, h Handler, r Refresher) (*Server, *Client) {
	t.Helper()
	cfg := DefaultConfig(socketDir(t))
	cfg.Timeout = 2 * time.Second

	srv, err := NewServer(cfg.SocketPath, h)
	require.NoError(t, err)
	if r != nil {
		srv.SetRefresher(r, true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)
	return srv, client
}

func TestNewServer_RequiresHandler(t *testing.T) {
	_, err := NewServer("/tmp/x.sock", nil)
	assert.Error(t, err)
}

func TestServer_PingAndStatus(t *testing.T) {
	// Given
	_, client := startServer(t, &mockHandler{}, &fakeRefresher{})

	// When
	pingErr := client.Ping(context.Background())
	st, err := client.Status(context.Background())

	// Then
	require.NoError(t, pingErr)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.True(t, st.Watching)
	require.NotNil(t, st.Scheduler)
	assert.Equal(t, 4, st.Scheduler.Cycles)
}

func TestServer_SearchRoundTrip(t *testing.T) {
	// Given: a handler that records the request
	var gotQuery string
	var gotK int
	h := &mockHandler{
		searchFn: func(_ context.Context, query string, k int) ([]index.SearchResult, error) {
			gotQuery, gotK = query, k
			return []index.SearchResult{
				{Path: "/docs/q3-report.pdf", Score: 0.91},
				{Path: "/docs/q2-report.pdf", Score: 0.72},
			}, nil
		},
	}
	_, client := startServer(t, h, nil)

	// When
	results, err := client.Search(context.Background(), SearchParams{Query: "quarterly report"})

	// Then
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/docs/q3-report.pdf", results[0].Path)
	assert.InDelta(t, 0.91, results[0].Score, 0.0001)
	assert.Equal(t, "quarterly report", gotQuery)
	assert.Equal(t, index.DefaultSearchLimit, gotK)
}

func TestServer_SearchNoResultsIsEmptyList(t *testing.T) {
	_, client := startServer(t, &mockHandler{}, nil)

	results, err := client.Search(context.Background(), SearchParams{Query: "nothing"})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_SearchRejectsBlankQuery(t *testing.T) {
	// Given: no server is needed, validation happens first
	client := NewClient(DefaultConfig(socketDir(t)))

	// When
	_, err := client.Search(context.Background(), SearchParams{Query: " "})

	// Then
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotRunning)
}

func TestServer_SearchErrorsMapToCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"locked", amerrors.IndexLockedError("/data/index.hnsw", nil), ErrCodeIndexLocked},
		{"unavailable", amerrors.New(amerrors.ErrCodeIndexUnavailable, "index is not ready", nil), ErrCodeIndexUnavailable},
		{"other", errors.New("boom"), ErrCodeSearchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &mockHandler{
				searchFn: func(context.Context, string, int) ([]index.SearchResult, error) { return nil, tt.err },
			}
			_, client := startServer(t, h, nil)

			_, err := client.Search(context.Background(), SearchParams{Query: "q"})

			var rpcErr *Error
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, tt.code, rpcErr.Code)
		})
	}
}

func TestServer_Stats(t *testing.T) {
	// Given
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &mockHandler{
		statsFn: func(context.Context) (index.Stats, error) {
			return index.Stats{TotalFiles: 120, VectorCount: 120, LastUpdate: updated, StoreValid: true, State: index.StateReady}, nil
		},
	}
	_, client := startServer(t, h, nil)

	// When
	st, err := client.Stats(context.Background())

	// Then
	require.NoError(t, err)
	assert.Equal(t, 120, st.TotalFiles)
	assert.True(t, st.StoreValid)
	assert.Equal(t, index.StateReady, st.State)
	assert.True(t, updated.Equal(st.LastUpdate))
}

func TestServer_Refresh(t *testing.T) {
	// Given
	_, client := startServer(t, &mockHandler{}, &fakeRefresher{})

	// When
	first, err1 := client.Refresh(context.Background())
	second, err2 := client.Refresh(context.Background())

	// Then: the second request coalesces into the pending one
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.True(t, first.Queued)
	assert.False(t, second.Queued)
}

func TestServer_RefreshWithoutScheduler(t *testing.T) {
	_, client := startServer(t, &mockHandler{}, nil)

	_, err := client.Refresh(context.Background())

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeInternalError, rpcErr.Code)
}

func TestServer_Rebuild(t *testing.T) {
	// Given
	h := &mockHandler{
		rebuildFn: func(context.Context) (*index.Result, error) {
			return &index.Result{Outcome: index.OutcomeRebuilt, Processed: 12, Batches: 1}, nil
		},
	}
	_, client := startServer(t, h, nil)

	// When
	res, err := client.Rebuild(context.Background())

	// Then
	require.NoError(t, err)
	assert.Equal(t, "rebuilt", res.Outcome)
	assert.Equal(t, "rebuilt index with 12 files", res.Message)
}

func TestServer_RebuildLocked(t *testing.T) {
	h := &mockHandler{
		rebuildFn: func(context.Context) (*index.Result, error) {
			return &index.Result{Outcome: index.OutcomeLocked}, amerrors.IndexLockedError("/data/index.hnsw", nil)
		},
	}
	_, client := startServer(t, h, nil)

	_, err := client.Rebuild(context.Background())

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeIndexLocked, rpcErr.Code)
}

func TestServer_UnknownMethod(t *testing.T) {
	// Given
	srv, err := NewServer("/tmp/unused.sock", &mockHandler{})
	require.NoError(t, err)

	// When
	resp := srv.handleRequest(context.Background(), Request{JSONRPC: "2.0", Method: "nope", ID: "req-1"})

	// Then
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestServer_RefusesSecondServer(t *testing.T) {
	// Given: a running server
	srv, _ := startServer(t, &mockHandler{}, nil)

	// When: another server tries the same socket
	other, err := NewServer(srv.socketPath, &mockHandler{})
	require.NoError(t, err)
	err = other.ListenAndServe(context.Background())

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another server")
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	// Given: a leftover file where the socket goes
	cfg := DefaultConfig(socketDir(t))
	require.NoError(t, os.WriteFile(cfg.SocketPath, nil, 0o600))

	// When
	srv, err := NewServer(cfg.SocketPath, &mockHandler{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	// Then: the server comes up and removes its socket on shutdown
	require.Eventually(t, NewClient(cfg).IsRunning, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.NoFileExists(t, cfg.SocketPath)
}

func TestClient_NotRunning(t *testing.T) {
	client := NewClient(DefaultConfig(filepath.Join(socketDir(t), "missing")))

	assert.False(t, client.IsRunning())
	assert.ErrorIs(t, client.Ping(context.Background()), ErrNotRunning)
}

func TestClient_RebuildFollowsContext(t *testing.T) {
	// Given: a rebuild that outlasts the caller
	release := make(chan struct{})
	h := &mockHandler{
		rebuildFn: func(ctx context.Context) (*index.Result, error) {
			<-release
			return &index.Result{Outcome: index.OutcomeRebuilt}, nil
		},
	}
	_, client := startServer(t, h, nil)
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// When
	_, err := client.Rebuild(ctx)

	// Then
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
