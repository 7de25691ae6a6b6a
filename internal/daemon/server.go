package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/amanindex/internal/async"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

// requestReadTimeout bounds how long a client may take to send its request.
const requestReadTimeout = 5 * time.Second

// Handler serves index requests. The coordinator implements it.
type Handler interface {
	Search(ctx context.Context, query string, k int) ([]index.SearchResult, error)
	Stats(ctx context.Context) (index.Stats, error)
	ForceRebuild(ctx context.Context) (*index.Result, error)
}

// Refresher queues refresh cycles and reports their state. The scheduler
// implements it.
type Refresher interface {
	Trigger() bool
	Status() async.Status
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	refresher  Refresher
	watching   bool
	started    time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath backed by handler.
func NewServer(socketPath string, handler Handler) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
	}, nil
}

// SetRefresher attaches the refresh scheduler; without one the refresh
// method fails.
func (s *Server) SetRefresher(r Refresher, watching bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresher = r
	s.watching = watching
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
// A stale socket left by a crashed server is replaced; a live one makes
// ListenAndServe fail.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, time.Second); err == nil {
		_ = conn.Close()
		return fmt.Errorf("another server is listening on %s", s.socketPath)
	}
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("control_socket_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("control_accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(requestReadTimeout)); err != nil {
		slog.Warn("control_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.handleRequest(ctx, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status())
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodStats:
		st, err := s.handler.Stats(ctx)
		if err != nil {
			return errorResponse(req.ID, ErrCodeInternalError, err)
		}
		return NewSuccessResponse(req.ID, st)
	case MethodRefresh:
		s.mu.Lock()
		r := s.refresher
		s.mu.Unlock()
		if r == nil {
			return NewErrorResponse(req.ID, ErrCodeInternalError, "no refresh scheduler is running")
		}
		return NewSuccessResponse(req.ID, RefreshResult{Queued: r.Trigger()})
	case MethodRebuild:
		slog.Info("control_rebuild_requested", slog.String("id", req.ID))
		res, err := s.handler.ForceRebuild(ctx)
		if err != nil {
			return errorResponse(req.ID, ErrCodeRebuildFailed, err)
		}
		return NewSuccessResponse(req.ID, NewRebuildResult(res))
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	paramsData, err := json.Marshal(req.Params)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to encode params")
	}

	var params SearchParams
	if err := json.Unmarshal(paramsData, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	results, err := s.handler.Search(ctx, params.Query, params.Limit)
	if err != nil {
		return errorResponse(req.ID, ErrCodeSearchFailed, err)
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return NewSuccessResponse(req.ID, results)
}

// errorResponse maps index errors onto wire codes, falling back to code.
func errorResponse(id string, code int, err error) Response {
	switch {
	case errors.Is(err, amerrors.ErrIndexLocked):
		code = ErrCodeIndexLocked
	case amerrors.GetCode(err) == amerrors.ErrCodeIndexUnavailable:
		code = ErrCodeIndexUnavailable
	}
	return NewErrorResponse(id, code, err.Error())
}

func (s *Server) status() StatusResult {
	s.mu.Lock()
	r, watching, started := s.refresher, s.watching, s.started
	s.mu.Unlock()

	st := StatusResult{
		PID:      os.Getpid(),
		Uptime:   time.Since(started).Round(time.Second).String(),
		Version:  version.Version,
		Watching: watching,
	}
	if r != nil {
		sched := r.Status()
		st.Scheduler = &sched
	}
	return st
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}
