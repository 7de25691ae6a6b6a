package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanindex/internal/async"
	"github.com/Aman-CERP/amanindex/internal/embed"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/telemetry"
	"github.com/Aman-CERP/amanindex/pkg/version"
)

const (
	serverName         = "AmanIndex"
	searchStatsURI     = "amanindex://search_stats"
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// Engine is the part of the index coordinator the server needs.
type Engine interface {
	Search(ctx context.Context, query string, k int) ([]index.SearchResult, error)
	Stats(ctx context.Context) (index.Stats, error)
	ForceRebuild(ctx context.Context) (*index.Result, error)
}

// StatusSource reports background refresh state.
type StatusSource interface {
	Status() async.Status
}

// Server is the MCP server for the file index.
type Server struct {
	mcp      *mcp.Server
	engine   Engine
	embedder embed.Provider // may be nil; reported as "none"
	logger   *slog.Logger

	scheduler StatusSource
	searches  *telemetry.SearchStats

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_files",
		Description: "Find local documents, spreadsheets, presentations and images by describing them. Returns absolute paths ranked by similarity of their names and locations to the query.",
	},
	{
		Name:        "index_stats",
		Description: "Report how many files are indexed, when the index was last updated, whether it is healthy, and when the next background refresh runs.",
	},
	{
		Name:        "force_rebuild",
		Description: "Discard the file index and rebuild it from a full scan. Slow on large disks; use only when index_stats reports the index needs a rebuild. Requires confirm=true.",
	},
}

// NewServer creates a new MCP server backed by engine.
func NewServer(engine Engine, embedder embed.Provider) (*Server, error) {
	if engine == nil {
		return nil, errors.New("index engine is required")
	}

	s := &Server{
		engine:   engine,
		embedder: embedder,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// SetScheduler attaches the background refresh scheduler so index_stats
// can report it.
func (s *Server) SetScheduler(src StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler = src
}

// SetSearchStats attaches search analytics and registers the
// search_stats resource.
func (s *Server) SetSearchStats(st *telemetry.SearchStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = st
	if st != nil {
		s.registerSearchStatsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-decoded arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_files":
		query, _ := args["query"].(string)
		limit := 0
		if l, ok := args["limit"].(float64); ok {
			limit = int(l)
		}
		results, err := s.search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(query, results), nil
	case "index_stats":
		out, err := s.stats(ctx)
		if err != nil {
			return nil, err
		}
		return FormatStats(out), nil
	case "force_rebuild":
		confirm, _ := args["confirm"].(bool)
		return s.forceRebuild(ctx, confirm)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpIndexStatsHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpForceRebuildHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	results, err := s.search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		output.Results = append(output.Results, ToSearchResultOutput(r))
	}
	return nil, output, nil
}

func (s *Server) mcpIndexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	*IndexStatsOutput,
	error,
) {
	out, err := s.stats(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpForceRebuildHandler(ctx context.Context, _ *mcp.CallToolRequest, input ForceRebuildInput) (
	*mcp.CallToolResult,
	*ForceRebuildOutput,
	error,
) {
	out, err := s.forceRebuild(ctx, input.Confirm)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// search validates the query, clamps the limit and runs the search.
func (s *Server) search(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit = clampLimit(limit, defaultSearchLimit, 1, maxSearchLimit)

	start := time.Now()
	requestID := generateRequestID()
	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.Int("limit", limit))

	results, err := s.engine.Search(ctx, query, limit)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))
	return results, nil
}

func (s *Server) stats(ctx context.Context) (*IndexStatsOutput, error) {
	st, err := s.engine.Stats(ctx)
	if err != nil {
		s.logger.Error("index_stats failed", slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &IndexStatsOutput{
		Index: IndexInfo{
			TotalFiles:     st.TotalFiles,
			VectorCount:    st.VectorCount,
			Orphans:        st.Orphans,
			LastUpdate:     formatTime(st.LastUpdate),
			StoreValid:     st.StoreValid,
			State:          string(st.State),
			IndexExists:    st.IndexExists,
			MetadataExists: st.MetadataExists,
			Roots:          st.Roots,
		},
		Embeddings: EmbeddingInfo{Model: "none", Status: "none"},
	}
	if s.embedder != nil {
		out.Embeddings = EmbeddingInfo{
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
			Status:     "ready",
		}
	}

	s.mu.RLock()
	sched, searches := s.scheduler, s.searches
	s.mu.RUnlock()
	if sched != nil {
		status := sched.Status()
		out.Scheduler = &status
	}
	if searches != nil {
		snap := searches.Snapshot(10)
		out.Searches = &snap
	}
	return out, nil
}

func (s *Server) forceRebuild(ctx context.Context, confirm bool) (*ForceRebuildOutput, error) {
	if !confirm {
		return nil, NewInvalidParamsError("force_rebuild discards the index; pass confirm=true to proceed")
	}

	requestID := generateRequestID()
	s.logger.Info("force_rebuild started", slog.String("request_id", requestID))

	res, err := s.engine.ForceRebuild(ctx)
	if err != nil {
		s.logger.Error("force_rebuild failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("force_rebuild completed",
		slog.String("request_id", requestID),
		slog.String("outcome", string(res.Outcome)),
		slog.Int("processed", res.Processed))
	return &ForceRebuildOutput{
		Outcome:       string(res.Outcome),
		Message:       res.Message(),
		Processed:     res.Processed,
		Failed:        res.Failed,
		Batches:       res.Batches,
		FailedBatches: res.FailedBatches,
		DurationSecs:  res.Duration.Seconds(),
	}, nil
}

func (s *Server) registerSearchStatsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "search_stats",
			URI:         searchStatsURI,
			Description: "Recent search activity: query volume, top terms and queries that found nothing",
			MIMEType:    "application/json",
		},
		s.handleSearchStats,
	)
}

func (s *Server) handleSearchStats(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	searches := s.searches
	s.mu.RUnlock()
	if searches == nil {
		return nil, NewInvalidParamsError("search stats not available")
	}

	data, err := json.MarshalIndent(searches.Snapshot(20), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal search stats: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: searchStatsURI, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
