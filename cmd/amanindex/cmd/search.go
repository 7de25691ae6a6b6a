package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/internal/config"
	"github.com/Aman-CERP/amanindex/internal/daemon"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/index"
	"github.com/Aman-CERP/amanindex/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	jsonOutput bool
	local      bool // bypass a running server
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find files by meaning",
		Long: `Embed the query and return the most similar indexed files.

Searches go to the running server when there is one. Otherwise the
persisted index is opened locally; it must already exist.`,
		Example: `  amanindex search "tax return 2025"
  amanindex search invoice acme --limit 5
  amanindex search "holiday photos" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", index.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the index locally even if a server is running")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var results []index.SearchResult
	if client := controlClient(cfg); !opts.local && client.IsRunning() {
		slog.Info("search_using_server", slog.String("query", query))
		results, err = client.Search(ctx, daemon.SearchParams{Query: query, Limit: opts.limit})
	} else {
		slog.Info("search_using_local", slog.String("query", query))
		results, err = searchLocal(ctx, cfg, query, opts.limit)
	}
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		if results == nil {
			results = []index.SearchResult{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	output.New(cmd.OutOrStdout()).Results(query, results)
	return nil
}

// searchLocal opens the persisted index and searches it. A missing or
// unhealthy index is reported rather than rebuilt.
func searchLocal(ctx context.Context, cfg *config.Config, query string, limit int) ([]index.SearchResult, error) {
	coord, _, err := openCoordinator(ctx, cfg, engineDeps{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = coord.Close() }()

	verdict, err := coord.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if verdict.State != index.StateReusable {
		return nil, amerrors.New(amerrors.ErrCodeIndexUnavailable,
			"no usable index ("+verdict.Reason+")", nil).
			WithSuggestion("Run 'amanindex index' first")
	}
	if _, err := coord.BuildOrRefresh(ctx, nil); err != nil {
		return nil, err
	}
	return coord.Search(ctx, query, limit)
}
