package cmd

import (
	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
	"github.com/Aman-CERP/amanindex/internal/output"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the running server to refresh the index now",
		Long: `Queue an incremental refresh on the running server: deleted files are
removed from the index, then new and modified files are embedded.

Requests made while a refresh is already pending are merged into it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRefresh(cmd)
		},
	}
}

func runRefresh(cmd *cobra.Command) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := controlClient(cfg)
	if !client.IsRunning() {
		return amerrors.New(amerrors.ErrCodeIndexUnavailable, "no server is running", nil).
			WithSuggestion("Start one with 'amanindex serve', or run 'amanindex index' directly")
	}

	res, err := client.Refresh(ctx)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	if res.Queued {
		out.Success("Refresh queued")
	} else {
		out.Status("", "A refresh is already pending")
	}
	return nil
}
