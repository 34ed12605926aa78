package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"DealsIngestor/internal/app"
	"DealsIngestor/internal/config"
	"DealsIngestor/internal/domain"
	"DealsIngestor/internal/logging"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dealsingestor",
		Short:         "Turn affiliate deal channel posts into product listings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCommand(), statusCommand(), failedCommand(), retryCommand(), purgeCommand())
	return root
}

// withApp loads configuration, builds the application and closes it after fn.
func withApp(ctx context.Context, fn func(a *app.Application, logger *slog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()
	return fn(application, logger)
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume the intake queue until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application, logger *slog.Logger) error {
				if err := a.Run(cmd.Context()); err != nil {
					logger.Error("application stopped", "error", err)
					return err
				}
				return nil
			})
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show processing record counts by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application, _ *slog.Logger) error {
				st, err := a.Operations().Status(cmd.Context())
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"State", "Records"})
				for _, s := range domain.States {
					t.AppendRow(table.Row{s, st.Counts[s]})
				}
				t.AppendFooter(table.Row{"Total", st.Total})
				t.Render()
				return nil
			})
		},
	}
}

func failedCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List recent failed messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application, _ *slog.Logger) error {
				recs, err := a.Operations().Failed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Channel", "Message", "Stage", "Attempts", "Updated", "Error"})
				for _, r := range recs {
					t.AppendRow(table.Row{r.ChannelID, r.MessageID, r.ErrorStage, r.Attempts, r.UpdatedAt.Format(time.RFC3339), r.Error})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to list")
	return cmd
}

func retryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <channel-id> <message-id>",
		Short: "Reset a failed message and process it again",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("message id %q: %w", args[1], err)
			}
			key := domain.MessageKey{ChannelID: args[0], MessageID: id}
			return withApp(cmd.Context(), func(a *app.Application, _ *slog.Logger) error {
				rec, err := a.Operations().Retry(cmd.Context(), key)
				if err != nil {
					return fmt.Errorf("retry %s: %w", key, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s after %d attempts, %d listings\n", key, rec.State, rec.Attempts, len(rec.ContentIDs))
				return nil
			})
		},
	}
}

func purgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Fail stalled records and delete terminal ones older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.Application, _ *slog.Logger) error {
				now := time.Now()
				stale, err := a.Retention().Sweep(cmd.Context(), now)
				if err != nil {
					return err
				}
				n, err := a.Retention().Purge(cmd.Context(), now)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale records\n", stale)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", n)
				return nil
			})
		},
	}
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}
