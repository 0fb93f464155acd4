package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/procurement-graph/internal/data/runs"
	types "github.com/yungbote/procurement-graph/internal/domain/runs"
	"github.com/yungbote/procurement-graph/internal/platform/dbctx"
)

type runDetail struct {
	Run    *types.PipelineRun        `json:"run"`
	Events []*types.PipelineRunEvent `json:"events"`
}

func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "runs [run-id]",
		Short:         "List recorded pipeline runs, or show one with its stage events",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			ctx := cmd.Context()
			a, err := rootOpts.openApp(ctx)
			if err != nil {
				_ = f.Error(ErrCodeConfig, err.Error(), nil)
				return err
			}
			defer a.Close(context.Background())
			if a.Runs == nil {
				_ = f.Error(ErrCodeLedger, "run ledger is disabled (runs.driver=none)", nil)
				return NewExitError(ExitCommandError, "ledger disabled")
			}
			dbc := dbctx.New(ctx)

			if len(args) == 0 {
				list, err := a.Runs.List(dbc, limit)
				if err != nil {
					_ = f.Error(ErrCodeLedger, err.Error(), nil)
					return WrapExitError(ExitCommandError, "list runs", err)
				}
				return f.Success(list, func(w io.Writer) { renderRuns(w, list) })
			}

			id, err := uuid.Parse(args[0])
			if err != nil {
				_ = f.Error(ErrCodeNotFound, fmt.Sprintf("invalid run id %q", args[0]), nil)
				return NewExitError(ExitCommandError, "invalid run id")
			}
			run, err := a.Runs.Get(dbc, id)
			if errors.Is(err, runs.ErrNotFound) {
				_ = f.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", id), nil)
				return NewExitError(ExitCommandError, "run not found")
			}
			if err != nil {
				_ = f.Error(ErrCodeLedger, err.Error(), nil)
				return WrapExitError(ExitCommandError, "get run", err)
			}
			events, err := a.Runs.Events(dbc, id)
			if err != nil {
				_ = f.Error(ErrCodeLedger, err.Error(), nil)
				return WrapExitError(ExitCommandError, "run events", err)
			}
			detail := runDetail{Run: run, Events: events}
			return f.Success(detail, func(w io.Writer) {
				renderRuns(w, []*types.PipelineRun{run})
				for _, ev := range events {
					fmt.Fprintf(w, "  %3d %-12s %-10s %s %s\n", ev.Seq, ev.Stage, ev.Status, string(ev.Counts), ev.Error)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func renderRuns(w io.Writer, list []*types.PipelineRun) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, r := range list {
		line := fmt.Sprintf("%s %-8s %-10s started=%s", r.ID, r.Kind, r.Status, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
		if r.FailedStep != "" {
			line += " failed_step=" + r.FailedStep
		}
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Fprintln(w, line)
	}
}
