package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/procurement-graph/internal/app"
	"github.com/yungbote/procurement-graph/internal/domain/procurement"
	"github.com/yungbote/procurement-graph/internal/pipeline"
)

// Error codes printed in the CLI error envelope.
const (
	ErrCodeStep     = "E_STEP"
	ErrCodeConfig   = "E_CONFIG"
	ErrCodeNoInputs = "E_NO_INPUTS"
	ErrCodeLedger   = "E_LEDGER"
	ErrCodeNotFound = "E_NOT_FOUND"
)

type runFunc func(ctx context.Context, a *app.App, inputs []string) (*pipeline.Diagnostics, error)

func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return pipelineCommand(rootOpts, &cobra.Command{
		Use:   "rebuild [files...]",
		Short: "Reset the graph and rebuild it from record files",
		Long: `Empty the graph, load the given record files, run every risk pass and verify
the result. Inputs are local paths or gs://bucket/key objects; a gs:// prefix ending
in "/" loads every .json object under it. Without arguments the configured inputs
are used.`,
	}, true, true, func(ctx context.Context, a *app.App, inputs []string) (*pipeline.Diagnostics, error) {
		return a.Pipeline.Rebuild(ctx, inputs)
	})
}

func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return pipelineCommand(rootOpts, &cobra.Command{
		Use:   "load [files...]",
		Short: "Merge record files into the existing graph",
		Long:  "Load record files without resetting. Loading the same files twice creates nothing new.",
	}, true, false, func(ctx context.Context, a *app.App, inputs []string) (*pipeline.Diagnostics, error) {
		return a.Pipeline.Load(ctx, inputs)
	})
}

func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	return pipelineCommand(rootOpts, &cobra.Command{
		Use:   "analyze",
		Short: "Run the risk passes over the current graph",
		Args:  cobra.NoArgs,
	}, false, false, func(ctx context.Context, a *app.App, _ []string) (*pipeline.Diagnostics, error) {
		return a.Pipeline.Analyze(ctx)
	})
}

func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return pipelineCommand(rootOpts, &cobra.Command{
		Use:   "verify",
		Short: "Count the graph and audit its integrity",
		Args:  cobra.NoArgs,
	}, false, true, func(ctx context.Context, a *app.App, _ []string) (*pipeline.Diagnostics, error) {
		return a.Pipeline.Verify(ctx)
	})
}

// pipelineCommand wires a run mode into cmd. verifies adds --strict for modes that end
// with the integrity audit.
func pipelineCommand(rootOpts *RootOptions, cmd *cobra.Command, takesInputs, verifies bool, run runFunc) *cobra.Command {
	var strict bool
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runPipeline(ctx, rootOpts, cmd, args, takesInputs, strict, run)
	}
	if verifies {
		cmd.Flags().BoolVar(&strict, "strict", false, "exit 1 when the integrity audit has findings")
	}
	return cmd
}

func runPipeline(ctx context.Context, opts *RootOptions, cmd *cobra.Command, args []string, takesInputs, strict bool, run runFunc) error {
	f := opts.formatter(cmd)
	a, err := opts.openApp(ctx, args...)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return err
	}
	defer a.Close(context.Background())

	var inputs []string
	if takesInputs {
		inputs = a.Cfg.Inputs
	}
	if takesInputs && len(inputs) == 0 {
		_ = f.Error(ErrCodeNoInputs, "no input files given and none configured", nil)
		return NewExitError(ExitCommandError, "no inputs")
	}
	f.VerboseLog("running %s on %d input(s)", cmd.Name(), len(inputs))

	diag, err := run(ctx, a, inputs)
	if err != nil {
		var se *pipeline.StepError
		if errors.As(err, &se) {
			_ = f.Error(ErrCodeStep, err.Error(), diag)
			return WrapExitError(ExitFailure, "pipeline failed", err)
		}
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "pipeline failed", err)
	}
	if err := f.Success(diag, func(w io.Writer) { renderDiagnostics(w, diag) }); err != nil {
		return err
	}
	if strict && diag.Verify != nil && !diag.Verify.Integrity.Clean() {
		return NewExitError(ExitFailure, "integrity findings")
	}
	return nil
}

func renderDiagnostics(w io.Writer, d *pipeline.Diagnostics) {
	fmt.Fprintf(w, "run %s (%s) finished in %s\n", d.RunID, d.Kind, d.FinishedAt.Sub(d.StartedAt).Round(time.Millisecond))
	if d.RawRecords > 0 || d.Normalized > 0 {
		fmt.Fprintf(w, "records: raw=%d normalized=%d rejected=%d duplicates=%d contracts_without_award=%d\n",
			d.RawRecords, d.Normalized, d.Rejected, d.Duplicates, d.ContractsWithoutAward)
	}
	if d.Load != nil {
		fmt.Fprintf(w, "load: created=%d skipped_relationships=%d dropped_contracts=%d\n",
			d.Load.Created(), d.Load.SkippedRelationships(), d.Load.DroppedContracts)
	}
	if d.Risk != nil {
		for _, p := range d.Risk.Passes {
			fmt.Fprintf(w, "risk %-22s entities=%d edges_created=%d edges_updated=%d\n",
				p.Name, p.EntitiesUpdated, p.EdgesCreated, p.EdgesUpdated)
		}
		q := d.Risk.Report.QuickAwards
		fmt.Fprintf(w, "quick awards: total=%d same_day=%d (%.2f%%) one_day=%d (%.2f%%)\n",
			q.Total, q.SameDay, q.SameDayPercentage, q.OneDay, q.OneDayPercentage)
		for _, r := range d.Risk.Report.TopRegions {
			fmt.Fprintf(w, "region %-20s suppliers=%d value=%.2f concentration=%s\n", r.Region, r.Suppliers, r.TotalValue, r.Concentration)
		}
	}
	if d.Verify != nil {
		c := d.Verify.Census
		for _, k := range procurement.EntityKinds {
			fmt.Fprintf(w, "nodes %-12s %d\n", k, c.Nodes[k])
		}
		rels := make([]string, 0, len(c.Edges))
		for k := range c.Edges {
			rels = append(rels, string(k))
		}
		sort.Strings(rels)
		for _, k := range rels {
			fmt.Fprintf(w, "edges %-22s %d\n", k, c.Edges[procurement.RelKind(k)])
		}
		in := d.Verify.Integrity
		status := "clean"
		if !in.Clean() {
			status = "findings"
		}
		fmt.Fprintf(w, "integrity: %s duplicates=%d orphan_procurements=%d orphan_items=%d orphan_awards=%d orphan_contracts=%d missing_fields=%d future_dated=%d\n",
			status, len(in.DuplicateProcurements), in.OrphanProcurements, in.OrphanItems, in.OrphanAwards,
			in.OrphanContracts, in.MissingRequiredFields, in.FutureDated)
	}
}
