package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/PipeOpsHQ/airos/fuse"
	"github.com/PipeOpsHQ/airos/internal/telemetry"
	"github.com/PipeOpsHQ/airos/medic"
	"github.com/PipeOpsHQ/airos/observe"
	otelsink "github.com/PipeOpsHQ/airos/observe/otel"
	providerfactory "github.com/PipeOpsHQ/airos/providers/factory"
	"github.com/PipeOpsHQ/airos/reliable"
	"github.com/PipeOpsHQ/airos/sentinel"
	"github.com/PipeOpsHQ/airos/storage"
)

type DemoOptions struct {
	*RootOptions
	RunID  string
	UseLLM bool
}

type demoResult struct {
	Node    string `json:"node"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func NewDemoCommand(root *RootOptions) *cobra.Command {
	opts := &DemoOptions{RootOptions: root}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run sample wrapped nodes to seed the trace store",
		Long: "demo invokes three wrapped nodes against the configured store: one that succeeds, " +
			"one whose malformed output is repaired, and one stuck in a loop until the fuse trips.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			shutdown, err := telemetry.Init(ctx, opts.Config.Telemetry)
			if err != nil {
				return err
			}
			defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

			store, err := opts.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var repair medic.RepairFunc = scriptedRepair
			if opts.UseLLM {
				repair, err = providerfactory.RepairFuncFromEnv(ctx)
				if err != nil {
					return err
				}
			}
			runID := opts.RunID
			if runID == "" {
				runID = "demo-" + uuid.NewString()[:8]
			}
			sink := observe.NewAsyncSink(observe.NewMultiSink(
				observe.NewLogSink(log.Logger),
				otelsink.NewSink(otel.GetTracerProvider()),
			), 64)
			results := runDemo(ctx, store, sink, repair, runID, opts.Config.FuseLimit)
			sink.Close()
			return printDemo(cmd.OutOrStdout(), opts.Format, runID, results)
		},
	}
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to record under (default random)")
	cmd.Flags().BoolVar(&opts.UseLLM, "llm", false, "repair with the provider configured by AIROS_REPAIR_PROVIDER")
	return cmd
}

// scriptedRepair answers every repair prompt with the invoice the extract
// node should have produced.
func scriptedRepair(context.Context, string) (string, error) {
	return "```json\n{\"vendor\": \"ACME Corp\", \"amount\": 1250.5, \"currency\": \"USD\"}\n```", nil
}

func runDemo(ctx context.Context, store storage.Store, sink observe.Sink, repair medic.RepairFunc, runID string, fuseLimit int) []demoResult {
	common := []reliable.Option{
		reliable.WithStore(store),
		reliable.WithObserver(sink),
		reliable.WithFuseLimit(fuseLimit),
	}
	cfg := reliable.RunConfig{"configurable": map[string]any{"thread_id": runID}}

	summarize := reliable.WrapFunc(func(context.Context, any) (any, error) {
		return map[string]any{"summary": "Quarterly invoice from ACME", "confidence": 0.92}, nil
	}, append(common, reliable.WithNodeName("summarize"),
		reliable.WithContract(sentinel.RequireFields("summary", "confidence")))...)

	extract := reliable.WrapFunc(func(context.Context, any) (any, error) {
		return map[string]any{"vendor": "ACME Corp"}, nil
	}, append(common, reliable.WithNodeName("extract_invoice"),
		reliable.WithRepair(repair),
		reliable.WithContract(sentinel.RequireFields("vendor", "amount", "currency")))...)

	plan := reliable.WrapFunc(func(_ context.Context, state any) (any, error) {
		return state, nil
	}, append(common, reliable.WithNodeName("planner"))...)

	var results []demoResult
	record := func(node string, err error) {
		r := demoResult{Node: node, Outcome: "ok"}
		if err != nil {
			r.Outcome = "failed"
			if errors.Is(err, fuse.ErrLoopDetected) {
				r.Outcome = "loop"
			}
			r.Error = err.Error()
		}
		results = append(results, r)
	}

	document := map[string]any{"document": "invoice-2024-001.pdf"}
	_, err := summarize(ctx, document, cfg)
	record("summarize", err)
	_, err = extract(ctx, document, cfg)
	record("extract_invoice", err)

	stuck := map[string]any{"goal": "reconcile ledger", "step": 1}
	for i := 0; i < fuseLimit; i++ {
		if _, err = plan(ctx, stuck, cfg); err != nil {
			break
		}
	}
	record("planner", err)
	return results
}

func printDemo(w io.Writer, format, runID string, results []demoResult) error {
	if format == FormatJSON {
		return writeJSON(w, map[string]any{"run_id": runID, "results": results})
	}
	fmt.Fprintf(w, "run %s\n", runID)
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(w, "  %-16s %-7s %s\n", r.Node, r.Outcome, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %-16s %s\n", r.Node, r.Outcome)
	}
	fmt.Fprintln(w, "inspect with: airos traces --run", runID)
	return nil
}
