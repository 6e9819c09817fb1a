package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ta2/internal/problem"
	"github.com/roach88/ta2/internal/session"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	ConfigOptions
	Problem       string
	Dataset       string
	TimeBound     time.Duration
	MaxCandidates int
	Export        bool
}

// SearchReport is the result of a local search.
type SearchReport struct {
	SearchID  string           `json:"search_id"`
	ProblemID string           `json:"problem_id"`
	Solutions []RankedSolution `json:"solutions"`
	Exported  string           `json:"exported,omitempty"`
}

// RankedSolution is one solution of a search in rank order.
type RankedSolution struct {
	Rank             int           `json:"rank"`
	SolutionID       string        `json:"solution_id"`
	FittedPipelineID string        `json:"fitted_pipeline_id"`
	Template         string        `json:"template"`
	InternalScore    float64       `json:"internal_score"`
	Scores           []MetricScore `json:"scores"`
}

type MetricScore struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a pipeline search locally",
		Long: `Run one pipeline search in-process and print the ranked solutions.

The search uses the same templates, engine and store as the server. With
--export the best solution's fitted pipeline is written to the store and can
be inspected later with describe and produce.

Example:
  ta2 search --problem problem.yaml --dataset ./data/train.csv
  ta2 search --problem problem.yaml --dataset ./data/train.csv --export --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	cmd.Flags().StringVarP(&opts.Problem, "problem", "p", "", "path to the YAML problem description (required)")
	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "training dataset URI (required)")
	cmd.Flags().DurationVar(&opts.TimeBound, "time-bound", 0, "search time bound (0 uses the configured default)")
	cmd.Flags().IntVar(&opts.MaxCandidates, "max-candidates", -1, "candidates to evaluate (overrides config, 0 is unbounded)")
	cmd.Flags().BoolVar(&opts.Export, "export", false, "export the best solution to the store")
	_ = cmd.MarkFlagRequired("problem")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runSearch(opts *SearchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.load()
	if err != nil {
		return outputCommandError(formatter, err)
	}
	if opts.MaxCandidates >= 0 {
		cfg.Search.MaxCandidates = opts.MaxCandidates
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	prob, err := problem.Load(opts.Problem)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeProblem, Message: err.Error()})
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	defer func() {
		if err := rt.close(); err != nil {
			logger.Error("error closing runtime", "error", err)
		}
	}()

	report, err := search(ctx, rt.manager, session.SearchRequest{
		Problem:    prob,
		DatasetURI: opts.Dataset,
		TimeBound:  opts.TimeBound,
	}, formatter)
	if err != nil {
		_ = formatter.Error(ErrCodeSearch, err.Error(), nil)
		return WrapExitError(ExitFailure, "search failed", err)
	}

	if opts.Export && len(report.Solutions) > 0 {
		best := report.Solutions[0]
		if err := rt.manager.ExportSolution(ctx, best.SolutionID); err != nil {
			_ = formatter.Error(ErrCodeBackend, err.Error(), nil)
			return WrapExitError(ExitFailure, "export failed", err)
		}
		report.Exported = best.FittedPipelineID
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	writeSearchReport(formatter.Writer, report)
	return nil
}

// search runs req to completion and ranks its solutions.
func search(ctx context.Context, m *session.Manager, req session.SearchRequest, f *OutputFormatter) (*SearchReport, error) {
	id, err := m.StartSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.EndSearch(id) }()

	st, err := m.SearchResults(id)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := st.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		f.VerboseLog("solution %s scored %.4f (%d done)", rec.SolutionID, rec.InternalScore, rec.DoneTicks)
	}

	ranked, err := m.Ranked(id)
	if err != nil {
		return nil, err
	}
	report := &SearchReport{SearchID: id, ProblemID: req.Problem.ID, Solutions: make([]RankedSolution, 0, len(ranked))}
	for i, sol := range ranked {
		rs := RankedSolution{
			Rank:             i + 1,
			SolutionID:       sol.ID,
			FittedPipelineID: sol.Fitted.ID(),
			Template:         sol.Fitted.Pipeline().Metadata().Name,
			InternalScore:    sol.InternalScore,
		}
		for _, sc := range sol.Scores {
			rs.Scores = append(rs.Scores, MetricScore{Metric: string(sc.Metric.Metric), Value: sc.Value})
		}
		report.Solutions = append(report.Solutions, rs)
	}
	return report, nil
}

func writeSearchReport(w io.Writer, r *SearchReport) {
	fmt.Fprintf(w, "Search %s (%s): %d solution(s)\n", r.SearchID, r.ProblemID, len(r.Solutions))
	if len(r.Solutions) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RANK\tSOLUTION\tFITTED\tTEMPLATE\tSCORES")
		for _, s := range r.Solutions {
			scores := make([]string, len(s.Scores))
			for i, sc := range s.Scores {
				scores[i] = fmt.Sprintf("%s=%.4f", sc.Metric, sc.Value)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.Rank, s.SolutionID, s.FittedPipelineID, s.Template, strings.Join(scores, " "))
		}
		tw.Flush()
	}
	if r.Exported != "" {
		fmt.Fprintf(w, "Exported fitted pipeline %s\n", r.Exported)
	}
}

// outputCommandError reports a setup failure and returns the matching exit
// error.
func outputCommandError(f *OutputFormatter, err error) error {
	_ = f.Error(codeOf(err), err.Error(), nil)
	return WrapExitError(ExitCommandError, "command failed", err)
}
