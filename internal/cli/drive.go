package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/roach88/ta2/internal/api"
	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/problem"
)

// DriveOptions holds flags for the drive command.
type DriveOptions struct {
	*RootOptions
	Addr           string
	Problem        string
	Dataset        string
	ProduceDataset string
	Solutions      int
	TimeBound      time.Duration
	Export         bool

	// dial, when set, replaces the network dialer (for testing).
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// DriveReport summarizes one scripted TA3 session.
type DriveReport struct {
	Server     string             `json:"server"`
	Protocol   string             `json:"protocol"`
	SearchID   string             `json:"search_id"`
	Solutions  int                `json:"solutions"`
	Best       string             `json:"best_solution,omitempty"`
	Pipeline   string             `json:"pipeline,omitempty"`
	Steps      int                `json:"steps"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	Produced   map[string]int     `json:"produced,omitempty"`
	ExportedAs string             `json:"exported_as,omitempty"`
}

// NewDriveCommand creates the drive command.
func NewDriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Drive a running TA2 server through a full session",
		Long: `Act as a TA3 client against a running server.

The session says hello, searches, scores the best solution on its holdout,
describes it, produces on a dataset and optionally exports it. Any failed
call fails the command.

Example:
  ta2 drive --addr localhost:45042 --problem problem.yaml --dataset ./data/train.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrive(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "localhost:45042", "server address")
	cmd.Flags().StringVarP(&opts.Problem, "problem", "p", "", "path to the YAML problem description (required)")
	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "training dataset URI (required)")
	cmd.Flags().StringVar(&opts.ProduceDataset, "produce-dataset", "", "dataset URI to produce on (default --dataset)")
	cmd.Flags().IntVar(&opts.Solutions, "solutions", 0, "stop the search after this many solutions (0 waits for the end)")
	cmd.Flags().DurationVar(&opts.TimeBound, "time-bound", 0, "search time bound (0 uses the server default)")
	cmd.Flags().BoolVar(&opts.Export, "export", false, "export the best solution")
	_ = cmd.MarkFlagRequired("problem")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runDrive(opts *DriveOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	prob, err := problem.Load(opts.Problem)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeProblem, Message: err.Error()})
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	target := opts.Addr
	if opts.dial != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(opts.dial))
		target = "passthrough:///" + opts.Addr
	}
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeRPC, Message: err.Error()})
	}
	defer conn.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := drive(ctx, api.NewCoreClient(conn), prob, opts, formatter)
	if err != nil {
		_ = formatter.Error(ErrCodeRPC, err.Error(), nil)
		return WrapExitError(ExitFailure, "session failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	writeDriveReport(formatter.Writer, report)
	return nil
}

// drive runs the scripted session. The search is always ended.
func drive(ctx context.Context, c *api.CoreClient, prob *problem.Problem, opts *DriveOptions, f *OutputFormatter) (*DriveReport, error) {
	hello, err := c.Hello(ctx, &api.HelloRequest{})
	if err != nil {
		return nil, fmt.Errorf("hello: %w", err)
	}
	report := &DriveReport{Server: hello.UserAgent, Protocol: hello.Version}
	f.VerboseLog("connected to %s (protocol %s)", hello.UserAgent, hello.Version)

	started, err := c.SearchSolutions(ctx, &api.SearchSolutionsRequest{
		UserAgent: ir.UserAgent + "-drive",
		Version:   ir.ProtocolVersion,
		TimeBound: opts.TimeBound.Minutes(),
		Problem:   problemToWire(prob),
		Inputs:    []api.Value{api.DatasetURIValue(opts.Dataset)},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	report.SearchID = started.SearchID
	defer func() {
		if _, err := c.EndSearchSolutions(context.WithoutCancel(ctx), &api.EndSearchSolutionsRequest{SearchID: started.SearchID}); err != nil {
			f.VerboseLog("end search %s: %v", started.SearchID, err)
		}
	}()

	best, err := collectSolutions(ctx, c, started.SearchID, opts.Solutions, report, f)
	if err != nil {
		return nil, err
	}
	if best == "" {
		return report, nil
	}
	report.Best = best

	if report.Scores, err = scoreSolution(ctx, c, best); err != nil {
		return nil, err
	}

	desc, err := c.DescribeSolution(ctx, &api.DescribeSolutionRequest{SolutionID: best})
	if err != nil {
		return nil, fmt.Errorf("describe: %w", err)
	}
	report.Pipeline = desc.Pipeline.ID
	report.Steps = len(desc.Pipeline.Steps)

	uri := opts.ProduceDataset
	if uri == "" {
		uri = opts.Dataset
	}
	if report.Produced, err = produceSolution(ctx, c, best, uri); err != nil {
		return nil, err
	}

	if opts.Export {
		exp, err := c.SolutionExport(ctx, &api.SolutionExportRequest{SolutionID: best, Rank: 1})
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		report.ExportedAs = exp.FittedPipelineID
	}
	return report, nil
}

// collectSolutions reads search results and returns the best solution id.
// With limit > 0 the search is stopped once limit solutions arrived.
func collectSolutions(ctx context.Context, c *api.CoreClient, searchID string, limit int, report *DriveReport, f *OutputFormatter) (string, error) {
	stream, err := c.GetSearchSolutionsResults(ctx, &api.GetSearchSolutionsResultsRequest{SearchID: searchID})
	if err != nil {
		return "", fmt.Errorf("search results: %w", err)
	}
	best, bestScore := "", 0.0
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return best, nil
		}
		if err != nil {
			return "", fmt.Errorf("search results: %w", err)
		}
		if res.SolutionID == "" {
			continue
		}
		report.Solutions++
		f.VerboseLog("solution %s internal score %.4f", res.SolutionID, res.InternalScore)
		if best == "" || res.InternalScore > bestScore {
			best, bestScore = res.SolutionID, res.InternalScore
		}
		if limit > 0 && report.Solutions == limit {
			if _, err := c.StopSearchSolutions(ctx, &api.StopSearchSolutionsRequest{SearchID: searchID}); err != nil {
				return "", fmt.Errorf("stop search: %w", err)
			}
			limit = 0
		}
	}
}

func scoreSolution(ctx context.Context, c *api.CoreClient, solutionID string) (map[string]float64, error) {
	req, err := c.ScoreSolution(ctx, &api.ScoreSolutionRequest{
		SolutionID:    solutionID,
		Configuration: &api.ScoringConfiguration{Method: "HOLDOUT"},
	})
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	stream, err := c.GetScoreSolutionResults(ctx, &api.GetScoreSolutionResultsRequest{RequestID: req.RequestID})
	if err != nil {
		return nil, fmt.Errorf("score results: %w", err)
	}
	msgs, err := drain(stream)
	if err != nil {
		return nil, fmt.Errorf("score results: %w", err)
	}
	last, err := terminal(msgs, func(m *api.GetScoreSolutionResultsResponse) api.Progress { return m.Progress })
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	scores := make(map[string]float64, len(last.Scores))
	for _, s := range last.Scores {
		if s.Value.Double != nil {
			scores[s.Metric.Metric] = *s.Value.Double
		}
	}
	return scores, nil
}

func produceSolution(ctx context.Context, c *api.CoreClient, solutionID, uri string) (map[string]int, error) {
	req, err := c.ProduceSolution(ctx, &api.ProduceSolutionRequest{
		SolutionID: solutionID,
		Inputs:     []api.Value{api.DatasetURIValue(uri)},
	})
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	stream, err := c.GetProduceSolutionResults(ctx, &api.GetProduceSolutionResultsRequest{RequestID: req.RequestID})
	if err != nil {
		return nil, fmt.Errorf("produce results: %w", err)
	}
	msgs, err := drain(stream)
	if err != nil {
		return nil, fmt.Errorf("produce results: %w", err)
	}
	last, err := terminal(msgs, func(m *api.GetProduceSolutionResultsResponse) api.Progress { return m.Progress })
	if err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}
	produced := make(map[string]int, len(last.ExposedOutputs))
	for name, v := range last.ExposedOutputs {
		if v.StringList != nil {
			produced[name] = len(*v.StringList)
		}
	}
	return produced, nil
}

func drain[T any](stream grpc.ServerStreamingClient[T]) ([]*T, error) {
	var out []*T
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
}

// terminal returns the last record of a request stream and fails unless it
// completed.
func terminal[T any](msgs []*T, progress func(*T) api.Progress) (*T, error) {
	if len(msgs) == 0 {
		return nil, errors.New("no progress records")
	}
	last := msgs[len(msgs)-1]
	switch p := progress(last); p.State {
	case api.ProgressCompleted:
		return last, nil
	case api.ProgressErrored:
		return nil, errors.New(p.Status)
	default:
		return nil, fmt.Errorf("stream ended in state %s", p.State)
	}
}

func problemToWire(p *problem.Problem) *api.ProblemDescription {
	d := &api.ProblemDescription{Problem: api.Problem{
		ID:          p.ID,
		Version:     p.Version,
		Name:        p.Name,
		TaskType:    string(p.TaskType),
		TaskSubtype: p.TaskSubtype,
	}}
	for _, m := range p.Metrics {
		d.Problem.PerformanceMetrics = append(d.Problem.PerformanceMetrics,
			api.PerformanceMetric{Metric: string(m.Metric), K: m.K, PosLabel: m.PosLabel})
	}
	for _, in := range p.Inputs {
		pin := api.ProblemInput{DatasetID: in.DatasetID}
		for _, t := range in.Targets {
			pin.Targets = append(pin.Targets, api.ProblemTarget{
				TargetIndex: t.TargetIndex,
				ResourceID:  t.ResourceID,
				ColumnIndex: t.ColumnIndex,
				ColumnName:  t.ColumnName,
			})
		}
		d.Inputs = append(d.Inputs, pin)
	}
	return d
}

func writeDriveReport(w io.Writer, r *DriveReport) {
	fmt.Fprintf(w, "Server: %s (protocol %s)\n", r.Server, r.Protocol)
	fmt.Fprintf(w, "Search %s: %d solution(s)\n", r.SearchID, r.Solutions)
	if r.Best == "" {
		return
	}
	fmt.Fprintf(w, "Best: %s (pipeline %s, %d steps)\n", r.Best, r.Pipeline, r.Steps)
	for _, name := range sortedKeys(r.Scores) {
		fmt.Fprintf(w, "  %s = %.4f\n", name, r.Scores[name])
	}
	for _, name := range sortedKeys(r.Produced) {
		fmt.Fprintf(w, "  %s: %d rows\n", name, r.Produced[name])
	}
	if r.ExportedAs != "" {
		fmt.Fprintf(w, "Exported as %s\n", r.ExportedAs)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
