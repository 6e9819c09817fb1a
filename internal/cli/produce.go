package cli

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ta2/internal/dataset"
	"github.com/roach88/ta2/internal/engine"
	"github.com/roach88/ta2/internal/persist"
	"github.com/roach88/ta2/internal/primitives"
)

// ProduceOptions holds flags for the produce command.
type ProduceOptions struct {
	*RootOptions
	ConfigOptions
	Dataset string
	Expose  []string
}

// ProduceResult holds the exposed outputs of one produce run, keyed
// "outputs.N".
type ProduceResult struct {
	FittedPipelineID string              `json:"fitted_pipeline_id"`
	Dataset          string              `json:"dataset"`
	Outputs          map[string][]string `json:"outputs"`
}

// NewProduceCommand creates the produce command.
func NewProduceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProduceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "produce <fitted-pipeline-id>",
		Short: "Run an exported fitted pipeline on a dataset",
		Long: `Restore a fitted pipeline from the store and run it on a dataset.

Text output is CSV with one column per exposed output.

Example:
  ta2 produce 01J8Z3V5Q9 --dataset ./data/test.csv
  ta2 produce 01J8Z3V5Q9 --dataset ./data/test.csv --expose outputs.0 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProduce(opts, args[0], cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "dataset URI to produce on (required)")
	cmd.Flags().StringSliceVar(&opts.Expose, "expose", nil, "outputs to expose (default all)")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runProduce(opts *ProduceOptions, fittedID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.load()
	if err != nil {
		return outputCommandError(formatter, err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	backend, closeBackend, err := openBackend(ctx, cfg.Store, logger)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	defer closeBackend()

	reg := primitives.Registry()
	fp, err := persist.Load(ctx, backend, reg, fittedID)
	if err != nil {
		return outputCommandError(formatter, err)
	}
	data, err := dataset.NewLoader(logger).Load(ctx, opts.Dataset)
	if err != nil {
		return outputCommandError(formatter, &LoadError{Code: ErrCodeNotFound, Message: err.Error()})
	}
	formatter.VerboseLog("Producing %s on %s (%d rows)", fittedID, data.ID, data.NumRows())

	res, err := engine.New(reg, engine.WithLogger(logger)).Produce(ctx, fp, []any{data})
	if err != nil {
		_ = formatter.Error(ErrCodeProduce, err.Error(), nil)
		return WrapExitError(ExitFailure, "produce failed", err)
	}

	result, err := exposeOutputs(fittedID, opts.Dataset, res.Outputs, opts.Expose)
	if err != nil {
		_ = formatter.Error(ErrCodeProduce, err.Error(), nil)
		return WrapExitError(ExitCommandError, "produce failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return writeOutputsCSV(formatter.Writer, result.Outputs)
}

// exposeOutputs converts pipeline outputs to cell columns, keeping only the
// names in expose when it is not empty.
func exposeOutputs(fittedID, uri string, outputs []any, expose []string) (*ProduceResult, error) {
	all := make(map[string][]string, len(outputs))
	for i, v := range outputs {
		name := fmt.Sprintf("outputs.%d", i)
		switch col := v.(type) {
		case dataset.Column:
			all[name] = col.Values
		case []string:
			all[name] = col
		default:
			return nil, fmt.Errorf("%s is %T, not a column", name, v)
		}
	}
	result := &ProduceResult{FittedPipelineID: fittedID, Dataset: uri, Outputs: all}
	if len(expose) == 0 {
		return result, nil
	}
	result.Outputs = make(map[string][]string, len(expose))
	for _, name := range expose {
		col, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("unknown output %q", name)
		}
		result.Outputs[name] = col
	}
	return result, nil
}

func writeOutputsCSV(w io.Writer, outputs map[string][]string) error {
	names := make([]string, 0, len(outputs))
	rows := 0
	for name, col := range outputs {
		names = append(names, name)
		rows = max(rows, len(col))
	}
	slices.Sort(names)

	cw := csv.NewWriter(w)
	if err := cw.Write(names); err != nil {
		return err
	}
	record := make([]string, len(names))
	for r := range rows {
		for i, name := range names {
			record[i] = ""
			if col := outputs[name]; r < len(col) {
				record[i] = col[r]
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
