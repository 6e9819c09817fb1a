package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/persist"
)

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	ConfigOptions
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe <fitted-pipeline-id>",
		Short: "Show an exported fitted pipeline",
		Long: `Show the structure of a fitted pipeline exported to the store.

The document's digest is verified before it is printed. JSON output is the
stored document itself.

Example:
  ta2 describe 01J8Z3V5Q9
  ta2 describe 01J8Z3V5Q9 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, args[0], cmd)
		},
	}

	addConfigFlags(cmd, &opts.ConfigOptions)
	return cmd
}

func runDescribe(opts *DescribeOptions, fittedID string, cmd *cobra.Command) error {
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

	doc, err := persist.LoadDocument(ctx, backend, fittedID)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(doc)
	}
	writeDocument(formatter.Writer, doc, opts.Verbose)
	return nil
}

// writeDocument prints a human-readable outline of doc.
func writeDocument(w io.Writer, doc *ir.PipelineDocument, verbose bool) {
	fmt.Fprintf(w, "Fitted pipeline %s (dataset %s)\n", doc.FittedPipelineID, doc.DatasetID)
	fmt.Fprintf(w, "Pipeline: %s", doc.ID)
	if doc.Name != "" {
		fmt.Fprintf(w, " %q", doc.Name)
	}
	fmt.Fprintf(w, "\nContext: %s\nCreated: %s\n", doc.Context, doc.Created)
	if verbose && doc.Digest != "" {
		fmt.Fprintf(w, "Digest: %s\n", doc.Digest)
	}

	fmt.Fprintln(w, "Inputs:")
	for i, in := range doc.Inputs {
		fmt.Fprintf(w, "  inputs.%d %s\n", i, in.Name)
	}

	fmt.Fprintln(w, "Steps:")
	for i, s := range doc.Steps {
		fmt.Fprintf(w, "  steps.%d %s %s\n", i, s.Type, s.Primitive)
		for _, name := range slices.Sorted(maps.Keys(s.Arguments)) {
			a := s.Arguments[name]
			fmt.Fprintf(w, "    %s <- %s %s\n", name, a.Type, a.Data)
		}
		for _, name := range slices.Sorted(maps.Keys(s.Hyperparams)) {
			fmt.Fprintf(w, "    %s = %s\n", name, describeArgument(s.Hyperparams[name]))
		}
		for _, out := range s.Outputs {
			fmt.Fprintf(w, "    -> steps.%d.%s\n", i, out.ID)
		}
	}

	fmt.Fprintln(w, "Outputs:")
	for i, out := range doc.Outputs {
		fmt.Fprintf(w, "  outputs.%d %s <- %s\n", i, out.Name, out.Data)
	}
}

func describeArgument(a ir.ArgumentDoc) string {
	if a.Type == ir.ArgValue && a.Value != nil && a.Value.Value != nil {
		return fmt.Sprintf("%v (%s)", ir.ToGo(a.Value.Value), ir.Tag(a.Value.Value))
	}
	return a.Type + " " + a.Data
}
