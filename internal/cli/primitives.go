package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ta2/internal/ir"
	"github.com/roach88/ta2/internal/primitives"
)

// NewPrimitivesCommand creates the primitives command.
func NewPrimitivesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "primitives",
		Short:         "List the registered primitives",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			refs := primitives.Registry().List()
			if rootOpts.Format == "json" {
				return formatter.Success(struct {
					Primitives []ir.PrimitiveRef `json:"primitives"`
				}{refs})
			}
			tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tPATH\tNAME")
			for _, r := range refs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Version, r.PythonPath, r.Name)
			}
			return tw.Flush()
		},
	}
}
