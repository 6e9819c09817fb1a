package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ta2/internal/primitives"
)

// TemplateValidation holds the result of validating a template library.
type TemplateValidation struct {
	Valid      bool     `json:"valid"`
	Templates  int      `json:"templates"`
	Candidates int      `json:"candidates"`
	Errors     []string `json:"errors,omitempty"`
}

// TemplateSummary describes one template of the library.
type TemplateSummary struct {
	Name       string `json:"name"`
	Task       string `json:"task"`
	Candidates int    `json:"candidates"`
}

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect and validate pipeline templates",
	}
	cmd.AddCommand(newTemplatesListCommand(rootOpts))
	cmd.AddCommand(newTemplatesValidateCommand(rootOpts))
	return cmd
}

func newTemplatesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list [dir]",
		Short:         "List the embedded templates and those in dir",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			lib, err := loadLibrary(primitives.Registry(), optionalArg(args))
			if err != nil {
				return outputCommandError(formatter, err)
			}

			var out []TemplateSummary
			for _, t := range lib.Templates() {
				out = append(out, TemplateSummary{Name: t.Name, Task: string(t.Task), Candidates: t.Candidates()})
			}
			if rootOpts.Format == "json" {
				return formatter.Success(out)
			}
			tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTASK\tCANDIDATES")
			for _, t := range out {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Name, t.Task, t.Candidates)
			}
			return tw.Flush()
		},
	}
}

func newTemplatesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Build every candidate of every template",
		Long: `Compile the template library and build every candidate it can propose.

Without dir only the embedded library is checked. A library that validates
never yields a construction error during a search.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplatesValidate(rootOpts, optionalArg(args), cmd)
		},
	}
}

func runTemplatesValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	lib, err := loadLibrary(primitives.Registry(), dir)
	if err != nil {
		return outputCommandError(formatter, err)
	}

	result := TemplateValidation{Valid: true, Templates: len(lib.Templates())}
	for _, t := range lib.Templates() {
		result.Candidates += t.Candidates()
		formatter.VerboseLog("template %s: %d candidate(s)", t.Name, t.Candidates())
	}
	for _, e := range lib.Validate() {
		result.Valid = false
		result.Errors = append(result.Errors, e.Error())
	}

	if !result.Valid {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeWiring, "template validation failed", result)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %d template error(s)\n", len(result.Errors))
			for _, e := range result.Errors {
				fmt.Fprintf(formatter.Writer, "  %s\n", e)
			}
		}
		return NewExitError(ExitFailure, "template validation failed")
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d template(s), %d candidate(s) valid\n", result.Templates, result.Candidates)
	return nil
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
