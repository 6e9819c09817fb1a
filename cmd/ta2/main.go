// Command ta2 runs the pipeline search server and its companion tools.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ta2/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
