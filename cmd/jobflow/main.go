// Command jobflow drives the Manager from the command line: run a flow file
// to completion, inspect a job's stored output, or list what a store holds.
package main

import (
	"fmt"
	"os"

	"github.com/nuulab/jobflow/cmd/jobflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
