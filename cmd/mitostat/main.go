// Command mitostat loads mitochondrial sequence feeds into the store and
// writes per-region distance distribution workbooks.
package main

import (
	"fmt"
	"io"
	"os"
)

var exitFunc = os.Exit

// main runs the command-line interface and exits with the status code
// returned by cli.
func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "mitostat: %v\n", err)
		return 1
	}
	return 0
}
