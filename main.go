package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	printError(os.Stderr, err, stderrIsTerminal())
	os.Exit(1)
}

// printError writes the one-line error report, in red on a terminal.
func printError(w io.Writer, err error, color bool) {
	if color {
		fmt.Fprintf(w, "%sError: %v%s\n", ansiRed, err, ansiReset)
		return
	}

	fmt.Fprintf(w, "Error: %v\n", err)
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
