package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...)
	exit(1)
}

// ExitOnError exits through Exitf when err is set. flag.ErrHelp exits 0
// because the flag set has already printed usage.
func ExitOnError(context string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, flag.ErrHelp) {
		exit(0)
		return
	}
	Exitf("%s: %v", context, err)
}
