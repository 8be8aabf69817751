package config

import (
	"fmt"
	"os"
)

// Exitf reports a fatal startup error on stderr and exits with status 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
