package main

import (
	"fmt"
	"os"
)

// Exit codes. Per-task benchmark failures are recorded in artifacts and never
// fail the process; only startup/configuration errors do.
const (
	ExitSuccess = 0
	ExitError   = 1
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}
