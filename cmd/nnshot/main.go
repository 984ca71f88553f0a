// Command nnshot opens, inspects, invokes and serves single-shot models.
package main

import (
	"fmt"
	"os"

	"github.com/born-ml/singleshot/single"
)

func main() {
	if err := NewCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes caller mistakes from runtime failures.
func exitCode(err error) int {
	switch single.Kind(err) {
	case "InvalidArgument", "NotSupported":
		return 2
	case "Timeout":
		return 3
	default:
		return 1
	}
}
