// Command skillctl is the operator tool for skill taxonomies: it validates
// and inspects taxonomy files and simulates grants offline.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
