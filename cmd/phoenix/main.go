// Command phoenix harmonizes genomic, transcriptomic and proteomic inputs
// into one pseudonymized Parquet artifact and queries it by metadata.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "phoenix:", err)
		os.Exit(1)
	}
}
