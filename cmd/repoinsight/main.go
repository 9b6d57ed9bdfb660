// Package main provides the entry point for the repoinsight CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/repoinsight/cmd/repoinsight/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
