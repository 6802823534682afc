// Command tubeqa answers questions about indexed YouTube transcripts.
// It provides a CLI (via Cobra) and an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/tubeqa-go/cmd/tubeqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
