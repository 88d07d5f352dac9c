// Command supportrag is the entry point for the customer-support retrieval
// engine. It answers questions from an FAQ store, falls back to resolved
// tickets, and escalates to a human when neither is confident enough.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/supportrag-go/cmd/supportrag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
