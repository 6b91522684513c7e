// Package main provides the entry point for the vaultchat CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vaultchat/vaultchat/cmd/vaultchat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
