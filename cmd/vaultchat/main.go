// Command vaultchat is a client for the VaultMind banking assistant. It runs
// either a local HTTP bridge for browser UIs or a terminal chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vaultchat",
	Short: "Chat client for the VaultMind banking assistant",
	Long: `vaultchat talks to the assistant backend configured by BACKEND_URL.

Available subcommands:
  serve - Run the local HTTP bridge (JSON + SSE)
  repl  - Chat from the terminal`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
