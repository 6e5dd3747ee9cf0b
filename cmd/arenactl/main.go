// Command arenactl is a thin HTTP client for the arena ledger server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	host string
)

var rootCmd = &cobra.Command{
	Use:   "arenactl",
	Short: "A CLI to interact with the arena ledger server",
	Long: `A command-line interface for the arena ledger API: players, deposits,
matches and the consistency audit.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "The host address of the server")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "arenactl: %s\n", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
