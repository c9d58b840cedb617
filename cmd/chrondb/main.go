// Command chrondb is a cobra CLI issuing one-shot operations against a
// chrondb repository: put, get, delete, history, restore, query, and a
// serve subcommand that exposes only the ambient health/metrics endpoint
// (document access stays out of process, per the contract surface
// internal/contracts.Store defines for external protocol servers).
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/moclojer/chrondb-sub002/internal/config"
	"github.com/moclojer/chrondb-sub002/internal/durable"
	"github.com/moclojer/chrondb-sub002/internal/logging"
	"github.com/spf13/cobra"
)

var (
	repoPath   string
	configFile string
	branch     string
	verbosity  int

	log *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chrondb: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chrondb",
	Short: "Chronological document store backed by a bare Git repository",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", "./chrondb-data", "path to the bare Git repository")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "optional JSONC configuration override file")
	rootCmd.PersistentFlags().StringVar(&branch, "branch", "", "branch to operate on (default: configured default branch)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
}

// openStore loads configuration and opens a durable store rooted at
// repoPath, honouring -v/-vv by raising the log level above whatever the
// config file or environment set.
func openStore() (*durable.Store, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if verbosity >= 2 {
		cfg.LogLevel = "debug"
	} else if verbosity == 1 && cfg.LogLevel != "debug" {
		cfg.LogLevel = "info"
	}

	log = logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})

	store, err := durable.Open(repoPath, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", repoPath, err)
	}
	return store, nil
}
