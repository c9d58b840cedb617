package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "List every commit that touched a document, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.History(context.Background(), args[0], branch)
	if err != nil {
		return fmt.Errorf("history %q: %w", args[0], err)
	}

	for _, e := range entries {
		fmt.Printf("%s  %s  %s <%s>  %s\n", e.CommitID, e.CommitTime.Format("2006-01-02T15:04:05Z07:00"), e.CommitterName, e.CommitterEmail, e.CommitMessage)
	}
	return nil
}
