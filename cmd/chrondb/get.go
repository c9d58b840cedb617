package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Retrieve a document's current version",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	doc, found, err := store.Get(context.Background(), args[0], branch)
	if err != nil {
		return fmt.Errorf("get %q: %w", args[0], err)
	}
	if !found {
		fmt.Println("(not found)")
		return nil
	}
	return printJSON(doc)
}
