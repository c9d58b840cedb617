package main

import (
	"context"
	"fmt"

	"github.com/moclojer/chrondb-sub002/internal/txctx"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondb-cli"})
	existed, err := store.Delete(ctx, args[0], branch)
	finish(existed, err)
	if err != nil {
		return fmt.Errorf("delete %q: %w", args[0], err)
	}

	if existed {
		fmt.Printf("deleted %s\n", args[0])
	} else {
		fmt.Printf("%s did not exist\n", args[0])
	}
	return nil
}
