package main

import (
	"context"
	"fmt"

	"github.com/moclojer/chrondb-sub002/internal/txctx"
	"github.com/spf13/cobra"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <id> <commit>",
	Short: "Restore a document to the version it had at <commit>",
	Long:  "Restore writes a new commit containing the document as it existed at <commit>; history is never rewritten.",
	Args:  cobra.ExactArgs(2),
	RunE:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondb-cli", Flags: []string{"rollback"}})
	doc, err := store.Restore(ctx, args[0], args[1], branch)
	finish(doc, err)
	if err != nil {
		return fmt.Errorf("restore %q to %q: %w", args[0], args[1], err)
	}

	return printJSON(doc)
}
