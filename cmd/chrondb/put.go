package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/moclojer/chrondb-sub002/internal/txctx"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <id> [json]",
	Short: "Save a document",
	Long:  "Save a document under <id>. The JSON body is read from the second argument, or from stdin if omitted.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if len(args) == 2 {
		raw = []byte(args[1])
	} else {
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading document from stdin: %w", err)
		}
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parsing document JSON: %w", err)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondb-cli"})
	stored, err := store.Put(ctx, args[0], doc, branch)
	finish(stored, err)
	if err != nil {
		return fmt.Errorf("put %q: %w", args[0], err)
	}

	return printJSON(stored)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
