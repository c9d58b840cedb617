package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/moclojer/chrondb-sub002/internal/index"
	"github.com/moclojer/chrondb-sub002/internal/txctx"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("error formatting result: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func (s *shell) cmdPut(line string, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: put <id> <json>")
		return
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		fmt.Println("usage: put <id> <json>")
		return
	}
	id := args[0]
	body := strings.TrimSpace(parts[2])

	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		fmt.Printf("error parsing document JSON: %v\n", err)
		return
	}

	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondbsh"})
	stored, err := s.store.Put(ctx, id, doc, s.branch)
	finish(stored, err)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printJSON(stored)
}

func (s *shell) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: get <id>")
		return
	}
	doc, found, err := s.store.Get(context.Background(), args[0], s.branch)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !found {
		fmt.Println("(not found)")
		return
	}
	printJSON(doc)
}

func (s *shell) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: delete <id>")
		return
	}
	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondbsh"})
	existed, err := s.store.Delete(ctx, args[0], s.branch)
	finish(existed, err)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if existed {
		fmt.Printf("deleted %s\n", args[0])
	} else {
		fmt.Printf("%s did not exist\n", args[0])
	}
}

func (s *shell) cmdHistory(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: history <id>")
		return
	}
	entries, err := s.store.History(context.Background(), args[0], s.branch)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  %s  %s\n", e.CommitID, e.CommitTime.Format("2006-01-02T15:04:05Z07:00"), e.CommitterName, e.CommitMessage)
	}
}

func (s *shell) cmdRestore(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: restore <id> <commit>")
		return
	}
	ctx, finish := txctx.Begin(context.Background(), txctx.Options{Origin: "chrondbsh", Flags: []string{"rollback"}})
	doc, err := s.store.Restore(ctx, args[0], args[1], s.branch)
	finish(doc, err)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	printJSON(doc)
}

// cmdQuery accepts a minimal flag-free grammar: "query all",
// "query term|fts|wildcard field=value", or "query exists|missing field".
func (s *shell) cmdQuery(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: query all | query term field=value | query fts field=text | query wildcard field=pattern")
		return
	}

	clause, err := parseQueryArgs(args)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}

	ids, err := s.store.Query(context.Background(), clause, s.branch, 50, 0)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func parseQueryArgs(args []string) (index.Clause, error) {
	kind := strings.ToLower(args[0])
	if kind == "all" {
		return index.MatchAll(), nil
	}
	if len(args) < 2 {
		return index.Clause{}, fmt.Errorf("missing field=value argument")
	}
	field, value, ok := strings.Cut(args[1], "=")
	if !ok && kind != "exists" && kind != "missing" {
		return index.Clause{}, fmt.Errorf("expected field=value, got %q", args[1])
	}

	switch kind {
	case "term":
		return index.Term(field, value), nil
	case "wildcard":
		return index.Wildcard(field, value), nil
	case "fts":
		return index.FTS(field, value), nil
	case "exists":
		return index.Exists(field), nil
	case "missing":
		return index.Missing(field), nil
	default:
		return index.Clause{}, fmt.Errorf("unknown query kind %q", kind)
	}
}
