package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/moclojer/chrondb-sub002/internal/index"
	"github.com/spf13/cobra"
)

var (
	queryAll      bool
	queryTerms    []string
	queryWildcard []string
	queryFTS      []string
	queryExists   []string
	queryMissing  []string
	queryNot      bool
	queryLimit    int
	queryOffset   int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a structured search against the index",
	Long: `Builds a search clause from the given flags and lists matching document
ids. Multiple --term/--fts/--wildcard/--exists/--missing flags combine with
AND (boolean must). --not inverts the combined clause.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryAll, "all", false, "match every document")
	queryCmd.Flags().StringArrayVar(&queryTerms, "term", nil, "field=value exact-term match (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryWildcard, "wildcard", nil, "field=pattern wildcard match (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryFTS, "fts", nil, "field=text full-text match (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryExists, "exists", nil, "field must be present (repeatable)")
	queryCmd.Flags().StringArrayVar(&queryMissing, "missing", nil, "field must be absent (repeatable)")
	queryCmd.Flags().BoolVar(&queryNot, "not", false, "negate the combined clause")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 50, "maximum results")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "result offset")
}

func splitFieldValue(s string) (field, value string, err error) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", fmt.Errorf("expected field=value, got %q", s)
	}
	return s[:i], s[i+1:], nil
}

func buildClause() (index.Clause, error) {
	var clauses []index.Clause

	for _, t := range queryTerms {
		field, value, err := splitFieldValue(t)
		if err != nil {
			return index.Clause{}, err
		}
		clauses = append(clauses, index.Term(field, value))
	}
	for _, w := range queryWildcard {
		field, pattern, err := splitFieldValue(w)
		if err != nil {
			return index.Clause{}, err
		}
		clauses = append(clauses, index.Wildcard(field, pattern))
	}
	for _, f := range queryFTS {
		field, text, err := splitFieldValue(f)
		if err != nil {
			return index.Clause{}, err
		}
		clauses = append(clauses, index.FTS(field, text))
	}
	for _, f := range queryExists {
		clauses = append(clauses, index.Exists(f))
	}
	for _, f := range queryMissing {
		clauses = append(clauses, index.Missing(f))
	}

	var clause index.Clause
	switch {
	case queryAll && len(clauses) == 0:
		clause = index.MatchAll()
	case len(clauses) == 0:
		return index.Clause{}, fmt.Errorf("no query flags given; pass --all to match everything")
	case len(clauses) == 1:
		clause = clauses[0]
	default:
		clause = index.Bool(clauses, nil, nil, nil)
	}

	if queryNot {
		clause = index.Not(clause)
	}
	return clause, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	clause, err := buildClause()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.Query(context.Background(), clause, branch, queryLimit, queryOffset)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
