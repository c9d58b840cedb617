package index

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Clause is a tree of pointers, so these compare by value with go-cmp
// rather than reflect.DeepEqual-via-assert.Equal, matching docdb's own
// use of go-cmp for its query.Expression AST in query_test.go.
func TestClauseConstructors(t *testing.T) {
	tests := []struct {
		name string
		got  Clause
		want Clause
	}{
		{
			name: "match_all",
			got:  MatchAll(),
			want: Clause{Kind: KindMatchAll},
		},
		{
			name: "term",
			got:  Term("status", "active"),
			want: Clause{Kind: KindTerm, Term: &TermClause{Field: "status", Value: "active"}},
		},
		{
			name: "wildcard",
			got:  Wildcard("name", "al*"),
			want: Clause{Kind: KindWildcard, Wildcard: &WildcardClause{Field: "name", Pattern: "al*"}},
		},
		{
			name: "exists",
			got:  Exists("price"),
			want: Clause{Kind: KindExists, Exists: &ExistsClause{Field: "price"}},
		},
		{
			name: "missing",
			got:  Missing("price"),
			want: Clause{Kind: KindMissing, Missing: &MissingClause{Field: "price"}},
		},
		{
			name: "fts",
			got:  FTS("content", "hello world"),
			want: Clause{Kind: KindFTS, FTS: &FTSClause{Field: "content", QueryString: "hello world"}},
		},
		{
			name: "not",
			got:  Not(Term("status", "retired")),
			want: Clause{Kind: KindNot, Not: &Clause{Kind: KindTerm, Term: &TermClause{Field: "status", Value: "retired"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.got); diff != "" {
				t.Errorf("clause mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBoolClauseCombinesAllFourLists(t *testing.T) {
	must := []Clause{Term("status", "active")}
	should := []Clause{Term("tier", "gold"), Term("tier", "silver")}
	mustNot := []Clause{Term("status", "banned")}
	filter := []Clause{Exists("email")}

	got := Bool(must, should, mustNot, filter)
	want := Clause{
		Kind: KindBoolean,
		Boolean: &BooleanClause{
			Must:    must,
			Should:  should,
			MustNot: mustNot,
			Filter:  filter,
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("boolean clause mismatch (-want +got):\n%s", diff)
	}
}
