// Package index implements the inverted full-text/term index of spec
// §4.7: AST-driven search over a sharded-by-concern in-memory structure,
// grounded on docdb's IndexShard design (docdb/internal/docdb/index.go)
// for the tombstone/visibility idiom, and docdb's query.Expression
// (docdb/internal/query/types.go) for the shape of a predicate — extended
// here into the richer AST clause set spec §4.7 names.
package index

// Clause is one node of a search AST. Exactly one of the typed fields is
// set, matching Kind.
type Clause struct {
	Kind Kind

	Term    *TermClause
	Wildcard *WildcardClause
	Range   *RangeClause
	FTS     *FTSClause
	Exists  *ExistsClause
	Missing *MissingClause
	Boolean *BooleanClause
	Not     *Clause
}

type Kind string

const (
	KindMatchAll Kind = "match_all"
	KindTerm     Kind = "term"
	KindWildcard Kind = "wildcard"
	KindRange    Kind = "range"
	KindFTS      Kind = "fts"
	KindExists   Kind = "exists"
	KindMissing  Kind = "missing"
	KindBoolean  Kind = "boolean"
	KindNot      Kind = "not"
)

func MatchAll() Clause { return Clause{Kind: KindMatchAll} }

func Term(field, value string) Clause {
	return Clause{Kind: KindTerm, Term: &TermClause{Field: field, Value: value}}
}

func Wildcard(field, pattern string) Clause {
	return Clause{Kind: KindWildcard, Wildcard: &WildcardClause{Field: field, Pattern: pattern}}
}

func Exists(field string) Clause {
	return Clause{Kind: KindExists, Exists: &ExistsClause{Field: field}}
}

func Missing(field string) Clause {
	return Clause{Kind: KindMissing, Missing: &MissingClause{Field: field}}
}

func FTS(field, queryString string) Clause {
	return Clause{Kind: KindFTS, FTS: &FTSClause{Field: field, QueryString: queryString}}
}

func Bool(must, should, mustNot, filter []Clause) Clause {
	return Clause{Kind: KindBoolean, Boolean: &BooleanClause{Must: must, Should: should, MustNot: mustNot, Filter: filter}}
}

func Not(c Clause) Clause {
	return Clause{Kind: KindNot, Not: &c}
}

type TermClause struct {
	Field string
	Value string
}

type WildcardClause struct {
	Field   string
	Pattern string
}

// RangeClause supports string, long, and double variants; exactly one of
// the typed bound pairs is populated, selected by Variant.
type RangeClause struct {
	Field        string
	Variant      RangeVariant
	LowerStr     string
	UpperStr     string
	LowerLong    int64
	UpperLong    int64
	LowerDouble  float64
	UpperDouble  float64
	HasLower     bool
	HasUpper     bool
	IncludeLower bool
	IncludeUpper bool
}

type RangeVariant int

const (
	RangeString RangeVariant = iota
	RangeLong
	RangeDouble
)

type FTSClause struct {
	Field       string
	QueryString string
}

type ExistsClause struct {
	Field string
}

type MissingClause struct {
	Field string
}

type BooleanClause struct {
	Must    []Clause
	Should  []Clause
	MustNot []Clause
	Filter  []Clause
}

// SearchOptions configures search_query, per spec §4.7.
type SearchOptions struct {
	Limit  int
	Offset int
	Sort   string
	Cursor string
}
