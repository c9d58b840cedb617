package index

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *Index {
	idx := New(nil)
	docs := []map[string]any{
		{"id": "1", "name": "alpha widget", "status": "active", "price": int64(10)},
		{"id": "2", "name": "beta widget", "status": "active", "price": int64(20)},
		{"id": "3", "name": "gamma gadget", "status": "retired", "price": int64(30)},
	}
	for _, d := range docs {
		require.NoError(t, idx.IndexDoc("main", d))
	}
	return idx
}

func sorted(ids []string) []string {
	sort.Strings(ids)
	return ids
}

func TestSearchQueryMatchAll(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", MatchAll(), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, sorted(ids))
}

func TestSearchQueryTerm(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", Term("status", "active"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, sorted(ids))
}

func TestSearchQueryFTS(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", FTS("name", "widget"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, sorted(ids))
}

func TestSearchQueryBooleanMustAndMustNot(t *testing.T) {
	idx := newTestIndex(t)
	clause := Bool(
		[]Clause{Term("status", "active")},
		nil,
		[]Clause{Term("name", "alpha widget")},
		nil,
	)
	ids, err := idx.SearchQuery("main", clause, SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, sorted(ids))
}

func TestSearchQueryNot(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", Not(Term("status", "active")), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, sorted(ids))
}

func TestSearchQueryMissing(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexDoc("main", map[string]any{"id": "4", "status": "active"}))
	ids, err := idx.SearchQuery("main", Missing("price"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, sorted(ids))
}

func TestDeleteTombstonesDocument(t *testing.T) {
	idx := newTestIndex(t)
	idx.Delete("main", "2")

	ids, err := idx.SearchQuery("main", MatchAll(), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, sorted(ids))

	ids, err = idx.SearchQuery("main", Term("status", "active"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, sorted(ids))
}

func TestSearchQueryOffsetAndLimit(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", MatchAll(), SearchOptions{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSearchQueryWildcard(t *testing.T) {
	idx := newTestIndex(t)
	ids, err := idx.SearchQuery("main", Wildcard("name", "*widget"), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, sorted(ids))
}

func TestSearchQueryIsolatedPerBranch(t *testing.T) {
	idx := newTestIndex(t)
	require.NoError(t, idx.IndexDoc("feature", map[string]any{"id": "9", "status": "active"}))

	ids, err := idx.SearchQuery("main", MatchAll(), SearchOptions{})
	require.NoError(t, err)
	assert.NotContains(t, ids, "9")

	ids, err = idx.SearchQuery("feature", MatchAll(), SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"9"}, ids)
}
