package index

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/moclojer/chrondb-sub002/internal/setutil"
)

// Index is an in-memory inverted index over documents scoped per branch,
// mirroring docdb's tombstone-by-flag visibility idiom (docdb's
// DeletedTxID field) rather than eagerly removing postings on delete: a
// delete just flags the document id live=false, and every clause
// evaluation subtracts the tombstone set before returning.
type Index struct {
	mu sync.RWMutex

	// branch -> field -> exact value -> doc ids
	terms map[string]map[string]map[string]setutil.Set[string]
	// branch -> doc id -> field -> raw value, for range scans and exists/missing
	values map[string]map[string]map[string]any
	// branch -> live doc ids (tombstones are simply absent)
	live map[string]setutil.Set[string]

	cache *Cache
}

// New returns an empty Index. cache may be nil to disable query caching.
func New(cache *Cache) *Index {
	return &Index{
		terms:  make(map[string]map[string]map[string]setutil.Set[string]),
		values: make(map[string]map[string]map[string]any),
		live:   make(map[string]setutil.Set[string]),
		cache:  cache,
	}
}

func (idx *Index) branchTerms(branch string) map[string]map[string]setutil.Set[string] {
	m, ok := idx.terms[branch]
	if !ok {
		m = make(map[string]map[string]setutil.Set[string])
		idx.terms[branch] = m
	}
	return m
}

func (idx *Index) branchValues(branch string) map[string]map[string]any {
	m, ok := idx.values[branch]
	if !ok {
		m = make(map[string]map[string]any)
		idx.values[branch] = m
	}
	return m
}

func (idx *Index) branchLive(branch string) setutil.Set[string] {
	s, ok := idx.live[branch]
	if !ok {
		s = setutil.New[string]()
		idx.live[branch] = s
	}
	return s
}

// IndexDoc inserts or overwrites doc (keyed by its "id" field, mandatory)
// in branch's index. Scalar fields are written as text fields; named
// full-text fields additionally get a normalised "<field>_fts" entry.
func (idx *Index) IndexDoc(branch string, doc map[string]any) error {
	id, ok := doc["id"].(string)
	if !ok || id == "" {
		return fmt.Errorf("index: document missing string id")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.deleteLocked(branch, id)

	terms := idx.branchTerms(branch)
	docValues := idx.branchValues(branch)
	valueCopy := make(map[string]any, len(doc))

	for field, raw := range doc {
		valueCopy[field] = raw
		text := fmt.Sprint(raw)

		idx.addTerm(terms, field, text, id)

		if isFTSField(field) {
			ftsField := field + "_fts"
			for _, tok := range tokenize(text) {
				idx.addTerm(terms, ftsField, tok, id)
			}
		}
	}

	docValues[id] = valueCopy
	idx.branchLive(branch).Add(id)
	if idx.cache != nil {
		idx.cache.InvalidateBranch(branch)
	}
	return nil
}

func (idx *Index) addTerm(terms map[string]map[string]setutil.Set[string], field, value, id string) {
	byValue, ok := terms[field]
	if !ok {
		byValue = make(map[string]setutil.Set[string])
		terms[field] = byValue
	}
	ids, ok := byValue[value]
	if !ok {
		ids = setutil.New[string]()
		byValue[value] = ids
	}
	ids.Add(id)
}

// Delete tombstones id in branch: it drops out of every future search
// result, but its postings are left in place (consistent with docdb's
// "flag, don't compact" approach) until the next IndexDoc for the same id
// cleans them up.
func (idx *Index) Delete(branch, id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.deleteLocked(branch, id)
	if idx.cache != nil {
		idx.cache.InvalidateBranch(branch)
	}
}

func (idx *Index) deleteLocked(branch, id string) {
	idx.branchLive(branch).Remove(id)
	delete(idx.branchValues(branch), id)
}

// Search runs the legacy substring/prefix search over field for query.
func (idx *Index) Search(branch, field, query string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	live := idx.live[branch]
	byValue := idx.terms[branch][field]
	folded := foldAccents(query)

	var out []string
	for value, ids := range byValue {
		if strings.Contains(foldAccents(value), folded) {
			for _, id := range ids.Elements() {
				if live.Contains(id) {
					out = append(out, id)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// SearchQuery evaluates an AST clause against branch's index, applying
// offset and limit from opts, with transparent LRU+TTL caching when a
// cache is configured. Results are always ordered by document id;
// opts.Sort and opts.Cursor are not consulted.
func (idx *Index) SearchQuery(branch string, clause Clause, opts SearchOptions) ([]string, error) {
	if idx.cache != nil {
		if ids, ok := idx.cache.Get(branch, clause, opts); ok {
			return ids, nil
		}
	}

	idx.mu.RLock()
	ids, err := idx.eval(branch, clause)
	idx.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := ids.Elements()
	sort.Strings(out)

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			out = nil
		} else {
			out = out[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	if idx.cache != nil {
		idx.cache.Put(branch, clause, opts, out)
	}
	return out, nil
}

func (idx *Index) eval(branch string, c Clause) (setutil.Set[string], error) {
	live := idx.live[branch]

	switch c.Kind {
	case KindMatchAll:
		return cloneSet(live), nil

	case KindTerm:
		return idx.lookup(branch, c.Term.Field, c.Term.Value, live), nil

	case KindWildcard:
		return idx.wildcard(branch, c.Wildcard.Field, c.Wildcard.Pattern, live)

	case KindRange:
		return idx.rangeScan(branch, c.Range, live), nil

	case KindFTS:
		return idx.fts(branch, c.FTS.Field, c.FTS.QueryString, live), nil

	case KindExists:
		return idx.exists(branch, c.Exists.Field, live), nil

	case KindMissing:
		haveField, err := idx.exists(branch, c.Missing.Field, live)
		_ = err
		return setDiff(live, haveField), nil

	case KindBoolean:
		return idx.boolean(branch, c.Boolean, live)

	case KindNot:
		inner, err := idx.eval(branch, *c.Not)
		if err != nil {
			return nil, err
		}
		return setDiff(live, inner), nil

	default:
		return nil, fmt.Errorf("index: unknown clause kind %q", c.Kind)
	}
}

func (idx *Index) lookup(branch, field, value string, live setutil.Set[string]) setutil.Set[string] {
	byValue := idx.terms[branch][field]
	ids, ok := byValue[value]
	if !ok {
		return setutil.New[string]()
	}
	return intersectLive(ids, live)
}

func (idx *Index) wildcard(branch, field, pattern string, live setutil.Set[string]) (setutil.Set[string], error) {
	pattern = widenWildcard(pattern)
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, fmt.Errorf("index: invalid wildcard pattern %q: %w", pattern, err)
	}

	byValue := idx.terms[branch][field]
	out := setutil.New[string]()
	for value, ids := range byValue {
		if re.MatchString(foldAccents(value)) {
			for _, id := range ids.Elements() {
				if live.Contains(id) {
					out.Add(id)
				}
			}
		}
	}
	return out, nil
}

// widenWildcard applies spec §4.7's heuristic: a short bare term (<4
// chars, no existing wildcard) is widened to *term*; a longer bare term
// gets a trailing * for prefix search.
func widenWildcard(pattern string) string {
	if strings.ContainsAny(pattern, "*?") {
		return pattern
	}
	if len(pattern) < 4 {
		return "*" + pattern + "*"
	}
	return pattern + "*"
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	folded := foldAccents(pattern)
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range folded {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

func (idx *Index) rangeScan(branch string, r *RangeClause, live setutil.Set[string]) setutil.Set[string] {
	out := setutil.New[string]()
	for id, fields := range idx.values[branch] {
		if !live.Contains(id) {
			continue
		}
		raw, ok := fields[r.Field]
		if !ok {
			continue
		}
		if inRange(r, raw) {
			out.Add(id)
		}
	}
	return out
}

func inRange(r *RangeClause, raw any) bool {
	switch r.Variant {
	case RangeLong:
		v, ok := toInt64(raw)
		if !ok {
			return false
		}
		if r.HasLower {
			if v < r.LowerLong || (!r.IncludeLower && v == r.LowerLong) {
				return false
			}
		}
		if r.HasUpper {
			if v > r.UpperLong || (!r.IncludeUpper && v == r.UpperLong) {
				return false
			}
		}
		return true

	case RangeDouble:
		v, ok := toFloat64(raw)
		if !ok {
			return false
		}
		if r.HasLower {
			if v < r.LowerDouble || (!r.IncludeLower && v == r.LowerDouble) {
				return false
			}
		}
		if r.HasUpper {
			if v > r.UpperDouble || (!r.IncludeUpper && v == r.UpperDouble) {
				return false
			}
		}
		return true

	default: // RangeString
		v := fmt.Sprint(raw)
		if r.HasLower {
			cmp := strings.Compare(v, r.LowerStr)
			if cmp < 0 || (!r.IncludeLower && cmp == 0) {
				return false
			}
		}
		if r.HasUpper {
			cmp := strings.Compare(v, r.UpperStr)
			if cmp > 0 || (!r.IncludeUpper && cmp == 0) {
				return false
			}
		}
		return true
	}
}

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toFloat64(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func (idx *Index) fts(branch, field, queryString string, live setutil.Set[string]) setutil.Set[string] {
	ftsField := field + "_fts"
	byValue := idx.terms[branch][ftsField]

	toks := tokenize(queryString)
	if len(toks) == 0 {
		return setutil.New[string]()
	}

	var result setutil.Set[string]
	for i, tok := range toks {
		ids, ok := byValue[tok]
		matched := setutil.New[string]()
		if ok {
			for _, id := range ids.Elements() {
				if live.Contains(id) {
					matched.Add(id)
				}
			}
		}
		if i == 0 {
			result = matched
		} else {
			result = intersectSets(result, matched)
		}
	}
	return result
}

func (idx *Index) exists(branch, field string, live setutil.Set[string]) (setutil.Set[string], error) {
	out := setutil.New[string]()
	for id, fields := range idx.values[branch] {
		if !live.Contains(id) {
			continue
		}
		if _, ok := fields[field]; ok {
			out.Add(id)
		}
	}
	return out, nil
}

func (idx *Index) boolean(branch string, b *BooleanClause, live setutil.Set[string]) (setutil.Set[string], error) {
	result := cloneSet(live)
	haveConstraint := false

	if len(b.Must) > 0 {
		haveConstraint = true
		for _, c := range b.Must {
			s, err := idx.eval(branch, c)
			if err != nil {
				return nil, err
			}
			result = intersectSets(result, s)
		}
	}
	if len(b.Filter) > 0 {
		haveConstraint = true
		for _, c := range b.Filter {
			s, err := idx.eval(branch, c)
			if err != nil {
				return nil, err
			}
			result = intersectSets(result, s)
		}
	}
	if !haveConstraint && len(b.Should) > 0 {
		union := setutil.New[string]()
		for _, c := range b.Should {
			s, err := idx.eval(branch, c)
			if err != nil {
				return nil, err
			}
			union = union.Union(s)
		}
		result = union
	}
	for _, c := range b.MustNot {
		s, err := idx.eval(branch, c)
		if err != nil {
			return nil, err
		}
		result = setDiff(result, s)
	}
	return result, nil
}

func cloneSet(s setutil.Set[string]) setutil.Set[string] {
	return setutil.New[string](s.Elements()...)
}

func intersectLive(ids setutil.Set[string], live setutil.Set[string]) setutil.Set[string] {
	out := setutil.New[string]()
	for _, id := range ids.Elements() {
		if live.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

func intersectSets(a, b setutil.Set[string]) setutil.Set[string] {
	out := setutil.New[string]()
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for _, id := range small.Elements() {
		if big.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

func setDiff(a, b setutil.Set[string]) setutil.Set[string] {
	out := setutil.New[string]()
	for _, id := range a.Elements() {
		if !b.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Close is a no-op: the index holds no external resources of its own
// (the optional cache, if any, is closed separately by its owner).
func (idx *Index) Close() error { return nil }
