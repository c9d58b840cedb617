// Package txctx implements the scoped transaction context of spec §4.4:
// entering a scope installs a context carried on a context.Context value,
// fields enumerated in spec §3 accumulate as commits happen within the
// scope, and leaving the scope normally or abnormally stamps status and
// ended_at. This generalises the teacher's flow of threading a single
// AuthorInfo through a call (git-backup.go's Committer/Author fields) into
// a full nested-scope context, using context.Context rather than a
// thread-local, per idiomatic Go practice.
package txctx

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moclojer/chrondb-sub002/internal/notes"
)

type ctxKey struct{}

// Options are the recognised transaction options of spec §4.4.
type Options struct {
	Origin     string
	User       string
	Timestamp  time.Time
	Metadata   map[string]any
	Flags      []string
	OnComplete func(final *Context, result any, err error)
}

// Context is the transaction-scoped state of spec §3 ("Transaction
// context"). Mutated under mu because commit_count and flags can be
// touched concurrently by goroutines sharing a scope.
type Context struct {
	mu sync.Mutex

	TxID       string
	Origin     string
	User       string
	Timestamp  time.Time
	Metadata   map[string]any
	Flags      []string
	Status     string // "active" | "committed" | "rolled-back"
	StartedAt  time.Time
	EndedAt    time.Time
	CommitCount int

	onComplete func(final *Context, result any, err error)
}

// Begin installs a new transaction context as a child of ctx, merging opts
// into whatever context is already active in ctx (nested scopes merge
// options into the outer context per spec §4.4). A nested scope keeps the
// outer scope's tx id (and its user and timestamp unless opts set them),
// so its commits belong to the same transaction. It returns the new
// context.Context to use for the scope and a finish func that must be
// called exactly once on scope exit: finish(result, err) with err == nil
// commits, non-nil rolls back (adding flag "rollback").
func Begin(ctx context.Context, opts Options) (context.Context, func(result any, err error)) {
	outer, hadOuter := fromContext(ctx)

	tc := &Context{
		TxID:       uuid.NewString(),
		Origin:     opts.Origin,
		User:       opts.User,
		Timestamp:  opts.Timestamp,
		Metadata:   cloneMetadata(opts.Metadata),
		Flags:      append([]string(nil), opts.Flags...),
		Status:     "active",
		StartedAt:  now(),
		onComplete: opts.OnComplete,
	}
	if tc.Origin == "" {
		tc.Origin = "unknown"
	}
	if tc.Timestamp.IsZero() {
		tc.Timestamp = tc.StartedAt
	}

	if hadOuter {
		outer.mu.Lock()
		tc.TxID = outer.TxID
		if tc.User == "" {
			tc.User = outer.User
		}
		if opts.Timestamp.IsZero() {
			tc.Timestamp = outer.Timestamp
		}
		tc.Metadata = mergeMetadata(outer.Metadata, tc.Metadata)
		tc.Flags = unionFlags(outer.Flags, tc.Flags)
		if tc.Origin == "unknown" {
			tc.Origin = outer.Origin
		}
		outer.mu.Unlock()
	}

	child := context.WithValue(ctx, ctxKey{}, tc)

	finish := func(result any, err error) {
		tc.mu.Lock()
		tc.EndedAt = now()
		if err != nil {
			tc.Status = "rolled-back"
			tc.Flags = unionFlags(tc.Flags, []string{"rollback"})
		} else {
			tc.Status = "committed"
		}
		cb := tc.onComplete
		tc.mu.Unlock()

		if hadOuter {
			outer.mu.Lock()
			outer.CommitCount += tc.CommitCount
			outer.mu.Unlock()
		}
		if cb != nil {
			cb(tc, result, err)
		}
	}

	return child, finish
}

func fromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*Context)
	return tc, ok
}

// RecordCommit increments the active context's commit_count. Called once
// per commit produced while the scope is active (spec §4.4).
func RecordCommit(ctx context.Context) {
	if tc, ok := fromContext(ctx); ok {
		tc.mu.Lock()
		tc.CommitCount++
		tc.mu.Unlock()
	}
}

// ToNote projects the active context (or a freshly minted origin="unknown"
// context if none is active) into a notes.Note, filling in the per-commit
// overrides. Empty flags/metadata are omitted from the payload per spec
// §4.4 ("forbids empty flags or metadata from appearing").
func ToNote(ctx context.Context, commitID, commitMessage, branch, path, documentID, operation string) notes.Note {
	tc, ok := fromContext(ctx)
	if !ok {
		tc = &Context{
			TxID:      uuid.NewString(),
			Origin:    "unknown",
			Timestamp: now(),
			Status:    "active",
			StartedAt: now(),
		}
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	n := notes.Note{
		TxID:          tc.TxID,
		Origin:        tc.Origin,
		User:          tc.User,
		Timestamp:     tc.Timestamp,
		Status:        tc.Status,
		CommitID:      commitID,
		CommitMessage: commitMessage,
		Branch:        branch,
		Path:          path,
		DocumentID:    documentID,
		Operation:     operation,
	}
	if len(tc.Flags) > 0 {
		n.Flags = append([]string(nil), tc.Flags...)
	}
	if len(tc.Metadata) > 0 {
		n.Metadata = cloneMetadata(tc.Metadata)
	}
	return n
}

func cloneMetadata(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func mergeMetadata(outer, inner map[string]any) map[string]any {
	if len(outer) == 0 {
		return inner
	}
	out := make(map[string]any, len(outer)+len(inner))
	for k, v := range outer {
		out[k] = v
	}
	for k, v := range inner {
		out[k] = v
	}
	return out
}

func unionFlags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, f := range append(append([]string(nil), a...), b...) {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// now is a seam so tests can't rely on it being wall-clock; production
// always uses time.Now.
var now = time.Now
