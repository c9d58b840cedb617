package durable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/git2"
	"github.com/moclojer/chrondb-sub002/internal/notes"
	"github.com/moclojer/chrondb-sub002/internal/pathcodec"
	"github.com/moclojer/chrondb-sub002/internal/txctx"
)

// Base implements the plain (non-WAL, non-OCC, non-index) storage
// contract directly over the Git object engine, performing the
// commit-then-note-then-abandon-on-failure sequence of spec §4.2 step 5.
// internal/durable.Store layers WAL/OCC/index around Base for save/delete
// and calls it directly for get/list/history, per spec §4.8 ("get, list,
// and history operations bypass WAL and OCC and call the base engine
// directly").
type Base struct {
	engine *git2.Engine
	branch string
	log    *slog.Logger

	// pushOnCommit and remoteName implement spec §4.2's "Configuration the
	// engine honours": push to a remote after commit, never fatal on
	// failure.
	pushOnCommit bool
	remoteName   string
}

// NewBase wraps engine, using defaultBranch when a call's branch argument
// is empty.
func NewBase(engine *git2.Engine, defaultBranch string, log *slog.Logger) *Base {
	return &Base{engine: engine, branch: defaultBranch, log: log}
}

// WithPush enables push-to-remote after every commit, per spec §4.2.
func (b *Base) WithPush(enabled bool, remoteName string) *Base {
	b.pushOnCommit = enabled
	b.remoteName = remoteName
	return b
}

// maybePush pushes branch to the configured remote if push-on-commit is
// enabled; failures are logged and never fail the containing mutation,
// per spec §4.2 ("push failure is logged, never fatal").
func (b *Base) maybePush(branch string) {
	if !b.pushOnCommit {
		return
	}
	if err := b.engine.Repo().PushBranch(b.remoteName, branch); err != nil {
		b.log.Warn("durable: push to remote failed", "branch", branch, "remote", b.remoteName, "error", err)
	}
}

func (b *Base) resolveBranch(branch string) string {
	if branch == "" {
		return b.branch
	}
	return branch
}

// Save writes doc on branch as a new commit, annotated with a note
// projected from ctx. Returns the stored (normalised) document and the
// new commit oid.
func (b *Base) Save(ctx context.Context, doc Document, branch string) (Document, *git2.Oid, error) {
	branch = b.resolveBranch(branch)
	if doc.ID() == "" {
		return nil, nil, ErrDocumentInvalid
	}

	identifier := doc.Identifier()
	stored, err := normalize(doc, identifier)
	if err != nil {
		return nil, nil, err
	}

	content, err := marshalDoc(stored)
	if err != nil {
		return nil, nil, err
	}

	message := fmt.Sprintf("save document %s", identifier)
	now := time.Now()

	result, err := b.engine.Save(branch, identifier, content, message, nil, now)
	if err != nil {
		return nil, nil, err
	}

	if err := b.attachNote(ctx, branch, identifier, "save", result, message, now); err != nil {
		return nil, nil, err
	}
	b.maybePush(branch)

	return stored, result.CommitOid, nil
}

// Delete removes identifier's document on branch. existed reports whether
// a document was actually present to delete (spec P2: delete idempotence).
func (b *Base) Delete(ctx context.Context, identifier, branch string) (existed bool, err error) {
	branch = b.resolveBranch(branch)

	_, found, err := b.engine.Get(branch, identifier)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	message := fmt.Sprintf("delete document %s", identifier)
	now := time.Now()

	result, err := b.engine.Delete(branch, identifier, message, nil, now)
	if err != nil {
		return false, err
	}

	if err := b.attachNote(ctx, branch, identifier, "delete", result, message, now); err != nil {
		return false, err
	}
	b.maybePush(branch)

	return true, nil
}

// attachNote projects ctx into a note and writes it on the new commit; on
// failure it reverts branch's ref to the pre-mutation tip and returns
// git2.ErrNoteWriteFailed wrapped with context, per spec §4.2 step 5.
func (b *Base) attachNote(ctx context.Context, branch, identifier, operation string, result *git2.WriteResult, message string, now time.Time) error {
	path := pathcodec.DocPath(b.engine.DataDir(), identifier)
	note := txctx.ToNote(ctx, result.CommitOid.String(), message, branch, path, identifier, operation)

	ident := b.engine.DefaultIdentity()
	if err := notes.Write(b.engine.Repo(), result.CommitOid, note, ident, now, b.log); err != nil {
		if revertErr := b.engine.Repo().UpdateRef(branch, result.PreviousOid, result.CommitOid); revertErr != nil {
			b.log.Error("durable: failed to revert ref after note-write failure", "branch", branch, "error", revertErr)
		}
		return fmt.Errorf("%w: %v", git2.ErrNoteWriteFailed, err)
	}
	txctx.RecordCommit(ctx)
	return nil
}

// Get returns identifier's current document on branch, reconstructing
// "_table" when the stored blob omits it.
func (b *Base) Get(branch, identifier string) (Document, bool, error) {
	branch = b.resolveBranch(branch)
	content, found, err := b.engine.Get(branch, identifier)
	if err != nil || !found {
		return nil, false, err
	}
	doc, err := unmarshalDoc(content)
	if err != nil {
		return nil, false, err
	}
	return reconstructTable(doc, identifier), true, nil
}

// ListByPrefix returns every document under prefix on branch.
func (b *Base) ListByPrefix(branch, prefix string) ([]Document, error) {
	branch = b.resolveBranch(branch)
	var out []Document
	err := b.engine.ListByPrefix(branch, prefix, func(identifier string) error {
		doc, found, err := b.Get(branch, identifier)
		if err != nil {
			return err
		}
		if found {
			out = append(out, doc)
		}
		return nil
	})
	return out, err
}

// ListByTable returns every document in table on branch.
func (b *Base) ListByTable(branch, table string) ([]Document, error) {
	branch = b.resolveBranch(branch)
	var out []Document
	err := b.engine.ListByTable(branch, table, func(identifier string) error {
		doc, found, err := b.Get(branch, identifier)
		if err != nil {
			return err
		}
		if found {
			out = append(out, doc)
		}
		return nil
	})
	return out, err
}

// HistoryEntry is one record returned by History, per spec §4.9.
type HistoryEntry struct {
	CommitID       string
	CommitTime     time.Time
	CommitMessage  string
	CommitterName  string
	CommitterEmail string
	Document       Document
}

// History enumerates identifier's commits on branch, newest first, per
// spec §4.9. When identifier has no entry in the current tree (the
// document was deleted), it falls back to the constructed canonical path
// so deleted documents retain browsable history.
func (b *Base) History(branch, identifier string) ([]HistoryEntry, error) {
	branch = b.resolveBranch(branch)
	path := pathcodec.DocPath(b.engine.DataDir(), identifier)

	var entries []HistoryEntry
	err := b.engine.Repo().WalkHistory(branch, path, func(info git2.CommitInfo) (bool, error) {
		content, found, err := b.engine.GetAtCommit(info.Oid, identifier)
		if err != nil {
			return false, err
		}
		var doc Document
		if found {
			doc, err = unmarshalDoc(content)
			if err != nil {
				return false, err
			}
			doc = reconstructTable(doc, identifier)
		}

		name, email := b.engine.Repo().CommitterOf(info.Oid)

		entries = append(entries, HistoryEntry{
			CommitID:       info.Oid.String(),
			CommitTime:     info.When,
			CommitMessage:  info.Message,
			CommitterName:  name,
			CommitterEmail: email,
			Document:       doc,
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAt returns identifier's document as of commitRef (a commit oid hex
// string), per spec §4.9.
func (b *Base) GetAt(identifier, commitRef string) (Document, bool, error) {
	oid, err := git2.ParseOid(commitRef)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrParseError, err)
	}
	content, found, err := b.engine.GetAtCommit(oid, identifier)
	if err != nil || !found {
		return nil, false, err
	}
	doc, err := unmarshalDoc(content)
	if err != nil {
		return nil, false, err
	}
	return reconstructTable(doc, identifier), true, nil
}

// Restore reads identifier's document as of commitRef and issues a new
// save on branch with the canonical restore message and the "rollback"
// transaction flag, per spec §4.9. History is never rewritten: this is
// itself a new commit.
func (b *Base) Restore(ctx context.Context, identifier, commitRef, branch string) (Document, *git2.Oid, error) {
	doc, found, err := b.GetAt(identifier, commitRef)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, ErrNotFound
	}

	rctx, finish := txctx.Begin(ctx, txctx.Options{
		Origin: "restore",
		Flags:  []string{"rollback"},
	})

	branch = b.resolveBranch(branch)
	identifier2 := identifier
	stored, err := normalize(doc, identifier2)
	if err != nil {
		finish(nil, err)
		return nil, nil, err
	}
	content, err := marshalDoc(stored)
	if err != nil {
		finish(nil, err)
		return nil, nil, err
	}

	message := fmt.Sprintf("Restore document %s to version %s", identifier, commitRef)
	now := time.Now()

	result, err := b.engine.Save(branch, identifier2, content, message, nil, now)
	if err != nil {
		finish(nil, err)
		return nil, nil, err
	}

	if err := b.attachNote(rctx, branch, identifier2, "restore", result, message, now); err != nil {
		finish(nil, err)
		return nil, nil, err
	}
	b.maybePush(branch)

	finish(result, nil)
	return stored, result.CommitOid, nil
}
