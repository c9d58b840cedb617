package git2

import (
	"errors"
	"fmt"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/pathcodec"
)

// ErrRepositoryClosed is returned by every Engine method once Close has
// run, per spec §4.2's RepositoryClosed failure mode.
var ErrRepositoryClosed = errors.New("git2: repository is closed")

// Engine is the virtual-commit storage engine: it turns Save/Get/Delete/
// ListByPrefix/ListByTable calls into direct object-database writes under
// dataDir, never touching a working tree or index file, per spec §4.2.
type Engine struct {
	repo    *Repository
	dataDir string
	ident   Identity
	closed  bool
}

// NewEngine wraps an already-open Repository into an Engine rooted at
// dataDir (e.g. "data"), stamping every commit it creates with ident.
func NewEngine(repo *Repository, dataDir string, ident Identity) *Engine {
	return &Engine{repo: repo, dataDir: dataDir, ident: ident}
}

// Close releases the underlying repository. Subsequent Engine calls fail
// with ErrRepositoryClosed.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.repo.Close()
}

// WriteResult reports the commit produced by Save or Delete, consumed by
// the OCC layer for its expected-old/new-oid bookkeeping and by the WAL
// for its git-committed marker.
type WriteResult struct {
	CommitOid   *Oid
	PreviousOid *Oid // ZeroOid if branch had no commits yet
}

// Save writes content at identifier's path on branch, as a new commit
// whose parent is the branch's current tip. expectedParent, when non-nil,
// is asserted against the branch's actual tip before writing (the
// compare-and-swap the OCC layer relies on); pass nil to skip the check
// and always read the live tip.
func (e *Engine) Save(branch, identifier string, content []byte, message string, expectedParent *Oid, now time.Time) (*WriteResult, error) {
	if e.closed {
		return nil, ErrRepositoryClosed
	}
	if content == nil {
		return nil, ErrDocumentNil
	}

	path := pathcodec.DocPath(e.dataDir, identifier)

	tip, _, err := e.repo.ResolveBranch(branch)
	if err != nil {
		return nil, err
	}
	if expectedParent != nil && *tip != *expectedParent {
		return nil, ErrRefUpdateRejected
	}

	var baseTreeOid *Oid
	if *tip != ZeroOid {
		baseTreeOid, err = e.repo.CommitTreeOid(tip)
		if err != nil {
			return nil, err
		}
	}

	newTreeOid, err := e.repo.WriteTreeWithBlob(baseTreeOid, path, content)
	if err != nil {
		return nil, err
	}

	var parentOid *Oid
	if *tip != ZeroOid {
		parentOid = tip
	}
	commitOid, err := e.repo.CommitTree(newTreeOid, parentOid, message, e.ident, now)
	if err != nil {
		return nil, err
	}

	if err := e.repo.UpdateRef(branch, commitOid, tip); err != nil {
		return nil, err
	}

	return &WriteResult{CommitOid: commitOid, PreviousOid: tip}, nil
}

// Delete removes identifier's path on branch as a new commit. Deleting a
// document that doesn't exist is a no-op that still returns the branch's
// current tip as both CommitOid and PreviousOid.
func (e *Engine) Delete(branch, identifier, message string, expectedParent *Oid, now time.Time) (*WriteResult, error) {
	if e.closed {
		return nil, ErrRepositoryClosed
	}

	path := pathcodec.DocPath(e.dataDir, identifier)

	tip, found, err := e.repo.ResolveBranch(branch)
	if err != nil {
		return nil, err
	}
	if !found {
		return &WriteResult{CommitOid: &ZeroOid, PreviousOid: &ZeroOid}, nil
	}
	if expectedParent != nil && *tip != *expectedParent {
		return nil, ErrRefUpdateRejected
	}

	baseTreeOid, err := e.repo.CommitTreeOid(tip)
	if err != nil {
		return nil, err
	}

	_, existed, err := e.repo.ReadBlobAtPath(baseTreeOid, path)
	if err != nil {
		return nil, err
	}
	if !existed {
		return &WriteResult{CommitOid: tip, PreviousOid: tip}, nil
	}

	newTreeOid, err := e.repo.RemovePath(baseTreeOid, path)
	if err != nil {
		return nil, err
	}

	commitOid, err := e.repo.CommitTree(newTreeOid, tip, message, e.ident, now)
	if err != nil {
		return nil, err
	}

	if err := e.repo.UpdateRef(branch, commitOid, tip); err != nil {
		return nil, err
	}

	return &WriteResult{CommitOid: commitOid, PreviousOid: tip}, nil
}

// InitialCommit creates the no-parent, empty-tree commit spec §4.2's
// "Initial state" describes and points branch at it. Only valid on a
// branch with no commits yet; callers write the matching transaction note
// themselves since this commit carries no document and needs none of
// Save/Delete's path bookkeeping.
func (e *Engine) InitialCommit(branch, message string, now time.Time) (*WriteResult, error) {
	if e.closed {
		return nil, ErrRepositoryClosed
	}

	treeOid, err := e.repo.EmptyTreeOid()
	if err != nil {
		return nil, err
	}
	commitOid, err := e.repo.CommitTree(treeOid, nil, message, e.ident, now)
	if err != nil {
		return nil, err
	}
	if err := e.repo.UpdateRef(branch, commitOid, nil); err != nil {
		return nil, err
	}
	return &WriteResult{CommitOid: commitOid, PreviousOid: &ZeroOid}, nil
}

// Get returns the current content of identifier on branch. found is false
// if branch has no commits or identifier has no document there.
func (e *Engine) Get(branch, identifier string) (content []byte, found bool, err error) {
	if e.closed {
		return nil, false, ErrRepositoryClosed
	}
	tip, ok, err := e.repo.ResolveBranch(branch)
	if err != nil || !ok {
		return nil, false, err
	}
	treeOid, err := e.repo.CommitTreeOid(tip)
	if err != nil {
		return nil, false, err
	}
	path := pathcodec.DocPath(e.dataDir, identifier)
	return e.repo.ReadBlobAtPath(treeOid, path)
}

// GetAtCommit returns identifier's content as of commitOid, used by
// history/time-travel (internal/durable) after it has resolved a specific
// historical commit via WalkHistory or CommitAt.
func (e *Engine) GetAtCommit(commitOid *Oid, identifier string) (content []byte, found bool, err error) {
	if e.closed {
		return nil, false, ErrRepositoryClosed
	}
	if commitOid == nil || *commitOid == ZeroOid {
		return nil, false, nil
	}
	treeOid, err := e.repo.CommitTreeOid(commitOid)
	if err != nil {
		return nil, false, err
	}
	path := pathcodec.DocPath(e.dataDir, identifier)
	return e.repo.ReadBlobAtPath(treeOid, path)
}

// ListByPrefix enumerates every document identifier on branch whose
// encoded path starts with prefix, invoking fn(identifier) for each.
func (e *Engine) ListByPrefix(branch, prefix string, fn func(identifier string) error) error {
	if e.closed {
		return ErrRepositoryClosed
	}
	tip, ok, err := e.repo.ResolveBranch(branch)
	if err != nil || !ok {
		return err
	}
	treeOid, err := e.repo.CommitTreeOid(tip)
	if err != nil {
		return err
	}
	pathPrefix := pathcodec.PrefixPath(e.dataDir, prefix)
	return e.repo.WalkPrefix(treeOid, pathPrefix, func(path string, _ *Oid) error {
		id, err := pathcodec.ParseDocPath(e.dataDir, path)
		if err != nil {
			return fmt.Errorf("git2: list_by_prefix: %w", err)
		}
		return fn(id)
	})
}

// ListByTable enumerates every document identifier in table on branch.
func (e *Engine) ListByTable(branch, table string, fn func(identifier string) error) error {
	if e.closed {
		return ErrRepositoryClosed
	}
	tip, ok, err := e.repo.ResolveBranch(branch)
	if err != nil || !ok {
		return err
	}
	treeOid, err := e.repo.CommitTreeOid(tip)
	if err != nil {
		return err
	}
	tablePrefix := pathcodec.TablePrefix(e.dataDir, table)
	return e.repo.WalkPrefix(treeOid, tablePrefix, func(path string, _ *Oid) error {
		id, err := pathcodec.ParseDocPath(e.dataDir, path)
		if err != nil {
			return fmt.Errorf("git2: list_by_table: %w", err)
		}
		return fn(id)
	})
}

// Repo exposes the underlying Repository for callers (notes, history) that
// need primitives beyond Save/Get/Delete/List.
func (e *Engine) Repo() *Repository { return e.repo }

// DefaultIdentity returns the committer/author identity this Engine
// stamps on every commit it creates.
func (e *Engine) DefaultIdentity() Identity { return e.ident }

// DataDir returns the repository-relative root documents are stored
// under.
func (e *Engine) DataDir() string { return e.dataDir }
