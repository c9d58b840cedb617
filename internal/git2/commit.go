package git2

import (
	"errors"
	"fmt"
	"time"

	git2go "github.com/libgit2/git2go/v31"
)

// ErrRefUpdateRejected is returned by UpdateRef when expectedOld no longer
// matches the branch's current tip, i.e. another writer raced us, per
// spec §5 (OCC) and §7.
var ErrRefUpdateRejected = errors.New("git2: ref update rejected, branch moved")

// CommitTree creates a commit object for treeOid with the given parent (nil
// for the first commit on a branch) and message, stamped with ident and the
// current time. It does not move any ref — callers perform the ref update
// themselves via UpdateRef so that tree-build, commit-create and ref-update
// stay three separately retryable steps, matching spec §4.2's "three-step
// write" description.
func (r *Repository) CommitTree(treeOid *Oid, parentOid *Oid, message string, ident Identity, now time.Time) (*Oid, error) {
	tree, err := r.repo.LookupTree(treeOid)
	if err != nil {
		return nil, fmt.Errorf("git2: lookup tree for commit: %w", err)
	}
	defer tree.Free()

	var parents []*git2go.Commit
	if parentOid != nil && *parentOid != ZeroOid {
		parent, err := r.repo.LookupCommit(parentOid)
		if err != nil {
			return nil, fmt.Errorf("git2: lookup parent commit: %w", err)
		}
		defer parent.Free()
		parents = append(parents, parent)
	}

	sig := signature(ident, now)
	oid, err := r.repo.CreateCommit("", sig, sig, message, tree, parents...)
	if err != nil {
		return nil, fmt.Errorf("git2: create commit: %w", err)
	}
	return oid, nil
}

// ResolveBranch returns the oid the given branch ref currently points at,
// or ZeroOid (with found=false) if the branch has no commits yet.
func (r *Repository) ResolveBranch(branch string) (oid *Oid, found bool, err error) {
	ref, err := r.repo.References.Lookup(refName(branch))
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return &ZeroOid, false, nil
		}
		return nil, false, fmt.Errorf("git2: resolve branch %q: %w", branch, err)
	}
	defer ref.Free()
	return oidClone(ref.Target()), true, nil
}

// UpdateRef moves branch to point at newOid, but only if its current tip
// equals expectedOld (ZeroOid meaning "branch must not exist yet"). This is
// the compare-and-swap primitive the OCC layer (internal/occ) builds on:
// on mismatch it returns ErrRefUpdateRejected rather than silently
// overwriting a concurrent writer's commit.
func (r *Repository) UpdateRef(branch string, newOid, expectedOld *Oid) error {
	name := refName(branch)

	if expectedOld == nil || *expectedOld == ZeroOid {
		ref, err := r.repo.References.Create(name, newOid, false, "")
		if err != nil {
			if git2go.IsErrorCode(err, git2go.ErrorCodeExists) {
				return ErrRefUpdateRejected
			}
			return fmt.Errorf("git2: create ref %q: %w", name, err)
		}
		ref.Free()
		return nil
	}

	ref, err := r.repo.References.CreateMatchingOid(name, newOid, true, expectedOld, "")
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeModified) || git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return ErrRefUpdateRejected
		}
		return fmt.Errorf("git2: cas-update ref %q: %w", name, err)
	}
	ref.Free()
	return nil
}

// CommitTreeOid returns the tree oid of an existing commit.
func (r *Repository) CommitTreeOid(commitOid *Oid) (*Oid, error) {
	commit, err := r.repo.LookupCommit(commitOid)
	if err != nil {
		return nil, fmt.Errorf("git2: lookup commit %s: %w", commitOid.String(), err)
	}
	defer commit.Free()
	return oidClone(commit.TreeId()), nil
}

func refName(branch string) string {
	return "refs/heads/" + branch
}

// ParseOid parses a hex commit id, as used by get_at and restore when a
// caller supplies a commit reference string.
func ParseOid(hex string) (*Oid, error) {
	oid, err := git2go.NewOid(hex)
	if err != nil {
		return nil, fmt.Errorf("git2: parse oid %q: %w", hex, err)
	}
	return oid, nil
}

// CommitterOf returns the cloned committer name/email of an existing
// commit, used when rendering history entries.
func (r *Repository) CommitterOf(commitOid *Oid) (name, email string) {
	commit, err := r.repo.LookupCommit(commitOid)
	if err != nil {
		return "", ""
	}
	defer commit.Free()
	sig := commit.Committer()
	if sig == nil {
		return "", ""
	}
	return stringsClone(sig.Name), stringsClone(sig.Email)
}
