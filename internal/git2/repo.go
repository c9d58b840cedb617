// Package git2 is a safety wrapper over git2go, extended from the
// teacher's internal/git package (navytux-git-backup/internal/git/git.go)
// with the tree-surgery, commit, ref-CAS and notes primitives needed to
// drive virtual (working-tree-free) commits, per spec §4.2.
//
// Like the teacher's wrapper, every method here returns data copied out of
// git2go's memory rather than aliasing it, so callers never need a manual
// runtime.KeepAlive. The teacher's comment on why this matters (git2go
// objects can be garbage-collected out from under a []byte) still applies
// and is preserved below.
package git2

import (
	"fmt"
	"runtime"
	"time"

	git2go "github.com/libgit2/git2go/v31"
)

// Object type aliases, safe to propagate as-is (same rationale as the
// teacher's internal/git/git.go).
const (
	ObjectAny    = git2go.ObjectAny
	ObjectCommit = git2go.ObjectCommit
	ObjectTree   = git2go.ObjectTree
	ObjectBlob   = git2go.ObjectBlob
	ObjectTag    = git2go.ObjectTag
)

type (
	ObjectType = git2go.ObjectType
	Oid        = git2go.Oid
	Filemode   = git2go.Filemode
)

const (
	FilemodeBlob = git2go.FilemodeBlob
	FilemodeTree = git2go.FilemodeTree
)

// ZeroOid is the sentinel for "no such ref yet" (a branch with no commits).
var ZeroOid Oid

// Identity is the committer/author identity the engine stamps on every
// commit it creates, per spec §4.2 ("Configuration the engine honours").
type Identity struct {
	Name  string
	Email string
}

// Repository is a safe wrapper over git2go.Repository, extended with the
// object-database primitives the storage engine needs.
type Repository struct {
	repo *git2go.Repository
	path string
}

// OpenRepository opens an existing (bare) repository.
func OpenRepository(path string) (*Repository, error) {
	repo, err := git2go.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("git2: open %q: %w", path, err)
	}
	return &Repository{repo: repo, path: path}, nil
}

// InitBare creates a new bare repository at path, ready to receive the
// initial empty commit spec §4.2 requires ("Initial state").
func InitBare(path string) (*Repository, error) {
	repo, err := git2go.InitRepository(path, true)
	if err != nil {
		return nil, fmt.Errorf("git2: init bare %q: %w", path, err)
	}
	return &Repository{repo: repo, path: path}, nil
}

// Close releases the underlying libgit2 handle. Safe to call once.
func (r *Repository) Close() {
	if r.repo != nil {
		r.repo.Free()
		r.repo = nil
	}
}

// Path returns the (cloned) filesystem path of the repository.
func (r *Repository) Path() string {
	p := stringsClone(r.repo.Path())
	runtime.KeepAlive(r)
	return p
}

func stringsClone(s string) string {
	b := make([]byte, len(s))
	copy(b, s)
	return string(b)
}

func bytesClone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func oidClone(oid *Oid) *Oid {
	if oid == nil {
		return nil
	}
	var o Oid
	copy(o[:], oid[:])
	return &o
}

// signature builds a git2go.Signature stamped with the given identity and
// UTC timestamp, per spec §4.2 ("committer/author ident from configuration
// and current UTC timestamp").
func signature(id Identity, when time.Time) *git2go.Signature {
	return &git2go.Signature{
		Name:  id.Name,
		Email: id.Email,
		When:  when.UTC(),
	}
}
