package git2

import (
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v31"
)

// ErrDocumentNil is returned when a caller asks to write a nil document
// body through WriteTreeWithBlob (use RemovePath instead).
var ErrDocumentNil = fmt.Errorf("git2: document content is nil")

// ReadBlobAtPath walks baseTreeOid (the zero Oid means an empty tree) along
// path and returns the blob content found there. found is false when no
// such path exists in the tree.
func (r *Repository) ReadBlobAtPath(baseTreeOid *Oid, path string) (content []byte, found bool, err error) {
	if baseTreeOid == nil || *baseTreeOid == ZeroOid {
		return nil, false, nil
	}
	tree, err := r.repo.LookupTree(baseTreeOid)
	if err != nil {
		return nil, false, nil
	}
	defer tree.Free()

	entry, err := tree.EntryByPath(path)
	if err != nil || entry == nil {
		return nil, false, nil
	}
	blob, err := r.repo.LookupBlob(entry.Id)
	if err != nil {
		return nil, false, fmt.Errorf("git2: lookup blob for %q: %w", path, err)
	}
	defer blob.Free()

	return bytesClone(blob.Contents()), true, nil
}

// WriteTreeWithBlob overlays a single blob at path onto baseTreeOid (which
// may be the zero Oid for "no tree yet"), recursively rebuilding the tree
// chain along the path's directory segments, and returns the new root tree
// oid. This is the tree-surgery primitive behind Engine.Save: it replaces
// the teacher's `git update-index` + `git write-tree` plumbing-command
// pair (git-backup.go) with direct TreeBuilder calls, since the engine
// never materialises a working tree or index file.
func (r *Repository) WriteTreeWithBlob(baseTreeOid *Oid, path string, content []byte) (*Oid, error) {
	if content == nil {
		return nil, ErrDocumentNil
	}
	blobOid, err := r.repo.CreateBlobFromBuffer(content)
	if err != nil {
		return nil, fmt.Errorf("git2: write blob: %w", err)
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	return r.overlayTree(baseTreeOid, segments, blobOid, FilemodeBlob)
}

// RemovePath removes path from baseTreeOid, returning the new root tree
// oid. Removing a path that doesn't exist is a no-op returning baseTreeOid
// unchanged.
func (r *Repository) RemovePath(baseTreeOid *Oid, path string) (*Oid, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	return r.overlayTree(baseTreeOid, segments, nil, 0)
}

// overlayTree recursively rebuilds the tree chain for segments, inserting
// entryOid (a blob or a subtree) at the leaf when entryOid != nil, or
// removing the leaf entry when entryOid == nil.
func (r *Repository) overlayTree(baseTreeOid *Oid, segments []string, entryOid *Oid, mode Filemode) (*Oid, error) {
	var baseTree *git2go.Tree
	if baseTreeOid != nil && *baseTreeOid != ZeroOid {
		t, err := r.repo.LookupTree(baseTreeOid)
		if err != nil {
			return nil, fmt.Errorf("git2: lookup base tree: %w", err)
		}
		defer t.Free()
		baseTree = t
	}

	var builder *git2go.TreeBuilder
	var err error
	if baseTree != nil {
		builder, err = r.repo.TreeBuilderFromTree(baseTree)
	} else {
		builder, err = r.repo.TreeBuilder()
	}
	if err != nil {
		return nil, fmt.Errorf("git2: new tree builder: %w", err)
	}
	defer builder.Free()

	name := segments[0]
	if len(segments) == 1 {
		if entryOid == nil {
			_ = builder.Remove(name)
		} else if err := builder.Insert(name, entryOid, mode); err != nil {
			return nil, fmt.Errorf("git2: insert %q: %w", name, err)
		}
		oid, err := builder.Write()
		if err != nil {
			return nil, fmt.Errorf("git2: write tree: %w", err)
		}
		return oid, nil
	}

	var childTreeOid *Oid
	if baseTree != nil {
		if entry := baseTree.EntryByName(name); entry != nil && entry.Type == ObjectTree {
			childTreeOid = oidClone(entry.Id)
		}
	}

	newChildOid, err := r.overlayTree(childTreeOid, segments[1:], entryOid, mode)
	if err != nil {
		return nil, err
	}

	// deleting the last entry of a subtree collapses it away rather than
	// leaving an empty tree object referenced from its parent.
	if entryOid == nil {
		empty, err := r.isEmptyTree(newChildOid)
		if err != nil {
			return nil, err
		}
		if empty {
			_ = builder.Remove(name)
			oid, err := builder.Write()
			if err != nil {
				return nil, fmt.Errorf("git2: write tree: %w", err)
			}
			return oid, nil
		}
	}

	if err := builder.Insert(name, newChildOid, FilemodeTree); err != nil {
		return nil, fmt.Errorf("git2: insert %q: %w", name, err)
	}
	oid, err := builder.Write()
	if err != nil {
		return nil, fmt.Errorf("git2: write tree: %w", err)
	}
	return oid, nil
}

func (r *Repository) isEmptyTree(treeOid *Oid) (bool, error) {
	if treeOid == nil {
		return true, nil
	}
	tree, err := r.repo.LookupTree(treeOid)
	if err != nil {
		return false, fmt.Errorf("git2: lookup tree: %w", err)
	}
	defer tree.Free()
	return tree.EntryCount() == 0, nil
}

// EmptyTreeOid returns the oid of the tree with no entries, writing it to
// the object database if not already present. Used to build the no-parent
// initial commit of spec §4.2's "Initial state" without ever touching a
// working tree.
func (r *Repository) EmptyTreeOid() (*Oid, error) {
	builder, err := r.repo.TreeBuilder()
	if err != nil {
		return nil, fmt.Errorf("git2: new tree builder: %w", err)
	}
	defer builder.Free()
	oid, err := builder.Write()
	if err != nil {
		return nil, fmt.Errorf("git2: write empty tree: %w", err)
	}
	return oid, nil
}

// WalkPrefix lists every blob path under prefix in the tree at treeOid,
// invoking fn(path, blobOid) for each. Used by ListByPrefix / ListByTable.
func (r *Repository) WalkPrefix(treeOid *Oid, prefix string, fn func(path string, blobOid *Oid) error) error {
	if treeOid == nil || *treeOid == ZeroOid {
		return nil
	}
	tree, err := r.repo.LookupTree(treeOid)
	if err != nil {
		return fmt.Errorf("git2: lookup tree: %w", err)
	}
	defer tree.Free()

	var walkErr error
	err = tree.Walk(func(dir string, entry *git2go.TreeEntry) int {
		if entry.Type != ObjectBlob {
			return 0
		}
		full := entry.Name
		if dir != "" {
			full = dir + full
		}
		if !strings.HasPrefix(full, prefix) {
			return 0
		}
		if err := fn(full, oidClone(entry.Id)); err != nil {
			walkErr = err
			return -1
		}
		return 0
	})
	if err != nil {
		return fmt.Errorf("git2: walk tree: %w", err)
	}
	return walkErr
}
