package git2

import (
	"errors"
	"fmt"
	"time"

	git2go "github.com/libgit2/git2go/v31"
)

// NotesRef is the ref under which the engine keeps transaction-annotation
// notes, per spec §4.3.
const NotesRef = "refs/notes/chrondb"

// ErrNoteWriteFailed wraps any libgit2 failure while attaching a note,
// surfaced to callers as the NoteWriteFailed failure mode of spec §4.2.
var ErrNoteWriteFailed = errors.New("git2: note write failed")

// ReadNote returns the raw note message attached to commitOid on NotesRef,
// or found=false if no note is attached.
func (r *Repository) ReadNote(commitOid *Oid) (message string, found bool, err error) {
	note, err := r.repo.Notes.Read(NotesRef, commitOid)
	if err != nil {
		if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("git2: read note for %s: %w", commitOid.String(), err)
	}
	defer note.Free()
	return stringsClone(note.Message()), true, nil
}

// WriteNote replaces (force) whatever note is attached to commitOid on
// NotesRef with message, stamped with ident/now. The notes merge semantics
// (string override / flag union / metadata merge) live one layer up in
// internal/notes, which reads the prior message via ReadNote, merges it in
// Go, and calls WriteNote with the result — mirroring the "remove, then
// add" sequence spec §4.3 describes, since libgit2's note_create(force=1)
// already performs that replacement atomically under the hood.
func (r *Repository) WriteNote(commitOid *Oid, message string, ident Identity, now time.Time) error {
	sig := signature(ident, now)
	noteOid, err := r.repo.Notes.Create(NotesRef, sig, sig, commitOid, message, true)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoteWriteFailed, err)
	}
	_ = noteOid
	return nil
}
