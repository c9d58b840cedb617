// Package notes implements the JSON transaction-annotation payload
// attached to every commit on refs/notes/chrondb, per spec §4.3. The merge
// semantics (string override, flag set-union, metadata field-merge) are
// new; the remove-then-add mutation sequence and the "absent or
// unparseable note reads back as none, with a warning" tolerance are
// carried over from the teacher's attitude to git plumbing failures in
// git-backup.go (best-effort side channel, never load-bearing for the
// primary write).
package notes

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/git2"
)

// Note is the JSON object stored under refs/notes/chrondb against a
// commit oid, per spec §3.
type Note struct {
	TxID          string            `json:"tx_id"`
	Origin        string            `json:"origin"`
	User          string            `json:"user,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	Flags         []string          `json:"flags,omitempty"`
	Status        string            `json:"status"`
	CommitID      string            `json:"commit_id"`
	CommitMessage string            `json:"commit_message"`
	Branch        string            `json:"branch"`
	Path          string            `json:"path"`
	DocumentID    string            `json:"document_id"`
	Operation     string            `json:"operation"`
}

// Merge combines an incoming payload with a prior note: string fields from
// incoming override prior's, flags are set-unioned, and metadata is
// merged field-wise with incoming winning conflicts. prior may be the
// zero Note (no prior note existed).
func Merge(prior, incoming Note) Note {
	out := prior

	if incoming.TxID != "" {
		out.TxID = incoming.TxID
	}
	if incoming.Origin != "" {
		out.Origin = incoming.Origin
	}
	if incoming.User != "" {
		out.User = incoming.User
	}
	if !incoming.Timestamp.IsZero() {
		out.Timestamp = incoming.Timestamp
	}
	if incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.CommitID != "" {
		out.CommitID = incoming.CommitID
	}
	if incoming.CommitMessage != "" {
		out.CommitMessage = incoming.CommitMessage
	}
	if incoming.Branch != "" {
		out.Branch = incoming.Branch
	}
	if incoming.Path != "" {
		out.Path = incoming.Path
	}
	if incoming.DocumentID != "" {
		out.DocumentID = incoming.DocumentID
	}
	if incoming.Operation != "" {
		out.Operation = incoming.Operation
	}

	out.Flags = unionFlags(prior.Flags, incoming.Flags)

	if len(incoming.Metadata) > 0 {
		merged := make(map[string]any, len(prior.Metadata)+len(incoming.Metadata))
		for k, v := range prior.Metadata {
			merged[k] = v
		}
		for k, v := range incoming.Metadata {
			merged[k] = v
		}
		out.Metadata = merged
	}

	return out
}

func unionFlags(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, f := range a {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	for _, f := range b {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// Read fetches and parses the note attached to commitOid. It never
// returns an error for a missing or unparseable note (per spec §4.3,
// "Read returns None when absent or unparseable"); instead it logs a
// warning and reports found=false.
func Read(repo *git2.Repository, commitOid *git2.Oid, log *slog.Logger) (note Note, found bool) {
	raw, present, err := repo.ReadNote(commitOid)
	if err != nil {
		log.Warn("notes: read failed", "commit", commitOid.String(), "error", err)
		return Note{}, false
	}
	if !present {
		return Note{}, false
	}
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		log.Warn("notes: unparseable note", "commit", commitOid.String(), "error", err)
		return Note{}, false
	}
	return note, true
}

// Write merges incoming with whatever note is currently attached to
// commitOid (if any) and writes the result back, per the "remove then
// add" sequence of spec §4.3 (git2.WriteNote's force=true already
// performs that replacement atomically).
func Write(repo *git2.Repository, commitOid *git2.Oid, incoming Note, ident git2.Identity, now time.Time, log *slog.Logger) error {
	prior, _ := Read(repo, commitOid, log)
	merged := Merge(prior, incoming)

	payload, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	return repo.WriteNote(commitOid, string(payload), ident, now)
}
