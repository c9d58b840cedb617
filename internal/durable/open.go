package durable

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/moclojer/chrondb-sub002/internal/config"
	"github.com/moclojer/chrondb-sub002/internal/git2"
	"github.com/moclojer/chrondb-sub002/internal/index"
	"github.com/moclojer/chrondb-sub002/internal/lock"
	"github.com/moclojer/chrondb-sub002/internal/notes"
	"github.com/moclojer/chrondb-sub002/internal/occ"
	"github.com/moclojer/chrondb-sub002/internal/wal"
)

// Open assembles a full Store from cfg: sweeps stale locks, opens or
// initialises the bare repository (creating the initial empty commit on
// cfg.DefaultBranch when new, per spec §4.2's "Initial state"), opens the
// WAL and version-counter mirror, builds the index, and runs the
// crash-recovery sweep of spec §4.5 before returning. repoPath is the
// filesystem directory holding the bare Git repository; cfg.DataDir is
// the path *within* that repository's trees where documents live.
func Open(repoPath string, cfg config.Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := lock.SweepStale(repoPath); err != nil {
		log.Warn("durable: stale-lock sweep failed", "error", err)
	}

	repo, err := openOrInitRepo(repoPath, cfg, log)
	if err != nil {
		return nil, err
	}

	engine := git2.NewEngine(repo, cfg.DataDir, git2.Identity{
		Name:  cfg.CommitterName,
		Email: cfg.CommitterEmail,
	})
	base := NewBase(engine, cfg.DefaultBranch, log).WithPush(cfg.PushOnCommit, cfg.RemoteName)

	walLog, err := wal.Open(filepath.Join(repoPath, cfg.WalDir))
	if err != nil {
		engine.Close()
		return nil, err
	}

	var mirror *occ.Mirror
	mirrorPath := filepath.Join(repoPath, cfg.IndexDir, "versions.bbolt")
	mirror, err = occ.OpenMirror(mirrorPath)
	if err != nil {
		log.Warn("durable: version mirror unavailable, falling back to in-memory only", "error", err)
		mirror = nil
	}

	tracker := occ.NewVersionTracker(mirror)
	locks := occ.NewBranchLocks()

	cache := index.NewCache(cfg.CacheSize, cfg.CacheTTL)
	idx := index.New(cache)

	retry := occ.RetryOptions{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  time.Duration(cfg.BaseDelayMs) * time.Millisecond,
	}

	store := NewStore(base, walLog, locks, tracker, idx, retry, log)

	if err := store.Recover(); err != nil {
		log.Error("durable: recovery sweep failed", "error", err)
	}

	return store, nil
}

func openOrInitRepo(repoPath string, cfg config.Config, log *slog.Logger) (*git2.Repository, error) {
	repo, err := git2.OpenRepository(repoPath)
	if err == nil {
		return repo, nil
	}

	repo, err = git2.InitBare(repoPath)
	if err != nil {
		return nil, fmt.Errorf("durable: init repository %q: %w", repoPath, err)
	}

	engine := git2.NewEngine(repo, cfg.DataDir, git2.Identity{
		Name:  cfg.CommitterName,
		Email: cfg.CommitterEmail,
	})
	// the initial empty commit makes `branch^{commit}` always resolvable,
	// per spec §4.2's "Initial state" — a single no-parent commit over an
	// empty tree, not a throwaway document committed then deleted, so it
	// gets exactly one note like any other commit the core produces (I3).
	now := time.Now()
	const message = "initial commit"
	result, err := engine.InitialCommit(cfg.DefaultBranch, message, now)
	if err != nil {
		log.Warn("durable: failed to seed initial commit", "error", err)
		return repo, nil
	}

	note := notes.Note{
		Origin:        "system",
		Timestamp:     now,
		Status:        "completed",
		CommitID:      result.CommitOid.String(),
		CommitMessage: message,
		Branch:        cfg.DefaultBranch,
		Operation:     "init",
	}
	if err := notes.Write(engine.Repo(), result.CommitOid, note, engine.DefaultIdentity(), now, log); err != nil {
		log.Warn("durable: failed to annotate initial commit", "error", err)
	}

	return repo, nil
}
