package git2

import "fmt"

// PushBranch force-pushes branch to the named remote using git2go's own
// Remote type, replacing the teacher's `git push` subprocess invocation
// (git-backup.go) now that the engine never shells out to git at all.
// Optional: only exercised when a remote mirror is configured.
func (r *Repository) PushBranch(remoteName, branch string) error {
	remote, err := r.repo.Remotes.Lookup(remoteName)
	if err != nil {
		return fmt.Errorf("git2: lookup remote %q: %w", remoteName, err)
	}
	defer remote.Free()

	refspec := fmt.Sprintf("+refs/heads/%s:refs/heads/%s", branch, branch)
	if err := remote.Push([]string{refspec}, nil); err != nil {
		return fmt.Errorf("git2: push %s to %q: %w", branch, remoteName, err)
	}
	return nil
}
