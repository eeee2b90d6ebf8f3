// Package registry maintains a local working copy of the authoritative
// dn42-style registry via go-git and resolves an ASN to the PGP keys
// its maintainers have published in it. Refresh is fast-forward only
// and held under a cross-process single-writer lock; readers use the
// working tree lock-free.
package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/gofrs/flock"

	autopeererrors "github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/logger"
)

// lockWait bounds how long EnsureFresh waits for the process-wide
// single-writer lock before giving up.
const lockWait = 10 * time.Second

// Mirror maintains a local working copy of the registry at Path,
// cloned/fetched from URL over HTTP basic auth.
type Mirror struct {
	Path     string
	URL      string
	Username string
	Token    string

	lock *flock.Flock
}

// New constructs a Mirror rooted at path, mirroring url.
func New(path, url, username, token string) *Mirror {
	return &Mirror{
		Path:     path,
		URL:      url,
		Username: username,
		Token:    token,
		lock:     flock.New(path + ".lock"),
	}
}

func (m *Mirror) auth() *githttp.BasicAuth {
	return &githttp.BasicAuth{Username: m.Username, Password: m.Token}
}

// EnsureFresh idempotently brings the local working copy up to date and
// resolves to its path. Refresh is fast-forward only; a registry
// history that can't fast-forward is an error, never merged.
func (m *Mirror) EnsureFresh(ctx context.Context) (string, error) {
	// The lock file lives next to the working copy; on the very first
	// clone neither exists yet.
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o750); err != nil {
		return "", autopeererrors.NewRegistryUnavailableError("creating registry parent directory", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()
	locked, err := m.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil || !locked {
		return "", autopeererrors.NewRegistryUnavailableError("could not acquire registry refresh lock", err)
	}
	defer func() {
		if err := m.lock.Unlock(); err != nil {
			logger.Warnw("releasing registry lock", "error", err)
		}
	}()

	// Only transient network/credential failures retry; a diverged
	// history or a broken working copy won't heal on a second attempt.
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		refreshErr := m.refresh(ctx)
		if refreshErr != nil && !autopeererrors.IsRegistryUnavailable(refreshErr) {
			return struct{}{}, backoff.Permanent(refreshErr)
		}
		return struct{}{}, refreshErr
	}, backoff.WithMaxTries(2))
	if err != nil {
		return "", err
	}
	return m.Path, nil
}

func (m *Mirror) refresh(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(m.Path, ".git")); os.IsNotExist(err) {
		return m.clone(ctx)
	}
	return m.fetch(ctx)
}

func (m *Mirror) clone(ctx context.Context) error {
	_, err := git.PlainCloneContext(ctx, m.Path, false, &git.CloneOptions{
		URL:          m.URL,
		Auth:         m.auth(),
		SingleBranch: true,
	})
	if err != nil {
		return autopeererrors.NewRegistryUnavailableError("cloning registry", err)
	}
	return nil
}

func (m *Mirror) fetch(ctx context.Context) error {
	repo, err := git.PlainOpen(m.Path)
	if err != nil {
		return autopeererrors.NewInternalError("opening registry working copy", err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return autopeererrors.NewInternalError("resolving registry remote", err)
	}

	err = remote.FetchContext(ctx, &git.FetchOptions{Auth: m.auth()})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return autopeererrors.NewRegistryUnavailableError("fetching registry updates", err)
	}

	head, err := repo.Head()
	if err != nil {
		return autopeererrors.NewInternalError("resolving registry HEAD", err)
	}
	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", head.Name().Short()), true)
	if err != nil {
		return autopeererrors.NewInternalError("resolving remote tracking ref", err)
	}
	if remoteRef.Hash() == head.Hash() {
		return nil
	}

	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return autopeererrors.NewInternalError("resolving local HEAD commit", err)
	}
	remoteCommit, err := repo.CommitObject(remoteRef.Hash())
	if err != nil {
		return autopeererrors.NewInternalError("resolving remote commit", err)
	}
	isAncestor, err := headCommit.IsAncestor(remoteCommit)
	if err != nil {
		return autopeererrors.NewInternalError("computing fast-forward eligibility", err)
	}
	if !isAncestor {
		return autopeererrors.NewRegistryCorruptError("registry history diverged; fast-forward not possible", nil)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return autopeererrors.NewInternalError("resolving registry worktree", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: remoteRef.Hash(), Mode: git.HardReset}); err != nil {
		return autopeererrors.NewInternalError("fast-forwarding registry working tree", err)
	}
	return nil
}
