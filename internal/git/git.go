// Package git manages dataset repository working copies with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

const remoteName = "origin"

// ErrEmptyRemote is returned by Clone when the remote exists but has no commits.
var ErrEmptyRemote = errors.New("remote repository is empty")

// Options configures working copy operations.
type Options struct {
	Branch      string
	AuthorName  string
	AuthorEmail string
	// Token authenticates HTTPS remotes. SSH remotes use the SSH agent.
	Token string
}

// Repo is a working copy with a single remote.
type Repo struct {
	repo   *gogit.Repository
	dir    string
	remote string
	opts   Options
}

// Dir returns the working copy directory.
func (r *Repo) Dir() string {
	return r.dir
}

// Clone clones the configured branch of remote into dir. On failure dir is removed.
func Clone(ctx context.Context, remote, dir string, opts Options) (*Repo, error) {
	auth, err := authFor(remote, opts.Token)
	if err != nil {
		return nil, err
	}

	slog.Debug("cloning", "remote", remote, "dir", dir)
	repo, err := gogit.PlainCloneContext(ctx, dir, false, &gogit.CloneOptions{
		URL:           remote,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  true,
	})
	if err != nil {
		os.RemoveAll(dir)
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, ErrEmptyRemote
		}
		return nil, fmt.Errorf("cloning %s: %w", remote, err)
	}

	return &Repo{repo: repo, dir: dir, remote: remote, opts: opts}, nil
}

// Init creates a fresh repository in dir on the configured branch, with remote as
// origin and the branch tracking it.
func Init(dir, remote string, opts Options) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	branch := plumbing.NewBranchReferenceName(opts.Branch)
	repo, err := gogit.PlainInitWithOptions(dir, &gogit.PlainInitOptions{
		InitOptions: gogit.InitOptions{DefaultBranch: branch},
	})
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", dir, err)
	}

	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{remote}}); err != nil {
		return nil, fmt.Errorf("adding remote: %w", err)
	}
	if err := repo.CreateBranch(&config.Branch{Name: opts.Branch, Remote: remoteName, Merge: branch}); err != nil {
		return nil, fmt.Errorf("configuring branch: %w", err)
	}

	return &Repo{repo: repo, dir: dir, remote: remote, opts: opts}, nil
}

func (r *Repo) signature() *object.Signature {
	return &object.Signature{Name: r.opts.AuthorName, Email: r.opts.AuthorEmail, When: time.Now()}
}

// CommitEmpty records a commit with no changes.
func (r *Repo) CommitEmpty(msg string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", err
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{AllowEmptyCommits: true, Author: r.signature()})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// HasChanges reports whether the working tree differs from HEAD, counting
// untracked files.
func (r *Repo) HasChanges() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("reading status: %w", err)
	}
	return !status.IsClean(), nil
}

// CommitAll stages every change, deletions included, and commits it.
func (r *Repo) CommitAll(msg string) (string, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return "", err
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("staging changes: %w", err)
	}
	hash, err := wt.Commit(msg, &gogit.CommitOptions{All: true, Author: r.signature()})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// Push pushes the configured branch to origin. An up-to-date remote is not an error.
func (r *Repo) Push(ctx context.Context) error {
	auth, err := authFor(r.remote, r.opts.Token)
	if err != nil {
		return err
	}

	ref := plumbing.NewBranchReferenceName(r.opts.Branch)
	spec := config.RefSpec(ref.String() + ":" + ref.String())

	slog.Debug("pushing", "remote", r.remote, "branch", r.opts.Branch)
	err = r.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{spec},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing to %s: %w", r.remote, err)
	}
	return nil
}

// Head returns the hash of the current commit.
func (r *Repo) Head() (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// authFor picks credentials by remote protocol.
func authFor(remote, token string) (transport.AuthMethod, error) {
	ep, err := transport.NewEndpoint(remote)
	if err != nil {
		return nil, fmt.Errorf("parsing remote %s: %w", remote, err)
	}

	switch ep.Protocol {
	case "ssh":
		user := ep.User
		if user == "" {
			user = "git"
		}
		auth, err := ssh.NewSSHAgentAuth(user)
		if err != nil {
			return nil, fmt.Errorf("ssh agent auth for %s: %w", remote, err)
		}
		return auth, nil
	case "http", "https":
		if token == "" {
			return nil, nil
		}
		return &http.BasicAuth{Username: "x-access-token", Password: token}, nil
	default:
		return nil, nil
	}
}
