package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/typeguard/typedsets/internal/forge"
	"github.com/typeguard/typedsets/internal/git"
	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/util"
)

// WorkingCopy is a local clone of a dataset repository.
type WorkingCopy interface {
	CommitEmpty(msg string) (string, error)
	HasChanges() (bool, error)
	CommitAll(msg string) (string, error)
	Push(ctx context.Context) error
}

// VCS obtains working copies.
type VCS interface {
	Clone(ctx context.Context, remote, dir string) (WorkingCopy, error)
	Init(dir, remote string) (WorkingCopy, error)
}

// GitVCS implements VCS with go-git.
type GitVCS struct {
	Options git.Options
}

// Clone clones remote into dir.
func (g GitVCS) Clone(ctx context.Context, remote, dir string) (WorkingCopy, error) {
	repo, err := git.Clone(ctx, remote, dir, g.Options)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Init creates an empty repository in dir with remote as origin.
func (g GitVCS) Init(dir, remote string) (WorkingCopy, error) {
	repo, err := git.Init(dir, remote, g.Options)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Populate fills a working copy with freshly generated content.
type Populate func(ctx context.Context, repoDir string) error

// Outcome describes what reconciling one dataset did.
type Outcome struct {
	InitialState models.RepoState
	Created      bool
	Committed    bool
	Commit       string
}

const createMessage = "create"

// Reconciler brings each dataset repository in line with freshly generated content.
type Reconciler struct {
	vcs     VCS
	creator forge.Creator
	host    models.HostConfig
	retry   models.RetryConfig
	message string
}

// New creates a Reconciler. Update commits are titled "update (<engine> <version>)".
func New(vcs VCS, creator forge.Creator, host models.HostConfig, retry models.RetryConfig, engineName, engineVersion string) *Reconciler {
	return &Reconciler{
		vcs:     vcs,
		creator: creator,
		host:    host,
		retry:   retry,
		message: fmt.Sprintf("update (%s %s)", engineName, engineVersion),
	}
}

// Probe clones the dataset repository into meta.RepoDir. Any clone failure,
// including an empty remote, means the repository is absent.
func (r *Reconciler) Probe(ctx context.Context, meta models.DatasetMeta) (WorkingCopy, models.RepoState) {
	remote := r.creator.RemoteURL(r.host.RepoName(meta.Slug))

	wc, err := r.vcs.Clone(ctx, remote, meta.RepoDir)
	if err != nil {
		slog.Info("repository absent", "slug", meta.Slug, "remote", remote, "reason", err)
		return nil, models.RepoAbsent
	}
	slog.Debug("repository present", "slug", meta.Slug, "remote", remote)
	return wc, models.RepoPresent
}

// create performs the Absent to Present transition: a fresh repository with an
// empty root commit, a remote created with the dataset's metadata, and the root
// commit pushed upstream.
func (r *Reconciler) create(ctx context.Context, meta models.DatasetMeta) (WorkingCopy, error) {
	fullName := r.host.RepoName(meta.Slug)
	remote := r.creator.RemoteURL(fullName)

	wc, err := r.vcs.Init(meta.RepoDir, remote)
	if err != nil {
		return nil, err
	}
	if _, err := wc.CommitEmpty(createMessage); err != nil {
		return nil, err
	}

	err = r.creator.Create(ctx, forge.Repository{
		FullName:    fullName,
		Description: meta.Dataset.Name,
		Homepage:    meta.Dataset.URL,
	})
	if err != nil {
		return nil, err
	}

	if err := util.Retry(ctx, r.retry, "push "+meta.Slug, wc.Push); err != nil {
		return nil, err
	}
	return wc, nil
}

// Reconcile probes the repository, creates it if absent, lets populate rewrite
// the working copy, and commits and pushes only if anything changed. Errors from
// populate are returned unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, meta models.DatasetMeta, populate Populate) (Outcome, error) {
	var out Outcome
	repoErr := func(err error) error {
		return models.NewError(models.ErrRepository, meta.Slug, err)
	}

	if err := os.RemoveAll(meta.RepoDir); err != nil {
		return out, repoErr(fmt.Errorf("clearing working copy: %w", err))
	}

	wc, state := r.Probe(ctx, meta)
	out.InitialState = state

	if state == models.RepoAbsent {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var err error
		wc, err = r.create(ctx, meta)
		if err != nil {
			return out, repoErr(err)
		}
		out.Created = true
		slog.Info("created dataset repository", "slug", meta.Slug)
	}

	if err := populate(ctx, meta.RepoDir); err != nil {
		return out, err
	}

	changed, err := wc.HasChanges()
	if err != nil {
		return out, repoErr(err)
	}
	if !changed {
		slog.Info("no changes", "slug", meta.Slug)
		return out, nil
	}

	hash, err := wc.CommitAll(r.message)
	if err != nil {
		return out, repoErr(err)
	}
	if err := util.Retry(ctx, r.retry, "push "+meta.Slug, wc.Push); err != nil {
		return out, repoErr(err)
	}

	out.Committed = true
	out.Commit = hash
	slog.Info("pushed update", "slug", meta.Slug, "commit", hash)
	return out, nil
}
