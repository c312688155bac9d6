// Package forge creates remote dataset repositories on the hosting service.
package forge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/google/go-github/github"
	"golang.org/x/oauth2"

	"github.com/typeguard/typedsets/internal/models"
)

// Repository is the metadata a remote repository is created with.
type Repository struct {
	// FullName is "<owner>/<name>".
	FullName    string
	Description string
	Homepage    string
}

// Creator creates remote repositories. Creating one that already exists succeeds.
type Creator interface {
	Create(ctx context.Context, repo Repository) error
	// RemoteURL returns the git URL for a full repository name.
	RemoteURL(fullName string) string
}

// New returns the Creator for host.Type. getenv resolves the API token.
func New(host models.HostConfig, getenv func(string) string) (Creator, error) {
	switch host.Type {
	case "github":
		return NewGitHub(host, getenv(host.TokenEnv))
	case "local":
		return NewLocal(host.LocalRoot), nil
	default:
		return nil, fmt.Errorf("unsupported host type: %s", host.Type)
	}
}

// GitHub creates repositories through the GitHub API.
type GitHub struct {
	client       *github.Client
	remoteFormat string
}

// NewGitHub creates a GitHub creator authenticated with token.
func NewGitHub(host models.HostConfig, token string) (*GitHub, error) {
	var httpClient *http.Client
	if token != "" {
		httpClient = oauth2.NewClient(context.Background(),
			oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	client := github.NewClient(httpClient)

	if host.APIURL != "" {
		base := host.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing api_url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHub{client: client, remoteFormat: host.RemoteFormat}, nil
}

// RemoteURL formats fullName with the host's remote format.
func (g *GitHub) RemoteURL(fullName string) string {
	return fmt.Sprintf(g.remoteFormat, fullName)
}

// Create creates the repository under its owner organization.
func (g *GitHub) Create(ctx context.Context, repo Repository) error {
	owner, name, ok := strings.Cut(repo.FullName, "/")
	if !ok {
		return fmt.Errorf("repository name %q has no owner", repo.FullName)
	}

	slog.Debug("creating repository", "repo", repo.FullName)
	_, _, err := g.client.Repositories.Create(ctx, owner, &github.Repository{
		Name:        github.String(name),
		Description: github.String(repo.Description),
		Homepage:    github.String(repo.Homepage),
	})
	if err != nil {
		if alreadyExists(err) {
			slog.Info("repository already exists", "repo", repo.FullName)
			return nil
		}
		return fmt.Errorf("creating %s: %w", repo.FullName, err)
	}

	slog.Info("created repository", "repo", repo.FullName)
	return nil
}

func alreadyExists(err error) bool {
	var resp *github.ErrorResponse
	if !errors.As(err, &resp) || resp.Response == nil || resp.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, e := range resp.Errors {
		if strings.Contains(e.Message, "already exists") {
			return true
		}
	}
	return strings.Contains(resp.Message, "already exists")
}

// Local hosts repositories as bare repositories under a root directory.
type Local struct {
	root string
}

// NewLocal creates a Local creator rooted at root.
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// RemoteURL returns the bare repository path.
func (l *Local) RemoteURL(fullName string) string {
	return filepath.Join(l.root, filepath.FromSlash(fullName)+".git")
}

// Create initializes a bare repository. Description and homepage are written to
// the description file.
func (l *Local) Create(ctx context.Context, repo Repository) error {
	dir := l.RemoteURL(repo.FullName)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dir), err)
	}

	if _, err := gogit.PlainInit(dir, true); err != nil {
		if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
			return nil
		}
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	desc := repo.Description
	if repo.Homepage != "" {
		desc += " (" + repo.Homepage + ")"
	}
	if err := os.WriteFile(filepath.Join(dir, "description"), []byte(desc+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing description: %w", err)
	}

	slog.Info("created repository", "repo", repo.FullName, "dir", dir)
	return nil
}
