package materialize

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/util"
)

// Materializer builds the per-dataset cache: a copy of the dataset directory with
// every reference file replaced by the JSON it points at.
type Materializer struct {
	cacheDir string
	client   *retryablehttp.Client
	limiter  *rate.Limiter

	// Getenv resolves oauth token variables. Defaults to os.Getenv.
	Getenv func(string) string
}

// New creates a Materializer writing under cacheDir.
func New(cacheDir string, fetch models.FetchConfig, retry models.RetryConfig) *Materializer {
	client := retryablehttp.NewClient()
	client.Logger = slog.Default()
	client.RetryMax = max(retry.MaxAttempts-1, 0)
	client.RetryWaitMin = time.Duration(retry.InitialDelayMs) * time.Millisecond
	client.RetryWaitMax = time.Duration(retry.MaxDelayMs) * time.Millisecond
	if fetch.TimeoutSec > 0 {
		client.HTTPClient.Timeout = time.Duration(fetch.TimeoutSec * float64(time.Second))
	}

	limit := rate.Inf
	if fetch.RequestsPerSecond > 0 {
		limit = rate.Limit(fetch.RequestsPerSecond)
	}

	return &Materializer{
		cacheDir: cacheDir,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		Getenv:   os.Getenv,
	}
}

// CacheDir returns the cache directory for a dataset slug.
func (m *Materializer) CacheDir(slug string) string {
	return filepath.Join(m.cacheDir, slug)
}

// Materialize recreates the dataset's cache directory and resolves its reference
// files. The returned directory holds only sample JSON.
func (m *Materializer) Materialize(ctx context.Context, meta models.DatasetMeta) (string, error) {
	dir := m.CacheDir(meta.Slug)
	manifest := meta.ManifestFile()

	if err := os.RemoveAll(dir); err != nil {
		return "", models.NewError(models.ErrInternal, meta.Slug, fmt.Errorf("clearing cache: %w", err))
	}
	err := util.CopyDir(meta.DataDir, dir, func(rel string, d fs.DirEntry) bool {
		return rel == manifest
	})
	if err != nil {
		return "", models.NewError(models.ErrInternal, meta.Slug, fmt.Errorf("copying data: %w", err))
	}

	refs, err := findReferences(dir)
	if err != nil {
		return "", models.NewError(models.ErrInternal, meta.Slug, err)
	}

	var token string
	if meta.Dataset.OAuth != "" && len(refs) > 0 {
		token = m.Getenv(meta.Dataset.OAuth)
		if token == "" {
			return "", models.NewError(models.ErrFetch, meta.Slug,
				fmt.Errorf("oauth token variable %s is not set", meta.Dataset.OAuth))
		}
	}

	for _, ref := range refs {
		if err := m.resolveReference(ctx, ref, token); err != nil {
			return "", models.NewError(models.ErrFetch, meta.Slug, err)
		}
	}

	slog.Info("materialized dataset", "slug", meta.Slug, "references", len(refs), "dir", dir)
	return dir, nil
}

func findReferences(dir string) ([]string, error) {
	var refs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == models.ReferenceExt {
			refs = append(refs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning references: %w", err)
	}
	return refs, nil
}

// ReadReference returns the trimmed URL held by a reference file.
func ReadReference(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return "", fmt.Errorf("reference file %s is empty", filepath.Base(path))
	}
	return url, nil
}

// SampleName maps a reference file name to the sample file it is replaced by.
func SampleName(ref string) string {
	return strings.TrimSuffix(ref, models.ReferenceExt) + models.SampleExt
}

func (m *Materializer) resolveReference(ctx context.Context, ref, token string) error {
	url, err := ReadReference(ref)
	if err != nil {
		return err
	}

	body, err := m.fetch(ctx, url, token)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	if !json.Valid(body) {
		slog.Warn("fetched payload is not valid JSON", "url", url, "bytes", len(body))
	}

	out := SampleName(ref)
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(out), err)
	}
	if err := os.Remove(ref); err != nil {
		return fmt.Errorf("removing reference %s: %w", filepath.Base(ref), err)
	}
	return nil
}

func (m *Materializer) fetch(ctx context.Context, url, token string) ([]byte, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	slog.Debug("fetching reference", "url", url, "authenticated", token != "")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}
