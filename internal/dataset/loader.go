package dataset

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/typeguard/typedsets/internal/config"
	"github.com/typeguard/typedsets/internal/models"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Loader discovers dataset manifests under a root directory.
type Loader struct {
	reposDir string
}

// NewLoader creates a loader whose datasets get working copies under reposDir.
func NewLoader(reposDir string) *Loader {
	return &Loader{reposDir: reposDir}
}

// LoadCatalog walks root for manifests and returns one DatasetMeta per dataset
// directory in lexical walk order. Any manifest problem fails the whole load.
func (l *Loader) LoadCatalog(root string) ([]models.DatasetMeta, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, models.NewError(models.ErrManifest, "", fmt.Errorf("reading dataset root: %w", err))
	}
	if !info.IsDir() {
		return nil, models.NewError(models.ErrManifest, "", fmt.Errorf("dataset root %s is not a directory", absRoot))
	}

	var metas []models.DatasetMeta
	seen := make(map[string]string)

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != absRoot && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}

		manifest, err := findManifest(path)
		if err != nil || manifest == "" {
			return err
		}

		slug := filepath.Base(path)
		if !slugPattern.MatchString(slug) {
			return models.NewError(models.ErrManifest, slug, fmt.Errorf("directory name %q is not a valid slug", slug))
		}
		if prev, ok := seen[slug]; ok {
			return models.NewError(models.ErrManifest, slug, fmt.Errorf("duplicate slug: %s and %s", prev, path))
		}
		seen[slug] = path

		data, err := os.ReadFile(manifest)
		if err != nil {
			return models.NewError(models.ErrManifest, slug, fmt.Errorf("reading manifest: %w", err))
		}
		desc, err := config.ParseManifest(manifest, data)
		if err != nil {
			return models.NewError(models.ErrManifest, slug, err)
		}

		metas = append(metas, models.DatasetMeta{
			Slug:         slug,
			DataDir:      path,
			ManifestPath: manifest,
			RepoDir:      filepath.Join(l.reposDir, slug),
			Dataset:      desc,
		})
		slog.Debug("discovered dataset", "slug", slug, "category", desc.Category)
		return nil
	})
	if err != nil {
		if models.ErrorTypeOf(err) == models.ErrManifest {
			return nil, err
		}
		return nil, models.NewError(models.ErrManifest, "", fmt.Errorf("walking %s: %w", absRoot, err))
	}

	return metas, nil
}

// findManifest returns the manifest path in dir, or "" if the directory is not a dataset.
func findManifest(dir string) (string, error) {
	var found []string
	for _, name := range []string{models.ManifestJSON, models.ManifestTOML} {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().IsRegular() {
			found = append(found, p)
		}
	}

	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return found[0], nil
	default:
		return "", models.NewError(models.ErrManifest, filepath.Base(dir),
			fmt.Errorf("both %s and %s present", models.ManifestJSON, models.ManifestTOML))
	}
}

// Filter returns the datasets named by slugs, in catalog order. An empty slug list
// selects everything; unknown slugs are a configuration error.
func Filter(metas []models.DatasetMeta, slugs []string) ([]models.DatasetMeta, error) {
	if len(slugs) == 0 {
		return metas, nil
	}

	want := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		want[s] = true
	}

	var selected []models.DatasetMeta
	for _, m := range metas {
		if want[m.Slug] {
			selected = append(selected, m)
			delete(want, m.Slug)
		}
	}

	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for _, s := range slugs {
			if want[s] {
				unknown = append(unknown, s)
				want[s] = false
			}
		}
		return nil, models.NewError(models.ErrConfig, "", fmt.Errorf("unknown datasets: %s", strings.Join(unknown, ", ")))
	}
	return selected, nil
}
