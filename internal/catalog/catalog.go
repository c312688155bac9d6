// Package catalog renders the top-level dataset index and per-dataset READMEs.
package catalog

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/typeguard/typedsets/internal/materialize"
	"github.com/typeguard/typedsets/internal/models"
)

const (
	awesomeBadge = "[![Awesome](https://cdn.rawgit.com/sindresorhus/awesome/d7305f38d29fed78fa85652e3a63e154dd8e8829/media/badge.svg)](https://github.com/sindresorhus/awesome)"
	cc0Badge     = "[![CC0](http://mirrors.creativecommons.org/presskit/buttons/88x31/svg/cc-zero.svg)](https://creativecommons.org/publicdomain/zero/1.0/)"
)

// Renderer renders documents for one host and language set.
type Renderer struct {
	host      models.HostConfig
	engine    models.EngineConfig
	languages []models.TargetLanguage
}

// NewRenderer creates a Renderer.
func NewRenderer(host models.HostConfig, engine models.EngineConfig, languages []models.TargetLanguage) *Renderer {
	return &Renderer{host: host, engine: engine, languages: languages}
}

// engineLink names the generation engine, linked to its homepage when one is set.
func (r *Renderer) engineLink() string {
	if r.engine.Homepage == "" {
		return r.engine.Name
	}
	return fmt.Sprintf("[%s](%s)", r.engine.Name, r.engine.Homepage)
}

// RepoURL returns the web URL of a dataset's repository.
func (r *Renderer) RepoURL(slug string) string {
	return fmt.Sprintf(r.host.WebURLFormat, r.host.RepoName(slug))
}

// RenderCatalog renders the top-level index: categories in lexical order, datasets
// in discovery order within each category.
func (r *Renderer) RenderCatalog(metas []models.DatasetMeta) string {
	groups := make(map[string][]models.DatasetMeta)
	var categories []string
	for _, m := range metas {
		c := m.Dataset.Category
		if _, ok := groups[c]; !ok {
			categories = append(categories, c)
		}
		groups[c] = append(groups[c], m)
	}
	sort.Strings(categories)

	var names []string
	for _, l := range r.languages {
		if !l.HideInCatalog {
			names = append(names, l.DisplayName)
		}
	}

	lines := []string{
		"# Awesome Typed Datasets " + awesomeBadge,
		"",
		"These are public JSON datasets that have been strongly",
		"typed with " + r.engineLink() + ".",
		"Each is a repo with code in " + NaturalList(names) + " for",
		"reading and writing the JSON produced by these APIs.",
		"",
	}

	for _, c := range categories {
		lines = append(lines, "", "## "+c, "")
		for _, m := range groups[c] {
			lines = append(lines, fmt.Sprintf("* [%s](%s) (%s)", m.Dataset.Name, r.RepoURL(m.Slug), SimplifyURL(m.Dataset.URL)))
		}
	}

	lines = append(lines,
		"",
		"## Contributing",
		"If you want to contribute, please read the [contribution guidelines](CONTRIBUTING.md).",
		"",
		"## License",
		cc0Badge,
		"",
	)
	return strings.Join(lines, "\n")
}

// RenderDatasetReadme renders a dataset repository's README from its source
// directory: the sample APIs it was typed from and links to each language.
func (r *Renderer) RenderDatasetReadme(meta models.DatasetMeta) (string, error) {
	lines := []string{
		"# " + meta.Dataset.Name + " – Typed JSON API",
		"",
		"> " + meta.Dataset.Description,
		"",
		"## APIs",
		"",
	}

	manifest := meta.ManifestFile()
	err := filepath.WalkDir(meta.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(meta.DataDir, path)
		if err != nil {
			return err
		}
		if filepath.ToSlash(rel) == manifest {
			return nil
		}

		name := d.Name()
		switch filepath.Ext(name) {
		case models.ReferenceExt:
			url, err := materialize.ReadReference(path)
			if err != nil {
				return err
			}
			lines = append(lines, fmt.Sprintf("* `%s`: %s", strings.TrimSuffix(name, models.ReferenceExt), url))
		case models.SampleExt:
			lines = append(lines, fmt.Sprintf("* `%s`", strings.TrimSuffix(name, models.SampleExt)))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("listing samples of %s: %w", meta.Slug, err)
	}

	lines = append(lines, "", "## Libraries", "")
	for _, l := range r.languages {
		lines = append(lines, fmt.Sprintf("* [%s](%s)", l.DisplayName, l.Shortname()))
	}

	catalogRepo := r.host.CatalogRepo
	lines = append(lines,
		"",
		"# Contributing",
		"",
		fmt.Sprintf("This repo is generated with %s from data in [%s](%s).", r.engineLink(), catalogRepo, fmt.Sprintf(r.host.WebURLFormat, catalogRepo)),
		"To contribute, please visit those repos.",
		"",
	)
	return strings.Join(lines, "\n"), nil
}

// SimplifyURL drops the scheme and one trailing slash:
// "https://api.example.com/v1/" becomes "api.example.com/v1".
func SimplifyURL(u string) string {
	s := u
	if _, rest, ok := strings.Cut(u, "://"); ok {
		s = rest
	}
	return strings.TrimSuffix(s, "/")
}

// NaturalList joins names as "B, C, and A": the first name goes last.
func NaturalList(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[1:], ", ") + ", and " + names[0]
}
