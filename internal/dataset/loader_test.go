package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/typeguard/typedsets/internal/models"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func manifest(name, category string) string {
	return `{"name":"` + name + `","description":"d","url":"https://example.com/` + name + `/","category":"` + category + `"}`
}

func TestLoadCatalog(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"bitcoin/index.json":      manifest("Bitcoin", "Crypto"),
		"bitcoin/latest.url":      "https://blockchain.info/latestblock",
		"github/index.toml":       "name = \"GitHub\"\ndescription = \"d\"\nurl = \"https://api.github.com\"\ncategory = \"Dev\"\noauth = \"GH\"\n",
		"apple/index.json":        manifest("Apple", "Music"),
		"notes/readme.txt":        "not a dataset",
		".hidden/x/index.json":    "{broken",
		"group/nested/index.json": manifest("Nested", "Misc"),
	})

	loader := NewLoader("/repos")
	metas, err := loader.LoadCatalog(root)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	wantSlugs := []string{"apple", "bitcoin", "github", "nested"}
	if len(metas) != len(wantSlugs) {
		t.Fatalf("expected %d datasets, got %d", len(wantSlugs), len(metas))
	}
	for i, want := range wantSlugs {
		if metas[i].Slug != want {
			t.Errorf("dataset %d: expected slug %s, got %s", i, want, metas[i].Slug)
		}
	}

	bitcoin := metas[1]
	if bitcoin.RepoDir != filepath.Join("/repos", "bitcoin") {
		t.Errorf("unexpected repo dir %s", bitcoin.RepoDir)
	}
	if bitcoin.DataDir != filepath.Join(root, "bitcoin") {
		t.Errorf("unexpected data dir %s", bitcoin.DataDir)
	}
	if bitcoin.ManifestFile() != models.ManifestJSON {
		t.Errorf("unexpected manifest file %s", bitcoin.ManifestFile())
	}

	github := metas[2]
	if github.ManifestFile() != models.ManifestTOML {
		t.Errorf("expected toml manifest, got %s", github.ManifestFile())
	}
	if github.Dataset.OAuth != "GH" {
		t.Errorf("expected oauth GH, got %s", github.Dataset.OAuth)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{
			name:  "malformed manifest",
			files: map[string]string{"a/index.json": manifest("A", "X"), "b/index.json": "{"},
		},
		{
			name:  "missing field",
			files: map[string]string{"a/index.json": `{"name":"A","url":"u","category":"c"}`},
		},
		{
			name:  "duplicate slug",
			files: map[string]string{"x/a/index.json": manifest("A", "X"), "y/a/index.json": manifest("A2", "X")},
		},
		{
			name:  "both manifests",
			files: map[string]string{"a/index.json": manifest("A", "X"), "a/index.toml": "name = \"A\""},
		},
		{
			name:  "invalid slug",
			files: map[string]string{"bad slug/index.json": manifest("A", "X")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFiles(t, root, tt.files)

			_, err := NewLoader(t.TempDir()).LoadCatalog(root)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if models.ErrorTypeOf(err) != models.ErrManifest {
				t.Errorf("expected manifest error, got %s: %v", models.ErrorTypeOf(err), err)
			}
		})
	}
}

func TestLoadCatalogMissingRoot(t *testing.T) {
	_, err := NewLoader("repos").LoadCatalog(filepath.Join(t.TempDir(), "nope"))
	if models.ErrorTypeOf(err) != models.ErrManifest {
		t.Errorf("expected manifest error, got %v", err)
	}
}

func TestFilter(t *testing.T) {
	metas := []models.DatasetMeta{{Slug: "alpha"}, {Slug: "beta"}, {Slug: "gamma"}}

	all, err := Filter(metas, nil)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all datasets, got %d (%v)", len(all), err)
	}

	selected, err := Filter(metas, []string{"gamma", "alpha"})
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if len(selected) != 2 || selected[0].Slug != "alpha" || selected[1].Slug != "gamma" {
		t.Errorf("expected catalog order [alpha gamma], got %v", selected)
	}

	_, err = Filter(metas, []string{"alpha", "delta"})
	if err == nil {
		t.Fatal("expected error for unknown slug")
	}
	if models.ErrorTypeOf(err) != models.ErrConfig {
		t.Errorf("expected config error, got %s", models.ErrorTypeOf(err))
	}
}

func TestResolve(t *testing.T) {
	local := t.TempDir()

	got, err := Resolve(context.Background(), "", local, filepath.Join(t.TempDir(), ".source"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != local {
		t.Errorf("expected local dir without source, got %s", got)
	}

	src := t.TempDir()
	writeFiles(t, src, map[string]string{"a/index.json": manifest("A", "X")})
	dst := filepath.Join(t.TempDir(), "cache", ".source")

	root, err := Resolve(context.Background(), src, local, dst)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	metas, err := NewLoader("repos").LoadCatalog(root)
	if err != nil {
		t.Fatalf("LoadCatalog on resolved source failed: %v", err)
	}
	if len(metas) != 1 || metas[0].Slug != "a" {
		t.Errorf("expected dataset a, got %v", metas)
	}
}
