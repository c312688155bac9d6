package codegen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/typeguard/typedsets/internal/engine"
	"github.com/typeguard/typedsets/internal/models"
)

type fakeEngine struct {
	requests []engine.Request
	failOn   string
	skipOn   string
}

func (f *fakeEngine) Name() string                { return "quicktype" }
func (f *fakeEngine) Version() string             { return "1.0.0" }
func (f *fakeEngine) Cost() float64               { return 0 }
func (f *fakeEngine) Close(context.Context) error { return nil }

func (f *fakeEngine) Generate(ctx context.Context, req engine.Request) error {
	f.requests = append(f.requests, req)
	short := req.Language.Shortname()
	if short == f.failOn {
		return errors.New("engine crashed")
	}
	if short == f.skipOn {
		return nil
	}
	return os.WriteFile(req.OutputFile, []byte("// "+req.Language.DisplayName+"\n"), 0o644)
}

var testLanguages = []models.TargetLanguage{
	{DisplayName: "C#", Names: []string{"csharp", "cs"}, Extension: "cs"},
	{DisplayName: "Go", Names: []string{"golang", "go"}, Extension: "go"},
	{DisplayName: "C++", Names: []string{"c++", "cpp"}, Extension: "cpp"},
}

var testEngineConfig = models.EngineConfig{Name: "quicktype", ReplayCommand: "quicktype"}

func TestGenerateAll(t *testing.T) {
	repo := t.TempDir()
	cache := t.TempDir()
	meta := models.DatasetMeta{Slug: "bitcoin"}

	// Stale output from a previous engine version is removed.
	stale := filepath.Join(repo, "go", "old.go")
	os.MkdirAll(filepath.Dir(stale), 0o755)
	os.WriteFile(stale, []byte("old"), 0o644)

	fe := &fakeEngine{}
	d := NewDriver(fe, testEngineConfig, testLanguages)

	artifacts, err := d.GenerateAll(context.Background(), meta, cache, repo)
	if err != nil {
		t.Fatalf("GenerateAll failed: %v", err)
	}

	if len(fe.requests) != 3 {
		t.Fatalf("expected 3 engine runs, got %d", len(fe.requests))
	}
	for i, want := range []string{"cs/bitcoin.cs", "go/bitcoin.go", "c++/bitcoin.cpp"} {
		if fe.requests[i].InputDir != cache {
			t.Errorf("request %d: expected input %s, got %s", i, cache, fe.requests[i].InputDir)
		}
		if fe.requests[i].OutputFile != filepath.Join(repo, want) {
			t.Errorf("request %d: expected output %s, got %s", i, want, fe.requests[i].OutputFile)
		}
		if artifacts[i].Path != want {
			t.Errorf("artifact %d: expected path %s, got %s", i, want, artifacts[i].Path)
		}
		if len(artifacts[i].Digest) != 64 {
			t.Errorf("artifact %d: expected 32-byte hex digest, got %q", i, artifacts[i].Digest)
		}
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("expected stale language output to be removed")
	}

	script, err := os.ReadFile(filepath.Join(repo, ScriptName))
	if err != nil {
		t.Fatalf("reading script: %v", err)
	}
	want := "#!/bin/bash\n\nquicktype data -o cs/bitcoin.cs\nquicktype data -o go/bitcoin.go\nquicktype data -o c++/bitcoin.cpp"
	if string(script) != want {
		t.Errorf("unexpected script\n got: %q\nwant: %q", script, want)
	}

	info, err := os.Stat(filepath.Join(repo, ScriptName))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		t.Errorf("expected executable script, got mode %v", info.Mode())
	}
}

func TestGenerateAllDeterministic(t *testing.T) {
	meta := models.DatasetMeta{Slug: "bitcoin"}
	cache := t.TempDir()

	first, err := NewDriver(&fakeEngine{}, testEngineConfig, testLanguages).GenerateAll(context.Background(), meta, cache, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewDriver(&fakeEngine{}, testEngineConfig, testLanguages).GenerateAll(context.Background(), meta, cache, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("artifact %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestGenerateAllFailure(t *testing.T) {
	tests := []struct {
		name   string
		engine *fakeEngine
	}{
		{name: "engine error", engine: &fakeEngine{failOn: "go"}},
		{name: "no output", engine: &fakeEngine{skipOn: "go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := t.TempDir()
			d := NewDriver(tt.engine, testEngineConfig, testLanguages)

			artifacts, err := d.GenerateAll(context.Background(), models.DatasetMeta{Slug: "s"}, t.TempDir(), repo)
			if models.ErrorTypeOf(err) != models.ErrGeneration {
				t.Fatalf("expected generation error, got %v", err)
			}
			if len(artifacts) != 1 {
				t.Errorf("expected 1 artifact before failure, got %d", len(artifacts))
			}
			if _, err := os.Stat(filepath.Join(repo, "cs", "s.cs")); err != nil {
				t.Errorf("earlier language output should remain: %v", err)
			}
			if len(tt.engine.requests) != 2 {
				t.Errorf("expected generation to stop at the failing language, got %d runs", len(tt.engine.requests))
			}
		})
	}
}

func TestReplayLineLangFlag(t *testing.T) {
	cfg := models.EngineConfig{LangFlag: "--lang"}
	got := ReplayLine([]string{"npx", "quicktype"}, cfg, "go/bitcoin.go", testLanguages[1])
	if got != "npx quicktype data --lang go -o go/bitcoin.go" {
		t.Errorf("unexpected replay line %q", got)
	}
}
