package codegen

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/zeebo/blake3"

	"github.com/typeguard/typedsets/internal/engine"
	"github.com/typeguard/typedsets/internal/models"
	"github.com/typeguard/typedsets/internal/util"
)

const (
	// ScriptName is the replay script written at the root of each dataset repository.
	ScriptName = "quicktype.sh"
	// ReplayDataDir is the checked-in data directory the replay script reads from.
	ReplayDataDir = "data"
)

// Driver runs the engine for every target language of a dataset.
type Driver struct {
	engine    engine.Engine
	cfg       models.EngineConfig
	languages []models.TargetLanguage
}

// NewDriver creates a driver generating the given languages in order.
func NewDriver(e engine.Engine, cfg models.EngineConfig, languages []models.TargetLanguage) *Driver {
	return &Driver{engine: e, cfg: cfg, languages: languages}
}

// Languages returns the languages the driver generates, in generation order.
func (d *Driver) Languages() []models.TargetLanguage {
	return d.languages
}

// GenerateAll writes one source file per language into repoDir/<shortname>/ from
// the samples in cacheDir, then writes the replay script. Languages generated
// before a failure are left in place.
func (d *Driver) GenerateAll(ctx context.Context, meta models.DatasetMeta, cacheDir, repoDir string) ([]models.Artifact, error) {
	replay, err := shellquote.Split(d.cfg.ReplayCommand)
	if err != nil {
		return nil, models.NewError(models.ErrConfig, meta.Slug, fmt.Errorf("parsing replay command: %w", err))
	}

	script := []string{"#!/bin/bash", ""}
	artifacts := make([]models.Artifact, 0, len(d.languages))

	for _, lang := range d.languages {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		short := lang.Shortname()
		langDir := filepath.Join(repoDir, short)
		fileName := meta.Slug + "." + lang.Extension
		output := filepath.Join(langDir, fileName)

		if err := util.ResetDir(langDir); err != nil {
			return artifacts, models.NewError(models.ErrGeneration, meta.Slug, err)
		}

		slog.Debug("generating", "slug", meta.Slug, "language", short)
		req := engine.Request{InputDir: cacheDir, OutputFile: output, Language: lang}
		if err := d.engine.Generate(ctx, req); err != nil {
			return artifacts, models.NewError(models.ErrGeneration, meta.Slug, fmt.Errorf("%s: %w", lang.DisplayName, err))
		}

		digest, err := fileDigest(output)
		if err != nil {
			return artifacts, models.NewError(models.ErrGeneration, meta.Slug,
				fmt.Errorf("%s: engine produced no output: %w", lang.DisplayName, err))
		}

		rel := path.Join(short, fileName)
		artifacts = append(artifacts, models.Artifact{Language: short, Path: rel, Digest: digest})
		script = append(script, ReplayLine(replay, d.cfg, rel, lang))
	}

	scriptPath := filepath.Join(repoDir, ScriptName)
	if err := os.WriteFile(scriptPath, []byte(strings.Join(script, "\n")), 0o755); err != nil {
		return artifacts, models.NewError(models.ErrGeneration, meta.Slug, fmt.Errorf("writing replay script: %w", err))
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return artifacts, models.NewError(models.ErrGeneration, meta.Slug, fmt.Errorf("marking replay script executable: %w", err))
	}

	slog.Info("generated dataset", "slug", meta.Slug, "languages", len(artifacts))
	return artifacts, nil
}

// ReplayLine renders the script line regenerating rel from the checked-in data.
func ReplayLine(replay []string, cfg models.EngineConfig, rel string, lang models.TargetLanguage) string {
	args := append(append([]string(nil), replay...), engine.Args(cfg, ReplayDataDir, rel, lang)...)
	return shellquote.Join(args...)
}

func fileDigest(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
