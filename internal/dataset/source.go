package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
)

// Resolve returns the local dataset root. When source is empty, localDir is used
// as is. Otherwise source (any go-getter address: git, http archive, local path)
// is fetched into dst, replacing its previous contents.
func Resolve(ctx context.Context, source, localDir, dst string) (string, error) {
	if source == "" {
		return localDir, nil
	}

	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(source, pwd, getter.Detectors)
	if err != nil {
		return "", fmt.Errorf("detecting dataset source: %w", err)
	}
	slog.Debug("go-getter detected source", "source", source, "detected", detected)

	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("clearing %s: %w", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Pwd:     pwd,
		Mode:    getter.ClientModeDir,
		Getters: getter.Getters,
	}

	slog.Info("fetching datasets", "source", source, "destination", dst)
	if err := client.Get(); err != nil {
		return "", fmt.Errorf("fetching dataset source: %w", err)
	}

	// Local sources are symlinked into place; walk the real tree.
	resolved, err := filepath.EvalSymlinks(dst)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dst, err)
	}
	return resolved, nil
}
