package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/typeguard/typedsets/internal/models"
)

type packageLock struct {
	LockfileVersion int `json:"lockfileVersion"`
	Dependencies    map[string]struct {
		Version string `json:"version"`
	} `json:"dependencies"`
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
}

// ResolveVersion returns the engine version: the configured one if set, otherwise
// the version of cfg.Package recorded in the npm lockfile. When a constraint is
// configured the version must satisfy it.
func ResolveVersion(cfg models.EngineConfig) (string, error) {
	version := cfg.Version
	if version == "" {
		if cfg.Lockfile == "" {
			return "", fmt.Errorf("engine version unknown: set engine.version or engine.lockfile")
		}
		v, err := versionFromLockfile(cfg.Lockfile, cfg.Package)
		if err != nil {
			return "", err
		}
		version = v
	}

	if cfg.VersionConstraint != "" {
		constraint, err := semver.NewConstraint(cfg.VersionConstraint)
		if err != nil {
			return "", fmt.Errorf("parsing version constraint %q: %w", cfg.VersionConstraint, err)
		}
		v, err := semver.NewVersion(version)
		if err != nil {
			return "", fmt.Errorf("parsing engine version %q: %w", version, err)
		}
		if !constraint.Check(v) {
			return "", fmt.Errorf("engine version %s does not satisfy %s", version, cfg.VersionConstraint)
		}
	}
	return version, nil
}

func versionFromLockfile(path, pkg string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading lockfile: %w", err)
	}

	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return "", fmt.Errorf("parsing lockfile %s: %w", path, err)
	}

	// lockfileVersion 2 and 3 key packages by install path; 1 only has dependencies.
	if p, ok := lock.Packages["node_modules/"+pkg]; ok && p.Version != "" {
		return p.Version, nil
	}
	if d, ok := lock.Dependencies[pkg]; ok && d.Version != "" {
		return d.Version, nil
	}
	return "", fmt.Errorf("package %s not found in %s", pkg, path)
}
