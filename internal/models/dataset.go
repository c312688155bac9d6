package models

import "path/filepath"

// Descriptor is the parsed dataset manifest (index.json or index.toml).
type Descriptor struct {
	Name        string `json:"name" toml:"name"`
	Description string `json:"description" toml:"description"`
	URL         string `json:"url" toml:"url"`
	Category    string `json:"category" toml:"category"`
	// OAuth names the environment variable holding a bearer token for the dataset's API.
	OAuth string `json:"oauth,omitempty" toml:"oauth,omitempty"`
}

// DatasetMeta is one discovered dataset with its pipeline-assigned identity.
type DatasetMeta struct {
	Slug         string
	DataDir      string // source directory holding the manifest and sample/reference files
	ManifestPath string
	RepoDir      string // working copy of the destination repository
	Dataset      Descriptor
}

// ManifestFile returns the manifest's base name within DataDir.
func (m DatasetMeta) ManifestFile() string {
	if m.ManifestPath == "" {
		return ManifestJSON
	}
	return filepath.Base(m.ManifestPath)
}

const (
	ManifestJSON = "index.json"
	ManifestTOML = "index.toml"

	// ReferenceExt marks a file whose content is a URL to fetch at materialization time.
	ReferenceExt = ".url"
	// SampleExt marks a file that already holds literal JSON.
	SampleExt = ".json"
)
