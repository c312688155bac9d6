package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/typeguard/typedsets/internal/models"
)

// ParseManifest decodes a dataset manifest. The format is chosen from the file name:
// index.json is JSON, index.toml is TOML.
func ParseManifest(name string, data []byte) (models.Descriptor, error) {
	var d models.Descriptor

	switch filepath.Base(name) {
	case models.ManifestJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&d); err != nil {
			return d, fmt.Errorf("parsing %s: %w", name, err)
		}
	case models.ManifestTOML:
		md, err := toml.Decode(string(data), &d)
		if err != nil {
			return d, fmt.Errorf("parsing %s: %w", name, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return d, fmt.Errorf("parsing %s: unknown keys %s", name, strings.Join(keys, ", "))
		}
	default:
		return d, fmt.Errorf("unsupported manifest file %q", name)
	}

	if err := ValidateDescriptor(d); err != nil {
		return d, fmt.Errorf("validating %s: %w", name, err)
	}
	return d, nil
}

// ValidateDescriptor checks the required manifest fields.
func ValidateDescriptor(d models.Descriptor) error {
	var missing []string
	if strings.TrimSpace(d.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(d.URL) == "" {
		missing = append(missing, "url")
	}
	if strings.TrimSpace(d.Category) == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
