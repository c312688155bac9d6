package models

import "sort"

// TargetLanguage describes one output language of the generation engine.
type TargetLanguage struct {
	DisplayName string   `yaml:"display_name" json:"display_name"`
	Names       []string `yaml:"names" json:"names"`
	Extension   string   `yaml:"extension" json:"extension"`
	// HideInCatalog omits the language from the catalog's language sentence.
	HideInCatalog bool `yaml:"hide_in_catalog,omitempty" json:"hide_in_catalog,omitempty"`
}

// Shortname returns the shortest entry of the name set. Names of equal length
// are ordered lexicographically so the choice does not depend on declaration order.
func (l TargetLanguage) Shortname() string {
	if len(l.Names) == 0 {
		return ""
	}
	names := append([]string(nil), l.Names...)
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return names[0]
}
