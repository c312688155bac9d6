package config

import "github.com/typeguard/typedsets/internal/models"

// DefaultLanguages returns quicktype's target languages in the engine's declared order.
func DefaultLanguages() []models.TargetLanguage {
	return []models.TargetLanguage{
		{DisplayName: "C#", Names: []string{"cs", "csharp"}, Extension: "cs"},
		{DisplayName: "Go", Names: []string{"go", "golang"}, Extension: "go"},
		{DisplayName: "Rust", Names: []string{"rust", "rs", "rustlang"}, Extension: "rs"},
		{DisplayName: "C++", Names: []string{"c++", "cpp", "cplusplus"}, Extension: "cpp"},
		{DisplayName: "Objective-C", Names: []string{"objc", "objective-c", "objectivec"}, Extension: "m"},
		{DisplayName: "Java", Names: []string{"java"}, Extension: "java"},
		{DisplayName: "TypeScript", Names: []string{"typescript", "ts", "tsx"}, Extension: "ts"},
		{DisplayName: "JavaScript", Names: []string{"javascript", "js", "jsx"}, Extension: "js"},
		{DisplayName: "Flow", Names: []string{"flow"}, Extension: "js"},
		{DisplayName: "Swift", Names: []string{"swift", "swift4"}, Extension: "swift"},
		{DisplayName: "Kotlin", Names: []string{"kotlin"}, Extension: "kt"},
		{DisplayName: "Elm", Names: []string{"elm"}, Extension: "elm"},
		{DisplayName: "JSON Schema", Names: []string{"schema", "json-schema"}, Extension: "schema"},
		{DisplayName: "Ruby", Names: []string{"ruby"}, Extension: "rb"},
		{DisplayName: "Python", Names: []string{"python", "py"}, Extension: "py"},
		{DisplayName: "Simple Types", Names: []string{"types"}, Extension: "txt", HideInCatalog: true},
	}
}
