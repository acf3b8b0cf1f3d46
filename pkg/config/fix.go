package config

// FixConfig controls issue classification and workload batching.
type FixConfig struct {
	// MaxIssuesPerBatch caps the number of issues fixed in one batch.
	MaxIssuesPerBatch int `yaml:"max_issues_per_batch"`

	// MaxWorkloadPoints caps the summed workload (effort × files) of a
	// batch. A single issue exceeding the cap occupies its own batch.
	MaxWorkloadPoints int `yaml:"max_workload_points"`

	// DefaultEffort is assumed when an issue has no effort estimate.
	DefaultEffort int `yaml:"default_effort"`

	// DefaultFiles is assumed when an issue has no files estimate.
	DefaultFiles int `yaml:"default_files"`

	// BackendGlobs and FrontendGlobs classify issue file paths. Matching is
	// doublestar glob syntax; unknown paths default to backend.
	BackendGlobs  []string `yaml:"backend_globs"`
	FrontendGlobs []string `yaml:"frontend_globs"`
}

// DefaultFixConfig returns the built-in fix defaults.
func DefaultFixConfig() *FixConfig {
	return &FixConfig{
		MaxIssuesPerBatch: 5,
		MaxWorkloadPoints: 15,
		DefaultEffort:     3,
		DefaultFiles:      1,
		BackendGlobs: []string{
			"**/*.go", "**/*.py", "**/*.java", "**/*.rb", "**/*.rs",
			"**/*.c", "**/*.cc", "**/*.cpp", "**/*.h", "**/*.cs",
			"**/*.php", "**/*.kt", "**/*.scala", "**/*.sql", "**/*.sh",
		},
		FrontendGlobs: []string{
			"**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx", "**/*.vue",
			"**/*.svelte", "**/*.html", "**/*.css", "**/*.scss", "**/*.less",
		},
	}
}
