package search

// Config describes index behavior.
type Config struct {
	// IgnoredFolders contains directory names that should be skipped when
	// indexing. Paths containing any of these folders will not be indexed.
	IgnoredFolders []string
	// DocumentExts lists the extensions of non-note files that links may
	// resolve to. Defaults to the EPUB extension.
	DocumentExts []string
}

// Metadata represents the exposed metadata for an indexed note.
type Metadata struct {
	Path        string
	Tags        []string
	FrontMatter map[string][]string
	LinkCount   int
}
