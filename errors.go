package browsecomp

import "errors"

var (
	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("browsecomp: invalid configuration")

	// ErrNoGraph is returned when neither a graph file nor a populated
	// database is available.
	ErrNoGraph = errors.New("browsecomp: no knowledge graph")

	// ErrEmptyGraph is returned when the loaded graph has no nodes.
	ErrEmptyGraph = errors.New("browsecomp: knowledge graph is empty")

	// ErrGenerationExhausted is returned when the retry budget ran out
	// before a single question was accepted.
	ErrGenerationExhausted = errors.New("browsecomp: retry budget exhausted")

	// ErrStoreRequired is returned by operations that need the database
	// when persistence is disabled.
	ErrStoreRequired = errors.New("browsecomp: database not configured")

	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("browsecomp: engine is closed")
)
