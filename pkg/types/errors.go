package types

import "errors"

// Table validation errors
var (
	ErrEmptyTable       = errors.New("table has no rows")
	ErrRaggedTable      = errors.New("table rows have differing lengths")
	ErrColumnMetadata   = errors.New("column metadata does not match table width")
	ErrUnsupportedModel = errors.New("unsupported column model type")
	ErrRowMetadata      = errors.New("row metadata does not match table height")

	// ErrColumnOutOfRange is returned when a column subset names a column the table lacks
	ErrColumnOutOfRange = errors.New("column index out of range")

	// ErrRowOutOfRange is returned when a row subset names a row the table lacks
	ErrRowOutOfRange = errors.New("row index out of range")
)

// State validation errors
var (
	ErrStateShape      = errors.New("state does not match table shape")
	ErrStateCounts     = errors.New("state counts disagree with assignments")
	ErrStateAssignment = errors.New("state assignment out of range")
)

// Command descriptor errors
var (
	ErrMissingCommand   = errors.New("command descriptor has no command")
	ErrInvalidSteps     = errors.New("n_steps must be non-negative")
	ErrInvalidChunkSize = errors.New("chunk_size must be positive")
	ErrMissingChunkDest = errors.New("chunk_dest_dir is required for chunked analysis")
	ErrMissingChunkName = errors.New("chunk_filename_prefix is required for chunked analysis")

	// ErrInvalidGeneration is returned for synthetic data parameters no generator can satisfy
	ErrInvalidGeneration = errors.New("invalid synthetic data parameters")
)
