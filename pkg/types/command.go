package types

import (
	"fmt"
	"time"
)

// GenerationParams parameterize the synthetic data used by the benchmarking
// and diagnostic operations. The command descriptor carries defaults; fields
// present on an input record override them.
type GenerationParams struct {
	NumClusters int     `json:"num_clusters"`
	NumCols     int     `json:"num_cols"`
	NumRows     int     `json:"num_rows"`
	NumViews    int     `json:"num_views"`
	MaxMean     float64 `json:"max_mean"`
	MaxStd      float64 `json:"max_std"`
	NTest       int     `json:"n_test"`
	BlockSize   int     `json:"block_size"`
	InitSeed    int64   `json:"init_seed"`
	Corr        float64 `json:"corr"`
	BurnIn      int     `json:"burn_in"`
}

// ValidateLayout checks the counts every generator needs.
func (g GenerationParams) ValidateLayout() error {
	switch {
	case g.NumRows <= 0, g.NumCols <= 0, g.NumViews <= 0, g.NumClusters <= 0:
		return fmt.Errorf("%w: rows=%d cols=%d views=%d clusters=%d",
			ErrInvalidGeneration, g.NumRows, g.NumCols, g.NumViews, g.NumClusters)
	case g.NumViews > g.NumCols:
		return fmt.Errorf("%w: %d views for %d columns", ErrInvalidGeneration, g.NumViews, g.NumCols)
	case g.NumClusters > g.NumRows:
		return fmt.Errorf("%w: %d clusters for %d rows", ErrInvalidGeneration, g.NumClusters, g.NumRows)
	}
	return nil
}

// CommandDescriptor selects the operation for a whole process invocation and
// carries its fixed parameters.
type CommandDescriptor struct {
	Command        string   `json:"command"`
	Initialization string   `json:"initialization,omitempty"`
	KernelList     []string `json:"kernel_list,omitempty"`
	NSteps         int      `json:"n_steps"`
	C              []int    `json:"c,omitempty"`
	R              []int    `json:"r,omitempty"`
	// MaxTime is a wall-clock budget in seconds; zero or negative is unbounded.
	MaxTime float64 `json:"max_time"`

	ChunkSize           int    `json:"chunk_size,omitempty"`
	ChunkFilenamePrefix string `json:"chunk_filename_prefix,omitempty"`
	ChunkDestDir        string `json:"chunk_dest_dir,omitempty"`

	MISamples  int              `json:"mi_samples,omitempty"`
	Generation GenerationParams `json:"generation,omitempty"`
}

// TimeBudget converts MaxTime to a duration, zero meaning unbounded.
func (c *CommandDescriptor) TimeBudget() time.Duration {
	if c.MaxTime <= 0 {
		return 0
	}
	return time.Duration(c.MaxTime * float64(time.Second))
}

// Validate checks the fields shared by all operations. Operation-specific
// requirements are checked by the operation registry.
func (c *CommandDescriptor) Validate() error {
	if c.Command == "" {
		return ErrMissingCommand
	}
	if c.NSteps < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidSteps, c.NSteps)
	}
	return nil
}

// ValidateChunking checks the chunked-analysis fields.
func (c *CommandDescriptor) ValidateChunking() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkFilenamePrefix == "" {
		return ErrMissingChunkName
	}
	if c.ChunkDestDir == "" {
		return ErrMissingChunkDest
	}
	return nil
}
