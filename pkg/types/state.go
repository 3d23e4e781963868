package types

import "fmt"

// CRPHypers holds the concentration of a Chinese restaurant process.
type CRPHypers struct {
	Alpha float64 `json:"alpha"`
}

// ColumnPartition assigns every column to a view.
type ColumnPartition struct {
	Assignments []int     `json:"assignments"`
	Counts      []int     `json:"counts"`
	Hypers      CRPHypers `json:"hypers"`
}

// ColumnHypers are the normal-inverse-gamma hyperparameters of one column.
type ColumnHypers struct {
	Mu float64 `json:"mu"`
	R  float64 `json:"r"`
	Nu float64 `json:"nu"`
	S  float64 `json:"s"`
}

// RowPartitionModel summarizes the row clustering of a single view.
type RowPartitionModel struct {
	Counts []int     `json:"counts"`
	Hypers CRPHypers `json:"hypers"`
}

// ViewState is the per-view part of X_L.
type ViewState struct {
	RowPartitionModel RowPartitionModel `json:"row_partition_model"`
	ColumnIndices     []int             `json:"column_indices"`
}

// XL holds the structural and hyperparameter assignment of a state.
type XL struct {
	ColumnPartition ColumnPartition `json:"column_partition"`
	ColumnHypers    []ColumnHypers  `json:"column_hypers"`
	ViewState       []ViewState     `json:"view_state"`
}

// XD holds, for each view, the cluster of every row.
type XD [][]int

// State is the latent partition pair (X_L, X_D).
type State struct {
	XL XL `json:"X_L"`
	XD XD `json:"X_D"`
}

// Shape is the coarse dimension summary of a state: the number of views and
// the number of row clusters in each.
type Shape struct {
	NumViews      int   `json:"num_views"`
	ClusterCounts []int `json:"cluster_counts"`
}

// NumViews returns the number of views in the state.
func (s *State) NumViews() int {
	return len(s.XL.ViewState)
}

// Shape returns the state's view/cluster dimensions.
func (s *State) Shape() Shape {
	counts := make([]int, len(s.XL.ViewState))
	for i, v := range s.XL.ViewState {
		counts[i] = len(v.RowPartitionModel.Counts)
	}
	return Shape{NumViews: len(s.XL.ViewState), ClusterCounts: counts}
}

// Clone returns a deep copy so callers never share slices with the original.
func (s *State) Clone() State {
	out := State{
		XL: XL{
			ColumnPartition: ColumnPartition{
				Assignments: append([]int(nil), s.XL.ColumnPartition.Assignments...),
				Counts:      append([]int(nil), s.XL.ColumnPartition.Counts...),
				Hypers:      s.XL.ColumnPartition.Hypers,
			},
			ColumnHypers: append([]ColumnHypers(nil), s.XL.ColumnHypers...),
			ViewState:    make([]ViewState, len(s.XL.ViewState)),
		},
		XD: make(XD, len(s.XD)),
	}
	for i, v := range s.XL.ViewState {
		out.XL.ViewState[i] = ViewState{
			RowPartitionModel: RowPartitionModel{
				Counts: append([]int(nil), v.RowPartitionModel.Counts...),
				Hypers: v.RowPartitionModel.Hypers,
			},
			ColumnIndices: append([]int(nil), v.ColumnIndices...),
		}
	}
	for i, z := range s.XD {
		out.XD[i] = append([]int(nil), z...)
	}
	return out
}

// Validate checks the internal consistency of the state against a table of
// numRows x numCols.
func (s *State) Validate(numRows, numCols int) error {
	cp := s.XL.ColumnPartition
	if len(cp.Assignments) != numCols || len(s.XL.ColumnHypers) != numCols {
		return fmt.Errorf("%w: %d column assignments, %d column hypers, table has %d columns",
			ErrStateShape, len(cp.Assignments), len(s.XL.ColumnHypers), numCols)
	}
	numViews := len(s.XL.ViewState)
	if len(cp.Counts) != numViews || len(s.XD) != numViews {
		return fmt.Errorf("%w: %d view counts, %d X_D views, %d view states",
			ErrStateShape, len(cp.Counts), len(s.XD), numViews)
	}
	viewCounts := make([]int, numViews)
	for c, v := range cp.Assignments {
		if v < 0 || v >= numViews {
			return fmt.Errorf("%w: column %d in view %d of %d", ErrStateAssignment, c, v, numViews)
		}
		viewCounts[v]++
	}
	for v := range viewCounts {
		if viewCounts[v] != cp.Counts[v] || viewCounts[v] != len(s.XL.ViewState[v].ColumnIndices) {
			return fmt.Errorf("%w: view %d", ErrStateCounts, v)
		}
	}
	for v, z := range s.XD {
		if len(z) != numRows {
			return fmt.Errorf("%w: view %d assigns %d rows, table has %d", ErrStateShape, v, len(z), numRows)
		}
		counts := s.XL.ViewState[v].RowPartitionModel.Counts
		seen := make([]int, len(counts))
		for r, k := range z {
			if k < 0 || k >= len(counts) {
				return fmt.Errorf("%w: row %d in cluster %d of view %d", ErrStateAssignment, r, k, v)
			}
			seen[k]++
		}
		for k := range seen {
			if seen[k] != counts[k] {
				return fmt.Errorf("%w: view %d cluster %d", ErrStateCounts, v, k)
			}
		}
	}
	return nil
}
