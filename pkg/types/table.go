// Package types defines the shared data model of the xcat worker: the table
// context loaded once per process, the command descriptor, and the latent
// partition state carried by every record.
package types

import "fmt"

// ModelTypeNormalInverseGamma is the only column model the worker understands.
const ModelTypeNormalInverseGamma = "normal_inverse_gamma"

// ColumnMetadata describes one column of the data table.
type ColumnMetadata struct {
	ModelType   string             `json:"modeltype"`
	ValueToCode map[string]float64 `json:"value_to_code,omitempty"`
	CodeToValue map[string]string  `json:"code_to_value,omitempty"`
}

// ColumnMeta is the M_c blob: name/index maps plus per-column metadata.
type ColumnMeta struct {
	NameToIdx      map[string]int    `json:"name_to_idx"`
	IdxToName      map[string]string `json:"idx_to_name"`
	ColumnMetadata []ColumnMetadata  `json:"column_metadata"`
}

// RowMeta is the M_r blob.
type RowMeta struct {
	NameToIdx map[string]int    `json:"name_to_idx"`
	IdxToName map[string]string `json:"idx_to_name"`
}

// TableContext is the immutable per-process table shared by every record.
type TableContext struct {
	MC ColumnMeta  `json:"M_c"`
	MR RowMeta     `json:"M_r"`
	T  [][]float64 `json:"T"`
}

// NumRows returns the number of rows in T.
func (t *TableContext) NumRows() int {
	return len(t.T)
}

// NumCols returns the number of columns in T.
func (t *TableContext) NumCols() int {
	if len(t.T) == 0 {
		return 0
	}
	return len(t.T[0])
}

// Shape returns (rows, cols).
func (t *TableContext) Shape() [2]int {
	return [2]int{t.NumRows(), t.NumCols()}
}

// Column copies column c out of the row-major table.
func (t *TableContext) Column(c int) []float64 {
	out := make([]float64, len(t.T))
	for r, row := range t.T {
		out[r] = row[c]
	}
	return out
}

// Validate checks that the table is rectangular and that the metadata
// matches its dimensions. Row metadata is optional.
func (t *TableContext) Validate() error {
	if len(t.T) == 0 {
		return ErrEmptyTable
	}
	width := len(t.T[0])
	if width == 0 {
		return ErrRaggedTable
	}
	for i, row := range t.T {
		if len(row) != width {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrRaggedTable, i, len(row), width)
		}
	}
	if len(t.MC.ColumnMetadata) != width {
		return fmt.Errorf("%w: %d entries for %d columns", ErrColumnMetadata, len(t.MC.ColumnMetadata), width)
	}
	for i, cm := range t.MC.ColumnMetadata {
		if cm.ModelType != ModelTypeNormalInverseGamma {
			return fmt.Errorf("%w: column %d is %q", ErrUnsupportedModel, i, cm.ModelType)
		}
	}
	if n := len(t.MR.IdxToName); n != 0 && n != len(t.T) {
		return fmt.Errorf("%w: %d names for %d rows", ErrRowMetadata, n, len(t.T))
	}
	return nil
}

// NewTableContext builds a table context with generated metadata. Used by the
// synthetic data generators, which produce bare matrices.
func NewTableContext(data [][]float64) *TableContext {
	tc := &TableContext{T: data}
	cols := 0
	if len(data) > 0 {
		cols = len(data[0])
	}
	tc.MC = ColumnMeta{
		NameToIdx:      make(map[string]int, cols),
		IdxToName:      make(map[string]string, cols),
		ColumnMetadata: make([]ColumnMetadata, cols),
	}
	for c := 0; c < cols; c++ {
		name := fmt.Sprintf("%d", c)
		tc.MC.NameToIdx[name] = c
		tc.MC.IdxToName[name] = name
		tc.MC.ColumnMetadata[c] = ColumnMetadata{ModelType: ModelTypeNormalInverseGamma}
	}
	tc.MR = RowMeta{
		NameToIdx: make(map[string]int, len(data)),
		IdxToName: make(map[string]string, len(data)),
	}
	for r := range data {
		name := fmt.Sprintf("%d", r)
		tc.MR.NameToIdx[name] = r
		tc.MR.IdxToName[name] = name
	}
	return tc
}
