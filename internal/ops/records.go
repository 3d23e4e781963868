package ops

import (
	"github.com/arkilian/xcat/internal/codec"
	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/pkg/types"
)

// stateRecord is the input of initialize, analyze and chunk_analyze.
type stateRecord struct {
	Seed *int64    `json:"SEED"`
	XL   *types.XL `json:"X_L"`
	XD   types.XD  `json:"X_D"`
}

// stateResult is the output of initialize, analyze and chunk_analyze.
type stateResult struct {
	Seed int64    `json:"SEED"`
	XL   types.XL `json:"X_L"`
	XD   types.XD `json:"X_D"`
}

func newStateResult(st types.State, seed int64) stateResult {
	return stateResult{Seed: seed, XL: st.XL, XD: st.XD}
}

func decodeSeed(in codec.Payload) (int64, error) {
	var rec stateRecord
	if err := in.Decode(&rec); err != nil {
		return 0, xerr.NewMalformedRecord("cannot decode record", err)
	}
	if rec.Seed == nil {
		return 0, xerr.NewMalformedRecord("record has no SEED", nil)
	}
	return *rec.Seed, nil
}

// decodeState reads SEED, X_L and X_D and checks the state against table.
func decodeState(in codec.Payload, table *types.TableContext) (types.State, int64, error) {
	var rec stateRecord
	if err := in.Decode(&rec); err != nil {
		return types.State{}, 0, xerr.NewMalformedRecord("cannot decode record", err)
	}
	switch {
	case rec.Seed == nil:
		return types.State{}, 0, xerr.NewMalformedRecord("record has no SEED", nil)
	case rec.XL == nil:
		return types.State{}, 0, xerr.NewMalformedRecord("record has no X_L", nil)
	case rec.XD == nil:
		return types.State{}, 0, xerr.NewMalformedRecord("record has no X_D", nil)
	}
	st := types.State{XL: *rec.XL, XD: rec.XD}
	if err := st.Validate(table.NumRows(), table.NumCols()); err != nil {
		return types.State{}, 0, xerr.NewMalformedRecord("state does not fit table", err)
	}
	return st, *rec.Seed, nil
}

// decodeGeneration overlays the record's generation fields on the
// descriptor defaults.
func decodeGeneration(in codec.Payload, defaults types.GenerationParams) (types.GenerationParams, error) {
	gen := defaults
	if err := in.Decode(&gen); err != nil {
		return types.GenerationParams{}, xerr.NewMalformedRecord("cannot decode generation parameters", err)
	}
	return gen, nil
}
