package checkpoint

import (
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/xcat/internal/codec"
	"github.com/arkilian/xcat/pkg/types"
)

// ErrCorruptBlob is returned when a checkpoint blob cannot be decoded.
var ErrCorruptBlob = errors.New("corrupt checkpoint blob")

// blobFormat identifies the encoding written by Encode.
const blobFormat = "xcat.checkpoint.v1"

// document is the structured form of a checkpoint blob.
type document struct {
	Format       string   `json:"format"`
	Prefix       string   `json:"prefix"`
	OriginalSeed int64    `json:"original_seed"`
	Chunk        string   `json:"chunk"`
	Seed         int64    `json:"SEED"`
	Steps        int      `json:"steps"`
	XL           types.XL `json:"X_L"`
	XD           types.XD `json:"X_D"`
}

// Encode serializes c as a snappy-compressed protobuf Struct.
func Encode(c *Checkpoint) ([]byte, error) {
	payload, err := codec.FromValue(document{
		Format:       blobFormat,
		Prefix:       c.Prefix,
		OriginalSeed: c.OriginalSeed,
		Chunk:        c.Ordinal,
		Seed:         c.Seed,
		Steps:        c.Steps,
		XL:           c.State.XL,
		XD:           c.State.XD,
	})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode %s: %w", c.Name(), err)
	}

	st, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode %s: %w", c.Name(), err)
	}
	raw, err := proto.MarshalOptions{Deterministic: true}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal %s: %w", c.Name(), err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode parses a blob written by Encode.
func Decode(data []byte) (*Checkpoint, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress failed: %v", ErrCorruptBlob, err)
	}

	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}

	var doc document
	if err := codec.Payload(st.AsMap()).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	if doc.Format != blobFormat {
		return nil, fmt.Errorf("%w: unknown format %q", ErrCorruptBlob, doc.Format)
	}

	return &Checkpoint{
		Prefix:       doc.Prefix,
		OriginalSeed: doc.OriginalSeed,
		Ordinal:      doc.Chunk,
		Seed:         doc.Seed,
		Steps:        doc.Steps,
		State:        types.State{XL: doc.XL, XD: doc.XD},
	}, nil
}
