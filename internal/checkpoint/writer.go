package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/internal/metrics"
	"github.com/arkilian/xcat/internal/storage"
)

// WriterConfig holds the dependencies of a Writer.
type WriterConfig struct {
	Opener *storage.Opener
	Ledger *Ledger
	// RunID scopes ledger claims; one worker process is one run.
	RunID string
	// Suffix is appended to checkpoint names. Empty means DefaultSuffix.
	Suffix  string
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Writer encodes checkpoints and puts them under a destination location.
type Writer struct {
	opener  *storage.Opener
	ledger  *Ledger
	runID   string
	suffix  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewWriter creates a Writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Opener == nil || cfg.Ledger == nil {
		return nil, errors.New("checkpoint: writer requires an opener and a ledger")
	}
	w := &Writer{
		opener:  cfg.Opener,
		ledger:  cfg.Ledger,
		runID:   cfg.RunID,
		suffix:  cfg.Suffix,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	if w.suffix == "" {
		w.suffix = DefaultSuffix
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	return w, nil
}

// ObjectName is the object name cp is written under.
func (w *Writer) ObjectName(cp *Checkpoint) string {
	return cp.Name() + w.suffix
}

// Put writes cp under dest. A name already claimed in this run fails with
// CHECKPOINT_EXISTS; any storage failure fails with STORE_UNAVAILABLE.
func (w *Writer) Put(ctx context.Context, dest string, cp Checkpoint) error {
	name := cp.Name()

	loc, err := w.opener.Resolve(dest)
	if err != nil {
		w.metrics.CheckpointFailed()
		return xerr.NewStoreUnavailable(fmt.Sprintf("invalid checkpoint location %q", dest), err)
	}
	objectPath := storage.ObjectPath(loc, w.ObjectName(&cp))

	err = w.ledger.Claim(ctx, Entry{
		RunID:        w.runID,
		Name:         name,
		ObjectPath:   loc.String() + "/" + w.ObjectName(&cp),
		OriginalSeed: cp.OriginalSeed,
		Chunk:        cp.Ordinal,
		Steps:        cp.Steps,
	})
	if errors.Is(err, ErrAlreadyClaimed) {
		w.metrics.CheckpointFailed()
		return xerr.NewCheckpointExists(name)
	}
	if err != nil {
		w.metrics.CheckpointFailed()
		return xerr.NewInternalError("checkpoint ledger unavailable", err)
	}

	blob, err := Encode(&cp)
	if err != nil {
		w.metrics.CheckpointFailed()
		return xerr.NewInternalError("failed to encode checkpoint", err)
	}

	store, err := w.opener.Open(ctx, loc)
	if err != nil {
		w.metrics.CheckpointFailed()
		return xerr.NewStoreUnavailable(fmt.Sprintf("cannot open %s", loc), err)
	}
	if err := store.Put(ctx, objectPath, blob); err != nil {
		w.metrics.CheckpointFailed()
		w.logger.Error("checkpoint write failed",
			zap.String("name", name),
			zap.String("location", loc.String()),
			zap.Error(err))
		return xerr.NewStoreUnavailable(fmt.Sprintf("failed to write checkpoint %s", name), err)
	}

	if err := w.ledger.MarkWritten(ctx, w.runID, name, len(blob)); err != nil {
		w.logger.Warn("checkpoint ledger update failed", zap.String("name", name), zap.Error(err))
	}
	w.metrics.CheckpointWritten(len(blob))
	w.logger.Debug("checkpoint written",
		zap.String("name", name),
		zap.String("location", loc.String()),
		zap.Int("steps", cp.Steps),
		zap.Int("bytes", len(blob)))
	return nil
}

// Read fetches and decodes the checkpoint stored under dest with the given
// name (without suffix).
func (w *Writer) Read(ctx context.Context, dest, name string) (*Checkpoint, error) {
	loc, err := w.opener.Resolve(dest)
	if err != nil {
		return nil, err
	}
	store, err := w.opener.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	data, err := store.Get(ctx, storage.ObjectPath(loc, name+w.suffix))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
