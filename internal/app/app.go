// Package app wires the worker together: it loads the process context,
// builds the configured operation and runs the dispatch loop over a record
// stream.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arkilian/xcat/internal/checkpoint"
	"github.com/arkilian/xcat/internal/config"
	"github.com/arkilian/xcat/internal/dispatch"
	"github.com/arkilian/xcat/internal/engine"
	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/internal/lifecycle"
	"github.com/arkilian/xcat/internal/metrics"
	"github.com/arkilian/xcat/internal/ops"
	"github.com/arkilian/xcat/internal/storage"
	"github.com/arkilian/xcat/pkg/types"
)

// ContextFiles names the two blobs loaded once per process.
type ContextFiles struct {
	TableData   string
	CommandDict string
}

// Context is the read-only process context.
type Context struct {
	Table   *types.TableContext
	Command *types.CommandDescriptor
}

// App manages the resources of one worker process.
type App struct {
	cfg    *config.Config
	runID  string
	logger *zap.Logger

	// Shared resources
	metrics  *metrics.Metrics
	opener   *storage.Opener
	ledger   *checkpoint.Ledger
	writer   *checkpoint.Writer
	shutdown *lifecycle.Manager

	// Engine defaults to the reference Gibbs sampler.
	engine engine.Engine

	mu      sync.Mutex
	running bool
}

// Option customizes an App.
type Option func(*App)

// WithEngine replaces the inference engine.
func WithEngine(e engine.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(a *App) { a.runID = id }
}

// New validates cfg and initializes shared resources.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, xerr.NewConfigError("invalid configuration", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.runID == "" {
		a.runID = uuid.NewString()
	}
	if a.engine == nil {
		a.engine = engine.NewGibbs()
	}
	a.logger = a.logger.With(zap.String("run_id", a.runID))
	a.shutdown = lifecycle.New(a.logger)

	if err := a.initSharedResources(); err != nil {
		a.shutdown.Shutdown("init failed")
		return nil, err
	}
	return a, nil
}

// initSharedResources initializes metrics, storage and the checkpoint ledger.
func (a *App) initSharedResources() error {
	a.metrics = metrics.New(prometheus.Labels{"run_id": a.runID})

	a.opener = storage.NewOpener(storage.Options{
		DefaultScheme: a.cfg.Storage.Type,
		DefaultBucket: a.cfg.DefaultBucket(),
		LocalBase:     a.cfg.Storage.Path,
		S3: storage.S3Config{
			Region:       a.cfg.Storage.S3.Region,
			Endpoint:     a.cfg.Storage.S3.Endpoint,
			UsePathStyle: a.cfg.Storage.S3.UsePathStyle,
			MaxRetries:   a.cfg.Storage.MaxRetries,
		},
		GCS: storage.GCSConfig{
			CredentialsFile: a.cfg.Storage.GCS.CredentialsFile,
			MaxRetries:      a.cfg.Storage.MaxRetries,
		},
	})
	a.shutdown.RegisterCloser(a.opener)

	ledger, err := checkpoint.OpenLedger(a.cfg.Checkpoint.LedgerPath)
	if err != nil {
		return xerr.NewConfigError("cannot open checkpoint ledger", err)
	}
	a.ledger = ledger
	a.shutdown.RegisterCloser(ledger)

	a.writer, err = checkpoint.NewWriter(checkpoint.WriterConfig{
		Opener:  a.opener,
		Ledger:  a.ledger,
		RunID:   a.runID,
		Suffix:  a.cfg.Checkpoint.Suffix,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return xerr.NewInternalError("cannot create checkpoint writer", err)
	}
	return nil
}

// RunID returns the identifier attached to logs, metrics and ledger rows.
func (a *App) RunID() string {
	return a.runID
}

// Metrics returns the run's metrics.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Ledger returns the checkpoint ledger.
func (a *App) Ledger() *checkpoint.Ledger {
	return a.ledger
}

// Shutdown returns the lifecycle manager.
func (a *App) Shutdown() *lifecycle.Manager {
	return a.shutdown
}

// LoadContext reads and parses both context blobs concurrently. A missing
// or unparseable blob is a CONTEXT_LOAD_FAILED error.
func (a *App) LoadContext(ctx context.Context, files ContextFiles) (*Context, error) {
	var (
		table   types.TableContext
		command types.CommandDescriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.loadJSON(gctx, "table data", files.TableData, &table)
	})
	g.Go(func() error {
		return a.loadJSON(gctx, "command dict", files.CommandDict, &command)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The table is only validated by operations that read it; the generating
	// benchmarks accept a placeholder.
	a.logger.Info("context loaded",
		zap.String("command", command.Command),
		zap.Int("rows", table.NumRows()),
		zap.Int("cols", table.NumCols()))
	return &Context{Table: &table, Command: &command}, nil
}

func (a *App) loadJSON(ctx context.Context, what, location string, v any) error {
	if location == "" {
		return xerr.NewContextError(fmt.Sprintf("no %s location given", what), nil)
	}
	data, err := a.opener.ReadBlob(ctx, location)
	if err != nil {
		return xerr.NewContextError(fmt.Sprintf("cannot read %s from %s", what, location), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return xerr.NewContextError(fmt.Sprintf("cannot parse %s from %s", what, location), err)
	}
	return nil
}

// Build resolves the operation named by the command descriptor.
func (a *App) Build(pc *Context) (ops.Operation, error) {
	return ops.NewRegistry().Build(ops.Env{
		Table:       pc.Table,
		Command:     pc.Command,
		Engine:      a.engine,
		Checkpoints: a.writer,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
}

// Run builds the operation for pc and streams records from in to out.
func (a *App) Run(ctx context.Context, pc *Context, in io.Reader, out io.Writer) (dispatch.Stats, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return dispatch.Stats{}, xerr.NewInternalError("app is already running", nil)
	}
	a.running = true
	a.mu.Unlock()

	op, err := a.Build(pc)
	if err != nil {
		return dispatch.Stats{}, err
	}

	loop := dispatch.New(op, in, out, dispatch.Config{Logger: a.logger, Metrics: a.metrics})
	stats, err := loop.Run(ctx)
	if stats.BrokenPipe || a.shutdown.SawBrokenPipe() {
		a.logger.Info("downstream closed the output stream")
	}
	a.logger.Info("records processed",
		zap.String("operation", string(op.Kind())),
		zap.Int("records", stats.Records),
		zap.Bool("interrupted", stats.Interrupted))
	return stats, err
}

// Close writes the metrics textfile and releases all resources.
func (a *App) Close() error {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("metrics export failed", zap.Error(err))
	}
	if summary, err := a.ledger.Summary(context.Background(), a.runID); err == nil && len(summary) > 0 {
		a.logger.Info("checkpoint summary",
			zap.Int("written", summary[checkpoint.StatusWritten]),
			zap.Int("pending", summary[checkpoint.StatusPending]))
	}
	return a.shutdown.Shutdown("run complete")
}
