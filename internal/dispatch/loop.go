// Package dispatch runs the record loop of a worker process: read a line,
// apply the process's operation, write the result, flush.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/xcat/internal/codec"
	xerr "github.com/arkilian/xcat/internal/errors"
	"github.com/arkilian/xcat/internal/metrics"
	"github.com/arkilian/xcat/internal/ops"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats summarizes a finished run.
type Stats struct {
	Records     int
	BrokenPipe  bool
	Interrupted bool
}

// Config holds optional Loop dependencies.
type Config struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Loop applies one operation to every record of an input stream, in order,
// writing exactly one output record per input record.
type Loop struct {
	op      ops.Operation
	in      *bufio.Reader
	out     *bufio.Writer
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	state   atomic.Int32
}

// New creates a Loop reading r and writing w.
func New(op ops.Operation, r io.Reader, w io.Writer, cfg Config) *Loop {
	l := &Loop{
		op:      op,
		in:      bufio.NewReaderSize(r, 64*1024),
		out:     bufio.NewWriterSize(w, 64*1024),
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
	l.logger.Debug("dispatch state", zap.Stringer("state", s))
}

// Run processes records until input EOF, a broken output pipe, context
// cancellation or the first fatal error. EOF and a broken pipe return nil.
// Fatal errors carry the 1-based line number and the operation name.
func (l *Loop) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return stats, xerr.NewInternalError("dispatch loop already started", nil)
	}
	l.logger.Debug("dispatch state", zap.Stringer("state", StateRunning))

	kind := string(l.op.Kind())
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			stats.Interrupted = true
			l.setState(StateDraining)
			if ferr := l.out.Flush(); ferr != nil && !isBrokenPipe(ferr) {
				l.setState(StateStopped)
				return stats, l.annotate(xerr.NewInternalError("flush failed", ferr), lineNo, kind)
			}
			l.setState(StateStopped)
			return stats, xerr.NewInternalError("interrupted", err).
				WithDetails(map[string]interface{}{xerr.DetailLine: lineNo, xerr.DetailOperation: kind})
		}

		line, readErr := l.in.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if err := l.process(ctx, line, lineNo, kind); err != nil {
				l.setState(StateStopped)
				var oe *outputError
				if !errors.As(err, &oe) {
					return stats, err
				}
				if isBrokenPipe(oe.err) {
					stats.BrokenPipe = true
					l.logger.Info("output closed, stopping", zap.Int("line", lineNo))
					return stats, nil
				}
				return stats, l.annotate(xerr.NewInternalError("write failed", oe.err), lineNo, kind)
			}
			stats.Records++
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			l.setState(StateStopped)
			return stats, l.annotate(xerr.NewInternalError("read failed", readErr), lineNo, kind)
		}
	}

	l.setState(StateDraining)
	if err := l.out.Flush(); err != nil {
		l.setState(StateStopped)
		if isBrokenPipe(err) {
			stats.BrokenPipe = true
			return stats, nil
		}
		return stats, l.annotate(xerr.NewInternalError("flush failed", err), lineNo, kind)
	}
	l.setState(StateStopped)
	return stats, nil
}

// outputError marks a failed write or flush of the output stream. Only these
// are candidates for the broken-pipe clean stop; errors from decoding,
// executing or encoding a record are fatal even when their cause chain
// contains EPIPE.
type outputError struct{ err error }

func (e *outputError) Error() string { return "output: " + e.err.Error() }
func (e *outputError) Unwrap() error { return e.err }

// process handles one line. Output errors come back as *outputError.
func (l *Loop) process(ctx context.Context, line []byte, lineNo int, kind string) error {
	start := l.now()
	key, in, err := codec.Decode(line)
	if err != nil {
		l.metrics.ObserveRecord(kind, err, l.now().Sub(start))
		return l.annotate(err, lineNo, kind)
	}

	out, err := l.op.Execute(ctx, key, in)
	if err == nil {
		var encoded []byte
		if encoded, err = codec.Encode(key, out); err == nil {
			l.metrics.ObserveRecord(kind, nil, l.now().Sub(start))
			if _, werr := l.out.Write(encoded); werr != nil {
				return &outputError{werr}
			}
			if ferr := l.out.Flush(); ferr != nil {
				return &outputError{ferr}
			}
			return nil
		}
	}
	l.metrics.ObserveRecord(kind, err, l.now().Sub(start))
	return l.annotate(err, lineNo, kind).WithDetails(map[string]interface{}{xerr.DetailKey: key})
}

func (l *Loop) annotate(err error, lineNo int, kind string) *xerr.XcatError {
	return xerr.Annotate(err, map[string]interface{}{
		xerr.DetailLine:      lineNo,
		xerr.DetailOperation: kind,
	})
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE)
}
