// Package main implements xcat-mapper, the map task of a Hadoop-streaming
// inference job.
//
// The process loads a table context and a command descriptor once, then
// reads "key<TAB>json" records from standard input and writes exactly one
// result record per input record to standard output. Logs go to standard
// error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arkilian/xcat/internal/app"
	"github.com/arkilian/xcat/internal/config"
	"github.com/arkilian/xcat/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

// usageError marks command-line mistakes.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

type options struct {
	tableData   string
	commandDict string
	configFile  string
	logLevel    string
	metricsFile string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdin, stdout)
	cmd.SetArgs(args)
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return exitOK
	}
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprintf(stderr, "xcat-mapper: %v\n\n%s", err, cmd.UsageString())
		return exitUsage
	}
	fmt.Fprintf(stderr, "xcat-mapper: %v\n", err)
	return exitFatal
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "xcat-mapper",
		Short:         "Apply one inference operation to every record on stdin",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{fmt.Errorf("unexpected arguments: %v", args)}
			}
			return nil
		},
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.tableData == "" {
				return &usageError{errors.New("--table-data-filename is required")}
			}
			if opts.commandDict == "" {
				return &usageError{errors.New("--command-dict-filename is required")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), opts, stdin, stdout)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&opts.tableData, "table-data-filename", "", "table context blob (path, s3:// or gs:// URI)")
	flags.StringVar(&opts.commandDict, "command-dict-filename", "", "command descriptor blob (path, s3:// or gs:// URI)")
	flags.StringVar(&opts.configFile, "config", "", "configuration file (YAML or JSON)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsFile, "metrics-textfile", "", "write metrics in text format to this file at exit")

	return cmd
}

func runWorker(ctx context.Context, opts *options, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Flags override env, which overrides the file.
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Encoding: cfg.Logging.Encoding})
	if err != nil {
		return &usageError{err}
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	ctx, stop := a.Shutdown().WatchSignals(ctx)
	defer stop()

	pc, err := a.LoadContext(ctx, app.ContextFiles{
		TableData:   opts.tableData,
		CommandDict: opts.commandDict,
	})
	if err != nil {
		logger.Error("context load failed", zap.Error(err))
		return err
	}

	if _, err := a.Run(ctx, pc, stdin, stdout); err != nil {
		logger.Error("worker stopped", zap.Error(err))
		return err
	}
	return nil
}
