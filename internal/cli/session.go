package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/factdb/internal/codec"
	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/engine"
	"github.com/roach88/factdb/internal/ffi"
)

// session is one CLI invocation: an engine, one execution context and the
// database configuration every call of the invocation targets.
type session struct {
	engine *engine.Engine
	api    *ffi.API
	h      engine.Handle
	config string // canonical edn
	format string // output format
	out    *OutputFormatter
}

// openSession starts an engine for cmd. Without --config the session runs
// against a scratch memory database created for this invocation only;
// commands that manage databases pass requireConfig to refuse that.
func openSession(cmd *cobra.Command, opts *RootOptions, requireConfig bool) (*session, error) {
	if requireConfig && opts.Config == "" {
		return nil, NewExitError(ExitCommandError, "--config is required")
	}
	cfg, scratch, err := resolveDatabaseConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	e := engine.New(engine.WithLogger(logger), engine.WithWorkers(opts.Workers))
	api := ffi.New(e, ffi.WithLogger(logger))
	h, err := api.CreateContext()
	if err != nil {
		e.Shutdown()
		return nil, err
	}

	s := &session{
		engine: e,
		api:    api,
		h:      h,
		config: cfg.String(),
		format: opts.Format,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
		},
	}
	s.out.VerboseLog("database: %s", s.config)

	if scratch {
		if _, err := s.do(cmd.Context(), ffi.Call{Op: ffi.OpCreateDatabase, Config: s.config}); err != nil {
			s.close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) close() {
	if err := s.api.TearDown(s.h); err != nil {
		s.out.VerboseLog("teardown: %v", err)
	}
	s.engine.Shutdown()
}

func (s *session) do(ctx context.Context, c ffi.Call) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.api.Do(ctx, s.h, c)
}

// run executes c and prints its result in the session's output format.
func (s *session) run(cmd *cobra.Command, c ffi.Call) error {
	c.OutputFormat = s.format
	text, err := s.do(cmd.Context(), c)
	if err != nil {
		return err
	}
	return s.out.Success(text)
}

// input builds a database input for the session's configuration.
func (s *session) input(tag string) ffi.Input {
	return ffi.Input{Format: tag, Raw: s.config}
}

// withSession adapts fn into a cobra RunE that opens and closes a session.
func withSession(opts *RootOptions, requireConfig bool, fn func(cmd *cobra.Command, s *session, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, opts, requireConfig)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(cmd, s, args)
	}
}

// resolveDatabaseConfig reads --config as a file when one exists at that
// path and as inline text otherwise.
func resolveDatabaseConfig(opts *RootOptions) (*config.Config, bool, error) {
	if opts.Config == "" {
		return &config.Config{
			Backend:           config.BackendMemory,
			ID:                "factdb-" + uuid.NewString(),
			SchemaFlexibility: config.FlexibilityWrite,
			KeepHistory:       true,
		}, true, nil
	}

	raw, format := opts.Config, opts.ConfigFormat
	if info, err := os.Stat(opts.Config); err == nil && !info.IsDir() {
		data, err := os.ReadFile(opts.Config)
		if err != nil {
			return nil, false, WrapExitError(ExitCommandError, "failed to read configuration file", err)
		}
		raw = string(data)
		format = formatForPath(opts.Config, format)
	}

	f, err := codec.ParseFormat(format)
	if err != nil {
		return nil, false, WrapExitError(ExitCommandError, "invalid --config-format", err)
	}
	cfg, err := config.Resolve(raw, f)
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func formatForPath(path, fallback string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".edn":
		return string(codec.FormatEDN)
	case ".json":
		return string(codec.FormatJSON)
	case ".yaml", ".yml":
		return string(codec.FormatYAML)
	}
	return fallback
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// readArg returns arg, or all of stdin when arg is "-".
func readArg(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}
