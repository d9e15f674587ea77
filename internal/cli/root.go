package cli

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose      bool
	Format       string // "edn" | "json" | "cbor"
	Config       string // database configuration: a file path or inline text
	ConfigFormat string // format of inline configuration text
	Workers      int    // engine worker goroutines per context
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"edn", "json", "cbor"}

// Execute runs the CLI with args, reports any error and returns the process
// exit code.
func Execute(args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || !exitErr.Reported {
		out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
		_ = out.Error(err)
	}
	return GetExitCode(err)
}

// NewRootCommand creates the root command for the factdb CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "factdb",
		Short: "factdb - an embedded datom database",
		Long: `An embedded, schema-flexible datom database with Datalog queries.

Every flag can also be set through the environment with the FACTDB_
prefix (FACTDB_CONFIG, FACTDB_FORMAT, ...), including from .env and
.env.local files in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadOptions(cmd, opts); err != nil {
				return err
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "edn", "output format (edn|json|cbor)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "database configuration file or inline text (default: a scratch memory database)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFormat, "config-format", "edn", "format of inline configuration text (edn|json|yaml)")
	cmd.PersistentFlags().IntVar(&opts.Workers, "workers", 1, "worker goroutines per context")

	// Add subcommands
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewExistsCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewTransactCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewDatomsCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewMetricsCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd, opts
}

// loadOptions layers environment variables under the parsed flags. Flags
// given on the command line win over FACTDB_* variables, which win over
// .env files.
func loadOptions(cmd *cobra.Command, opts *RootOptions) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetEnvPrefix("factdb")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	opts.Verbose = v.GetBool("verbose")
	opts.Format = v.GetString("format")
	opts.Config = v.GetString("config")
	opts.ConfigFormat = v.GetString("config-format")
	opts.Workers = v.GetInt("workers")
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
