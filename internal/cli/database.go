package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/factdb/internal/ffi"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create the configured database",
		Long: `Create the database named by --config.

Fails with ALREADY_EXISTS if it already exists.

Example:
  factdb create --config '{:store {:backend :file :path "./people.db"} :schema-flexibility :read}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, true, func(cmd *cobra.Command, s *session, _ []string) error {
			return s.run(cmd, ffi.Call{Op: ffi.OpCreateDatabase, Config: s.config})
		}),
	}
}

// NewExistsCommand creates the exists command.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "exists",
		Short:         "Report whether the configured database exists",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, true, func(cmd *cobra.Command, s *session, _ []string) error {
			return s.run(cmd, ffi.Call{Op: ffi.OpDatabaseExists, Config: s.config})
		}),
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Delete the configured database",
		Long: `Delete the database named by --config and all of its history.

Deleting a database that does not exist succeeds.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, true, func(cmd *cobra.Command, s *session, _ []string) error {
			return s.run(cmd, ffi.Call{Op: ffi.OpDeleteDatabase, Config: s.config})
		}),
	}
}

// TransactOptions holds flags for the transact command.
type TransactOptions struct {
	*RootOptions
	DataFormat string
}

// NewTransactCommand creates the transact command.
func NewTransactCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TransactOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "transact <tx-data|->",
		Short: "Commit a transaction",
		Long: `Commit tx-data to the configured database and print the report.

Pass - to read tx-data from stdin.

Examples:
  factdb transact --config people.edn '[{:db/id "alice" :name "Alice"}]'
  factdb transact --config people.edn --data-format json '[{"name": "Bob"}]'
  cat tx.edn | factdb transact --config people.edn -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, args []string) error {
			data, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			return s.run(cmd, ffi.Call{
				Op:         ffi.OpTransact,
				Config:     s.config,
				Data:       data,
				DataFormat: opts.DataFormat,
			})
		}),
	}

	cmd.Flags().StringVar(&opts.DataFormat, "data-format", "edn", "format of tx-data (edn|json|cbor)")

	return cmd
}
