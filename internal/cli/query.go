package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ffi"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Inputs []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query|->",
		Short: "Run a Datalog query",
		Long: `Run a Datalog query and print the result.

Inputs bind the :in clause in order. Each --input is a format tag,
optionally followed by =raw. Database tags (db, history, since:<ms>,
asof:<ms>) default their raw text to the configured database; data tags
(edn, json, cbor) need raw text. Without --input the query runs against
the current database.

Examples:
  factdb query --config people.edn '[:find ?n :where [_ :name ?n]]'
  factdb query --config people.edn --input history '[:find ?a :where [_ :age ?a]]'
  factdb query --config people.edn --input db --input 'edn=["Alice"]' \
    '[:find ?e :in $ [?n ...] :where [?e :name ?n]]'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, args []string) error {
			q, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			return s.run(cmd, ffi.Call{
				Op:     ffi.OpQuery,
				Query:  q,
				Inputs: queryInputs(s, opts.Inputs),
			})
		}),
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "query input as tag or tag=raw (repeatable)")

	return cmd
}

func queryInputs(s *session, specs []string) []ffi.Input {
	if len(specs) == 0 {
		return []ffi.Input{s.input("db")}
	}
	out := make([]ffi.Input, len(specs))
	for i, spec := range specs {
		tag, raw, ok := strings.Cut(spec, "=")
		if !ok {
			out[i] = s.input(tag)
			continue
		}
		out[i] = ffi.Input{Format: tag, Raw: raw}
	}
	return out
}

// SourceOptions holds the database view flag shared by the inspection
// commands.
type SourceOptions struct {
	*RootOptions
	Input string
}

func (o *SourceOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Input, "input", "i", "db", "database view: db, history, since:<ms> or asof:<ms>")
}

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SourceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pull <selector> <eid>...",
		Short: "Pull entities by selector",
		Long: `Pull attributes of one or more entities.

An entity is an id, an ident or a lookup ref. With several entities the
result is a vector in argument order.

Examples:
  factdb pull --config people.edn '[:name :age]' 4
  factdb pull --config people.edn '[*]' '[:name "Alice"]'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, args []string) error {
			c := ffi.Call{
				Op:       ffi.OpPull,
				Inputs:   []ffi.Input{s.input(opts.Input)},
				Selector: args[0],
			}
			if len(args) > 2 {
				c.Op = ffi.OpPullMany
				c.EIDs = "[" + strings.Join(args[1:], " ") + "]"
				return s.run(cmd, c)
			}
			eid, err := edn.Read(args[1])
			if err != nil {
				return err
			}
			c.EID = eid
			return s.run(cmd, c)
		}),
	}
	opts.bind(cmd)

	return cmd
}

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SourceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "entity <eid>",
		Short:         "Print every attribute of an entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, args []string) error {
			eid, err := edn.Read(args[0])
			if err != nil {
				return err
			}
			return s.run(cmd, ffi.Call{Op: ffi.OpEntity, Inputs: []ffi.Input{s.input(opts.Input)}, EID: eid})
		}),
	}
	opts.bind(cmd)

	return cmd
}

// NewDatomsCommand creates the datoms command.
func NewDatomsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SourceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "datoms <eavt|aevt|avet> [components...]",
		Short: "List datoms of an index",
		Long: `List the datoms of an index whose leading components match.

Components are edn values in index order.

Example:
  factdb datoms --config people.edn avet :age 30`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, args []string) error {
			c := ffi.Call{Op: ffi.OpDatoms, Inputs: []ffi.Input{s.input(opts.Input)}, Index: args[0]}
			if len(args) > 1 {
				c.Components = "[" + strings.Join(args[1:], " ") + "]"
			}
			return s.run(cmd, c)
		}),
	}
	opts.bind(cmd)

	return cmd
}

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	SourceOptions
	Reverse bool
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{SourceOptions: SourceOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:           "schema",
		Short:         "Print the installed schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, _ []string) error {
			op := ffi.OpSchema
			if opts.Reverse {
				op = ffi.OpReverseSchema
			}
			return s.run(cmd, ffi.Call{Op: op, Inputs: []ffi.Input{s.input(opts.Input)}})
		}),
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&opts.Reverse, "reverse", false, "group attributes by property")

	return cmd
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SourceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "metrics",
		Short:         "Print datom counts of the configured database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: withSession(rootOpts, false, func(cmd *cobra.Command, s *session, _ []string) error {
			return s.run(cmd, ffi.Call{Op: ffi.OpMetrics, Inputs: []ffi.Input{s.input(opts.Input)}})
		}),
	}
	opts.bind(cmd)

	return cmd
}
