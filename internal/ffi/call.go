package ffi

import (
	"github.com/roach88/factdb/internal/ir"
)

// Op names an operation reachable across the boundary.
type Op string

const (
	OpCreateDatabase Op = "create-database"
	OpDatabaseExists Op = "database-exists"
	OpDeleteDatabase Op = "delete-database"
	OpTransact       Op = "transact"
	OpQuery          Op = "query"
	OpPull           Op = "pull"
	OpPullMany       Op = "pull-many"
	OpEntity         Op = "entity"
	OpDatoms         Op = "datoms"
	OpSchema         Op = "schema"
	OpReverseSchema  Op = "reverse-schema"
	OpMetrics        Op = "metrics"
)

// Ops lists every operation in a stable order.
var Ops = []Op{
	OpCreateDatabase, OpDatabaseExists, OpDeleteDatabase, OpTransact,
	OpQuery, OpPull, OpPullMany, OpEntity, OpDatoms, OpSchema,
	OpReverseSchema, OpMetrics,
}

// Input is one format-tagged argument. See the package documentation for
// the tags.
type Input struct {
	Format string
	Raw    string
}

// DB returns an input naming the current revision of a database.
func DB(configEDN string) Input {
	return Input{Format: "db", Raw: configEDN}
}

// Call is one boundary operation with its text arguments.
//
// Which fields an operation reads:
//   - create-database, database-exists, delete-database: Config
//   - transact: Config, Data
//   - every operation with database inputs: ConfigFormat
//   - query: Query, Inputs
//   - pull: Inputs[0], Selector, EID
//   - pull-many: Inputs[0], Selector, EIDs
//   - entity: Inputs[0], EID
//   - datoms: Inputs[0], Index, Components
//   - schema, reverse-schema, metrics: Inputs[0]
type Call struct {
	Op Op

	Config       string
	ConfigFormat string // edn when empty; also applies to database inputs

	Data       string
	DataFormat string // edn when empty

	Query  string
	Inputs []Input

	Selector   string   // edn pull pattern
	EID        ir.Value // entity id, ident or lookup ref
	EIDs       string   // edn collection of entities
	Index      string   // eavt, aevt or avet, with or without a leading colon
	Components string   // edn vector of leading index components

	OutputFormat string // edn when empty
}
