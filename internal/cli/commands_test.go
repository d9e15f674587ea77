package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const peopleSchema = `[{:db/ident :name :db/valueType :db.type/string :db/cardinality :db.cardinality/one :db/unique :db.unique/identity}
 {:db/ident :age :db/valueType :db.type/long :db/cardinality :db.cardinality/one}]`

// run executes the CLI and returns stdout, stderr and the exit code.
func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(args, &out, &errOut)
	return out.String(), errOut.String(), code
}

// runOK executes the CLI and requires success.
func runOK(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := run(t, args...)
	require.Equal(t, ExitSuccess, code, "factdb %s\nstderr: %s", strings.Join(args, " "), errOut)
	return strings.TrimSuffix(out, "\n")
}

func fileConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")
	return fmt.Sprintf(`{:store {:backend :file :path %q} :schema-flexibility :read :keep-history? true}`, path)
}

func seedPeople(t *testing.T, cfg string) {
	t.Helper()
	runOK(t, "create", "--config", cfg)
	runOK(t, "transact", "--config", cfg, peopleSchema)
	runOK(t, "transact", "--config", cfg, `[{:db/id "alice" :name "Alice" :age 30} {:db/id "bob" :name "Bob" :age 25}]`)
}

func TestCLI_DatabaseLifecycle(t *testing.T) {
	cfg := fileConfig(t)

	assert.Equal(t, "false", runOK(t, "exists", "--config", cfg))
	assert.Equal(t, `""`, runOK(t, "create", "--config", cfg))
	assert.Equal(t, "true", runOK(t, "exists", "--config", cfg))

	_, errOut, code := run(t, "create", "--config", cfg)
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, errOut, "Error [ALREADY_EXISTS]")

	assert.Equal(t, `""`, runOK(t, "delete", "--config", cfg))
	assert.Equal(t, "false", runOK(t, "exists", "--config", cfg))
}

func TestCLI_ManagementRequiresConfig(t *testing.T) {
	for _, name := range []string{"create", "exists", "delete"} {
		t.Run(name, func(t *testing.T) {
			_, errOut, code := run(t, name)
			assert.Equal(t, ExitCommandError, code)
			assert.Contains(t, errOut, "--config is required")
		})
	}
}

func TestCLI_TransactAndQuery(t *testing.T) {
	cfg := fileConfig(t)
	seedPeople(t, cfg)

	report := runOK(t, "transact", "--config", cfg, `[{:db/id "carol" :name "Carol" :age 41}]`)
	assert.Contains(t, report, `:tempids {"carol" 5}`)
	assert.Contains(t, report, ":tx-id 536870915")

	query := `[:find ?n ?a :where [?e :name ?n] [?e :age ?a]]`
	assert.Equal(t, `#{["Alice" 30] ["Bob" 25] ["Carol" 41]}`, runOK(t, "query", "--config", cfg, query))
	assert.Equal(t, `[["Alice",30],["Bob",25],["Carol",41]]`, runOK(t, "query", "--config", cfg, "--format", "json", query))
}

func TestCLI_TransactFromStdinAndJSON(t *testing.T) {
	cfg := fileConfig(t)
	seedPeople(t, cfg)

	runOK(t, "transact", "--config", cfg, "--data-format", "json", `[{"name": "Dan", "age": 19}]`)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(`[{:name "Eve" :age 22}]`))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"transact", "--config", cfg, "-"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), ":tx-id")

	assert.Equal(t, "4", runOK(t, "query", "--config", cfg, `[:find (count ?e) . :where [?e :name]]`))
}

func TestCLI_QueryInputs(t *testing.T) {
	cfg := fileConfig(t)
	seedPeople(t, cfg)
	runOK(t, "transact", "--config", cfg, `[[:db/add [:name "Alice"] :age 31]]`)

	ages := `[:find ?a :in $ :where [_ :age ?a]]`
	assert.Equal(t, `#{[25] [31]}`, runOK(t, "query", "--config", cfg, ages))
	assert.Equal(t, `#{[25] [30] [31]}`, runOK(t, "query", "--config", cfg, "--input", "history", ages))

	byName := `[:find ?a :in $ [?n ...] :where [?e :name ?n] [?e :age ?a]]`
	assert.Equal(t, `#{[25]}`, runOK(t, "query", "--config", cfg, "-i", "db", "-i", `edn=["Bob"]`, byName))

	_, errOut, code := run(t, "query", "--config", cfg, "--input", "asof", ages)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, errOut, "Error [PARSE]")
}

func TestCLI_ScratchDatabase(t *testing.T) {
	out := runOK(t, "query", "-i", "json=[[1, 2], [3, 1], [2, 5]]", `[:find ?x ?y :in [[?x ?y]] :where [(< ?x ?y)]]`)
	assert.Equal(t, `#{[1 2] [2 5]}`, out)

	report := runOK(t, "transact", `[{:db/id "x" :title "Dune"}]`)
	assert.Contains(t, report, `"x"`)
}

func TestCLI_Inspection(t *testing.T) {
	cfg := fileConfig(t)
	seedPeople(t, cfg)

	assert.Equal(t, `{:age 30, :name "Alice"}`, runOK(t, "pull", "--config", cfg, "[:name :age]", `[:name "Alice"]`))
	assert.Equal(t, `[{:name "Alice"} {:name "Bob"}]`, runOK(t, "pull", "--config", cfg, "[:name]", "3", "4"))
	assert.Equal(t, `{:age 25, :db/id 4, :name "Bob"}`, runOK(t, "entity", "--config", cfg, "4"))

	datoms := runOK(t, "datoms", "--config", cfg, "avet", ":age", "25")
	assert.Equal(t, "[[4 :age 25 536870914 true]]", datoms)

	schema := runOK(t, "schema", "--config", cfg)
	assert.Contains(t, schema, ":db.unique/identity")
	reverse := runOK(t, "schema", "--config", cfg, "--reverse")
	assert.Contains(t, reverse, ":db/ident #{:age :name}")

	metrics := runOK(t, "metrics", "--config", cfg)
	assert.True(t, strings.HasPrefix(metrics, "{"), metrics)
	assert.Contains(t, metrics, ":count")
}

func TestCLI_Errors(t *testing.T) {
	cfg := fileConfig(t)
	seedPeople(t, cfg)

	tests := []struct {
		name string
		args []string
		code int
		err  string
	}{
		{"unknown attribute", []string{"transact", "--config", cfg, `[{:email "x@example.com"}]`}, ExitFailure, "SCHEMA_VIOLATION"},
		{"malformed query", []string{"query", "--config", cfg, "[:find ?x"}, ExitCommandError, "PARSE"},
		{"missing database", []string{"query", "--config", fileConfig(t), "[:find ?x :where [?x :name]]"}, ExitCommandError, "NOT_FOUND"},
		{"bad config", []string{"query", "--config", "{:store {}}", "[:find ?x :where [?x :name]]"}, ExitCommandError, "CONFIG"},
		{"bad format", []string{"query", "--format", "xml", "[:find ?x :where [?x :name]]"}, ExitCommandError, "invalid format"},
		{"missing args", []string{"pull", "[*]"}, ExitCommandError, "requires at least 2 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut, code := run(t, tt.args...)
			assert.Equal(t, tt.code, code)
			assert.Empty(t, out)
			assert.Contains(t, errOut, tt.err)
		})
	}
}

func TestCLI_JSONErrors(t *testing.T) {
	out, errOut, code := run(t, "query", "--format", "json", "--config", fileConfig(t), "[:find ?x :where [?x :name]]")
	assert.Equal(t, ExitCommandError, code)
	assert.Empty(t, errOut)
	assert.Contains(t, out, `"status":"error"`)
	assert.Contains(t, out, `"code":"NOT_FOUND"`)
}

func TestCLI_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.json")
	content := fmt.Sprintf(`{"store": {"backend": "bolt", "path": %q}, "schema-flexibility": "write"}`, filepath.Join(dir, "people.bolt"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	runOK(t, "create", "--config", path)
	runOK(t, "transact", "--config", path, `[{:name "Ann"}]`)
	assert.Equal(t, `#{["Ann"]}`, runOK(t, "query", "--config", path, `[:find ?n :where [_ :name ?n]]`))
}

func TestCLI_InlineYAMLConfig(t *testing.T) {
	cfg := "store: {backend: memory, id: inline}\nschema-flexibility: write\n"
	assert.Equal(t, `""`, runOK(t, "create", "--config", cfg, "--config-format", "yaml"))
}

func TestCLI_EnvironmentConfig(t *testing.T) {
	cfg := fileConfig(t)
	t.Setenv("FACTDB_CONFIG", cfg)
	t.Setenv("FACTDB_FORMAT", "json")

	runOK(t, "create")
	runOK(t, "transact", `[{:name "Ann"}]`)
	assert.Equal(t, `[["Ann"]]`, runOK(t, "query", `[:find ?n :where [_ :name ?n]]`))
	assert.Equal(t, `#{["Ann"]}`, runOK(t, "query", "--format", "edn", `[:find ?n :where [_ :name ?n]]`), "flags override the environment")
}

func TestCLI_Stats(t *testing.T) {
	out := runOK(t, "stats")
	assert.Contains(t, out, "factdb_contexts_active 1")
	assert.Contains(t, out, "factdb_transactions_total")
}

func TestCLI_Version(t *testing.T) {
	out := runOK(t, "version")
	assert.True(t, strings.HasPrefix(out, "factdb "), out)
}
