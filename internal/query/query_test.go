package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/db"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
	"github.com/roach88/factdb/internal/store"
	"github.com/roach88/factdb/internal/testutil"
)

const peopleSchema = `[
 {:db/ident :name   :db/valueType :db.type/string :db/cardinality :db.cardinality/one}
 {:db/ident :age    :db/valueType :db.type/long   :db/cardinality :db.cardinality/one}
 {:db/ident :friend :db/valueType :db.type/ref    :db/cardinality :db.cardinality/many}
 {:db/ident :email  :db/valueType :db.type/string :db/cardinality :db.cardinality/one :db/unique :db.unique/identity}
 {:db/ident :score  :db/valueType :db.type/double :db/cardinality :db.cardinality/one}]`

const people = `[
 {:db/id "alice" :name "Alice" :age 30 :email "alice@example.com" :score 1.5 :friend ["bob" "carol"]}
 {:db/id "bob"   :name "Bob"   :age 25 :friend ["carol"]}
 {:db/id "carol" :name "Carol" :age 35}
 {:db/id "dave"  :name "Dave"  :age 25}]`

func openPeople(t *testing.T) (*db.Conn, *ir.TxReport) {
	t.Helper()
	cfg := &config.Config{
		Backend:           config.BackendMemory,
		ID:                t.Name(),
		SchemaFlexibility: config.FlexibilityRead,
		KeepHistory:       true,
	}
	c, err := db.Open(context.Background(), cfg, store.NewMemory(), db.WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	_, err = c.Transact(context.Background(), edn.MustRead(peopleSchema))
	require.NoError(t, err)
	report, err := c.Transact(context.Background(), edn.MustRead(people))
	require.NoError(t, err)
	return c, report
}

func run(t *testing.T, q string, inputs ...any) string {
	t.Helper()
	out, err := Run(context.Background(), edn.MustRead(q), inputs...)
	require.NoError(t, err)
	return edn.Print(out)
}

func TestQueries(t *testing.T) {
	c, _ := openPeople(t)
	current := c.DB()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"single pattern", `[:find ?n :where [?e :name ?n]]`,
			`#{["Alice"] ["Bob"] ["Carol"] ["Dave"]}`},
		{"join through ref", `[:find ?fn :where [?e :name "Alice"] [?e :friend ?f] [?f :name ?fn]]`,
			`#{["Bob"] ["Carol"]}`},
		{"relation of two variables", `[:find ?n ?a :where [?e :age ?a] [?e :name ?n] [(<= ?a 25)]]`,
			`#{["Bob" 25] ["Dave" 25]}`},
		{"predicate after binding", `[:find ?n :where [?e :name ?n] [?e :age ?a] [(> ?a 26)]]`,
			`#{["Alice"] ["Carol"]}`},
		{"predicate before binding", `[:find ?n :where [(< ?a 30)] [?e :age ?a] [?e :name ?n]]`,
			`#{["Bob"] ["Dave"]}`},
		{"chained comparison", `[:find ?n :where [?e :age ?a] [(< 25 ?a 35)] [?e :name ?n]]`,
			`#{["Alice"]}`},
		{"not equal", `[:find ?n :where [?e :age 25] [?e :name ?n] [(not= ?n "Bob")]]`,
			`#{["Dave"]}`},
		{"int compares with double", `[:find ?n :where [?e :score ?s] [(>= ?s 1)] [?e :name ?n]]`,
			`#{["Alice"]}`},
		{"unrelated kinds never compare", `[:find ?n :where [?e :name ?n] [(< ?n 10)]]`,
			`#{}`},
		{"missing attribute", `[:find ?n :where [?e :name ?n] [(missing? $ ?e :friend)]]`,
			`#{["Carol"] ["Dave"]}`},
		{"scalar", `[:find ?a . :where [?e :name "Carol"] [?e :age ?a]]`,
			`35`},
		{"scalar without result", `[:find ?a . :where [?e :name "Nobody"] [?e :age ?a]]`,
			`nil`},
		{"collection", `[:find [?n ...] :where [?e :age 25] [?e :name ?n]]`,
			`["Bob" "Dave"]`},
		{"tuple", `[:find [?n ?a] :where [?e :email "alice@example.com"] [?e :name ?n] [?e :age ?a]]`,
			`["Alice" 30]`},
		{"map form", `{:find [?n] :where [[?e :age 35] [?e :name ?n]]}`,
			`#{["Carol"]}`},
		{"attribute variable", `[:find ?attr :where [?e :name "Bob"] [?e ?attr]]`,
			`#{[:age] [:friend] [:name]}`},
		{"lookup ref entity", `[:find ?n . :where [[:email "alice@example.com"] :name ?n]]`,
			`"Alice"`},
		{"lookup ref value", `[:find ?n :where [?e :friend [:email "alice@example.com"]] [?e :name ?n]]`,
			`#{}`},
		{"type mismatch is no match", `[:find ?e :where [?e :age "thirty"]]`,
			`#{}`},
		{"repeated variable", `[:find ?e :where [?e :friend ?e]]`,
			`#{}`},
		{"schema entities", `[:find ?ident :where [?a :db/valueType :db.type/string] [?a :db/ident ?ident]]`,
			`#{[:email] [:name]}`},
		{"pull in find", `[:find (pull ?e [:name]) :where [?e :age 25]]`,
			`#{[{:name "Bob"}] [{:name "Dave"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, tt.query, current))
		})
	}
}

func TestAggregates(t *testing.T) {
	c, _ := openPeople(t)
	current := c.DB()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"count", `[:find (count ?e) . :where [?e :name]]`, `4`},
		{"count grouped", `[:find ?a (count ?e) :where [?e :age ?a]]`, `#{[25 2] [30 1] [35 1]}`},
		{"sum over the distinct set", `[:find (sum ?a) . :where [?e :age ?a]]`, `90`},
		{"sum with", `[:find (sum ?a) . :with ?e :where [?e :age ?a]]`, `115`},
		{"avg with", `[:find (avg ?a) . :with ?e :where [?e :age ?a]]`, `28.75`},
		{"min", `[:find (min ?a) . :where [?e :age ?a]]`, `25`},
		{"max", `[:find (max ?n) . :where [?e :name ?n]]`, `"Dave"`},
		{"count-distinct", `[:find (count-distinct ?a) . :with ?e :where [?e :age ?a]]`, `3`},
		{"distinct", `[:find (distinct ?a) . :where [?e :age ?a]]`, `#{25 30 35}`},
		{"sum of doubles", `[:find (sum ?s) . :where [?e :score ?s]]`, `1.5`},
		{"aggregate over nothing", `[:find (count ?e) :where [?e :name "Nobody"]]`, `#{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, tt.query, current))
		})
	}

	_, err := Run(context.Background(), edn.MustRead(`[:find (sum ?n) . :where [?e :name ?n]]`), current)
	assert.True(t, ir.IsCode(err, ir.CodeQuery))
}

func TestInputs(t *testing.T) {
	c, _ := openPeople(t)
	current := c.DB()

	assert.Equal(t, `#{[30]}`,
		run(t, `[:find ?a :in $ ?n :where [?e :name ?n] [?e :age ?a]]`, current, ir.String("Alice")))

	assert.Equal(t, `#{[25] [35]}`,
		run(t, `[:find ?a :in $ [?n ...] :where [?e :name ?n] [?e :age ?a]]`,
			current, edn.MustRead(`["Bob" "Carol" "Nobody"]`)))

	assert.Equal(t, `#{["Carol"]}`,
		run(t, `[:find ?n :in $ [[?n ?min]] :where [?e :name ?n] [?e :age ?a] [(> ?a ?min)]]`,
			current, edn.MustRead(`[["Alice" 30] ["Carol" 30]]`)))

	assert.Equal(t, `#{["Bob"]}`,
		run(t, `[:find ?n :in $ [[?n _]] :where [?e :name ?n] [?e :friend]]`,
			current, edn.MustRead(`[["Bob" 1] ["Dave" 2]]`)))

	assert.Equal(t, `#{[1 2]}`,
		run(t, `[:find ?x ?y :in ?x ?y]`, ir.Int(1), ir.Int(2)))
}

func TestMultipleSources(t *testing.T) {
	c, report := openPeople(t)
	_, err := c.Transact(context.Background(), edn.MustRead(`[[:db/add [:email "alice@example.com"] :age 31]]`))
	require.NoError(t, err)

	before, err := c.DB().AsOfTx(report.TxID)
	require.NoError(t, err)

	assert.Equal(t, `#{[30 31]}`,
		run(t, `[:find ?old ?new :in $ $before
		         :where [$before ?e :email "alice@example.com"]
		                [$before ?e :age ?old]
		                [?e :age ?new]]`,
			c.DB(), before))

	hist, err := c.DB().History()
	require.NoError(t, err)
	assert.Equal(t, `#{[30 false] [30 true] [31 true]}`,
		run(t, `[:find ?a ?added :where [?e :name "Alice"] [?e :age ?a _ ?added]]`, hist))

	assert.Equal(t, `#{[31]}`,
		run(t, `[:find ?a :where [?e :age ?a ?tx true] [?tx :db/txInstant ?inst] [(> ?inst #inst "2024-01-01T00:00:02Z")]]`, hist))
}

func TestSnapshotIsolation(t *testing.T) {
	c, _ := openPeople(t)
	snapshot := c.DB()

	_, err := c.Transact(context.Background(), edn.MustRead(`[{:name "Eve" :age 22}]`))
	require.NoError(t, err)

	q := `[:find (count ?e) . :where [?e :name]]`
	assert.Equal(t, `4`, run(t, q, snapshot))
	assert.Equal(t, `5`, run(t, q, c.DB()))
}

func TestQueryErrors(t *testing.T) {
	c, _ := openPeople(t)
	current := c.DB()

	tests := []struct {
		name   string
		query  string
		inputs []any
	}{
		{"unbound find variable", `[:find ?x :where [?e :name ?n]]`, []any{current}},
		{"unbound aggregate variable", `[:find (count ?x) :where [?e :name ?n]]`, []any{current}},
		{"unbound with variable", `[:find ?n :with ?x :where [?e :name ?n]]`, []any{current}},
		{"unknown source", `[:find ?n :where [$other ?e :name ?n]]`, []any{current}},
		{"unknown source for missing?", `[:find ?e :where [?e :name] [(missing? $other ?e :age)]]`, []any{current}},
		{"too few inputs", `[:find ?n :in $ ?x :where [?e :name ?n]]`, []any{current}},
		{"too many inputs", `[:find ?n :where [?e :name ?n]]`, []any{current, current}},
		{"source is not a database", `[:find ?n :where [?e :name ?n]]`, []any{ir.Int(1)}},
		{"collection input is scalar", `[:find ?n :in $ [?n ...] :where [?e :name ?n]]`, []any{current, ir.String("Bob")}},
		{"relation tuple arity", `[:find ?n :in $ [[?n ?a]] :where [?e :name ?n]]`, []any{current, edn.MustRead(`[["Bob"]]`)}},
		{"no find", `[:where [?e :name ?n]]`, []any{current}},
		{"leading clause", `[[?e :name ?n] :find ?n]`, []any{current}},
		{"unknown section", `[:find ?n :select ?n :where [?e :name ?n]]`, []any{current}},
		{"unknown predicate", `[:find ?n :where [?e :name ?n] [(like ?n "A")]]`, []any{current}},
		{"predicate never bound", `[:find ?n :where [?e :name ?n] [(> ?z 1)]]`, []any{current}},
		{"rule call", `[:find ?n :where (friends ?e ?n)]`, []any{current}},
		{"function binding", `[:find ?n :where [(str ?a) ?n]]`, []any{current}},
		{"unknown aggregate", `[:find (median ?a) :where [?e :age ?a]]`, []any{current}},
		{"find constant", `[:find "x" :where [?e :name]]`, []any{current}},
		{"oversized pattern", `[:find ?e :where [?e :name "A" 1 true 2]]`, []any{current}},
		{"not a query", `:find`, []any{current}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Run(context.Background(), edn.MustRead(tt.query), tt.inputs...)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, ir.IsCode(err, ir.CodeQuery), "got %v", err)
		})
	}
}

func TestParseShapes(t *testing.T) {
	q, err := ParseString(`[:find ?e (count ?v) (pull $h ?e [*]) :with ?x :in $ $h [?x ...] [[?a _]] :where [?e ?a ?v] [(= ?x ?v)]]`)
	require.NoError(t, err)

	assert.Equal(t, FindRel, q.Kind)
	assert.Equal(t, []FindElem{
		Var("?e"),
		Aggregate{Fn: "count", Arg: "?v"},
		Pull{Src: "$h", Var: "?e", Selector: ir.Vector{ir.Symbol("*")}},
	}, q.Find)
	assert.Equal(t, []Var{"?x"}, q.With)
	assert.Equal(t, []Binding{
		Source{Name: "$"},
		Source{Name: "$h"},
		Collection{Var: "?x"},
		Relation{Vars: []Var{"?a", ""}},
	}, q.In)
	assert.Equal(t, []Clause{
		DataPattern{Src: "$", Terms: []Term{Var("?e"), Var("?a"), Var("?v")}},
		Predicate{Op: "=", Args: []Term{Var("?x"), Var("?v")}},
	}, q.Where)

	q, err = ParseString(`[:find ?e :where [?e :name _]]`)
	require.NoError(t, err)
	assert.Equal(t, []Binding{Source{Name: DefaultSource}}, q.In, "default :in is $")
	assert.Equal(t, []Term{Var("?e"), ir.Keyword("name"), Blank{}}, q.Where[0].(DataPattern).Terms)
}

func TestCancelledContext(t *testing.T) {
	c, _ := openPeople(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, edn.MustRead(`[:find ?n :where [?e :name ?n]]`), c.DB())
	assert.True(t, ir.IsCode(err, ir.CodeQuery))
}
