package db

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/factdb/internal/config"
	"github.com/roach88/factdb/internal/edn"
	"github.com/roach88/factdb/internal/ir"
	"github.com/roach88/factdb/internal/store"
	"github.com/roach88/factdb/internal/testutil"
)

const nameSchema = `[{:db/ident :name :db/valueType :db.type/string :db/cardinality :db.cardinality/one}]`

// richSchema installs attributes 1..8 in form order.
const richSchema = `[
 {:db/ident :name   :db/valueType :db.type/string  :db/cardinality :db.cardinality/one}
 {:db/ident :email  :db/valueType :db.type/string  :db/cardinality :db.cardinality/one :db/unique :db.unique/identity}
 {:db/ident :ssn    :db/valueType :db.type/string  :db/cardinality :db.cardinality/one :db/unique :db.unique/value}
 {:db/ident :age    :db/valueType :db.type/long    :db/cardinality :db.cardinality/one}
 {:db/ident :score  :db/valueType :db.type/double  :db/cardinality :db.cardinality/one}
 {:db/ident :tags   :db/valueType :db.type/keyword :db/cardinality :db.cardinality/many}
 {:db/ident :friend :db/valueType :db.type/ref     :db/cardinality :db.cardinality/many}
 {:db/ident :id     :db/valueType :db.type/uuid    :db/cardinality :db.cardinality/one :db/unique :db.unique/identity}]`

// firstUser is the first entity id after richSchema.
const firstUser = 9

func memConfig(t *testing.T, flex config.Flexibility) *config.Config {
	return &config.Config{
		Backend:           config.BackendMemory,
		ID:                t.Name(),
		SchemaFlexibility: flex,
		KeepHistory:       true,
	}
}

func openConn(t *testing.T, cfg *config.Config, backend store.Backend) *Conn {
	t.Helper()
	c, err := Open(context.Background(), cfg, backend, WithClock(testutil.NewDeterministicClock()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func openMem(t *testing.T, flex config.Flexibility) (*Conn, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return openConn(t, memConfig(t, flex), mem), mem
}

func transact(t *testing.T, c *Conn, text string) *ir.TxReport {
	t.Helper()
	report, err := c.Transact(context.Background(), edn.MustRead(text))
	require.NoError(t, err)
	return report
}

func transactErr(t *testing.T, c *Conn, text string) error {
	t.Helper()
	_, err := c.Transact(context.Background(), edn.MustRead(text))
	require.Error(t, err)
	return err
}

func liveValues(db *DB, e int64, a string) []ir.Value {
	var out []ir.Value
	db.Search(Pattern{E: e, A: ir.KW(a)}, func(d ir.Datom) bool {
		out = append(out, d.V)
		return true
	})
	return out
}

func TestAliceScenario(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, nameSchema)
	report := transact(t, c, `[{:name "Alice"}]`)

	datoms := c.DB().Collect(Pattern{A: ir.KW("name")})
	require.Len(t, datoms, 1)
	assert.Equal(t, int64(2), datoms[0].E, "the first user entity follows the attribute entity")
	assert.Equal(t, ir.String("Alice"), datoms[0].V)
	assert.Equal(t, ir.TxBase+2, report.TxID)
	assert.Empty(t, report.Tempids)
}

func TestIdenticalTransactionsCreateDistinctEntities(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, nameSchema)
	transact(t, c, `[{:name "Alice"}]`)
	transact(t, c, `[{:name "Alice"}]`)

	datoms := c.DB().Collect(Pattern{A: ir.KW("name")})
	require.Len(t, datoms, 2)
	assert.Equal(t, int64(2), datoms[0].E)
	assert.Equal(t, int64(3), datoms[1].E)
}

func TestTransactReportShape(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	schema := transact(t, c, nameSchema)
	assert.Equal(t, ir.TxBase+1, schema.TxID)
	assert.Equal(t, testutil.Epoch.Add(time.Second), schema.TxInstant)
	// three schema datoms plus the transaction instant
	assert.Len(t, schema.Added, 4)
	assert.Empty(t, schema.Retracted)

	report := transact(t, c, `[{:db/id "alice" :name "Alice"} {:db/id -1 :name "Bob"}]`)
	assert.Equal(t, map[string]int64{"alice": 2, "-1": 3}, report.Tempids)

	last := report.Added[len(report.Added)-1]
	assert.Equal(t, ir.KW("db/txInstant"), last.A)
	assert.Equal(t, report.TxID, last.E)
}

func TestTempidResolvesOnceWithinTransaction(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	report := transact(t, c, `[
		[:db/add "a" :name "A"]
		{:db/id "b" :name "B" :friend "a"}
		[:db/add "a" :age 30]]`)

	a, b := report.Tempids["a"], report.Tempids["b"]
	assert.Equal(t, int64(firstUser), a)
	assert.Equal(t, int64(firstUser+1), b)

	db := c.DB()
	assert.Equal(t, []ir.Value{ir.Int(30)}, liveValues(db, a, "age"))
	assert.Equal(t, []ir.Value{ir.Int(a)}, liveValues(db, b, "friend"))
}

func TestTempidUsedOnlyAsValue(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	err := transactErr(t, c, `[{:name "A" :friend "ghost"}]`)
	assert.True(t, ir.IsCode(err, ir.CodeTransaction), "got %v", err)
}

func TestCardinalityOne(t *testing.T) {
	t.Run("across transactions", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, nameSchema)
		transact(t, c, `[{:db/id "a" :name "A"}]`)
		report := transact(t, c, `[[:db/add 2 :name "B"]]`)

		assert.Equal(t, []ir.Value{ir.String("B")}, liveValues(c.DB(), 2, "name"))
		require.Len(t, report.Retracted, 1)
		assert.Equal(t, ir.String("A"), report.Retracted[0].V)
		assert.False(t, report.Retracted[0].Added)
		assert.Equal(t, report.TxID, report.Retracted[0].Tx)
	})

	t.Run("within one transaction", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, nameSchema)
		report := transact(t, c, `[[:db/add "x" :name "1"] [:db/add "x" :name "2"]]`)

		assert.Equal(t, []ir.Value{ir.String("2")}, liveValues(c.DB(), report.Tempids["x"], "name"))
		assert.Empty(t, report.Retracted, "an assertion superseded in the same transaction is never stored")
	})

	t.Run("reasserting the live value is a no-op", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, nameSchema)
		transact(t, c, `[{:db/id "a" :name "A"}]`)
		report := transact(t, c, `[[:db/add 2 :name "A"]]`)
		assert.Len(t, report.Added, 1, "only the transaction instant")
		assert.Empty(t, report.Retracted)
	})
}

func TestCardinalityMany(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	report := transact(t, c, `[{:db/id "p" :tags [:a :b :a]}]`)
	p := report.Tempids["p"]
	assert.Equal(t, []ir.Value{ir.KW("a"), ir.KW("b")}, liveValues(c.DB(), p, "tags"))

	transact(t, c, fmt.Sprintf(`[{:db/id %d :tags #{:c}} [:db/retract %d :tags :a]]`, p, p))
	assert.Equal(t, []ir.Value{ir.KW("b"), ir.KW("c")}, liveValues(c.DB(), p, "tags"))

	transact(t, c, fmt.Sprintf(`[[:db/retract %d :tags]]`, p))
	assert.Empty(t, liveValues(c.DB(), p, "tags"))
}

func TestFailedTransactionLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name string
		tx   string
		code ir.Code
	}{
		{"type mismatch", `[{:name "ok"} {:age "thirty"}]`, ir.CodeTransaction},
		{"nil value", `[{:name nil}]`, ir.CodeTransaction},
		{"unique value", `[{:ssn "taken"}]`, ir.CodeUniqueConstraint},
		{"not a sequence", `{:name "x"}`, ir.CodeParse},
		{"unknown operation", `[[:db/frobnicate 1 :name "x"]]`, ir.CodeParse},
		{"wrong arity", `[[:db/add 1 :name]]`, ir.CodeParse},
		{"bad form", `[42]`, ir.CodeParse},
		{"missing entity", `[[:db/add 4242 :name "x"]]`, ir.CodeTransaction},
		{"missing lookup ref", `[[:db/add [:email "nobody"] :age 1]]`, ir.CodeTransaction},
		{"set tx instant", `[[:db/add "t" :db/txInstant #inst "2020-01-01"]]`, ir.CodeTransaction},
		{"reserved namespace", `[{:db/frob 1}]`, ir.CodeSchemaViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mem := openMem(t, config.FlexibilityWrite)
			transact(t, c, richSchema)
			transact(t, c, `[{:ssn "taken"}]`)

			before := c.DB()
			recs, err := mem.Load(context.Background())
			require.NoError(t, err)

			err = transactErr(t, c, tt.tx)
			assert.True(t, ir.IsCode(err, tt.code), "want %s, got %v", tt.code, err)

			assert.Same(t, before, c.DB(), "revision unchanged")
			after, err := mem.Load(context.Background())
			require.NoError(t, err)
			assert.Len(t, after, len(recs), "nothing appended")
			assert.Empty(t, c.DB().Collect(Pattern{A: ir.KW("name"), V: ir.String("ok")}))
		})
	}
}

func TestSnapshotIsolation(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, nameSchema)
	transact(t, c, `[{:name "Alice"}]`)

	snapshot := c.DB()
	transact(t, c, `[{:name "Bob"}]`)
	transact(t, c, `[[:db/add 2 :name "Alicia"]]`)

	old := snapshot.Collect(Pattern{A: ir.KW("name")})
	require.Len(t, old, 1)
	assert.Equal(t, ir.String("Alice"), old[0].V)
	assert.Len(t, c.DB().Collect(Pattern{A: ir.KW("name")}), 2)
}

func TestSchemaFlexibility(t *testing.T) {
	t.Run("write admits unknown attributes", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		report := transact(t, c, `[{:age 42}]`)

		attr, ok := c.DB().Attribute(ir.KW("age"))
		require.True(t, ok)
		assert.Equal(t, int64(1), attr.ID, "admitted attributes are allocated before entities")
		assert.Equal(t, ir.TypeAny, attr.ValueType)
		assert.Equal(t, ir.CardinalityOne, attr.Cardinality)

		datoms := c.DB().Collect(Pattern{A: ir.KW("age")})
		require.Len(t, datoms, 1)
		assert.Equal(t, int64(2), datoms[0].E)
		assert.Len(t, report.Added, 4, "ident, cardinality, value, instant")

		// Untyped attributes accept any value.
		transact(t, c, `[[:db/add 2 :age "forty-two"]]`)
		assert.Equal(t, []ir.Value{ir.String("forty-two")}, liveValues(c.DB(), 2, "age"))
	})

	t.Run("read rejects unknown attributes", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityRead)
		transact(t, c, nameSchema)
		transact(t, c, `[{:name "Alice"}]`)

		err := transactErr(t, c, `[{:name "Bob" :age 42}]`)
		assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)

		err = transactErr(t, c, `[[:db/retract 2 :age 42]]`)
		assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)
	})

	t.Run("schema and data in one transaction", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityRead)
		transact(t, c, `[{:db/ident :name :db/valueType :db.type/string :db/cardinality :db.cardinality/one}
		                 {:name "Alice"}]`)
		datoms := c.DB().Collect(Pattern{A: ir.KW("name")})
		require.Len(t, datoms, 1)
		assert.Equal(t, int64(2), datoms[0].E)
	})
}

func TestSchemaRedefinition(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)

	report := transact(t, c, richSchema)
	assert.Len(t, report.Added, 1, "reinstalling identical schema only records the transaction")

	err := transactErr(t, c, `[{:db/ident :name :db/valueType :db.type/long}]`)
	assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)

	err = transactErr(t, c, `[{:db/ident :tags :db/cardinality :db.cardinality/one}]`)
	assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)

	err = transactErr(t, c, `[{:db/ident :color :db/valueType :db.type/colour}]`)
	assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)

	// Documentation may change.
	transact(t, c, `[{:db/ident :name :db/doc "Full name"}]`)
	attr, ok := c.DB().Attribute(ir.KW("name"))
	require.True(t, ok)
	assert.Equal(t, "Full name", attr.Doc)
	assert.Equal(t, ir.TypeString, attr.ValueType)
}

func TestSchemaRedefinitionAfterRetraction(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	transact(t, c, `[{:name "A" :age 30 :score 1.5}]`)

	t.Run("renamed attribute keeps its type", func(t *testing.T) {
		err := transactErr(t, c, `[[:db/add 5 :db/ident :points] [:db/add 5 :db/valueType :db.type/long]]`)
		assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)
		_, ok := c.DB().Attribute(ir.KW("score"))
		assert.True(t, ok, "nothing committed")
	})

	transact(t, c, `[[:db/retract 4 :db/ident :age]]`)
	_, ok := c.DB().Attribute(ir.KW("age"))
	require.False(t, ok)

	t.Run("readded ident must fit stored values", func(t *testing.T) {
		err := transactErr(t, c, `[{:db/ident :age :db/valueType :db.type/string :db/cardinality :db.cardinality/one}]`)
		assert.True(t, ir.IsCode(err, ir.CodeSchemaViolation), "got %v", err)
	})

	t.Run("compatible definition is accepted", func(t *testing.T) {
		transact(t, c, `[{:db/ident :age :db/valueType :db.type/long :db/cardinality :db.cardinality/one}]`)
		attr, ok := c.DB().Attribute(ir.KW("age"))
		require.True(t, ok)
		assert.Equal(t, ir.TypeLong, attr.ValueType)
		assert.NotEqual(t, int64(4), attr.ID)
		assert.Equal(t, []ir.Value{ir.Int(30)}, liveValues(c.DB(), firstUser, "age"))
	})
}

func TestUniqueness(t *testing.T) {
	t.Run("value rejects duplicates across entities", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, richSchema)
		transact(t, c, `[{:ssn "123"}]`)
		err := transactErr(t, c, `[{:ssn "123"}]`)
		assert.True(t, ir.IsCode(err, ir.CodeUniqueConstraint), "got %v", err)
	})

	t.Run("value may move between entities in one transaction", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, richSchema)
		transact(t, c, `[{:db/id "a" :ssn "123"}]`)
		transact(t, c, fmt.Sprintf(`[[:db/retract %d :ssn "123"] {:ssn "123"}]`, firstUser))
	})

	t.Run("identity upserts", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, richSchema)
		first := transact(t, c, `[{:db/id "x" :email "a@example.com" :name "A"}]`)
		second := transact(t, c, `[{:db/id "y" :email "a@example.com" :age 30}]`)

		assert.Equal(t, first.Tempids["x"], second.Tempids["y"])
		assert.Equal(t, int64(firstUser), c.DB().MaxEID(), "no new entity")
		assert.Equal(t, []ir.Value{ir.Int(30)}, liveValues(c.DB(), firstUser, "age"))
	})

	t.Run("identity conflict within a transaction", func(t *testing.T) {
		c, _ := openMem(t, config.FlexibilityWrite)
		transact(t, c, richSchema)
		err := transactErr(t, c, `[{:db/id "a" :email "z"} {:db/id "b" :email "z"}]`)
		assert.True(t, ir.IsCode(err, ir.CodeUniqueConstraint), "got %v", err)
	})
}

func TestEntityReferences(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	transact(t, c, `[{:email "a@example.com" :name "A"}]`)

	transact(t, c, `[[:db/add [:email "a@example.com"] :age 31]]`)
	assert.Equal(t, []ir.Value{ir.Int(31)}, liveValues(c.DB(), firstUser, "age"))

	report := transact(t, c, `[{:name "B" :friend [[:email "a@example.com"] {:name "C"}]}]`)
	b := int64(firstUser + 1)
	assert.Equal(t, b+1, c.DB().MaxEID())
	assert.Equal(t, []ir.Value{ir.Int(firstUser), ir.Int(b + 1)}, liveValues(c.DB(), b, "friend"))
	assert.Empty(t, report.Tempids)

	// Idents name entities too.
	transact(t, c, `[[:db/add :name :db/doc "the name"]]`)
	attr, _ := c.DB().Attribute(ir.KW("name"))
	assert.Equal(t, "the name", attr.Doc)
}

func TestRetractEntity(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	report := transact(t, c, `[{:db/id "a" :name "A" :tags [:x :y]} {:db/id "b" :name "B" :friend "a"}]`)
	a, b := report.Tempids["a"], report.Tempids["b"]

	retraction := transact(t, c, fmt.Sprintf(`[[:db/retractEntity %d]]`, a))
	assert.Len(t, retraction.Retracted, 4, "name, two tags and the reference")

	db := c.DB()
	assert.Empty(t, db.Collect(Pattern{E: a}))
	assert.Empty(t, liveValues(db, b, "friend"))
	assert.Equal(t, []ir.Value{ir.String("B")}, liveValues(db, b, "name"))
}

func TestCoercion(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, richSchema)
	report := transact(t, c, `[{:db/id "p" :score 3 :id "550e8400-e29b-41d4-a716-446655440000"}]`)
	p := report.Tempids["p"]

	assert.Equal(t, []ir.Value{ir.Float(3)}, liveValues(c.DB(), p, "score"))
	assert.Equal(t, []ir.Value{edn.MustRead(`#uuid "550e8400-e29b-41d4-a716-446655440000"`)}, liveValues(c.DB(), p, "id"))

	err := transactErr(t, c, `[{:id "not-a-uuid"}]`)
	assert.True(t, ir.IsCode(err, ir.CodeTransaction))
}

func TestHistoryViews(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	// Transactions are stamped Epoch+1s, +2s and +3s.
	transact(t, c, nameSchema)
	first := transact(t, c, `[{:name "A"}]`)
	second := transact(t, c, `[[:db/add 2 :name "B"]]`)

	db := c.DB()
	hist, err := db.History()
	require.NoError(t, err)
	assert.True(t, hist.IsHistory())
	changes := hist.Collect(Pattern{E: 2, A: ir.KW("name")})
	require.Len(t, changes, 3)
	assert.Equal(t, ir.Datom{E: 2, A: ir.KW("name"), V: ir.String("A"), Tx: first.TxID, Added: true}, changes[0])
	assert.Equal(t, ir.Datom{E: 2, A: ir.KW("name"), V: ir.String("A"), Tx: second.TxID, Added: false}, changes[1])
	assert.Equal(t, ir.Datom{E: 2, A: ir.KW("name"), V: ir.String("B"), Tx: second.TxID, Added: true}, changes[2])

	past, err := db.AsOfTx(first.TxID)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("A")}, liveValues(past, 2, "name"))

	past, err = db.AsOf(testutil.Epoch.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("A")}, liveValues(past, 2, "name"))

	before, err := db.AsOf(testutil.Epoch)
	require.NoError(t, err)
	assert.Empty(t, before.Collect(Pattern{}))

	since, err := db.SinceTx(first.TxID)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("B")}, liveValues(since, 2, "name"))
	assert.Empty(t, since.Collect(Pattern{A: ir.KW("db/ident")}), "schema predates the since point")

	since, err = db.Since(testutil.Epoch.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.String("B")}, liveValues(since, 2, "name"))
}

func TestNoHistoryKeepsLiveAssertion(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, `[
	 {:db/ident :name   :db/valueType :db.type/string  :db/cardinality :db.cardinality/one}
	 {:db/ident :status :db/valueType :db.type/keyword :db/cardinality :db.cardinality/one :db/noHistory true}]`)
	first := transact(t, c, `[{:db/id "x" :name "A" :status :new}]`)
	x := first.Tempids["x"]
	second := transact(t, c, fmt.Sprintf(`[[:db/add %d :status :done] [:db/add %d :name "B"]]`, x, x))

	statusHistory := func() []ir.Datom {
		hist, err := c.DB().History()
		require.NoError(t, err)
		return hist.Collect(Pattern{E: x, A: ir.KW("status")})
	}

	assert.Equal(t, []ir.Datom{{E: x, A: ir.KW("status"), V: ir.KW("done"), Tx: second.TxID, Added: true}},
		statusHistory(), "the superseded value and its retraction are dropped")

	hist, err := c.DB().History()
	require.NoError(t, err)
	assert.Len(t, hist.Collect(Pattern{E: x, A: ir.KW("name")}), 3, "other attributes keep full history")

	asOf, err := c.DB().AsOfTx(second.TxID)
	require.NoError(t, err)
	assert.Equal(t, []ir.Value{ir.KW("done")}, liveValues(asOf, x, "status"))

	transact(t, c, fmt.Sprintf(`[[:db/retract %d :status :done]]`, x))
	assert.Empty(t, statusHistory(), "a retracted value leaves no trace")
	assert.Empty(t, liveValues(c.DB(), x, "status"))
}

func TestHistoryNotKept(t *testing.T) {
	cfg := memConfig(t, config.FlexibilityWrite)
	cfg.KeepHistory = false
	c := openConn(t, cfg, store.NewMemory())
	transact(t, c, nameSchema)

	_, err := c.DB().History()
	assert.True(t, ir.IsCode(err, ir.CodeQuery))
	_, err = c.DB().AsOfTx(ir.TxBase + 1)
	assert.True(t, ir.IsCode(err, ir.CodeQuery))
	_, err = c.DB().SinceTx(ir.TxBase)
	assert.True(t, ir.IsCode(err, ir.CodeQuery))
}

func TestReopenReplaysLog(t *testing.T) {
	for _, backend := range []config.Backend{config.BackendFile, config.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			cfg := &config.Config{
				Backend:           backend,
				Path:              filepath.Join(t.TempDir(), "db"),
				SchemaFlexibility: config.FlexibilityWrite,
				KeepHistory:       true,
			}
			b, err := store.Create(ctx, cfg)
			require.NoError(t, err)
			c, err := Open(ctx, cfg, b)
			require.NoError(t, err)
			transact(t, c, richSchema)
			transact(t, c, `[{:name "A" :tags #{:x :y}} {:name "B" :score 1.5}]`)
			transact(t, c, fmt.Sprintf(`[[:db/add %d :name "A2"]]`, firstUser))
			want := c.DB().Collect(Pattern{})
			require.NoError(t, c.Close())

			b, err = store.Open(ctx, cfg)
			require.NoError(t, err)
			c, err = Open(ctx, cfg, b)
			require.NoError(t, err)
			defer c.Close()

			db := c.DB()
			assert.Equal(t, want, db.Collect(Pattern{}))
			assert.Equal(t, ir.TxBase+3, db.BasisT())
			assert.Equal(t, int64(firstUser+1), db.MaxEID())
			attr, ok := db.Attribute(ir.KW("tags"))
			require.True(t, ok)
			assert.True(t, attr.Many())

			report := transact(t, c, `[{:name "C"}]`)
			assert.Equal(t, ir.TxBase+4, report.TxID)
			assert.Len(t, db.Collect(Pattern{A: ir.KW("name")}), 2, "earlier revision unchanged")
			assert.Len(t, c.DB().Collect(Pattern{A: ir.KW("name"), V: ir.String("C")}), 1)
			assert.Equal(t, int64(firstUser+2), c.DB().Collect(Pattern{A: ir.KW("name"), V: ir.String("C")})[0].E, "ids are never reused")
		})
	}
}

func TestUnprintableNamesNeverReachTheLog(t *testing.T) {
	for _, backend := range []config.Backend{config.BackendFile, config.BackendBolt} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			cfg := &config.Config{
				Backend:           backend,
				Path:              filepath.Join(t.TempDir(), "db"),
				SchemaFlexibility: config.FlexibilityWrite,
				KeepHistory:       true,
			}
			b, err := store.Create(ctx, cfg)
			require.NoError(t, err)
			c, err := Open(ctx, cfg, b)
			require.NoError(t, err)

			tests := []struct {
				name string
				data ir.Value
			}{
				{"attribute with a space", ir.Vector{ir.NewMap(ir.E(ir.Keyword("first name"), ir.String("Alice")))}},
				{"attribute with a colon prefix", ir.Vector{ir.NewMap(ir.E(ir.Keyword(":name"), ir.String("Alice")))}},
				{"keyword value with a space", ir.Vector{ir.NewMap(ir.E(ir.KW("tag"), ir.Keyword("a b")))}},
				{"string value with invalid utf-8", ir.Vector{ir.NewMap(ir.E(ir.KW("name"), ir.String("a\xffb")))}},
			}
			for _, tt := range tests {
				_, err := c.Transact(ctx, tt.data)
				assert.True(t, ir.IsCode(err, ir.CodeParse), "%s: %v", tt.name, err)
			}
			assert.Equal(t, ir.TxBase, c.DB().BasisT(), "nothing committed")

			transact(t, c, `[{:first-name "Alice" :tag :a.b/c}]`)
			want := c.DB().Collect(Pattern{})
			require.NoError(t, c.Close())

			b, err = store.Open(ctx, cfg)
			require.NoError(t, err)
			c, err = Open(ctx, cfg, b)
			require.NoError(t, err)
			defer c.Close()

			assert.Equal(t, want, c.DB().Collect(Pattern{}))
			tags := c.DB().Collect(Pattern{A: ir.KW("tag")})
			require.Len(t, tags, 1)
			assert.Equal(t, ir.Keyword("a.b/c"), tags[0].V)
		})
	}
}

func TestConcurrentTransactsAreTotallyOrdered(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, nameSchema)

	const writers = 20
	var wg sync.WaitGroup
	txIDs := make([]int64, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.Transact(context.Background(), edn.MustRead(fmt.Sprintf(`[{:name "w%d"}]`, i)))
			errs[i] = err
			if err == nil {
				txIDs[i] = r.TxID
			}
		}(i)
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := range txIDs {
		require.NoError(t, errs[i])
		assert.False(t, seen[txIDs[i]], "duplicate tx id %d", txIDs[i])
		seen[txIDs[i]] = true
	}
	assert.Equal(t, ir.TxBase+1+writers, c.DB().BasisT())

	entities := map[int64]bool{}
	for _, d := range c.DB().Collect(Pattern{A: ir.KW("name")}) {
		entities[d.E] = true
	}
	assert.Len(t, entities, writers)
}

func TestTransactAfterClose(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
	err := transactErr(t, c, nameSchema)
	assert.True(t, ir.IsCode(err, ir.CodeTransaction))
}

func TestPatternIndexChoice(t *testing.T) {
	tests := []struct {
		name string
		p    Pattern
		want Index
	}{
		{"entity", Pattern{E: 1}, IndexEAVT},
		{"entity and attribute", Pattern{E: 1, A: "name"}, IndexEAVT},
		{"attribute and value", Pattern{A: "name", V: ir.String("A")}, IndexAVET},
		{"attribute", Pattern{A: "name"}, IndexAEVT},
		{"value only", Pattern{V: ir.String("A")}, IndexScan},
		{"nothing", Pattern{}, IndexScan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.Index())
		})
	}
}

func TestSearchByValueOnly(t *testing.T) {
	c, _ := openMem(t, config.FlexibilityWrite)
	transact(t, c, nameSchema)
	transact(t, c, `[{:name "A"} {:name "B"}]`)

	got := c.DB().Collect(Pattern{V: ir.String("B")})
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].E)
}
