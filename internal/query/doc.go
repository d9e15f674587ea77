// Package query evaluates Datalog queries against database revisions.
//
// A query is read from its data form into a small sealed intermediate
// representation, validated, and then evaluated by incremental joins:
//
//	[query data] → Parse → *Query → validate → evaluate → project → result
//
// FORMS:
//
// Vector form, with keyword-delimited sections:
//
//	[:find ?name ?age
//	 :in $ ?min
//	 :where [?e :name ?name]
//	        [?e :age ?age]
//	        [(>= ?age ?min)]]
//
// Map form, with the same sections as keys:
//
//	{:find [?name] :where [[?e :name ?name]]}
//
// EVALUATION:
//
// The relation starts as the product of the :in bindings and is extended
// one where clause at a time. A data pattern substitutes the variables bound
// so far and searches its source through the index the bound positions
// select (EAVT when the entity is bound, AVET when attribute and value are,
// AEVT when only the attribute is, otherwise a full scan). Predicates run as
// soon as all their variables are bound.
//
// A pattern constant that no stored datom can hold, such as a string
// against a long attribute, matches nothing. It is never an error.
//
// Every source is a fixed revision captured when the query starts, so a
// query never observes a transaction that commits while it runs.
package query
