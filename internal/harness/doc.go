// Package harness runs scripted scenarios against a record collection and
// snapshots their outcomes for golden comparison.
//
// # Scenario Format
//
//	name: latest_email
//	description: "Lookup returns the most recent record"
//	collection:
//	  name: users
//	  lookup_keys: [email]
//	ids: [u1, u2]
//	steps:
//	  - op: create
//	    fields: { email: a@x.com, name: Ann }
//	  - op: find_one_by_lookup
//	    field: email
//	    value: a@x.com
//	    expect:
//	      found: true
//	      id: u2
//
// Supported ops are create, find_by_id, find_one_by_lookup, find_by_lookup
// (with optional limit and reverse), find_all and delete_all. An expect
// clause may check found, id, fields (subset), count, ids (exact order) and
// error, which is one of validation, config, batch, conflict, unavailable
// or error.
//
// # Determinism
//
// Every run starts from an empty in-memory store. Timestamps come from a
// fixed clock starting at 1000.000 ms and advancing 1 ms per create, and
// auto ids come from the scenario's ids list, so the same scenario always
// produces the same snapshot.
package harness
