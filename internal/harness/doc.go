// Package harness runs the scenario-driven end-to-end tests described in
// spec.md §8 ("End-to-end scenarios"): a sequence of mutations, queries,
// and disconnect/reconnect steps against one coordinator and one or more
// named clients, expressed as a YAML fixture rather than hand-written Go,
// continuing the teacher's internal/harness shape (YAML scenarios,
// golden-file trace comparison) one layer down from its original
// concept/action model.
//
// Unlike a live internal/document + internal/syncproto wiring (exercised
// directly by internal/document's own end-to-end test), the harness
// drives the coordinator and timeline/rebase machinery through direct,
// synchronous calls — no goroutines, no network pipe — so that a
// scenario's trace is a pure function of its steps and reproducible
// byte-for-byte for golden comparison.
//
// # Scenario format
//
//	name: local_then_sync
//	description: "client mutates locally, then syncs with the coordinator"
//	clients: [a]
//	steps:
//	  - client: a
//	    mutate: { tag: InitSchema }
//	  - client: a
//	    mutate: { tag: CreateTask, args: {id: "1", title: "a"} }
//	  - client: a
//	    query: "SELECT id FROM tasks ORDER BY id"
//	    expect_rows: 1
//	  - sync: true
//	  - client: a
//	    query: "SELECT id FROM tasks ORDER BY id"
//	    expect_rows: 1
package harness
