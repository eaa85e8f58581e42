// Package recur materializes recurring events into concrete, individually
// addressable event instances.
//
// Recur is a library, not a service. A recurring event is stored as a base
// template event plus a recurrence rule. Instances are generated lazily: the
// read path calls Materialize for an organization right before it lists
// that organization's events, and each rule is advanced from its persisted
// checkpoint up to a horizon of today plus a lookahead window.
//
// Key properties:
//   - Idempotent and safe under concurrent calls: each rule advances through
//     one atomic checkpoint compare-and-swap plus bulk insert
//   - Occurrence limits count every instance ever created, deleted or not
//   - Failed commits leave no partial state, with or without transactions
//   - Composable store pattern with multiple backends (Postgres, pgx, SQLite,
//     MongoDB, Redis, Memory)
//
// Quick start:
//
//	r, err := recur.New(
//	    recur.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.CreateRecurringEvent(ctx, recurrence.Input{
//	    OrganizationID: "org_123",
//	    Title:          "Weekly standup",
//	    Pattern:        "WEEKLY",
//	    StartDate:      "2025-01-06",
//	})
//
//	events, err := r.ListEvents(ctx, "org_123", event.ListOpts{})
package recur
