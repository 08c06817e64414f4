// Package queue persists jobs in SQLite and implements the leased job source
// the worker loop consumes.
//
// Jobs move through pending, leased, done, and dead. FetchNext claims the
// oldest eligible pending job for a role in a single UPDATE ... RETURNING
// statement, so two workers sharing the database never hold the same job.
// Leases carry a random token; Ack, Nack, and ExtendLease only apply while the
// caller still holds the token, and expired leases are reclaimed on fetch.
//
// The same database holds the results table used by the sqlite result store.
// Schema changes bump the version in schema.go; the database is treated as
// transient and recreated rather than migrated.
package queue
