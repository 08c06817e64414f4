// Package redisqueue implements the job source on Redis for deployments that
// run workers on several hosts. It honours the same lease contract as the
// SQLite queue: a job is held by one worker at a time, nacked jobs come back
// after their delay, and leases that lapse are returned to pending.
package redisqueue
