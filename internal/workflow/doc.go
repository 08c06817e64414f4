// Package workflow runs the worker loop that moves jobs from a job source
// through a role pipeline and into the result sink.
//
// A Worker leases one job at a time, gives it a scratch directory and a
// deadline, extends the lease while the pipeline runs, and converts every
// outcome (success, classified error, panic, or an abandoned pipeline) into
// a JobResult. RetryPolicy is the only place that decides between
// redelivery and permanent failure; the sink applies that decision.
//
// Shutdown stops fetching immediately. A job already in flight keeps
// running for the configured grace period before its context is cancelled,
// and is still handed to the sink so it is never left half-acknowledged.
package workflow
