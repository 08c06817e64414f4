// Package logs locates and tails worker run logs for `mediaworker logs`.
//
// Each worker run writes mediaworker-<run-id>.log under the log directory.
// Latest picks the newest of those; Tail reads the last N lines and, in
// follow mode, polls for appended lines from a byte offset until the
// caller's context ends.
package logs
