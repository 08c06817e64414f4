// Package preflight provides readiness checks for the directories, backends,
// and external binaries a worker depends on.
//
// The worker command runs RunAll once before entering its loop and refuses
// to start when a check fails. The CLI "deps" command renders the same
// results. Backend checks run only for the configured backend.
package preflight
