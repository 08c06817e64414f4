// Package jobs defines the job model shared by every job source and the
// worker loop: roles, the leased Job, and the Source contract with its
// optional lease extension.
package jobs
