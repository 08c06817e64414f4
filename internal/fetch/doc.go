// Package fetch resolves a job's media reference to a local, seekable file.
//
// Local paths and file:// URIs are opened in place. HTTP(S) references are
// downloaded into the job's working directory through a ".part" file that is
// renamed once the body has been fully received within the configured size
// and time budgets. Every failure is tagged with services.ErrFetch so the
// worker loop treats it as transient.
package fetch
