// Package services defines shared utilities consumed by the worker loop and
// the role pipelines.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, roles, stage names, and correlation
//     identifiers for logging.
//   - Error markers plus the Wrap helper that tag failures with a Kind
//     (fetch, decode, quality, inference, audio_format, timeout) so the
//     worker loop can decide between redelivery and permanent failure in one
//     place.
//
// Use these helpers when wiring new stage logic so error classification and
// observability stay uniform across both roles.
package services
