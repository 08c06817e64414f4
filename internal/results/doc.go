// Package results defines the persisted JobResult document.
//
// Documents are JSON with a fixed schema_version. Field names and types are
// frozen per version so downstream consumers can decode results without
// knowing which worker build produced them. Encode validates every document
// against the embedded JSON Schema before it leaves the worker.
package results
