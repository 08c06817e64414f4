// Package main hosts the mediaworker CLI entrypoint and command graph.
//
// "mediaworker worker" runs the worker loop for one role until SIGINT or
// SIGTERM. The remaining commands operate directly on the configured job
// source and result store: enqueueing jobs, inspecting and repairing the
// queue, showing stored results, scaffolding configuration, and checking
// external dependencies.
package main
