// Package notifications delivers worker events to ntfy.
//
// The default implementation posts to the topic URL configured under
// [notifications] and degrades to a no-op when no topic is set. Callers
// publish an Event with a loosely typed Payload; formatting into ntfy
// title, tags and priority lives here so the worker loop and sink stay free
// of HTTP glue. Individual event families can be switched off in config.
package notifications
