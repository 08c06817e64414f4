// Package language normalizes the configured transcription language into
// the ISO 639-1 codes speech engines accept.
package language
