// Package whisperx invokes WhisperX through uvx and parses its JSON output.
//
// Callers hand it a WAV file and receive sentence segments with word-level
// alignment scores. Model, device and language selection are carried in
// Config.
package whisperx
