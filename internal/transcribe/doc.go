// Package transcribe implements the TRANSCRIBE role.
//
// Decoded 16 kHz mono PCM is cut into fixed windows that overlap by a few
// seconds. Each window goes to a speech Engine (WhisperX via uvx, or
// whisper.cpp) as a WAV file, and the per-window segments are shifted to
// absolute time and stitched: duplicates inside an overlap keep the more
// confident copy, the overlap midpoint decides between disagreeing chunks,
// and a final pass guarantees ordered, non-overlapping output.
//
// Engine failures surface as services.ErrInference. Unusable audio streams
// are rejected by the decoder with services.ErrAudioFormat before any
// inference runs.
package transcribe
