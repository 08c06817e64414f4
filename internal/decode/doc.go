// Package decode demultiplexes fetched media into the representation each
// worker role consumes.
//
// Decoding is lazy and role-selective: Frames starts an ffmpeg process that
// emits sampled RGB24 video frames and never touches audio, while Audio
// starts one that emits 16 kHz mono PCM and never decodes video. Both
// sequences are forward-only and must be closed by the caller; Close kills
// the ffmpeg process. A caller that needs two passes opens two sequences.
//
// Corrupt or unsupported containers fail with services.ErrDecode. Audio
// streams that cannot be interpreted fail with services.ErrAudioFormat.
package decode
