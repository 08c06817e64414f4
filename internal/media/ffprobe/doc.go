// Package ffprobe wraps `ffprobe -of json` and exposes the stream and
// container properties the decode stage needs: stream kinds, dimensions,
// frame rate, sample format and duration.
package ffprobe
