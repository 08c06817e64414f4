package transcribe

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// WriteWAV writes 16-bit mono PCM as a canonical RIFF/WAVE file.
func WriteWAV(path string, sampleRate int, samples []int16) error {
	if sampleRate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", sampleRate)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	w := bufio.NewWriter(file)

	const (
		channels      = 1
		bitsPerSample = 16
	)
	dataSize := uint32(len(samples) * 2)
	header := struct {
		ChunkID       [4]byte
		ChunkSize     uint32
		Format        [4]byte
		Subchunk1ID   [4]byte
		Subchunk1Size uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Subchunk2ID   [4]byte
		Subchunk2Size uint32
	}{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		_ = file.Close()
		return fmt.Errorf("write wav header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
		_ = file.Close()
		return fmt.Errorf("write wav data: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	return file.Close()
}
