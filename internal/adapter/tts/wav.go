package tts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// PCM format of Gemini speech output.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
	DefaultBitDepth   = 16
)

// ErrNotWAV is returned for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// WriteWAV wraps raw little-endian PCM samples in a canonical WAV header.
func WriteWAV(w io.Writer, pcm []byte, sampleRate, channels, bitDepth int) error {
	blockAlign := channels * bitDepth / 8
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(bitDepth),
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// PCMDuration returns the playing time of n bytes of PCM audio in seconds.
func PCMDuration(n, sampleRate, channels, bitDepth int) float64 {
	bytesPerSecond := sampleRate * channels * bitDepth / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return float64(n) / float64(bytesPerSecond)
}

// WAVDuration reads the header of a WAV file and returns its duration. It
// walks the chunk list, so files with extra chunks before "data" work too.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var riff struct {
		ID   [4]byte
		Size uint32
		WAVE [4]byte
	}
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return 0, ErrNotWAV
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.WAVE[:]) != "WAVE" {
		return 0, ErrNotWAV
	}

	var byteRate uint32
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(f, binary.LittleEndian, &chunk); err != nil {
			return 0, fmt.Errorf("%w: no data chunk", ErrNotWAV)
		}
		switch string(chunk.ID[:]) {
		case "fmt ":
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(f, binary.LittleEndian, &fmtChunk); err != nil {
				return 0, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			byteRate = fmtChunk.ByteRate
			if rest := int64(chunk.Size) - 16; rest > 0 {
				if _, err := f.Seek(rest, io.SeekCurrent); err != nil {
					return 0, err
				}
			}
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return float64(chunk.Size) / float64(byteRate), nil
		default:
			// chunks are word aligned
			if _, err := f.Seek(int64(chunk.Size+chunk.Size%2), io.SeekCurrent); err != nil {
				return 0, err
			}
		}
	}
}
