package util

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Audio container formats handled by the pipeline.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
	FormatM4A  = "m4a"
	FormatOGG  = "ogg"
	FormatPCM  = "pcm"
)

// DetectFormat sniffs the audio container from its magic bytes. Unknown data
// returns the empty string.
func DetectFormat(data []byte) string {
	if len(data) < 12 {
		return ""
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// Bare MPEG frame sync, no ID3 envelope.
		return FormatMP3
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	}
	return ""
}

// ProbeDuration reports the playable duration of wav or mp3 audio. Other
// containers are rejected; callers treat that as "duration unknown".
func ProbeDuration(data []byte, format string) (time.Duration, error) {
	switch format {
	case FormatWAV:
		return wavDuration(data)
	case FormatMP3:
		return mp3Duration(data)
	default:
		return 0, fmt.Errorf("cannot probe duration of %q audio", format)
	}
}

// wavDuration walks the RIFF chunks for fmt (byte rate) and data (payload
// size).
func wavDuration(data []byte) (time.Duration, error) {
	if len(data) < 44 || !bytes.HasPrefix(data, []byte("RIFF")) {
		return 0, fmt.Errorf("not a RIFF wav file")
	}

	var byteRate uint32
	var dataSize uint32
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return 0, fmt.Errorf("truncated fmt chunk")
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			dataSize = chunkSize
		}

		offset = body + int(chunkSize)
		if chunkSize%2 == 1 {
			offset++ // chunks are word aligned
		}
	}

	if byteRate == 0 || dataSize == 0 {
		return 0, fmt.Errorf("missing fmt or data chunk")
	}
	seconds := float64(dataSize) / float64(byteRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

func mp3Duration(data []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	// The decoder always emits 16-bit stereo, 4 bytes per sample frame.
	frames := decoder.Length() / 4
	if decoder.SampleRate() == 0 {
		return 0, fmt.Errorf("mp3 reports zero sample rate")
	}
	seconds := float64(frames) / float64(decoder.SampleRate())
	return time.Duration(seconds * float64(time.Second)), nil
}

// MP3ToPCM decodes mp3 into 16-bit little-endian stereo PCM and reports the
// sample rate.
func MP3ToPCM(data []byte) ([]byte, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("read mp3 samples: %w", err)
	}
	return pcm, decoder.SampleRate(), nil
}

// PCMToWAV wraps raw 16-bit little-endian PCM in a RIFF/WAVE container.
func PCMToWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVHeader(&buf, len(pcm), sampleRate, channels, 16); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// WriteWAVHeader writes a canonical 44-byte RIFF/WAVE header for the given
// payload size.
func WriteWAVHeader(w io.Writer, dataSize, sampleRate, channels, bitsPerSample int) error {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36+dataSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // PCM
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(channels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(byteRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(dataSize))
}
