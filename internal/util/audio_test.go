package util

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFormat(t *testing.T) {
	wav := append([]byte("RIFF"), 0, 0, 0, 0)
	wav = append(wav, []byte("WAVE")...)

	m4a := append([]byte{0, 0, 0, 24}, []byte("ftypM4A ")...)

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"wav", wav, FormatWAV},
		{"flac", append([]byte("fLaC"), make([]byte, 8)...), FormatFLAC},
		{"mp3 id3", append([]byte("ID3"), make([]byte, 9)...), FormatMP3},
		{"mp3 frame sync", append([]byte{0xFF, 0xFB}, make([]byte, 10)...), FormatMP3},
		{"ogg", append([]byte("OggS"), make([]byte, 8)...), FormatOGG},
		{"m4a", m4a, FormatM4A},
		{"unknown", []byte("hello world!"), ""},
		{"too short", []byte("RIFF"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.data))
		})
	}
}

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	err := WriteWAVHeader(&buf, 1000, 24000, 1, 16)
	require.NoError(t, err)
	assert.Equal(t, 44, buf.Len())
	assert.Equal(t, "RIFF", string(buf.Bytes()[:4]))
	assert.Equal(t, "WAVE", string(buf.Bytes()[8:12]))
}

func TestPCMToWAVDuration(t *testing.T) {
	// One second of 16kHz mono 16-bit PCM.
	pcm := make([]byte, 16000*2)
	wav, err := PCMToWAV(pcm, 16000, 1)
	require.NoError(t, err)

	assert.Equal(t, FormatWAV, DetectFormat(wav))

	dur, err := ProbeDuration(wav, FormatWAV)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dur.Seconds(), 0.001)
}

func TestProbeDurationRejectsUnknown(t *testing.T) {
	_, err := ProbeDuration([]byte("fLaC...."), FormatFLAC)
	assert.Error(t, err)

	_, err = ProbeDuration([]byte("not audio at all"), FormatWAV)
	assert.Error(t, err)
}

func TestProbeDurationBadMP3(t *testing.T) {
	_, err := ProbeDuration(bytes.Repeat([]byte{0x00}, 64), FormatMP3)
	assert.Error(t, err)
}

func TestWAVDurationLongForm(t *testing.T) {
	// Half a second of 48kHz stereo.
	pcm := make([]byte, 48000*2*2/2)
	wav, err := PCMToWAV(pcm, 48000, 2)
	require.NoError(t, err)

	dur, err := ProbeDuration(wav, FormatWAV)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, dur.Seconds(), 0.001)

	if dur < 400*time.Millisecond || dur > 600*time.Millisecond {
		t.Fatalf("duration out of range: %v", dur)
	}
}
