package providers

import (
	"time"
)

// SynthesisRequest carries one text-to-speech request through the pipeline.
// It is immutable once issued.
type SynthesisRequest struct {
	// Text is the phrase to render.
	Text string `json:"text"`

	// VoiceModelID names a trained voice model. When set, the orchestrator
	// resolves it to the owning provider and its reference parameters before
	// selection.
	VoiceModelID string `json:"voice_model_id,omitempty"`

	// Provider pins a preferred backend. It bypasses scoring when the backend
	// passes the eligibility filter.
	Provider string `json:"provider,omitempty"`

	// Options are the rendering parameters.
	Options SynthesisOptions `json:"options,omitempty"`
}

// SynthesisOptions are the rendering parameters that shape the output audio.
type SynthesisOptions struct {
	// Voice is a builtin voice name of the target backend.
	Voice string `json:"voice,omitempty"`

	// Speed is the speaking rate multiplier (0.5-2.0), 1.0 = normal.
	Speed float64 `json:"speed,omitempty"`

	// Pitch shifts the voice pitch (0.5-2.0), 1.0 = normal.
	Pitch float64 `json:"pitch,omitempty"`

	// Volume scales loudness (0.0-1.0), 0 = provider default.
	Volume float64 `json:"volume,omitempty"`

	// Format is the requested container (mp3, wav, pcm).
	Format string `json:"format,omitempty"`

	// SampleRate in Hz.
	SampleRate int `json:"sample_rate,omitempty"`

	// Language code, e.g. "en" or "zh".
	Language string `json:"language,omitempty"`

	// ReferenceAudio points at a reference sample for cloned voices. Only
	// honored by backends with the VoiceCloning capability.
	ReferenceAudio string `json:"reference_audio,omitempty"`

	// ReferenceText is the transcript of ReferenceAudio.
	ReferenceText string `json:"reference_text,omitempty"`
}

// SynthesisResult is the rendered audio plus its provenance.
type SynthesisResult struct {
	Audio      []byte        `json:"audio"`
	Format     string        `json:"format"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`

	// Provider that produced the audio. A cache hit keeps the original
	// producer's tag.
	Provider string `json:"provider"`

	// Cost in USD charged for this render. Zero on cache hits.
	Cost float64 `json:"cost"`

	// Latency of the provider call. Zero on cache hits.
	Latency time.Duration `json:"latency"`

	// Cached marks results served from the result cache.
	Cached bool `json:"cached"`
}

// StreamChunk is one piece of a streamed synthesis result. Sequence numbers
// are strictly increasing from 0 and exactly one chunk carries IsLast.
type StreamChunk struct {
	Data     []byte `json:"data"`
	Sequence int    `json:"sequence"`
	IsLast   bool   `json:"is_last"`

	// Err reports a mid-stream failure. The chunk carrying it is the last one
	// delivered and its Data is empty.
	Err error `json:"-"`
}

// Voice is one builtin voice of a backend.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
	Provider string `json:"provider"`
}
