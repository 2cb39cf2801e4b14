// Package providers defines the contract every speech-synthesis backend
// implements, plus the request/result types shared by the orchestrator,
// selector and transport layers.
package providers

import (
	"context"
)

// SynthesisProvider is the unified interface over all speech backends.
type SynthesisProvider interface {
	// Name returns the registry tag of the provider (edge, openai, neural).
	Name() string

	// Initialize prepares the provider for traffic.
	Initialize() error

	// Cleanup releases provider resources.
	Cleanup() error

	// HealthCheck probes the backend with a lightweight request. The circuit
	// breaker calls this when it half-opens.
	HealthCheck(ctx context.Context) error

	// Capabilities reports what this backend can do.
	Capabilities() Capabilities

	// Voices lists the builtin voices of this backend.
	Voices() []Voice

	// Synthesize renders text into a complete audio payload.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// StreamingSynthesizer is implemented by providers that can deliver audio
// incrementally. The orchestrator type-asserts for it and re-chunks blocking
// results for providers that lack it, so callers see one stream contract.
type StreamingSynthesizer interface {
	SynthesisProvider

	// SynthesizeStream renders text into an ordered chunk stream. The channel
	// is closed after the final chunk; a mid-stream failure is delivered as a
	// chunk with Err set.
	SynthesizeStream(ctx context.Context, req SynthesisRequest) (<-chan StreamChunk, error)
}

// Capabilities describes the static feature surface of a backend.
type Capabilities struct {
	Streaming     bool     `json:"streaming"`
	VoiceCloning  bool     `json:"voice_cloning"`
	Formats       []string `json:"formats"`
	SampleRates   []int    `json:"sample_rates"`
	Languages     []string `json:"languages"`
	MaxTextLength int      `json:"max_text_length"`
}

// SupportsFormat reports whether the backend can emit the given container.
func (c Capabilities) SupportsFormat(format string) bool {
	if format == "" {
		return true
	}
	for _, f := range c.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// SupportsLanguage reports whether the backend covers the given language
// code. An empty language list means "any".
func (c Capabilities) SupportsLanguage(lang string) bool {
	if lang == "" || len(c.Languages) == 0 {
		return true
	}
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}
