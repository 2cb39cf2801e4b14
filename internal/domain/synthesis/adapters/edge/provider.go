// Package edge adapts Microsoft Edge's free neural text-to-speech endpoint
// to the SynthesisProvider contract.
package edge

import (
	"context"
	"fmt"

	"github.com/wujunwei928/edge-tts-go/edge_tts"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

const providerName = "edge"

// Config holds the edge voice defaults.
type Config struct {
	Voice      string
	SampleRate int
}

// Provider renders speech through the Edge TTS websocket API. The service is
// free, so rendered characters carry no cost.
type Provider struct {
	cfg         Config
	logger      *logging.Logger
	initialized bool
}

// New creates the edge provider.
func New(cfg Config, logger *logging.Logger) *Provider {
	return &Provider{cfg: cfg, logger: logger}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Initialize() error {
	if p.cfg.Voice == "" {
		p.cfg.Voice = "en-US-AriaNeural"
	}
	if p.cfg.SampleRate <= 0 {
		p.cfg.SampleRate = 24000
	}
	p.initialized = true
	p.logger.InfoTag("Provider", "edge ready, default voice %s", p.cfg.Voice)
	return nil
}

func (p *Provider) Cleanup() error {
	p.initialized = false
	return nil
}

// HealthCheck renders a one-word probe. Edge has no status endpoint, so a
// tiny synthesis is the only reliable signal.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.render(ctx, "ok", providers.SynthesisOptions{})
	return err
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Streaming:     false,
		VoiceCloning:  false,
		Formats:       []string{util.FormatMP3},
		SampleRates:   []int{24000},
		MaxTextLength: 5000,
	}
}

func (p *Provider) Voices() []providers.Voice {
	return []providers.Voice{
		{ID: "en-US-AriaNeural", Name: "Aria", Language: "en", Gender: "female", Provider: providerName},
		{ID: "en-US-GuyNeural", Name: "Guy", Language: "en", Gender: "male", Provider: providerName},
		{ID: "en-GB-SoniaNeural", Name: "Sonia", Language: "en", Gender: "female", Provider: providerName},
		{ID: "zh-CN-XiaoxiaoNeural", Name: "Xiaoxiao", Language: "zh", Gender: "female", Provider: providerName},
		{ID: "zh-CN-YunyangNeural", Name: "Yunyang", Language: "zh", Gender: "male", Provider: providerName},
		{ID: "ja-JP-NanamiNeural", Name: "Nanami", Language: "ja", Gender: "female", Provider: providerName},
		{ID: "de-DE-KatjaNeural", Name: "Katja", Language: "de", Gender: "female", Provider: providerName},
		{ID: "fr-FR-DeniseNeural", Name: "Denise", Language: "fr", Gender: "female", Provider: providerName},
	}
}

func (p *Provider) Synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	if !p.initialized {
		return nil, errors.New(errors.KindProviderUnavailable, "edge.Synthesize", "provider not initialized")
	}
	if req.Text == "" {
		return nil, errors.New(errors.KindInvalidRequest, "edge.Synthesize", "text is empty")
	}

	audio, err := p.render(ctx, req.Text, req.Options)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesisFailed, "edge.Synthesize", "edge render failed", err)
	}

	duration, err := util.ProbeDuration(audio, util.FormatMP3)
	if err != nil {
		p.logger.DebugTag("Provider", "edge duration probe failed: %v", err)
	}
	return &providers.SynthesisResult{
		Audio:      audio,
		Format:     util.FormatMP3,
		SampleRate: p.cfg.SampleRate,
		Duration:   duration,
		Provider:   providerName,
	}, nil
}

// render runs the websocket exchange. The library takes no context, so the
// call is raced against ctx in a goroutine.
func (p *Provider) render(ctx context.Context, text string, opts providers.SynthesisOptions) ([]byte, error) {
	voice := opts.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}

	connOpts := []edge_tts.CommunicateOption{
		edge_tts.SetVoice(voice),
		edge_tts.SetRate(formatRate(opts.Speed)),
		edge_tts.SetVolume(formatVolume(opts.Volume)),
		edge_tts.SetPitch(formatPitch(opts.Pitch)),
	}

	conn, err := edge_tts.NewCommunicate(text, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("create communicator: %w", err)
	}

	type outcome struct {
		audio []byte
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		audio, err := conn.Stream()
		done <- outcome{audio: audio, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if len(out.audio) == 0 {
			return nil, fmt.Errorf("empty audio for voice %s", voice)
		}
		return out.audio, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// formatRate converts a speed multiplier to the signed percent string the
// Edge API expects, e.g. 1.2 -> "+20%".
func formatRate(speed float64) string {
	if speed <= 0 {
		speed = 1.0
	}
	return fmt.Sprintf("%+d%%", int((speed-1)*100))
}

func formatVolume(volume float64) string {
	if volume <= 0 {
		volume = 1.0
	}
	return fmt.Sprintf("%+d%%", int((volume-1)*100))
}

// formatPitch converts a pitch multiplier to a signed Hz offset.
func formatPitch(pitch float64) string {
	if pitch <= 0 {
		pitch = 1.0
	}
	return fmt.Sprintf("%+dHz", int((pitch-1)*100))
}

var _ providers.SynthesisProvider = (*Provider)(nil)
