// Package openai adapts the OpenAI speech endpoint to the SynthesisProvider
// contract.
package openai

import (
	"context"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

const (
	providerName = "openai"

	// The speech endpoint rejects inputs above this many characters.
	maxInputChars = 4096
)

// Config holds the OpenAI client settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Timeout time.Duration
}

// Provider renders speech through the OpenAI audio API.
type Provider struct {
	cfg         Config
	client      *openai.Client
	logger      *logging.Logger
	initialized bool
}

// New creates the OpenAI provider.
func New(cfg Config, logger *logging.Logger) *Provider {
	return &Provider{cfg: cfg, logger: logger}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Initialize() error {
	if p.cfg.APIKey == "" {
		return errors.New(errors.KindConfig, "openai.Initialize", "api_key is required")
	}
	if p.cfg.Model == "" {
		p.cfg.Model = string(openai.TTSModel1)
	}
	if p.cfg.Voice == "" {
		p.cfg.Voice = string(openai.VoiceAlloy)
	}
	if p.cfg.Timeout <= 0 {
		p.cfg.Timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.BaseURL != "" {
		clientConfig.BaseURL = p.cfg.BaseURL
	}
	p.client = openai.NewClientWithConfig(clientConfig)
	p.initialized = true
	p.logger.InfoTag("Provider", "openai ready, model %s, default voice %s", p.cfg.Model, p.cfg.Voice)
	return nil
}

func (p *Provider) Cleanup() error {
	p.initialized = false
	return nil
}

func (p *Provider) HealthCheck(ctx context.Context) error {
	if !p.initialized {
		return errors.New(errors.KindProviderUnavailable, "openai.HealthCheck", "provider not initialized")
	}
	if _, err := p.client.ListModels(ctx); err != nil {
		return errors.Wrap(errors.KindProviderUnavailable, "openai.HealthCheck", "API probe failed", err)
	}
	return nil
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Streaming:     false,
		VoiceCloning:  false,
		Formats:       []string{util.FormatMP3, util.FormatWAV, util.FormatFLAC, util.FormatPCM},
		SampleRates:   []int{24000},
		MaxTextLength: maxInputChars,
	}
}

func (p *Provider) Voices() []providers.Voice {
	ids := []struct {
		id     openai.SpeechVoice
		gender string
	}{
		{openai.VoiceAlloy, "neutral"},
		{openai.VoiceEcho, "male"},
		{openai.VoiceFable, "male"},
		{openai.VoiceOnyx, "male"},
		{openai.VoiceNova, "female"},
		{openai.VoiceShimmer, "female"},
	}
	voices := make([]providers.Voice, 0, len(ids))
	for _, v := range ids {
		voices = append(voices, providers.Voice{
			ID:       string(v.id),
			Name:     string(v.id),
			Language: "en",
			Gender:   v.gender,
			Provider: providerName,
		})
	}
	return voices
}

func (p *Provider) Synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	if !p.initialized {
		return nil, errors.New(errors.KindProviderUnavailable, "openai.Synthesize", "provider not initialized")
	}
	if req.Text == "" {
		return nil, errors.New(errors.KindInvalidRequest, "openai.Synthesize", "text is empty")
	}
	if len([]rune(req.Text)) > maxInputChars {
		return nil, errors.New(errors.KindInvalidRequest, "openai.Synthesize", "text exceeds 4096 characters")
	}

	voice := req.Options.Voice
	if voice == "" {
		voice = p.cfg.Voice
	}
	format := speechFormat(req.Options.Format)

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: format,
		Speed:          clampSpeed(req.Options.Speed),
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res, err := p.client.CreateSpeech(reqCtx, speechReq)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesisFailed, "openai.Synthesize", "speech request failed", err)
	}
	defer res.Close()

	audio, err := io.ReadAll(res)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesisFailed, "openai.Synthesize", "read audio stream", err)
	}
	if len(audio) == 0 {
		return nil, errors.New(errors.KindSynthesisFailed, "openai.Synthesize", "empty audio response")
	}

	outFormat := resultFormat(format)
	duration, err := util.ProbeDuration(audio, outFormat)
	if err != nil {
		p.logger.DebugTag("Provider", "openai duration probe failed: %v", err)
	}
	return &providers.SynthesisResult{
		Audio:      audio,
		Format:     outFormat,
		SampleRate: 24000,
		Duration:   duration,
		Provider:   providerName,
	}, nil
}

// speechFormat maps a requested container to the API's response format,
// defaulting to mp3 for anything the endpoint cannot produce.
func speechFormat(format string) openai.SpeechResponseFormat {
	switch format {
	case util.FormatWAV:
		return openai.SpeechResponseFormatWav
	case util.FormatFLAC:
		return openai.SpeechResponseFormatFlac
	case util.FormatPCM:
		return openai.SpeechResponseFormatPcm
	default:
		return openai.SpeechResponseFormatMp3
	}
}

func resultFormat(format openai.SpeechResponseFormat) string {
	switch format {
	case openai.SpeechResponseFormatWav:
		return util.FormatWAV
	case openai.SpeechResponseFormatFlac:
		return util.FormatFLAC
	case openai.SpeechResponseFormatPcm:
		return util.FormatPCM
	default:
		return util.FormatMP3
	}
}

// clampSpeed keeps the multiplier inside the API's accepted 0.25-4.0 range.
func clampSpeed(speed float64) float64 {
	if speed <= 0 {
		return 1.0
	}
	if speed < 0.25 {
		return 0.25
	}
	if speed > 4.0 {
		return 4.0
	}
	return speed
}

var _ providers.SynthesisProvider = (*Provider)(nil)
