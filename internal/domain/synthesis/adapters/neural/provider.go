// Package neural adapts a self-hosted neural voice service to the
// SynthesisProvider contract. The service exposes a small JSON API:
// POST /synthesize for plain rendering, POST /clone for reference-audio
// cloning, POST /synthesize/stream for chunked NDJSON output, and
// GET /ready for liveness.
package neural

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/util"
)

const (
	providerName = "neural"

	defaultBaseURL = "http://127.0.0.1:9880"
	defaultSpeaker = "Serena"

	// The service rejects texts above this many characters.
	maxInputChars = 2000

	// NDJSON chunk lines carry base64 audio and can grow well past
	// bufio's default token size.
	scanBufferSize = 4 * 1024 * 1024
)

// Config holds the connection settings for the voice service.
type Config struct {
	BaseURL string
	Voice   string
	Timeout time.Duration
}

// Provider talks to the neural voice service over HTTP.
type Provider struct {
	cfg          Config
	client       *http.Client
	streamClient *http.Client
	logger       *logging.Logger
	initialized  bool
}

type synthesizeRequest struct {
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
	Language  string `json:"language,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`
}

type cloneRequest struct {
	Text         string `json:"text"`
	SpeakerAudio string `json:"speaker_audio"`
	RefText      string `json:"ref_text,omitempty"`
	Language     string `json:"language,omitempty"`
}

type synthesizeResponse struct {
	AudioData  string  `json:"audio_data"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	Language   string  `json:"language"`
	Speaker    string  `json:"speaker"`
}

type streamLine struct {
	Chunk          string `json:"chunk"`
	SequenceNumber int    `json:"sequence_number"`
	IsLast         bool   `json:"is_last"`
	Error          string `json:"error,omitempty"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New creates the neural provider.
func New(cfg Config, logger *logging.Logger) *Provider {
	return &Provider{cfg: cfg, logger: logger}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Initialize() error {
	if p.cfg.BaseURL == "" {
		p.cfg.BaseURL = defaultBaseURL
	}
	if p.cfg.Voice == "" {
		p.cfg.Voice = defaultSpeaker
	}
	if p.cfg.Timeout <= 0 {
		p.cfg.Timeout = 60 * time.Second
	}
	p.client = &http.Client{Timeout: p.cfg.Timeout}
	// Streams outlive any fixed deadline; cancellation comes from ctx.
	p.streamClient = &http.Client{}
	p.initialized = true
	p.logger.InfoTag("Provider", "neural ready at %s, default speaker %s", p.cfg.BaseURL, p.cfg.Voice)
	return nil
}

func (p *Provider) Cleanup() error {
	if p.client != nil {
		p.client.CloseIdleConnections()
	}
	if p.streamClient != nil {
		p.streamClient.CloseIdleConnections()
	}
	p.initialized = false
	return nil
}

// HealthCheck hits the service's readiness endpoint, which returns 503
// until the model weights are loaded.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if !p.initialized {
		return errors.New(errors.KindProviderUnavailable, "neural.HealthCheck", "provider not initialized")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/ready", nil)
	if err != nil {
		return errors.Wrap(errors.KindProviderUnavailable, "neural.HealthCheck", "build request", err)
	}
	res, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindProviderUnavailable, "neural.HealthCheck", "service unreachable", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.New(errors.KindProviderUnavailable, "neural.HealthCheck",
			fmt.Sprintf("service not ready: status %d", res.StatusCode))
	}
	return nil
}

func (p *Provider) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Streaming:     true,
		VoiceCloning:  true,
		Formats:       []string{util.FormatWAV},
		SampleRates:   []int{24000},
		Languages:     []string{"zh", "en", "ja", "ko", "de", "fr", "ru", "pt", "es", "it", "ur", "ar", "hi"},
		MaxTextLength: maxInputChars,
	}
}

func (p *Provider) Voices() []providers.Voice {
	return []providers.Voice{
		{ID: "Vivian", Name: "Vivian", Language: "zh", Gender: "female", Provider: providerName},
		{ID: "Serena", Name: "Serena", Language: "zh", Gender: "female", Provider: providerName},
		{ID: "Uncle_Fu", Name: "Uncle Fu", Language: "zh", Gender: "male", Provider: providerName},
		{ID: "Dylan", Name: "Dylan", Language: "zh", Gender: "male", Provider: providerName},
		{ID: "Eric", Name: "Eric", Language: "zh", Gender: "male", Provider: providerName},
		{ID: "Ryan", Name: "Ryan", Language: "en", Gender: "male", Provider: providerName},
		{ID: "Aiden", Name: "Aiden", Language: "en", Gender: "male", Provider: providerName},
		{ID: "Ono_Anna", Name: "Ono Anna", Language: "ja", Gender: "female", Provider: providerName},
		{ID: "Sohee", Name: "Sohee", Language: "ko", Gender: "female", Provider: providerName},
	}
}

func (p *Provider) Synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	if !p.initialized {
		return nil, errors.New(errors.KindProviderUnavailable, "neural.Synthesize", "provider not initialized")
	}
	if req.Text == "" {
		return nil, errors.New(errors.KindInvalidRequest, "neural.Synthesize", "text is empty")
	}
	if len([]rune(req.Text)) > maxInputChars {
		return nil, errors.New(errors.KindInvalidRequest, "neural.Synthesize", "text exceeds 2000 characters")
	}

	var (
		path string
		body any
	)
	if req.Options.ReferenceAudio != "" {
		path = "/clone"
		body = cloneRequest{
			Text:         req.Text,
			SpeakerAudio: req.Options.ReferenceAudio,
			RefText:      req.Options.ReferenceText,
			Language:     req.Options.Language,
		}
	} else {
		path = "/synthesize"
		body = synthesizeRequest{
			Text:     req.Text,
			Speaker:  p.speaker(req.Options),
			Language: req.Options.Language,
		}
	}

	var out synthesizeResponse
	if err := p.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioData)
	if err != nil {
		return nil, errors.Wrap(errors.KindSynthesisFailed, "neural.Synthesize", "decode audio payload", err)
	}
	if len(audio) == 0 {
		return nil, errors.New(errors.KindSynthesisFailed, "neural.Synthesize", "empty audio response")
	}

	sampleRate := out.SampleRate
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &providers.SynthesisResult{
		Audio:      audio,
		Format:     util.FormatWAV,
		SampleRate: sampleRate,
		Duration:   time.Duration(out.Duration * float64(time.Second)),
		Provider:   providerName,
	}, nil
}

// SynthesizeStream renders through the chunked endpoint. The service emits
// one JSON object per line; a line with a non-empty error field aborts the
// stream.
func (p *Provider) SynthesizeStream(ctx context.Context, req providers.SynthesisRequest) (<-chan providers.StreamChunk, error) {
	if !p.initialized {
		return nil, errors.New(errors.KindProviderUnavailable, "neural.SynthesizeStream", "provider not initialized")
	}
	if req.Text == "" {
		return nil, errors.New(errors.KindInvalidRequest, "neural.SynthesizeStream", "text is empty")
	}

	payload, err := sonic.Marshal(synthesizeRequest{
		Text:      req.Text,
		Speaker:   p.speaker(req.Options),
		Language:  req.Options.Language,
		Streaming: true,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "neural.SynthesizeStream", "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/synthesize/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, "neural.SynthesizeStream", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := p.streamClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(errors.KindProviderUnavailable, "neural.SynthesizeStream", "service unreachable", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, p.statusError("neural.SynthesizeStream", res)
	}

	out := make(chan providers.StreamChunk)
	go p.consumeStream(ctx, res.Body, out)
	return out, nil
}

func (p *Provider) consumeStream(ctx context.Context, body io.ReadCloser, out chan<- providers.StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), scanBufferSize)

	emit := func(chunk providers.StreamChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var sl streamLine
		if err := sonic.Unmarshal(line, &sl); err != nil {
			emit(providers.StreamChunk{
				IsLast: true,
				Err:    errors.Wrap(errors.KindSynthesisFailed, "neural.SynthesizeStream", "decode chunk line", err),
			})
			return
		}
		if sl.Error != "" {
			emit(providers.StreamChunk{
				Sequence: sl.SequenceNumber,
				IsLast:   true,
				Err:      errors.New(errors.KindSynthesisFailed, "neural.SynthesizeStream", sl.Error),
			})
			return
		}
		data, err := base64.StdEncoding.DecodeString(sl.Chunk)
		if err != nil {
			emit(providers.StreamChunk{
				IsLast: true,
				Err:    errors.Wrap(errors.KindSynthesisFailed, "neural.SynthesizeStream", "decode chunk payload", err),
			})
			return
		}
		if !emit(providers.StreamChunk{Data: data, Sequence: sl.SequenceNumber, IsLast: sl.IsLast}) {
			return
		}
		if sl.IsLast {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		emit(providers.StreamChunk{
			IsLast: true,
			Err:    errors.Wrap(errors.KindSynthesisFailed, "neural.SynthesizeStream", "read stream", err),
		})
	}
}

func (p *Provider) speaker(opts providers.SynthesisOptions) string {
	if opts.Voice != "" {
		return opts.Voice
	}
	return p.cfg.Voice
}

func (p *Provider) postJSON(ctx context.Context, path string, body, out any) error {
	op := "neural." + path

	payload, err := sonic.Marshal(body)
	if err != nil {
		return errors.Wrap(errors.KindInternal, op, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(errors.KindInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindProviderUnavailable, op, "service unreachable", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return p.statusError(op, res)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(errors.KindSynthesisFailed, op, "read response", err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return errors.Wrap(errors.KindSynthesisFailed, op, "decode response", err)
	}
	return nil
}

// statusError turns a non-200 service reply into a typed error, pulling the
// detail message out of the JSON body when one is present.
func (p *Provider) statusError(op string, res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := fmt.Sprintf("service returned status %d", res.StatusCode)
	var er errorResponse
	if err := sonic.Unmarshal(raw, &er); err == nil && er.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, er.Detail)
	}
	if res.StatusCode == http.StatusServiceUnavailable {
		return errors.New(errors.KindProviderUnavailable, op, msg)
	}
	return errors.New(errors.KindSynthesisFailed, op, msg)
}

var (
	_ providers.SynthesisProvider    = (*Provider)(nil)
	_ providers.StreamingSynthesizer = (*Provider)(nil)
)
