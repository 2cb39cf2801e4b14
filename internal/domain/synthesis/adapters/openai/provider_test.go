package openai

import (
	"context"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
)

func TestInitializeRequiresAPIKey(t *testing.T) {
	p := New(Config{}, nil)
	err := p.Initialize()
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestInitializeDefaults(t *testing.T) {
	p := New(Config{APIKey: "sk-test"}, nil)
	require.NoError(t, p.Initialize())
	assert.Equal(t, "tts-1", p.cfg.Model)
	assert.Equal(t, "alloy", p.cfg.Voice)
	assert.NotNil(t, p.client)
}

func TestSynthesizeValidation(t *testing.T) {
	p := New(Config{APIKey: "sk-test"}, nil)
	require.NoError(t, p.Initialize())

	_, err := p.Synthesize(context.Background(), providers.SynthesisRequest{})
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))

	long := make([]rune, maxInputChars+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = p.Synthesize(context.Background(), providers.SynthesisRequest{Text: string(long)})
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}

func TestSynthesizeRequiresInitialize(t *testing.T) {
	p := New(Config{APIKey: "sk-test"}, nil)
	_, err := p.Synthesize(context.Background(), providers.SynthesisRequest{Text: "hi"})
	assert.Equal(t, errors.KindProviderUnavailable, errors.KindOf(err))
}

func TestSpeechFormatMapping(t *testing.T) {
	assert.Equal(t, goopenai.SpeechResponseFormatWav, speechFormat("wav"))
	assert.Equal(t, goopenai.SpeechResponseFormatFlac, speechFormat("flac"))
	assert.Equal(t, goopenai.SpeechResponseFormatPcm, speechFormat("pcm"))
	assert.Equal(t, goopenai.SpeechResponseFormatMp3, speechFormat(""))
	assert.Equal(t, goopenai.SpeechResponseFormatMp3, speechFormat("ogg"), "unsupported containers fall back to mp3")
}

func TestResultFormatRoundTrip(t *testing.T) {
	for _, f := range []string{"wav", "flac", "pcm", "mp3"} {
		assert.Equal(t, f, resultFormat(speechFormat(f)))
	}
}

func TestClampSpeed(t *testing.T) {
	assert.Equal(t, 1.0, clampSpeed(0))
	assert.Equal(t, 0.25, clampSpeed(0.1))
	assert.Equal(t, 4.0, clampSpeed(9))
	assert.Equal(t, 1.5, clampSpeed(1.5))
}

func TestCapabilities(t *testing.T) {
	p := New(Config{}, nil)
	caps := p.Capabilities()
	assert.False(t, caps.Streaming)
	assert.True(t, caps.SupportsFormat("mp3"))
	assert.True(t, caps.SupportsFormat("flac"))
	assert.Equal(t, maxInputChars, caps.MaxTextLength)
}

func TestVoicesListsSixBuiltins(t *testing.T) {
	p := New(Config{}, nil)
	voices := p.Voices()
	require.Len(t, voices, 6)
	ids := make(map[string]bool, len(voices))
	for _, v := range voices {
		ids[v.ID] = true
		assert.Equal(t, providerName, v.Provider)
	}
	assert.True(t, ids["alloy"])
	assert.True(t, ids["shimmer"])
}
