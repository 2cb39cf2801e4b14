package neural

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/util"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, nil)
	require.NoError(t, p.Initialize())
	return p
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 24000*2) // half a second of mono 24kHz silence
	wav, _ := util.PCMToWAV(pcm, 24000, 1)
	return wav
}

func TestSynthesizeRoundTrip(t *testing.T) {
	wav := testWAV(t)
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello there", req.Text)
		assert.Equal(t, "Serena", req.Speaker, "default speaker applies when none requested")

		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioData:  base64.StdEncoding.EncodeToString(wav),
			SampleRate: 24000,
			Duration:   0.5,
			Speaker:    req.Speaker,
		})
	})

	p := newTestProvider(t, mux)
	res, err := p.Synthesize(context.Background(), providers.SynthesisRequest{Text: "hello there"})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
	assert.Equal(t, util.FormatWAV, res.Format)
	assert.Equal(t, 24000, res.SampleRate)
	assert.Equal(t, 500*time.Millisecond, res.Duration)
	assert.Equal(t, "neural", res.Provider)
}

func TestSynthesizeUsesClonePathWithReferenceAudio(t *testing.T) {
	wav := testWAV(t)
	refAudio := base64.StdEncoding.EncodeToString([]byte("reference-sample"))

	mux := http.NewServeMux()
	mux.HandleFunc("/clone", func(w http.ResponseWriter, r *http.Request) {
		var req cloneRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, refAudio, req.SpeakerAudio)
		assert.Equal(t, "the reference transcript", req.RefText)

		json.NewEncoder(w).Encode(synthesizeResponse{
			AudioData:  base64.StdEncoding.EncodeToString(wav),
			SampleRate: 24000,
			Duration:   0.5,
		})
	})
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		t.Error("plain synthesize endpoint must not be called for cloning")
	})

	p := newTestProvider(t, mux)
	res, err := p.Synthesize(context.Background(), providers.SynthesisRequest{
		Text: "clone me",
		Options: providers.SynthesisOptions{
			ReferenceAudio: refAudio,
			ReferenceText:  "the reference transcript",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, wav, res.Audio)
}

func TestSynthesizeSurfacesServiceDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail": "unknown speaker Bogus"}`)
	})

	p := newTestProvider(t, mux)
	_, err := p.Synthesize(context.Background(), providers.SynthesisRequest{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, errors.KindSynthesisFailed, errors.KindOf(err))
	assert.Contains(t, err.Error(), "unknown speaker Bogus")
}

func TestSynthesizeMapsServiceUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail": "model still loading"}`)
	})

	p := newTestProvider(t, mux)
	_, err := p.Synthesize(context.Background(), providers.SynthesisRequest{Text: "hi"})
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderUnavailable, errors.KindOf(err))
}

func TestSynthesizeValidation(t *testing.T) {
	p := New(Config{}, nil)
	require.NoError(t, p.Initialize())

	_, err := p.Synthesize(context.Background(), providers.SynthesisRequest{})
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))

	long := make([]rune, maxInputChars+1)
	for i := range long {
		long[i] = 'x'
	}
	_, err = p.Synthesize(context.Background(), providers.SynthesisRequest{Text: string(long)})
	assert.Equal(t, errors.KindInvalidRequest, errors.KindOf(err))
}

func TestHealthCheck(t *testing.T) {
	ready := false
	mux := http.NewServeMux()
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ready": true}`)
	})

	p := newTestProvider(t, mux)
	err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindProviderUnavailable, errors.KindOf(err))

	ready = true
	assert.NoError(t, p.HealthCheck(context.Background()))
}

func TestSynthesizeStream(t *testing.T) {
	chunks := [][]byte{[]byte("first-chunk"), []byte("second-chunk"), []byte("third-chunk")}

	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize/stream", func(w http.ResponseWriter, r *http.Request) {
		var req synthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Streaming)

		enc := json.NewEncoder(w)
		for i, c := range chunks {
			enc.Encode(streamLine{
				Chunk:          base64.StdEncoding.EncodeToString(c),
				SequenceNumber: i,
				IsLast:         i == len(chunks)-1,
			})
		}
	})

	p := newTestProvider(t, mux)
	ch, err := p.SynthesizeStream(context.Background(), providers.SynthesisRequest{Text: "stream me"})
	require.NoError(t, err)

	var got []providers.StreamChunk
	for chunk := range ch {
		require.NoError(t, chunk.Err)
		got = append(got, chunk)
	}
	require.Len(t, got, 3)
	for i, chunk := range got {
		assert.Equal(t, chunks[i], chunk.Data)
		assert.Equal(t, i, chunk.Sequence)
	}
	assert.True(t, got[2].IsLast)
	assert.False(t, got[0].IsLast)
}

func TestSynthesizeStreamErrorLine(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/synthesize/stream", func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		enc.Encode(streamLine{
			Chunk:          base64.StdEncoding.EncodeToString([]byte("partial")),
			SequenceNumber: 0,
		})
		enc.Encode(streamLine{IsLast: true, Error: "generation interrupted"})
	})

	p := newTestProvider(t, mux)
	ch, err := p.SynthesizeStream(context.Background(), providers.SynthesisRequest{Text: "stream me"})
	require.NoError(t, err)

	var got []providers.StreamChunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	require.Len(t, got, 2)
	require.NoError(t, got[0].Err)
	require.Error(t, got[1].Err)
	assert.Equal(t, errors.KindSynthesisFailed, errors.KindOf(got[1].Err))
	assert.Contains(t, got[1].Err.Error(), "generation interrupted")
}

func TestCapabilitiesAdvertiseStreamingAndCloning(t *testing.T) {
	p := New(Config{}, nil)
	caps := p.Capabilities()
	assert.True(t, caps.Streaming)
	assert.True(t, caps.VoiceCloning)
	assert.True(t, caps.SupportsLanguage("ja"))
	assert.True(t, caps.SupportsLanguage("ur"), "bridged languages count as supported")
	assert.False(t, caps.SupportsLanguage("sw"))
	assert.Equal(t, maxInputChars, caps.MaxTextLength)
}

func TestVoicesListBuiltinSpeakers(t *testing.T) {
	p := New(Config{}, nil)
	voices := p.Voices()
	require.Len(t, voices, 9)
	ids := make(map[string]bool, len(voices))
	for _, v := range voices {
		ids[v.ID] = true
	}
	assert.True(t, ids["Vivian"])
	assert.True(t, ids["Ono_Anna"])
	assert.True(t, ids["Sohee"])
}
