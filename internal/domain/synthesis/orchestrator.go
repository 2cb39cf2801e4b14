package synthesis

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/synthesis/cache"
	"chorus-server-go/internal/domain/synthesis/health"
	"chorus-server-go/internal/domain/synthesis/selector"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
	"chorus-server-go/internal/platform/observability"
	"chorus-server-go/internal/util"
)

const (
	// streamChunkSize is the piece size used when re-chunking a full result
	// for a streaming caller.
	streamChunkSize = 4096

	defaultAttemptTimeout = 60 * time.Second
)

// VoiceRef is a resolved voice model: which provider renders it, with what
// builtin voice or reference audio. Pinned refs must render on their owning
// provider; no fallback applies.
type VoiceRef struct {
	Provider       string
	Voice          string
	ReferenceAudio string
	ReferenceText  string
	Pinned         bool
}

// VoiceResolver maps a voice model id to a renderable reference. Unknown ids
// fail with a not-found error before any provider attempt.
type VoiceResolver interface {
	ResolveVoice(ctx context.Context, voiceModelID string) (VoiceRef, error)
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Registry *Registry
	Tracker  *health.Tracker
	Selector *selector.Selector
	Cache    *cache.Cache
	Resolver VoiceResolver
	Logger   *logging.Logger

	// Costs is the configured charge per character by provider tag.
	Costs map[string]float64

	// Timeouts bound each synthesis attempt per provider tag.
	Timeouts map[string]time.Duration
}

// Orchestrator runs the synthesis pipeline: cache lookup, provider selection,
// the attempt-with-fallback loop, and health accounting after every attempt.
type Orchestrator struct {
	registry *Registry
	tracker  *health.Tracker
	selector *selector.Selector
	cache    *cache.Cache
	resolver VoiceResolver
	costs    map[string]float64
	timeouts map[string]time.Duration
	logger   *logging.Logger
}

// NewOrchestrator builds the orchestrator and installs itself as the cache's
// pre-warming renderer.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry: opts.Registry,
		tracker:  opts.Tracker,
		selector: opts.Selector,
		cache:    opts.Cache,
		resolver: opts.Resolver,
		costs:    opts.Costs,
		timeouts: opts.Timeouts,
		logger:   opts.Logger,
	}
	if o.cache != nil {
		o.cache.SetWarmer(o.renderForWarming)
	}
	return o
}

// Synthesize renders text to audio. Cached results return immediately with
// zero cost; fresh renders go through health-aware selection with fallback
// across the remaining providers on failure.
func (o *Orchestrator) Synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	ctx, end := observability.StartSpan(ctx, "Orchestrator", "Synthesize")
	res, err := o.synthesize(ctx, req)
	end(err)
	return res, err
}

func (o *Orchestrator) synthesize(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	cacheReq, req, criteria, pinned, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if res, ok := o.cache.Get(ctx, cacheReq); ok {
		o.logger.DebugTag("Orchestrator", "cache hit for voice=%s provider=%s", req.VoiceModelID, res.Provider)
		observability.RecordMetric(ctx, "cache_hit", 1, map[string]string{"provider": res.Provider})
		return res, nil
	}

	chars := len([]rune(req.Text))
	exclude := o.pinExclude(pinned)
	var failures []string

	for {
		candidates, err := o.selector.Rank(chars, criteria, exclude)
		if err != nil {
			if len(failures) > 0 {
				return nil, errors.New(errors.KindAllProvidersExhausted, "orchestrator.Synthesize",
					"all providers failed: "+strings.Join(failures, "; "))
			}
			return nil, err
		}

		name := candidates[0].Name
		res, attemptErr := o.attempt(ctx, name, req, chars)
		if attemptErr == nil {
			o.cache.Put(ctx, cacheReq, res)
			return res, nil
		}
		if errors.KindOf(attemptErr) == errors.KindInvalidRequest {
			return nil, attemptErr
		}

		failures = append(failures, fmt.Sprintf("%s: %v", name, attemptErr))
		exclude[name] = true
		o.logger.WarnTag("Orchestrator", "provider %s failed, trying next: %v", name, attemptErr)

		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindSynthesisFailed, "orchestrator.Synthesize", "request context ended", ctx.Err())
		}
	}
}

// SynthesizeStream renders text as a chunk stream. Native-streaming backends
// pass chunks through; everything else (including cache hits) is re-chunked
// into fixed-size pieces.
func (o *Orchestrator) SynthesizeStream(ctx context.Context, req providers.SynthesisRequest) (<-chan providers.StreamChunk, error) {
	ctx, end := observability.StartSpan(ctx, "Orchestrator", "SynthesizeStream")
	ch, err := o.synthesizeStream(ctx, req)
	end(err)
	return ch, err
}

func (o *Orchestrator) synthesizeStream(ctx context.Context, req providers.SynthesisRequest) (<-chan providers.StreamChunk, error) {
	cacheReq, req, criteria, pinned, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	criteria.RequireStreaming = true

	if res, ok := o.cache.Get(ctx, cacheReq); ok {
		o.logger.DebugTag("Orchestrator", "cache hit, re-chunking %d bytes for stream", len(res.Audio))
		return o.rechunk(ctx, res.Audio), nil
	}

	chars := len([]rune(req.Text))
	exclude := o.pinExclude(pinned)
	var failures []string

	for {
		candidates, err := o.selector.Rank(chars, criteria, exclude)
		if err != nil {
			if len(failures) > 0 {
				return nil, errors.New(errors.KindAllProvidersExhausted, "orchestrator.SynthesizeStream",
					"all providers failed: "+strings.Join(failures, "; "))
			}
			return nil, err
		}

		name := candidates[0].Name
		ch, attemptErr := o.attemptStream(ctx, name, req, cacheReq, chars)
		if attemptErr == nil {
			return ch, nil
		}
		if errors.KindOf(attemptErr) == errors.KindInvalidRequest {
			return nil, attemptErr
		}

		failures = append(failures, fmt.Sprintf("%s: %v", name, attemptErr))
		exclude[name] = true
		o.logger.WarnTag("Orchestrator", "provider %s failed to start stream, trying next: %v", name, attemptErr)

		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.KindSynthesisFailed, "orchestrator.SynthesizeStream", "request context ended", ctx.Err())
		}
	}
}

// prepare validates the request and resolves its voice model. It returns the
// untouched request (the cache key is computed over what the caller sent) and
// the working request with resolved voice settings applied.
func (o *Orchestrator) prepare(ctx context.Context, req providers.SynthesisRequest) (cacheReq, working providers.SynthesisRequest, criteria selector.Criteria, pinned string, err error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, req, criteria, "", errors.New(errors.KindInvalidRequest, "orchestrator.prepare", "text is empty")
	}

	cacheReq = req

	if req.VoiceModelID != "" && o.resolver != nil {
		ref, rerr := o.resolver.ResolveVoice(ctx, req.VoiceModelID)
		if rerr != nil {
			return cacheReq, req, criteria, "", rerr
		}
		if ref.Pinned {
			if req.Provider != "" && req.Provider != ref.Provider {
				return cacheReq, req, criteria, "", errors.New(errors.KindInvalidRequest, "orchestrator.prepare",
					fmt.Sprintf("voice model %s renders on provider %s, not %s", req.VoiceModelID, ref.Provider, req.Provider))
			}
			pinned = ref.Provider
		}
		if req.Provider == "" {
			req.Provider = ref.Provider
		}
		if req.Options.Voice == "" {
			req.Options.Voice = ref.Voice
		}
		if req.Options.ReferenceAudio == "" {
			req.Options.ReferenceAudio = ref.ReferenceAudio
		}
		if req.Options.ReferenceText == "" {
			req.Options.ReferenceText = ref.ReferenceText
		}
	}

	criteria = selector.Criteria{
		PreferredProvider: req.Provider,
		Language:          req.Options.Language,
		Format:            req.Options.Format,
	}
	return cacheReq, req, criteria, pinned, nil
}

// pinExclude confines selection to the pinned provider by excluding the rest.
func (o *Orchestrator) pinExclude(pinned string) map[string]bool {
	exclude := make(map[string]bool)
	if pinned == "" {
		return exclude
	}
	for _, name := range o.tracker.Order() {
		if name != pinned {
			exclude[name] = true
		}
	}
	return exclude
}

// attempt runs one synthesis attempt on one provider, feeding the health
// tracker with the outcome. Validation rejections from the provider are
// returned as-is without counting against its health.
func (o *Orchestrator) attempt(ctx context.Context, name string, req providers.SynthesisRequest, chars int) (*providers.SynthesisResult, error) {
	provider, ok := o.registry.Get(name)
	if !ok {
		return nil, errors.New(errors.KindProviderUnavailable, "orchestrator.attempt", "provider not registered: "+name)
	}

	if err := o.tracker.Acquire(ctx, name); err != nil {
		return nil, errors.Wrap(errors.KindProviderUnavailable, "orchestrator.attempt",
			"no free slot on "+name, err)
	}
	defer o.tracker.Release(name)

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout(name))
	defer cancel()

	start := time.Now()
	res, err := provider.Synthesize(attemptCtx, req)
	latency := time.Since(start)

	if err != nil {
		if errors.KindOf(err) == errors.KindInvalidRequest {
			return nil, err
		}
		o.tracker.RecordFailure(name, latency)
		return nil, err
	}

	cost := o.costOf(name, chars)
	o.tracker.RecordSuccess(name, latency, cost, chars)
	observability.RecordMetric(ctx, "synthesis_latency_ms", float64(latency.Milliseconds()), map[string]string{"provider": name})

	res.Cost = cost
	res.Latency = latency
	return res, nil
}

// attemptStream starts one streaming attempt. Backends without native
// streaming synthesize fully and the result is re-chunked.
func (o *Orchestrator) attemptStream(ctx context.Context, name string, req, cacheReq providers.SynthesisRequest, chars int) (<-chan providers.StreamChunk, error) {
	provider, ok := o.registry.Get(name)
	if !ok {
		return nil, errors.New(errors.KindProviderUnavailable, "orchestrator.attemptStream", "provider not registered: "+name)
	}

	streamer, native := provider.(providers.StreamingSynthesizer)
	if !native || !provider.Capabilities().Streaming {
		res, err := o.attempt(ctx, name, req, chars)
		if err != nil {
			return nil, err
		}
		o.cache.Put(ctx, cacheReq, res)
		return o.rechunk(ctx, res.Audio), nil
	}

	if err := o.tracker.Acquire(ctx, name); err != nil {
		return nil, errors.Wrap(errors.KindProviderUnavailable, "orchestrator.attemptStream",
			"no free slot on "+name, err)
	}

	start := time.Now()
	upstream, err := streamer.SynthesizeStream(ctx, req)
	if err != nil {
		o.tracker.Release(name)
		if errors.KindOf(err) != errors.KindInvalidRequest {
			o.tracker.RecordFailure(name, time.Since(start))
		}
		return nil, err
	}

	out := make(chan providers.StreamChunk)
	go o.relayStream(ctx, name, cacheReq, chars, start, upstream, out)
	return out, nil
}

// relayStream forwards chunks to the caller while accumulating the full audio
// so completed streams land in the cache like any other result.
func (o *Orchestrator) relayStream(ctx context.Context, name string, cacheReq providers.SynthesisRequest, chars int, start time.Time, upstream <-chan providers.StreamChunk, out chan<- providers.StreamChunk) {
	defer close(out)
	defer o.tracker.Release(name)

	var buf bytes.Buffer
	failed := false

	for chunk := range upstream {
		if chunk.Err != nil {
			failed = true
			o.tracker.RecordFailure(name, time.Since(start))
		} else {
			buf.Write(chunk.Data)
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return
		}
	}
	if failed || buf.Len() == 0 {
		return
	}

	latency := time.Since(start)
	cost := o.costOf(name, chars)
	o.tracker.RecordSuccess(name, latency, cost, chars)

	audio := buf.Bytes()
	res := &providers.SynthesisResult{
		Audio:    audio,
		Format:   util.DetectFormat(audio),
		Provider: name,
		Cost:     cost,
		Latency:  latency,
	}
	if d, err := util.ProbeDuration(audio, res.Format); err == nil {
		res.Duration = d
	}

	// The request context may end the moment the last chunk is delivered;
	// the cache write gets its own deadline.
	putCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	o.cache.Put(putCtx, cacheReq, res)
}

// rechunk emits audio as fixed-size stream chunks.
func (o *Orchestrator) rechunk(ctx context.Context, audio []byte) <-chan providers.StreamChunk {
	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		seq := 0
		for off := 0; off < len(audio); off += streamChunkSize {
			endOff := off + streamChunkSize
			if endOff > len(audio) {
				endOff = len(audio)
			}
			chunk := providers.StreamChunk{
				Data:     audio[off:endOff],
				Sequence: seq,
				IsLast:   endOff == len(audio),
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			seq++
		}
	}()
	return out
}

// renderForWarming is the cache pre-warmer entry point. It bypasses the cache
// lookup (the warmer already peeked) but runs normal selection.
func (o *Orchestrator) renderForWarming(ctx context.Context, req providers.SynthesisRequest) (*providers.SynthesisResult, error) {
	_, req, criteria, pinned, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	chars := len([]rune(req.Text))
	candidates, err := o.selector.Rank(chars, criteria, o.pinExclude(pinned))
	if err != nil {
		return nil, err
	}
	return o.attempt(ctx, candidates[0].Name, req, chars)
}

// Stats reports the cache snapshot for the admin surface.
func (o *Orchestrator) Stats(ctx context.Context) cache.Stats {
	return o.cache.Stats(ctx)
}

// WarmNow runs one pre-warm sweep immediately.
func (o *Orchestrator) WarmNow(ctx context.Context) int {
	return o.cache.WarmOnce(ctx)
}

func (o *Orchestrator) timeout(name string) time.Duration {
	if d, ok := o.timeouts[name]; ok && d > 0 {
		return d
	}
	return defaultAttemptTimeout
}

func (o *Orchestrator) costOf(name string, chars int) float64 {
	return float64(chars) * o.costs[name]
}
