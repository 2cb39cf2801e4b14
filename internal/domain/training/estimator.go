package training

import (
	"math"
	"time"

	"chorus-server-go/internal/platform/errors"
)

// CostEstimate is the projected price and wall time of a training run,
// itemized the same way the backends bill: compute, artifact storage, data
// transfer and per-call API fees.
type CostEstimate struct {
	Compute         float64 `json:"compute"`
	Storage         float64 `json:"storage"`
	DataTransfer    float64 `json:"data_transfer"`
	APIFees         float64 `json:"api_fees"`
	Total           float64 `json:"total"`
	Currency        string  `json:"currency"`
	EstimatedTimeMs int64   `json:"estimated_time_ms"`
}

// rateCard holds one provider's billing and throughput coefficients. Cost
// scales with total reference audio (minutes), upload size (MB) and epoch
// count; time adds a flat setup phase plus per-epoch and ingest terms.
type rateCard struct {
	computePerEpochMinute float64
	storagePerMB          float64
	transferPerMB         float64
	apiFeeBase            float64
	apiFeePerSample       float64
	setupTime             time.Duration
	timePerEpoch          time.Duration
	ingestPerMinute       time.Duration
}

func defaultRateCards() map[string]rateCard {
	return map[string]rateCard{
		// Local GPU service: no per-call fees worth mentioning, compute
		// dominated.
		"neural": {
			computePerEpochMinute: 0.012,
			storagePerMB:          0.0004,
			transferPerMB:         0.0002,
			apiFeePerSample:       0.001,
			setupTime:             30 * time.Second,
			timePerEpoch:          15 * time.Second,
			ingestPerMinute:       20 * time.Second,
		},
		// Hosted API: fees dominate, faster epochs.
		"openai": {
			computePerEpochMinute: 0.03,
			storagePerMB:          0.001,
			transferPerMB:         0.0008,
			apiFeeBase:            1.0,
			apiFeePerSample:       0.01,
			setupTime:             60 * time.Second,
			timePerEpoch:          8 * time.Second,
			ingestPerMinute:       10 * time.Second,
		},
	}
}

// Estimator projects cost and duration for a training request before it is
// queued.
type Estimator struct {
	cards map[string]rateCard
}

// NewEstimator builds an estimator with the built-in rate cards.
func NewEstimator() *Estimator {
	return &Estimator{cards: defaultRateCards()}
}

// Estimate prices a run of params.Epochs over the given samples. Providers
// without a rate card cannot train.
func (e *Estimator) Estimate(provider string, samples []SampleRef, params Params) (CostEstimate, error) {
	card, ok := e.cards[provider]
	if !ok {
		return CostEstimate{}, errors.New(errors.KindInvalidRequest, "training.estimate",
			"provider "+provider+" does not support voice training")
	}
	if len(samples) == 0 {
		return CostEstimate{}, errors.New(errors.KindInvalidRequest, "training.estimate",
			"at least one reference sample is required")
	}

	var seconds float64
	var bytes int64
	for _, s := range samples {
		seconds += s.DurationSeconds
		bytes += s.SizeBytes
	}
	if seconds <= 0 {
		return CostEstimate{}, errors.New(errors.KindInvalidRequest, "training.estimate",
			"sample durations unknown")
	}
	if bytes <= 0 {
		// 16-bit mono at 24 kHz when the caller sent no sizes.
		bytes = int64(seconds * 48000)
	}

	minutes := seconds / 60
	megabytes := float64(bytes) / (1 << 20)
	epochs := params.Epochs
	if epochs <= 0 {
		epochs = 1
	}

	est := CostEstimate{
		Compute:      round4(minutes * float64(epochs) * card.computePerEpochMinute),
		Storage:      round4(megabytes * card.storagePerMB),
		DataTransfer: round4(megabytes * card.transferPerMB),
		APIFees:      round4(card.apiFeeBase + float64(len(samples))*card.apiFeePerSample),
		Currency:     "USD",
	}
	est.Total = round4(est.Compute + est.Storage + est.DataTransfer + est.APIFees)

	wall := card.setupTime +
		time.Duration(epochs)*card.timePerEpoch +
		time.Duration(minutes*float64(card.ingestPerMinute))
	est.EstimatedTimeMs = wall.Milliseconds()
	return est, nil
}

// Supports reports whether the provider has a rate card, i.e. can train.
func (e *Estimator) Supports(provider string) bool {
	_, ok := e.cards[provider]
	return ok
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
