package training

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/platform/errors"
)

func fiveMinutesOfSamples() []SampleRef {
	return []SampleRef{
		{Path: "a.wav", DurationSeconds: 120, SizeBytes: 11520000},
		{Path: "b.wav", DurationSeconds: 90, SizeBytes: 8640000},
		{Path: "c.wav", DurationSeconds: 90, SizeBytes: 8640000},
	}
}

func TestEstimateSumsItsParts(t *testing.T) {
	est, err := NewEstimator().Estimate("neural", fiveMinutesOfSamples(), Params{Epochs: 10})
	require.NoError(t, err)

	assert.InDelta(t, est.Compute+est.Storage+est.DataTransfer+est.APIFees, est.Total, 0.0001)
	assert.Greater(t, est.Compute, 0.0)
	assert.Greater(t, est.Storage, 0.0)
	assert.Greater(t, est.DataTransfer, 0.0)
	assert.Greater(t, est.EstimatedTimeMs, int64(0))
	assert.Equal(t, "USD", est.Currency)
}

func TestEstimateScalesWithEpochs(t *testing.T) {
	e := NewEstimator()
	samples := fiveMinutesOfSamples()

	ten, err := e.Estimate("neural", samples, Params{Epochs: 10})
	require.NoError(t, err)
	twenty, err := e.Estimate("neural", samples, Params{Epochs: 20})
	require.NoError(t, err)

	assert.InDelta(t, ten.Compute*2, twenty.Compute, 0.001)
	assert.Equal(t, ten.Storage, twenty.Storage, "storage does not depend on epochs")
	assert.Greater(t, twenty.EstimatedTimeMs, ten.EstimatedTimeMs)
}

func TestEstimateProviderCardsDiffer(t *testing.T) {
	e := NewEstimator()
	samples := fiveMinutesOfSamples()

	neural, err := e.Estimate("neural", samples, Params{Epochs: 10})
	require.NoError(t, err)
	openai, err := e.Estimate("openai", samples, Params{Epochs: 10})
	require.NoError(t, err)

	assert.Greater(t, openai.APIFees, neural.APIFees, "hosted API charges call fees")
	assert.Greater(t, openai.Compute, neural.Compute)
}

func TestEstimateRejectsUnknownProvider(t *testing.T) {
	_, err := NewEstimator().Estimate("edge", fiveMinutesOfSamples(), Params{Epochs: 10})
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
}

func TestEstimateRejectsUnknownDurations(t *testing.T) {
	_, err := NewEstimator().Estimate("neural", []SampleRef{{Path: "a.wav"}}, Params{Epochs: 10})
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))

	_, err = NewEstimator().Estimate("neural", nil, Params{Epochs: 10})
	assert.True(t, errors.IsKind(err, errors.KindInvalidRequest))
}

func TestEstimateDerivesSizeFromDuration(t *testing.T) {
	// No sizes supplied: transfer and storage still priced from the
	// 16-bit/24kHz assumption.
	est, err := NewEstimator().Estimate("neural",
		[]SampleRef{{Path: "a.wav", DurationSeconds: 300}}, Params{Epochs: 5})
	require.NoError(t, err)
	assert.Greater(t, est.Storage, 0.0)
	assert.Greater(t, est.DataTransfer, 0.0)
}

func TestEstimatorSupports(t *testing.T) {
	e := NewEstimator()
	assert.True(t, e.Supports("neural"))
	assert.True(t, e.Supports("openai"))
	assert.False(t, e.Supports("edge"))
}
