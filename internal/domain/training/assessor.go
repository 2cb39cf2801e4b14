package training

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// QualityAssessor scores a trained artifact against its reference samples.
// All returned scores are in [0,1]. The pipeline treats this as a plug-in
// point: the default is a deterministic heuristic, real vendor scoring or a
// test double can be injected in its place.
type QualityAssessor func(ctx context.Context, artifactPath string, samples []SampleRef) (QualityMetrics, error)

// HeuristicAssessor scores purely from the amount and spread of reference
// audio: more minutes and more distinct samples push similarity and
// naturalness up. Deterministic, so tests can pin exact outcomes.
func HeuristicAssessor(_ context.Context, artifactPath string, samples []SampleRef) (QualityMetrics, error) {
	info, err := os.Stat(artifactPath)
	if err != nil {
		return QualityMetrics{}, fmt.Errorf("trained artifact missing: %w", err)
	}
	if info.Size() == 0 {
		return QualityMetrics{}, fmt.Errorf("trained artifact %s is empty", artifactPath)
	}

	var seconds float64
	for _, s := range samples {
		seconds += s.DurationSeconds
	}
	minutes := seconds / 60
	count := float64(len(samples))

	m := QualityMetrics{
		Similarity:  clamp01(0.55 + 0.04*minutes + 0.02*count),
		Naturalness: clamp01(0.60 + 0.03*minutes + 0.01*count),
		Clarity:     clamp01(0.62 + 0.05*minutes),
	}
	m.Overall = clamp01(0.5*m.Similarity + 0.3*m.Naturalness + 0.2*m.Clarity)
	return m, nil
}

// ValidationError itemizes why a trained model fell below the acceptance
// threshold, with one remediation hint per failing metric. It travels as the
// cause of a ValidationFailed error so callers can unwrap the details.
type ValidationError struct {
	Metrics         QualityMetrics
	Threshold       float64
	Issues          []string
	Recommendations []string
}

// NewValidationError builds the itemized report for metrics that missed the
// threshold.
func NewValidationError(metrics QualityMetrics, threshold float64) *ValidationError {
	e := &ValidationError{Metrics: metrics, Threshold: threshold}
	e.Issues = append(e.Issues,
		fmt.Sprintf("overall quality %.2f below threshold %.2f", metrics.Overall, threshold))

	if metrics.Similarity < threshold {
		e.Issues = append(e.Issues, fmt.Sprintf("similarity %.2f below %.2f", metrics.Similarity, threshold))
		e.Recommendations = append(e.Recommendations,
			"add more reference recordings of the target speaker")
	}
	if metrics.Naturalness < threshold {
		e.Issues = append(e.Issues, fmt.Sprintf("naturalness %.2f below %.2f", metrics.Naturalness, threshold))
		e.Recommendations = append(e.Recommendations,
			"provide longer continuous samples, 30 seconds or more each")
	}
	if metrics.Clarity < threshold {
		e.Issues = append(e.Issues, fmt.Sprintf("clarity %.2f below %.2f", metrics.Clarity, threshold))
		e.Recommendations = append(e.Recommendations,
			"record in a quieter environment at 24 kHz or higher")
	}
	if len(e.Recommendations) == 0 {
		e.Recommendations = append(e.Recommendations,
			"increase total reference audio beyond the current amount")
	}
	return e
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Issues, "; ")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
