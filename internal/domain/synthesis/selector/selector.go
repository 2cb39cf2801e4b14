// Package selector ranks synthesis providers for a request by weighted score
// over their live health profiles. Ranking is a pure read; it never mutates
// tracker state.
package selector

import (
	"sort"
	"time"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/synthesis/health"
	"chorus-server-go/internal/platform/errors"
	"chorus-server-go/internal/platform/logging"
)

// Score weights. They sum to 100 before bonuses; the final score clamps back
// to [0,100].
const (
	weightSuccess   = 40.0
	weightLatency   = 20.0
	weightCost      = 20.0
	weightQuality   = 20.0
	maxQuotaBonus   = 10.0
	streamingBonus  = 10.0
	defaultLatency  = 5 * time.Second
	defaultCostChar = 0.0001
)

// Criteria narrow and weight the provider choice for one request. Zero fields
// fall back to the selector defaults.
type Criteria struct {
	// PreferredProvider bypasses scoring when it passes the eligibility
	// filter.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// MaxLatency normalizes the latency score: a provider at or above it
	// scores zero on latency.
	MaxLatency time.Duration `json:"max_latency,omitempty"`

	// MaxCostPerChar normalizes the cost score.
	MaxCostPerChar float64 `json:"max_cost_per_char,omitempty"`

	// MinQuality filters out providers whose quality score is below it.
	MinQuality float64 `json:"min_quality,omitempty"`

	// RequireStreaming favors native-streaming backends. Non-streaming
	// backends stay eligible; their results are re-chunked downstream.
	RequireStreaming bool `json:"require_streaming,omitempty"`

	// Language and Format must be supported by the backend's capabilities.
	Language string `json:"language,omitempty"`
	Format   string `json:"format,omitempty"`
}

// Candidate is one ranked provider.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// HealthView is the read surface the selector needs from the health tracker.
type HealthView interface {
	Order() []string
	Available(name string) bool
	CheckQuota(name string, chars int) error
	Profile(name string) (health.Profile, bool)
	QuotaSnapshot(name string) (health.Quota, bool)
}

// CapabilityView resolves a provider tag to its static capabilities.
type CapabilityView interface {
	Capabilities(name string) (providers.Capabilities, bool)
}

// Selector ranks providers for the orchestrator.
type Selector struct {
	health   HealthView
	caps     CapabilityView
	defaults Criteria
	logger   *logging.Logger
}

// New creates a selector. defaults fill zero-valued criteria fields.
func New(healthView HealthView, caps CapabilityView, defaults Criteria, logger *logging.Logger) *Selector {
	if defaults.MaxLatency <= 0 {
		defaults.MaxLatency = defaultLatency
	}
	if defaults.MaxCostPerChar <= 0 {
		defaults.MaxCostPerChar = defaultCostChar
	}
	return &Selector{
		health:   healthView,
		caps:     caps,
		defaults: defaults,
		logger:   logger,
	}
}

// Rank returns eligible providers ordered best-first. exclude removes
// providers that already failed this request. When the preferred provider is
// eligible and not excluded it is returned alone, bypassing scoring. Rank
// fails with NoEligibleProvider when nothing qualifies.
func (s *Selector) Rank(chars int, criteria Criteria, exclude map[string]bool) ([]Candidate, error) {
	criteria = s.merge(criteria)

	var eligible []string
	for _, name := range s.health.Order() {
		if exclude[name] {
			continue
		}
		if !s.eligible(name, chars, criteria) {
			continue
		}
		eligible = append(eligible, name)
	}

	if len(eligible) == 0 {
		return nil, errors.New(errors.KindNoEligibleProvider, "selector.Rank",
			"no provider satisfies the selection criteria")
	}

	if criteria.PreferredProvider != "" {
		for _, name := range eligible {
			if name == criteria.PreferredProvider {
				s.logger.DebugTag("Selector", "preferred provider %s eligible, bypassing scoring", name)
				return []Candidate{{Name: name, Score: s.score(name, criteria)}}, nil
			}
		}
	}

	candidates := make([]Candidate, 0, len(eligible))
	for _, name := range eligible {
		candidates = append(candidates, Candidate{Name: name, Score: s.score(name, criteria)})
	}

	// Stable: equal scores keep registration order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates, nil
}

func (s *Selector) merge(c Criteria) Criteria {
	if c.MaxLatency <= 0 {
		c.MaxLatency = s.defaults.MaxLatency
	}
	if c.MaxCostPerChar <= 0 {
		c.MaxCostPerChar = s.defaults.MaxCostPerChar
	}
	if c.MinQuality <= 0 {
		c.MinQuality = s.defaults.MinQuality
	}
	return c
}

func (s *Selector) eligible(name string, chars int, criteria Criteria) bool {
	if !s.health.Available(name) {
		return false
	}
	if err := s.health.CheckQuota(name, chars); err != nil {
		return false
	}

	profile, ok := s.health.Profile(name)
	if !ok {
		return false
	}
	if criteria.MinQuality > 0 && profile.QualityScore < criteria.MinQuality {
		return false
	}

	caps, ok := s.caps.Capabilities(name)
	if !ok {
		return false
	}
	if !caps.SupportsLanguage(criteria.Language) {
		return false
	}
	if !caps.SupportsFormat(criteria.Format) {
		return false
	}
	if caps.MaxTextLength > 0 && chars > caps.MaxTextLength {
		return false
	}
	return true
}

// score computes the weighted total for one provider:
// successRate*40 + latency*20 + cost*20 + quality*20, plus a quota-headroom
// bonus of up to 10 and a streaming bonus when the request asks for it.
func (s *Selector) score(name string, criteria Criteria) float64 {
	profile, _ := s.health.Profile(name)

	latencyScore := 1.0
	if profile.AvgLatency > 0 {
		latencyScore = 1 - float64(profile.AvgLatency)/float64(criteria.MaxLatency)
		if latencyScore < 0 {
			latencyScore = 0
		}
	}

	costScore := 1.0
	if profile.CostPerChar > 0 {
		costScore = 1 - profile.CostPerChar/criteria.MaxCostPerChar
		if costScore < 0 {
			costScore = 0
		}
	}

	total := profile.SuccessRate*weightSuccess +
		latencyScore*weightLatency +
		costScore*weightCost +
		profile.QualityScore*weightQuality

	if quota, ok := s.health.QuotaSnapshot(name); ok {
		total += quota.Headroom() * maxQuotaBonus
	}

	if criteria.RequireStreaming {
		if caps, ok := s.caps.Capabilities(name); ok && caps.Streaming {
			total += streamingBonus
		}
	}

	if total < 0 {
		return 0
	}
	if total > 100 {
		return 100
	}
	return total
}
