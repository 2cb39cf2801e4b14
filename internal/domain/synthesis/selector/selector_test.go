package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/contracts/providers"
	"chorus-server-go/internal/domain/synthesis/health"
	"chorus-server-go/internal/platform/errors"
)

type fakeHealth struct {
	order     []string
	down      map[string]bool
	overQuota map[string]bool
	profiles  map[string]health.Profile
	quotas    map[string]health.Quota
}

func (f *fakeHealth) Order() []string { return f.order }

func (f *fakeHealth) Available(name string) bool { return !f.down[name] }

func (f *fakeHealth) CheckQuota(name string, chars int) error {
	if f.overQuota[name] {
		return errors.New(errors.KindQuotaExceeded, "test", "over quota")
	}
	return nil
}

func (f *fakeHealth) Profile(name string) (health.Profile, bool) {
	p, ok := f.profiles[name]
	return p, ok
}

func (f *fakeHealth) QuotaSnapshot(name string) (health.Quota, bool) {
	q, ok := f.quotas[name]
	if !ok {
		return health.Quota{}, true
	}
	return q, true
}

type fakeCaps map[string]providers.Capabilities

func (f fakeCaps) Capabilities(name string) (providers.Capabilities, bool) {
	c, ok := f[name]
	return c, ok
}

func threeProviders(successRates ...float64) (*fakeHealth, fakeCaps) {
	names := []string{"edge", "openai", "neural"}
	h := &fakeHealth{
		order:     names,
		down:      map[string]bool{},
		overQuota: map[string]bool{},
		profiles:  map[string]health.Profile{},
		quotas:    map[string]health.Quota{},
	}
	caps := fakeCaps{}
	for i, name := range names {
		rate := 1.0
		if i < len(successRates) {
			rate = successRates[i]
		}
		h.profiles[name] = health.Profile{SuccessRate: rate, QualityScore: 0.8}
		caps[name] = providers.Capabilities{}
	}
	return h, caps
}

func TestRank_OrdersBySuccessRate(t *testing.T) {
	h, caps := threeProviders(0.8, 0.6, 0.4)
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "edge", ranked[0].Name)
	assert.Equal(t, "openai", ranked[1].Name)
	assert.Equal(t, "neural", ranked[2].Name)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
	assert.Greater(t, ranked[1].Score, ranked[2].Score)
}

func TestRank_EqualScoresKeepRegistrationOrder(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, "edge", ranked[0].Name)
	assert.Equal(t, "openai", ranked[1].Name)
	assert.Equal(t, "neural", ranked[2].Name)
	assert.Equal(t, ranked[0].Score, ranked[1].Score)
}

func TestRank_ScoreComputation(t *testing.T) {
	h := &fakeHealth{
		order: []string{"openai"},
		profiles: map[string]health.Profile{
			"openai": {
				SuccessRate:  0.9,
				AvgLatency:   2 * time.Second,
				CostPerChar:  0.00005,
				QualityScore: 0.8,
			},
		},
		down:      map[string]bool{},
		overQuota: map[string]bool{},
		quotas:    map[string]health.Quota{},
	}
	caps := fakeCaps{"openai": providers.Capabilities{}}
	s := New(h, caps, Criteria{MaxLatency: 4 * time.Second, MaxCostPerChar: 0.0001}, nil)

	ranked, err := s.Rank(50, Criteria{}, nil)
	require.NoError(t, err)

	// 0.9*40 + 0.5*20 + 0.5*20 + 0.8*20 + full headroom bonus 10.
	assert.InDelta(t, 82.0, ranked[0].Score, 1e-9)
}

func TestRank_ScoreClampsToHundred(t *testing.T) {
	h := &fakeHealth{
		order: []string{"edge"},
		profiles: map[string]health.Profile{
			"edge": {SuccessRate: 1.0, QualityScore: 1.0},
		},
		down:      map[string]bool{},
		overQuota: map[string]bool{},
		quotas:    map[string]health.Quota{},
	}
	caps := fakeCaps{"edge": providers.Capabilities{Streaming: true}}
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(10, Criteria{RequireStreaming: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, ranked[0].Score)
}

func TestRank_SkipsCircuitOpenProviders(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	h.down["openai"] = true
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "edge", ranked[0].Name)
	assert.Equal(t, "neural", ranked[1].Name)
}

func TestRank_SkipsOverQuotaProviders(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	h.overQuota["edge"] = true
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "openai", ranked[0].Name)
}

func TestRank_ExcludeSet(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, map[string]bool{"edge": true, "openai": true})
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "neural", ranked[0].Name)
}

func TestRank_NoEligibleProvider(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	h.down["edge"] = true
	h.down["openai"] = true
	h.down["neural"] = true
	s := New(h, caps, Criteria{}, nil)

	_, err := s.Rank(100, Criteria{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindNoEligibleProvider))
}

func TestRank_PreferredProviderBypassesScoring(t *testing.T) {
	h, caps := threeProviders(0.9, 0.6, 0.3)
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{PreferredProvider: "neural"}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "neural", ranked[0].Name)
}

func TestRank_PreferredProviderFallsBackWhenIneligible(t *testing.T) {
	h, caps := threeProviders(0.9, 0.6, 0.3)
	h.down["neural"] = true
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{PreferredProvider: "neural"}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "edge", ranked[0].Name)
}

func TestRank_MinQualityFilters(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	p := h.profiles["neural"]
	p.QualityScore = 0.3
	h.profiles["neural"] = p
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{MinQuality: 0.5}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	for _, c := range ranked {
		assert.NotEqual(t, "neural", c.Name)
	}
}

func TestRank_StreamingBonusBiasesOrder(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	caps["neural"] = providers.Capabilities{Streaming: true}
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{RequireStreaming: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, "neural", ranked[0].Name)

	// Without the requirement the tie keeps registration order.
	ranked, err = s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "edge", ranked[0].Name)
}

func TestRank_LanguageCapabilityFilter(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	caps["edge"] = providers.Capabilities{Languages: []string{"en", "zh"}}
	caps["openai"] = providers.Capabilities{Languages: []string{"en"}}
	caps["neural"] = providers.Capabilities{Languages: []string{"zh"}}
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{Language: "zh"}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "edge", ranked[0].Name)
	assert.Equal(t, "neural", ranked[1].Name)
}

func TestRank_MaxTextLengthFilter(t *testing.T) {
	h, caps := threeProviders(0.9, 0.9, 0.9)
	caps["edge"] = providers.Capabilities{MaxTextLength: 50}
	s := New(h, caps, Criteria{}, nil)

	ranked, err := s.Rank(100, Criteria{}, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	for _, c := range ranked {
		assert.NotEqual(t, "edge", c.Name)
	}
}
