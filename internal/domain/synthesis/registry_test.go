package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chorus-server-go/internal/contracts/providers"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeProvider("alpha")))
	require.NoError(t, r.Register(newFakeProvider("beta")))
	require.NoError(t, r.Register(newFakeProvider("gamma")))

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, r.Order())

	p, ok := r.Get("beta")
	require.True(t, ok)
	assert.Equal(t, "beta", p.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newFakeProvider("alpha")))
	err := r.Register(newFakeProvider("alpha"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryCapabilitiesView(t *testing.T) {
	r := NewRegistry()
	p := newFakeProvider("alpha")
	p.caps = providers.Capabilities{Streaming: true, Formats: []string{"wav"}}
	require.NoError(t, r.Register(p))

	caps, ok := r.Capabilities("alpha")
	require.True(t, ok)
	assert.True(t, caps.Streaming)

	_, ok = r.Capabilities("missing")
	assert.False(t, ok)
}

func TestRegistryVoicesAggregate(t *testing.T) {
	a := newFakeProvider("alpha")
	b := newFakeProvider("beta")
	r := NewRegistry()
	require.NoError(t, r.Register(a))
	require.NoError(t, r.Register(b))

	// Fakes carry no voices; the aggregate is simply empty, not nil-panicky.
	assert.Empty(t, r.Voices())
}
