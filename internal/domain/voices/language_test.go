package voices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		tag  string
		want string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"en-US", "en"},
		{"zh_CN", "zh"},
		{" ja ", "ja"},
		{"pt-BR", "pt"},
		{"ur", "en"},
		{"ar", "en"},
		{"hi-IN", "en"},
		{"xx", ""},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.tag), "tag %q", c.tag)
	}
}

func TestIsNative(t *testing.T) {
	assert.True(t, IsNative("en"))
	assert.True(t, IsNative("ZH"))
	assert.False(t, IsNative("ur"), "bridged codes are not native")
	assert.False(t, IsNative("xx"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Chinese", DisplayName("zh"))
	assert.Equal(t, "Urdu", DisplayName("ur"))
	assert.Equal(t, "xx", DisplayName("xx"), "unknown codes pass through")
}

func TestLanguagesListing(t *testing.T) {
	langs := Languages()
	assert.Len(t, langs, 13)
	assert.Equal(t, "zh", langs[0].Code)
	assert.True(t, langs[0].Native)
	assert.Empty(t, langs[0].Bridge)

	last := langs[len(langs)-1]
	assert.Equal(t, "hi", last.Code)
	assert.False(t, last.Native)
	assert.Equal(t, "en", last.Bridge)
}
