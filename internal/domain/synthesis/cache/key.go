package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chorus-server-go/internal/contracts/providers"
)

// TTL tiers. Short phrases recur the most, so they earn the longest tier.
const (
	TierShort  = "short"
	TierMedium = "medium"
	TierLong   = "long"

	longTierMaxChars   = 50
	mediumTierMaxChars = 200
)

// NormalizeText trims, collapses inner whitespace and lowercases, so
// trivially different spellings of one phrase share a cache entry.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Key derives the deterministic cache key for a request: a sha256 hex digest
// over the normalized text, the voice-model identifier, the requested
// provider tag and every rendering option that affects output bytes. Caller
// identity is never part of the key. Requests that pin no provider share one
// key, whichever backend ends up rendering them.
func Key(req providers.SynthesisRequest) string {
	o := req.Options
	canonical := strings.Join([]string{
		NormalizeText(req.Text),
		req.VoiceModelID,
		req.Provider,
		o.Voice,
		fmt.Sprintf("%g", o.Speed),
		fmt.Sprintf("%g", o.Pitch),
		o.Format,
		fmt.Sprintf("%d", o.SampleRate),
		o.Language,
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// ClassifyTTL picks the TTL tier from the normalized text length.
func ClassifyTTL(text string) string {
	n := utf8.RuneCountInString(NormalizeText(text))
	switch {
	case n < longTierMaxChars:
		return TierLong
	case n < mediumTierMaxChars:
		return TierMedium
	default:
		return TierShort
	}
}

// TierTTL maps a tier to its configured duration.
func (c Config) TierTTL(tier string) time.Duration {
	switch tier {
	case TierLong:
		return c.LongTTL
	case TierMedium:
		return c.MediumTTL
	default:
		return c.ShortTTL
	}
}
