package voices

import "strings"

// Languages the backends render directly. Extended codes below route through
// a bridge language instead of failing outright.
var nativeLanguages = map[string]bool{
	"zh": true,
	"en": true,
	"ja": true,
	"ko": true,
	"de": true,
	"fr": true,
	"ru": true,
	"pt": true,
	"es": true,
	"it": true,
}

// bridgeLanguages map extended codes to the native code used for rendering.
var bridgeLanguages = map[string]string{
	"ur": "en",
	"ar": "en",
	"hi": "en",
}

var displayNames = map[string]string{
	"zh": "Chinese",
	"en": "English",
	"ja": "Japanese",
	"ko": "Korean",
	"de": "German",
	"fr": "French",
	"ru": "Russian",
	"pt": "Portuguese",
	"es": "Spanish",
	"it": "Italian",
	"ur": "Urdu",
	"ar": "Arabic",
	"hi": "Hindi",
}

// languageOrder fixes the listing order: native codes first, then the
// bridged ones.
var languageOrder = []string{
	"zh", "en", "ja", "ko", "de", "fr", "ru", "pt", "es", "it",
	"ur", "ar", "hi",
}

// Normalize maps a caller's language tag to the code synthesis runs in.
// Region subtags are stripped ("en-US" renders as "en"), bridged codes
// collapse to their bridge target, and unknown tags come back empty, which
// downstream treats as the provider default.
func Normalize(tag string) string {
	code := strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if nativeLanguages[code] {
		return code
	}
	if bridge, ok := bridgeLanguages[code]; ok {
		return bridge
	}
	return ""
}

// IsNative reports whether a code renders without a bridge.
func IsNative(code string) bool {
	return nativeLanguages[strings.ToLower(code)]
}

// DisplayName returns the human-readable name of a language code, or the
// code itself when it is not in the table.
func DisplayName(code string) string {
	if name, ok := displayNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// Language is one entry of the supported-language listing.
type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Native bool   `json:"native"`

	// Bridge is the native code an extended language renders through.
	Bridge string `json:"bridge,omitempty"`
}

// Languages lists every supported language in a stable order, native codes
// first.
func Languages() []Language {
	out := make([]Language, 0, len(languageOrder))
	for _, code := range languageOrder {
		out = append(out, Language{
			Code:   code,
			Name:   displayNames[code],
			Native: nativeLanguages[code],
			Bridge: bridgeLanguages[code],
		})
	}
	return out
}
