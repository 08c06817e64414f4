package language

import (
	"fmt"
	"strings"

	xlang "golang.org/x/text/language"
)

// Auto requests language detection from the engine.
const Auto = "auto"

// Word forms and bibliographic ISO 639-2 codes that BCP 47 parsing rejects.
var aliases = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"chinese":    "zh",
	"dutch":      "nl",
	"fre":        "fr",
	"ger":        "de",
	"chi":        "zh",
	"dut":        "nl",
}

// Normalize converts a language code, tag, or English word form to its
// two-letter base code. Empty input and "auto" normalize to "" which means
// the engine detects the language.
func Normalize(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" || code == Auto {
		return "", nil
	}
	if mapped, ok := aliases[code]; ok {
		return mapped, nil
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q: %w", code, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// ForEngine is Normalize for call sites that already validated the value.
// Unrecognized input yields "" so the engine falls back to detection.
func ForEngine(code string) string {
	normalized, err := Normalize(code)
	if err != nil {
		return ""
	}
	return normalized
}
