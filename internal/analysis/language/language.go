package language

import (
	"strings"
	"unicode"
)

// Language is the detected language code of a paper.
type Language string

const (
	English     Language = "en"
	Chinese     Language = "zh"
	Unsupported Language = "unsupported"
)

// Detection pairs the language code with a human-readable name. For
// unsupported scripts the name identifies what was actually detected so
// the rejection can say so.
type Detection struct {
	Code Language
	Name string
}

// Supported reports whether the tribunal can review this language.
func (d Detection) Supported() bool {
	return d.Code == English || d.Code == Chinese
}

const sampleRunes = 2000

// Detect classifies text as English, Chinese or unsupported. Only the
// first 2000 runes are inspected. Very short texts default to English and
// are left to the length validation downstream.
func Detect(text string) Detection {
	if len(strings.TrimSpace(text)) < 10 {
		return Detection{Code: English, Name: "English"}
	}

	sample := []rune(text)
	if len(sample) > sampleRunes {
		sample = sample[:sampleRunes]
	}

	var total, han, latin, cyrillic, arabic, kana, hangul, thai, hebrew, greek, devanagari int
	for _, r := range sample {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			han++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		case r >= 0x0400 && r <= 0x04FF:
			cyrillic++
		case r >= 0x0600 && r <= 0x06FF:
			arabic++
		case (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF):
			kana++
		case r >= 0xAC00 && r <= 0xD7AF:
			hangul++
		case r >= 0x0E00 && r <= 0x0E7F:
			thai++
		case r >= 0x0590 && r <= 0x05FF:
			hebrew++
		case r >= 0x0370 && r <= 0x03FF:
			greek++
		case r >= 0x0900 && r <= 0x097F:
			devanagari++
		}
	}

	if total == 0 {
		return Detection{Code: English, Name: "English"}
	}

	ratio := func(n int) float64 { return float64(n) / float64(total) }

	if ratio(han) > 0.1 {
		return Detection{Code: Chinese, Name: "Chinese"}
	}

	if ratio(latin) > 0.5 {
		if ratio(cyrillic) > 0.1 {
			return Detection{Code: Unsupported, Name: "Russian"}
		}
		if ratio(arabic) > 0.1 {
			return Detection{Code: Unsupported, Name: "Arabic"}
		}
		return Detection{Code: English, Name: "English"}
	}

	switch {
	case ratio(kana) > 0.05:
		return Detection{Code: Unsupported, Name: "Japanese"}
	case ratio(hangul) > 0.1:
		return Detection{Code: Unsupported, Name: "Korean"}
	case ratio(thai) > 0.1:
		return Detection{Code: Unsupported, Name: "Thai"}
	case ratio(hebrew) > 0.1:
		return Detection{Code: Unsupported, Name: "Hebrew"}
	case ratio(greek) > 0.1:
		return Detection{Code: Unsupported, Name: "Greek"}
	case ratio(devanagari) > 0.1:
		return Detection{Code: Unsupported, Name: "Hindi"}
	}

	if ratio(latin) > 0.3 {
		return Detection{Code: English, Name: "English"}
	}

	return Detection{Code: Unsupported, Name: "Unknown"}
}
