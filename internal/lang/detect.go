// Package lang guesses the reply language from message text with a cheap
// character heuristic. Good enough to pick a speech locale; not a general
// language identifier.
package lang

import "unicode"

// Language is an ISO 639-1 code the relay can answer in.
type Language string

const (
	Kazakh  Language = "kk"
	Russian Language = "ru"
	English Language = "en"
)

var kazakhLetters = map[rune]bool{
	'ә': true, 'ғ': true, 'қ': true, 'ң': true,
	'ө': true, 'ұ': true, 'ү': true, 'і': true, 'һ': true,
}

// Detect picks kk when any Kazakh-specific letter appears, en when latin
// letters dominate, and ru otherwise. Empty text defaults to ru.
func Detect(text string) Language {
	if text == "" {
		return Russian
	}

	var latin int
	runes := []rune(text)
	for _, r := range runes {
		if kazakhLetters[unicode.ToLower(r)] {
			return Kazakh
		}
		if r < 128 && unicode.IsLetter(r) {
			latin++
		}
	}
	if float64(latin) > float64(len(runes))*0.7 {
		return English
	}
	return Russian
}

// SpeechLocale maps a language to its speech-service locale code.
func SpeechLocale(l Language) string {
	switch l {
	case Kazakh:
		return "kk-KZ"
	case English:
		return "en-US"
	default:
		return "ru-RU"
	}
}
