package security

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Patterns that should never reach an SMS or push body.
	scriptPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
	}
)

// SanitizeString trims input and removes null bytes and control characters.
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")
	return removeControlCharacters(input)
}

// StripHTMLTags removes all HTML tags from input
func StripHTMLTags(input string) string {
	return htmlTagPattern.ReplaceAllString(input, "")
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(input string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(input, " "))
}

// TruncateString truncates to at most maxLength runes.
func TruncateString(input string, maxLength int) string {
	runes := []rune(input)
	if maxLength <= 0 || len(runes) <= maxLength {
		return input
	}
	return string(runes[:maxLength])
}

// ContainsScript reports whether input carries script-like content.
func ContainsScript(input string) bool {
	for _, pattern := range scriptPatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// SanitizeLine removes control characters and collapses whitespace, leaving
// every printable character in place. Use it for addresses and other text
// whose exact content matters downstream.
func SanitizeLine(input string) string {
	return NormalizeWhitespace(SanitizeString(input))
}

// SanitizeText cleans free text typed by a user before it is forwarded to the
// backend, for example an SOS message. Zero maxLength means no limit.
func SanitizeText(input string, maxLength int) string {
	input = SanitizeString(input)
	for _, pattern := range scriptPatterns {
		input = pattern.ReplaceAllString(input, "")
	}
	input = StripHTMLTags(input)
	input = NormalizeWhitespace(input)
	return TruncateString(input, maxLength)
}

func removeControlCharacters(input string) string {
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
