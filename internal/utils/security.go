package utils

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// xssPatterns matches common XSS attack fragments found in user-supplied
// insight thoughts, titles, and descriptions before they are persisted or rendered.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)<iframe[^>]*>.*?</iframe>`),
	regexp.MustCompile(`(?i)<object[^>]*>.*?</object>`),
	regexp.MustCompile(`(?i)<embed[^>]*>.*?</embed>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)<form[^>]*>.*?</form>`),
	regexp.MustCompile(`(?i)<input[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)vbscript:`),
	regexp.MustCompile(`(?i)onload\s*=`),
	regexp.MustCompile(`(?i)onerror\s*=`),
	regexp.MustCompile(`(?i)onclick\s*=`),
}

// SanitizeHTML escapes input only when it matches a known XSS pattern, leaving
// ordinary text untouched.
func SanitizeHTML(input string) string {
	if input == "" {
		return ""
	}
	if len(input) > 10000 {
		input = input[:10000]
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(input) {
			return html.EscapeString(input)
		}
	}
	return input
}

// ValidateInput rejects control characters and invalid UTF-8, returning the
// trimmed string. Used on thought/title/description fields at the API boundary.
func ValidateInput(input string) (string, bool) {
	if input == "" {
		return "", true
	}
	for _, r := range input {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return "", false
		}
	}
	if !utf8.ValidString(input) {
		return "", false
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(input) {
			return "", false
		}
	}
	return strings.TrimSpace(input), true
}

// IsValidURL validates a submitted insight URL is syntactically safe to fetch.
func IsValidURL(rawURL string) bool {
	if rawURL == "" || len(rawURL) > 2048 {
		return false
	}
	lower := strings.ToLower(rawURL)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return false
	}
	for _, pattern := range xssPatterns {
		if pattern.MatchString(rawURL) {
			return false
		}
	}
	return true
}

// IsValidImageURL validates an og:image / extracted image URL before it is stored.
func IsValidImageURL(rawURL string) bool {
	if !IsValidURL(rawURL) {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".ico"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

// SanitizeForLog strips newlines and control characters from user-controlled
// strings before they are interpolated into log fields, preventing log injection.
func SanitizeForLog(input string) string {
	if input == "" {
		return ""
	}
	sanitized := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(input)
	var builder strings.Builder
	for _, r := range sanitized {
		if r >= 32 || r == ' ' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
