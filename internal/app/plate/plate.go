// Package plate pulls a best-guess license plate out of raw OCR text.
package plate

import (
	"regexp"
	"strings"
)

var (
	nonPlateChars = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	// 2-4 alphanumerics, an optional single whitespace, 2-5 alphanumerics.
	plateShape = regexp.MustCompile(`\b[A-Z0-9]{2,4}\s?[A-Z0-9]{2,5}\b`)
	digit      = regexp.MustCompile(`[0-9]`)
)

// Normalize drops everything except ASCII letters, digits and whitespace and
// uppercases the rest.
func Normalize(raw string) string {
	return strings.ToUpper(nonPlateChars.ReplaceAllString(raw, ""))
}

// Extract returns the first plate-shaped token of raw. Tokens without any
// digit are ordinary words and are skipped.
func Extract(raw string) (string, bool) {
	text := Normalize(raw)
	if strings.TrimSpace(text) == "" {
		return "", false
	}

	for _, candidate := range plateShape.FindAllString(text, -1) {
		if digit.MatchString(candidate) {
			return candidate, true
		}
	}
	return "", false
}
