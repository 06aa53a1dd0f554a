package util

import "strings"

// SanitizeText drops invalid UTF-8 and NUL bytes, which OCR output may
// contain and PostgreSQL TEXT columns reject.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeTextPtr applies SanitizeText to an optional value.
func SanitizeTextPtr(value *string) *string {
	if value == nil {
		return nil
	}
	s := SanitizeText(*value)
	return &s
}
