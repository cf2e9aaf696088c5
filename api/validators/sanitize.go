package validators

import "strings"

// SanitizeString trims surrounding whitespace and caps the result at maxLen
// runes. maxLen <= 0 disables the cap.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return trimmed
}

// SanitizeOptional applies SanitizeString and maps blank input to nil.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	cleaned := SanitizeString(*input, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
