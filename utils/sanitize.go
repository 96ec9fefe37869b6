package utils

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SanitizeFileName trims a client supplied name and drops characters that can
// break object keys, headers, or Redis keys.
func SanitizeFileName(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	clean = strings.ReplaceAll(clean, "\x00", "")
	return clean
}

// CleanLocalPath returns an absolute, cleaned form of a source path.
func CleanLocalPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", nil
	}
	return filepath.Abs(filepath.Clean(p))
}

// FormatPercent renders a fraction in [0,1] as a percentage.
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}
