package common

import (
	"path/filepath"
	"regexp"
	"strings"
)

// AccountIdentifier is an account ID derived from a statement and where it came from.
type AccountIdentifier struct {
	ID     string
	Source string // "filename" or "default"
}

// Statement exports commonly carry the account number in the file name,
// e.g. "Acct_50100012345678_Oct2025.pdf" or "statement-1234567890.csv".
var accountNumberPattern = regexp.MustCompile(`(?:^|[_\-\s])(\d{8,18})(?:[_\-\s.]|$)`)

// AccountFromFileName derives an account ID from a statement file name: the
// first 8 to 18 digit run, else the sanitized base name.
func AccountFromFileName(filename string) AccountIdentifier {
	baseName := filepath.Base(filename)
	baseWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	if m := accountNumberPattern.FindStringSubmatch(baseWithoutExt); len(m) == 2 {
		return AccountIdentifier{ID: m[1], Source: "filename"}
	}
	return AccountIdentifier{ID: SanitizeAccountID(baseWithoutExt), Source: "default"}
}

// SanitizeAccountID makes an account identifier filesystem safe: only
// letters, digits, '_', '-' and '.' survive, and ".." never does.
func SanitizeAccountID(accountID string) string {
	sanitized := strings.ReplaceAll(strings.TrimSpace(accountID), " ", "_")

	var result strings.Builder
	for _, r := range sanitized {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-' || r == '.' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	sanitized = result.String()

	for strings.Contains(sanitized, "..") {
		sanitized = strings.ReplaceAll(sanitized, "..", "_")
	}
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_.")

	if sanitized == "" {
		sanitized = "UNKNOWN"
	}
	return sanitized
}
