package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"discord-automod/internal/models"
)

// TokenError reports one wildcard token that could not be translated
type TokenError struct {
	Index  int
	Token  string
	Reason string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token %d (%q): %s", e.Index+1, e.Token, e.Reason)
}

// WildcardTranslator turns a comma separated list of simplified globs into
// regex patterns. '*' matches any run of characters, everything else is literal.
type WildcardTranslator struct {
	MaxLength int
}

// Translate uses the default pattern length limit
func Translate(expr string) ([]models.Pattern, []*TokenError) {
	return WildcardTranslator{}.Translate(expr)
}

// Translate converts every token independently. A bad token is reported and
// skipped; the rest are still returned so the caller can decide whether a
// partial result is acceptable.
func (w WildcardTranslator) Translate(expr string) ([]models.Pattern, []*TokenError) {
	maxLength := w.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	var patterns []models.Pattern
	var errs []*TokenError

	for i, raw := range strings.Split(expr, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			// stray or trailing commas
			continue
		}

		if strings.Trim(token, "*") == "" {
			errs = append(errs, &TokenError{Index: i, Token: token, Reason: "wildcard only token would match everything"})
			continue
		}

		source := globToRegex(token)
		if len(source) > maxLength {
			errs = append(errs, &TokenError{Index: i, Token: token, Reason: fmt.Sprintf("longer than %d characters once translated", maxLength)})
			continue
		}

		patterns = append(patterns, models.Pattern{
			Regex: source,
			Flags: "is",
			Label: token,
		})
	}

	if len(patterns) == 0 && len(errs) == 0 {
		errs = append(errs, &TokenError{Index: 0, Token: expr, Reason: "no tokens"})
	}

	return patterns, errs
}

func globToRegex(token string) string {
	var out strings.Builder
	out.WriteByte('^')

	lastStar := false
	for _, part := range splitKeepStars(token) {
		if part == "*" {
			if !lastStar {
				out.WriteString(".*")
			}
			lastStar = true
			continue
		}
		lastStar = false
		out.WriteString(regexp.QuoteMeta(part))
	}

	out.WriteByte('$')
	return out.String()
}

// splitKeepStars splits "a*b" into ["a", "*", "b"]
func splitKeepStars(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '*' {
			continue
		}
		if i > start {
			parts = append(parts, s[start:i])
		}
		parts = append(parts, "*")
		start = i + 1
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}
