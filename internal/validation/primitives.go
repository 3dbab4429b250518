package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"influencer-gifting-api/internal/models"
)

const (
	maxPersonNameLength = 50
	maxEmailLength      = 254
	maxEmailLocalLength = 64
	maxDomainLabel      = 63

	// Phone digit counts are always clamped into this range.
	MinPhoneDigits = 5
	MaxPhoneDigits = 15
)

var (
	emailLocalRegex  = regexp.MustCompile("^[A-Za-z0-9.!#$%&'*+/=?^_`{|}~-]+$")
	domainLabelRegex = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	handleRegex      = regexp.MustCompile(`^[A-Za-z0-9._]+$`)
	alnumRegex       = regexp.MustCompile(`[A-Za-z0-9]`)
	handleDropRegex  = regexp.MustCompile(`[^A-Za-z0-9._]`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// NormalizeNumber parses a setting that may have been entered as text.
// It reports false for empty input and for anything that is not a finite number.
func NormalizeNumber(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, true
	}
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// NormalizeCountryName folds a country name for case-insensitive comparison.
func NormalizeCountryName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// SanitizePersonName keeps letters, whitespace, apostrophes and hyphens and
// truncates the result to 50 characters.
func SanitizePersonName(value string) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == maxPersonNameLength {
			break
		}
		if isNameRune(r) {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	case r == '\'' || r == '-':
		return true
	}
	return unicode.IsSpace(r)
}

// SanitizePhoneDigits strips non-digits from an edited phone value. Once the
// previous value is at capacity, an edit that would grow past maxLength is
// refused and previous is returned unchanged.
func SanitizePhoneDigits(newValue, previous string, maxLength int) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, newValue)

	if len(digits) <= maxLength {
		return digits
	}
	if len(previous) >= maxLength {
		return previous
	}
	return digits[:maxLength]
}

// IsValidEmailAddress applies a practical subset of RFC 5321 address rules.
func IsValidEmailAddress(value string) bool {
	email := strings.TrimSpace(value)
	if email == "" || len(email) > maxEmailLength {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	local, domain := parts[0], parts[1]
	if local == "" || domain == "" {
		return false
	}

	if len(local) > maxEmailLocalLength {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}
	if !emailLocalRegex.MatchString(local) {
		return false
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > maxDomainLabel {
			return false
		}
		if !domainLabelRegex.MatchString(label) {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}

	return len(labels[len(labels)-1]) >= 2
}

// IsValidSocialHandle reports whether value, without its leading @, is a
// usable Instagram or TikTok handle.
func IsValidSocialHandle(value string) bool {
	stripped := strings.TrimLeft(value, "@")
	if stripped == "" {
		return false
	}
	return alnumRegex.MatchString(stripped) && handleRegex.MatchString(stripped)
}

// EnsureHandleFormat normalizes a handle as it is typed. The result is either
// empty or a single @ followed by allowed characters, and applying it twice
// gives the same value.
func EnsureHandleFormat(value string) string {
	if value == "" {
		return ""
	}
	compact := whitespaceRegex.ReplaceAllString(strings.TrimSpace(value), "")
	compact = strings.TrimLeft(compact, "@")
	compact = handleDropRegex.ReplaceAllString(compact, "")
	if compact == "" {
		return ""
	}
	return "@" + compact
}

// LengthRules bounds the number of digits in a national phone number.
type LengthRules struct {
	MinLength int `json:"min_length"`
	MaxLength int `json:"max_length"`
}

// PhoneLengthRules clamps a country's digit counts into [5, 15]. The bounds
// are clamped independently; a country configured with min > max keeps that
// inversion.
func PhoneLengthRules(country *models.PhoneCountry) LengthRules {
	minLength, maxLength := MinPhoneDigits, MaxPhoneDigits
	if country != nil {
		if country.MinLength != 0 {
			minLength = country.MinLength
		}
		if country.MaxLength != 0 {
			maxLength = country.MaxLength
		}
	}
	return LengthRules{
		MinLength: clamp(minLength, MinPhoneDigits, MaxPhoneDigits),
		MaxLength: clamp(maxLength, MinPhoneDigits, MaxPhoneDigits),
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
