package validation

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"influencer-gifting-api/internal/models"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"", 0, false},
		{"4.9", 4.9, true},
		{" 12 ", 12, true},
		{"-3", -3, true},
		{"abc", 0, false},
		{"Infinity", 0, false},
		{"NaN", 0, false},
		{"  ", 0, true},
	}
	for _, tt := range tests {
		got, ok := NormalizeNumber(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestNormalizeCountryName(t *testing.T) {
	assert.Equal(t, "united states", NormalizeCountryName("  United States "))
}

func TestSanitizePersonName(t *testing.T) {
	assert.Equal(t, "Mary-Jane O'Neil", SanitizePersonName("Mary-Jane O'Neil"))
	assert.Equal(t, "Maya Lopez", SanitizePersonName("Maya! Lopez42"))
	assert.Equal(t, "", SanitizePersonName("<>123"))
	assert.Len(t, SanitizePersonName(strings.Repeat("a", 80)), 50)
}

func TestSanitizePhoneDigits(t *testing.T) {
	assert.Equal(t, "5551234", SanitizePhoneDigits("(555) 123-4", "", 10))
	assert.Equal(t, "1234567890", SanitizePhoneDigits("12345678901", "123456789", 10), "truncated when growing from below capacity")
	assert.Equal(t, "1234567890", SanitizePhoneDigits("12345678909", "1234567890", 10), "refused once at capacity")
	assert.Equal(t, "123456789", SanitizePhoneDigits("123456789", "1234567890", 10), "shrinking is allowed")
}

func TestIsValidEmailAddress(t *testing.T) {
	valid := []string{
		"a@b.co",
		"first.last+tag@example.com",
		" padded@example.org ",
		"o'brien@mail.example.ie",
	}
	for _, email := range valid {
		assert.True(t, IsValidEmailAddress(email), email)
	}

	invalid := []string{
		"",
		"plain",
		"a@@b.com",
		"a@b@c.com",
		".a@b.com",
		"a.@b.com",
		"a..b@c.com",
		"a@b",
		"a@b.c",
		"a@-b.com",
		"a@b-.com",
		"a@b..com",
		"a b@c.com",
		"a@b_c.com",
		strings.Repeat("x", 65) + "@example.com",
		"a@" + strings.Repeat("d", 64) + ".com",
		strings.Repeat("x", 60) + "@" + strings.Repeat("d.", 100) + "com",
	}
	for _, email := range invalid {
		assert.False(t, IsValidEmailAddress(email), email)
	}
}

func TestIsValidSocialHandle(t *testing.T) {
	assert.True(t, IsValidSocialHandle("@maya.lopez"))
	assert.True(t, IsValidSocialHandle("maya_1"))
	assert.False(t, IsValidSocialHandle("@"))
	assert.False(t, IsValidSocialHandle("@._"))
	assert.False(t, IsValidSocialHandle("@maya lopez"))
	assert.False(t, IsValidSocialHandle("@maya!"))
}

func TestEnsureHandleFormat(t *testing.T) {
	assert.Equal(t, "", EnsureHandleFormat(""))
	assert.Equal(t, "", EnsureHandleFormat("@@ !"))
	assert.Equal(t, "@mayalopez", EnsureHandleFormat("  @@maya lopez "))
	assert.Equal(t, "@maya.l_", EnsureHandleFormat("maya.l_!#"))
}

func TestPhoneLengthRules(t *testing.T) {
	assert.Equal(t, LengthRules{MinLength: 5, MaxLength: 15}, PhoneLengthRules(nil))
	assert.Equal(t, LengthRules{MinLength: 10, MaxLength: 10}, PhoneLengthRules(&models.PhoneCountry{MinLength: 10, MaxLength: 10}))
	assert.Equal(t, LengthRules{MinLength: 5, MaxLength: 15}, PhoneLengthRules(&models.PhoneCountry{MinLength: 2, MaxLength: 30}))
	// Bounds are clamped independently and never re-ordered.
	assert.Equal(t, LengthRules{MinLength: 12, MaxLength: 8}, PhoneLengthRules(&models.PhoneCountry{MinLength: 12, MaxLength: 8}))
}

func TestEnsureHandleFormat_Idempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("formatting twice equals formatting once", prop.ForAll(
		func(s string) bool {
			once := EnsureHandleFormat(s)
			return EnsureHandleFormat(once) == once
		},
		gen.AnyString(),
	))

	properties.Property("formatted handles are empty or valid-looking", prop.ForAll(
		func(s string) bool {
			out := EnsureHandleFormat(s)
			return out == "" || (strings.HasPrefix(out, "@") && !strings.HasPrefix(out, "@@"))
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestSanitizePhoneDigits_NeverExceedsCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("result fits and never grows at capacity", prop.ForAll(
		func(prevRaw, next string, maxLength int) bool {
			previous := SanitizePhoneDigits(prevRaw, "", maxLength)
			out := SanitizePhoneDigits(next, previous, maxLength)
			if len(out) > maxLength {
				return false
			}
			if len(previous) == maxLength && len(out) > len(previous) {
				return false
			}
			return true
		},
		gen.NumString(),
		gen.AnyString(),
		gen.IntRange(MinPhoneDigits, MaxPhoneDigits),
	))

	properties.TestingRun(t)
}
