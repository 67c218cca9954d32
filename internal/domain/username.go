package domain

import (
	"regexp"
	"strings"
)

const (
	// PlaceholderEmailDomain marks an email synthesized when the provider gave none.
	PlaceholderEmailDomain = "@example.local"
	// DefaultFullName is used until the provider supplies a real name.
	DefaultFullName = "New User"

	fallbackUsernamePrefix = "user_"
	fallbackSuffixLength   = 6
)

var (
	usernameDisallowed  = regexp.MustCompile(`[^a-z0-9_]`)
	usernameUnderscores = regexp.MustCompile(`_+`)
	generatedUsername   = regexp.MustCompile(`(?i)^user_[a-z0-9]+$`)
)

// NormalizeUsername lowercases value, maps anything outside [a-z0-9_] to an
// underscore, collapses underscore runs and trims them from both ends.
// The result may be empty.
func NormalizeUsername(value string) string {
	normalized := strings.ToLower(value)
	normalized = usernameDisallowed.ReplaceAllString(normalized, "_")
	normalized = usernameUnderscores.ReplaceAllString(normalized, "_")
	return strings.Trim(normalized, "_")
}

// FallbackUsername derives user_<last 6 chars of id>.
func FallbackUsername(id string) string {
	tail := id
	if len(tail) > fallbackSuffixLength {
		tail = tail[len(tail)-fallbackSuffixLength:]
	}
	suffix := NormalizeUsername(tail)
	if suffix == "" {
		return "user"
	}
	return fallbackUsernamePrefix + suffix
}

// IsGeneratedUsername reports whether username still has the provider-assigned shape.
func IsGeneratedUsername(username string) bool {
	return generatedUsername.MatchString(username)
}

// IsPlaceholderEmail reports whether email was synthesized locally
func IsPlaceholderEmail(email string) bool {
	return email == "" || strings.HasSuffix(strings.ToLower(email), PlaceholderEmailDomain)
}

func emailLocalPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return local
}
