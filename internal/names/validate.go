package names

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	MaxSubdomainLength = 63
	SuffixLength       = 4
	suffixAlphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
	fallbackSlug       = "site"
)

var (
	subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]*[a-z0-9])?$`)
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	slugDashRuns     = regexp.MustCompile(`-+`)
)

// CanonicalSubdomain is the form subdomains are stored and looked up under.
func CanonicalSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func ValidateSubdomain(subdomain string) error {
	if subdomain == "" {
		return fmt.Errorf("subdomain is required")
	}
	if len(subdomain) > MaxSubdomainLength {
		return fmt.Errorf("subdomain must be at most %d characters", MaxSubdomainLength)
	}
	if !subdomainPattern.MatchString(subdomain) {
		return fmt.Errorf("subdomain must match %q", subdomainPattern.String())
	}
	return nil
}

// Slugify lowercases name, turns every run of other characters into a single
// dash and trims dashes from the ends.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugInvalidChars.ReplaceAllString(s, "-")
	s = slugDashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if limit := MaxSubdomainLength - SuffixLength - 1; len(s) > limit {
		s = strings.TrimRight(s[:limit], "-")
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}

// GenerateSubdomain returns slug(name)-xxxx with a random lowercase suffix.
func GenerateSubdomain(name string) (string, error) {
	return generateSubdomain(name, rand.Reader)
}

func generateSubdomain(name string, entropy io.Reader) (string, error) {
	buf := make([]byte, SuffixLength)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return "", fmt.Errorf("generate subdomain suffix: %w", err)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return Slugify(name) + "-" + string(buf), nil
}
