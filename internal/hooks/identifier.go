package hooks

import (
	"fmt"
	"regexp"
	"strings"
)

// Scope identifiers become path segments of remote API calls, so validation
// is strict: alphanumeric plus hyphen, dot, underscore; at most 39
// characters; first and last character must be alphanumeric.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]{0,37}[A-Za-z0-9])?$`)

// ValidIdentifier reports whether name is safe to embed in a remote API
// path.
func ValidIdentifier(name string) bool {
	if strings.Contains(name, "..") {
		return false
	}
	return identifierPattern.MatchString(name)
}

// SplitRepo splits an "owner/name" repository identifier and validates both
// halves.
func SplitRepo(repository string) (string, string, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || !ValidIdentifier(owner) || !ValidIdentifier(name) {
		return "", "", fmt.Errorf("%w: %q is not a valid owner/name repository", ErrInvalidIdentifier, repository)
	}
	return owner, name, nil
}
