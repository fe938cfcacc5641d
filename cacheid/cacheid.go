// Package cacheid canonicalizes remote cache identifiers.
//
// The provider mints names like "cachedContents/abc123", older callers stored
// "caches/abc123", and fully-qualified resource paths show up when an ID is
// copied out of a console. Everything persisted or compared uses the bare
// trailing identifier; the prefixed form only exists at the provider boundary.

package cacheid

import "strings"

// providerPrefix is the only form the generation API accepts.
const providerPrefix = "cachedContents/"

const (
	qualifiedHead = "projects/"
	locationsPart = "/locations/"
)

// shortPrefixes are stripped repeatedly, along with any fully-qualified path.
var shortPrefixes = []string{
	"cachedContents/",
	"caches/",
}

// Normalize returns the canonical (unprefixed, trimmed) form of id.
// Prefixes are removed until none remain, so Normalize(Normalize(x)) == Normalize(x).
func Normalize(id string) string {
	for {
		next := strings.TrimSpace(id)
		next = stripQualified(next)
		for _, p := range shortPrefixes {
			next = strings.TrimPrefix(next, p)
		}
		if next == id {
			return id
		}
		id = next
	}
}

// ProviderForm returns "cachedContents/<id>" for the canonical form of id.
// An empty id stays empty.
func ProviderForm(id string) string {
	canonical := Normalize(id)
	if canonical == "" {
		return ""
	}
	return providerPrefix + canonical
}

// Equal reports whether two identifiers refer to the same cache entry.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// stripQualified removes "projects/<p>/locations/<region>/cachedContents/".
func stripQualified(id string) string {
	if !strings.HasPrefix(id, qualifiedHead) {
		return id
	}
	loc := strings.Index(id, locationsPart)
	if loc < 0 {
		return id
	}
	rest := id[loc+len(locationsPart):]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return id
	}
	rest = rest[slash+1:]
	if !strings.HasPrefix(rest, providerPrefix) {
		return id
	}
	return strings.TrimPrefix(rest, providerPrefix)
}
