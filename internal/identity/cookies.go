package identity

import (
	"net/url"
	"strings"
)

// ParseCookieHeader splits a raw Cookie header into name/value pairs.
// Only the first '=' separates name from value. Pairs with an empty name or
// value are skipped, values are percent-decoded when valid, and a repeated
// name keeps its last value.
func ParseCookieHeader(raw string) map[string]string {
	cookies := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		name, value, _ := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		cookies[name] = value
	}
	return cookies
}
