package emailaddr

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
)

var (
	localPartRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9._+-]*[a-z0-9])?$`)
	hostnameRE  = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}$`)
)

// Canonicalize extracts the bare address from a sender header value
// ("Ana <Ana@Example.COM.>" or "ana@example.com") and lowercases it.
func Canonicalize(address string) (string, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return "", fmt.Errorf("address is empty")
	}
	if parsed, err := mail.ParseAddress(raw); err == nil {
		raw = parsed.Address
	}
	if strings.ContainsAny(raw, " \t\r\n") {
		return "", fmt.Errorf("address must not contain spaces")
	}
	raw = strings.ToLower(raw)

	parts := strings.Split(raw, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("invalid address: %q", address)
	}
	local, domain := parts[0], strings.TrimSuffix(parts[1], ".")
	if !localPartRE.MatchString(local) {
		return "", fmt.Errorf("invalid local part: %q", local)
	}
	if !hostnameRE.MatchString(domain) {
		return "", fmt.Errorf("invalid domain: %q", domain)
	}
	return local + "@" + domain, nil
}

// Normalize is Canonicalize for display: unparseable input comes back
// trimmed but otherwise untouched.
func Normalize(address string) string {
	canonical, err := Canonicalize(address)
	if err != nil {
		return strings.TrimSpace(address)
	}
	return canonical
}
