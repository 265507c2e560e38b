package domain

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/google/uuid"
)

// SubjectKey is the normalized identity a punishment applies to: either a
// player account UUID or an IP address / CIDR range. The canonical string
// form is what gets persisted, cached, and put on the wire, so normalization
// happens exactly once, at parse time.
type SubjectKey string

// ParseSubjectKey normalizes an operator-supplied identity. Accepted forms,
// tried in order: account UUID, IP address, CIDR range.
func ParseSubjectKey(s string) (SubjectKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty subject key")
	}
	if id, err := uuid.Parse(s); err == nil {
		return SubjectKey(id.String()), nil
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return SubjectKey(addr.Unmap().String()), nil
	}
	if prefix, err := netip.ParsePrefix(s); err == nil {
		return SubjectKey(prefix.Masked().String()), nil
	}
	return "", fmt.Errorf("subject key %q is not a UUID, IP, or CIDR range", s)
}

// SubjectFromPlayer builds a subject key from an account UUID.
func SubjectFromPlayer(id uuid.UUID) SubjectKey {
	return SubjectKey(id.String())
}

// SubjectFromIP builds a subject key from a single address.
func SubjectFromIP(addr netip.Addr) SubjectKey {
	return SubjectKey(addr.Unmap().String())
}

// IsIP reports whether the key names an IP address or range rather than an
// account.
func (k SubjectKey) IsIP() bool {
	s := string(k)
	if _, err := netip.ParseAddr(s); err == nil {
		return true
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}

func (k SubjectKey) String() string {
	return string(k)
}

// IsNil reports whether the key is empty.
func (k SubjectKey) IsNil() bool {
	return k == ""
}
