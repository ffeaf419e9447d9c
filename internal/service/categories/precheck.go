package categories

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Precheck reports whether a domain is worth classifying. Rejected domains
// resolve to Uncategorized without touching the store or the classifier.
type Precheck func(domain string) bool

// Precheck names accepted by ParsePrecheck.
const (
	PrecheckNone         = "none"
	PrecheckHostname     = "hostname"
	PrecheckPublicSuffix = "publicsuffix"
)

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// HostnamePrecheck accepts dotted hostnames ending in an alphabetic TLD of at
// least two letters.
func HostnamePrecheck(domain string) bool {
	return hostnamePattern.MatchString(domain)
}

// PublicSuffixPrecheck accepts hostnames that have a registrable domain
// (eTLD+1) under a known public suffix.
func PublicSuffixPrecheck(domain string) bool {
	if !HostnamePrecheck(domain) {
		return false
	}
	host := strings.ToLower(domain)
	if _, err := publicsuffix.EffectiveTLDPlusOne(host); err != nil {
		return false
	}
	// Unlisted TLDs fall through to the default "*" rule: a single label
	// reported as non-ICANN.
	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann || strings.Contains(suffix, ".")
}

// ParsePrecheck maps a configuration name onto a Precheck. "none" and the
// empty string yield nil (no pre-check).
func ParsePrecheck(name string) (Precheck, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PrecheckNone:
		return nil, nil
	case PrecheckHostname:
		return HostnamePrecheck, nil
	case PrecheckPublicSuffix:
		return PublicSuffixPrecheck, nil
	default:
		return nil, fmt.Errorf("categories: unknown precheck %q (want none, hostname or publicsuffix)", name)
	}
}
