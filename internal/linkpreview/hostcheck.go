package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var (
	ErrBlockedHost    = errors.New("host is not allowed")
	ErrBlockedAddress = errors.New("host resolves to a blocked address")
	ErrNoAddresses    = errors.New("host did not resolve")
)

// Cloud metadata endpoints and other names that only make sense inside the
// deployment network.
var metadataHostnames = map[string]bool{
	"localhost":                  true,
	"metadata":                   true,
	"metadata.google.internal":   true,
	"metadata.goog":              true,
	"metadata.azure.com":         true,
	"instance-data":              true,
	"instance-data.ec2.internal": true,
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::/128"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("ff00::/8"),
}

// IsBlockedIP reports whether addr must never be contacted. IPv4-mapped IPv6
// addresses are judged by their IPv4 form. Invalid addresses are blocked.
func IsBlockedIP(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsBlockedHostname reports whether host is a metadata name, a .localhost or
// .internal name, or one of skipDomains (or a subdomain of one).
func IsBlockedHostname(host string, skipDomains []string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return true
	}
	if metadataHostnames[host] {
		return true
	}
	if strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return true
	}
	for _, d := range skipDomains {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Resolver is the subset of *net.Resolver the validator needs.
type Resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// HostValidator decides whether a hostname may be fetched. Every resolved
// address has to pass, not just the first one.
type HostValidator struct {
	Resolver    Resolver
	SkipDomains []string
}

func NewHostValidator(skipDomains []string) *HostValidator {
	return &HostValidator{
		Resolver:    net.DefaultResolver,
		SkipDomains: skipDomains,
	}
}

func (v *HostValidator) Validate(ctx context.Context, host string) error {
	if IsBlockedHostname(host, v.SkipDomains) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlockedIP(addr) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return nil
	}

	addrs, err := v.Resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%w: %s", ErrNoAddresses, host)
	}
	for _, addr := range addrs {
		if IsBlockedIP(addr) {
			return fmt.Errorf("%w: %s -> %s", ErrBlockedAddress, host, addr)
		}
	}
	return nil
}
