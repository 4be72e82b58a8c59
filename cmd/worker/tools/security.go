package tools

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLValidator rejects tool endpoints that would let a workflow reach
// into the worker's own network: non-HTTP schemes, localhost aliases,
// private and link-local ranges (cloud metadata services included).
type URLValidator struct {
	resolve func(host string) ([]net.IP, error)
}

func NewURLValidator() *URLValidator {
	return &URLValidator{resolve: net.LookupIP}
}

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata":                 true,
	"metadata.google.internal": true,
}

// Validate checks scheme and host of a tool endpoint. The hostname is
// resolved and every address it maps to must be publicly routable.
func (v *URLValidator) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid tool url: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("tool url scheme %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("tool url has no host")
	}
	if blockedHostnames[host] {
		return fmt.Errorf("tool host %q is blocked", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return validateIP(ip)
	}

	ips, err := v.resolve(host)
	if err != nil {
		return fmt.Errorf("resolve tool host %q: %w", host, err)
	}
	if len(ips) == 0 {
		return fmt.Errorf("tool host %q resolves to no addresses", host)
	}
	for _, ip := range ips {
		if err := validateIP(ip); err != nil {
			return err
		}
	}
	return nil
}

func validateIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("tool address %s is blocked: loopback", ip)
	case ip.IsPrivate():
		return fmt.Errorf("tool address %s is blocked: private network", ip)
	case ip.IsLinkLocalUnicast():
		// 169.254.0.0/16 covers the cloud metadata endpoints
		return fmt.Errorf("tool address %s is blocked: link-local", ip)
	case ip.IsMulticast():
		return fmt.Errorf("tool address %s is blocked: multicast", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("tool address %s is blocked: unspecified", ip)
	}
	return nil
}
