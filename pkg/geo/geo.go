// Package geo derives a coarse geographic bucket from a source address.
// It is a lookup table, not a GeoIP database: well-known prefixes map to
// fixed locations and everything else is bucketed by first octet. Good
// enough for risk annotation and audit context, never for policy.
package geo

import (
	"strconv"
	"strings"
)

// Location is the geo bucket attached to request context and audit events.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
	Source  string `json:"source"`
}

type prefixEntry struct {
	prefix  string
	country string
	city    string
}

var prefixTable = []prefixEntry{
	{"10.", "Private", "RFC1918"},
	{"192.168.", "Private", "RFC1918"},
	{"172.16.", "Private", "RFC1918"},
	{"127.", "Local", "Loopback"},
	{"203.0.113.", "Test-Net", "Demo"},
	{"198.51.100.", "Test-Net", "Demo"},
	{"8.8.8.", "United States", "Mountain View"},
	{"1.1.1.", "Australia", "Sydney"},
}

// NormalizeIP strips the IPv6-mapped-IPv4 prefix and takes the first hop
// of a comma-separated forwarding chain.
func NormalizeIP(ip string) string {
	if ip == "" {
		return "unknown"
	}
	if i := strings.Index(ip, "::ffff:"); i >= 0 {
		ip = ip[i+len("::ffff:"):]
	}
	if i := strings.Index(ip, ","); i >= 0 {
		ip = ip[:i]
	}
	return strings.TrimSpace(ip)
}

// Lookup returns the geo bucket for an address.
func Lookup(ip string) Location {
	clean := NormalizeIP(ip)

	for _, e := range prefixTable {
		if strings.HasPrefix(clean, e.prefix) {
			return Location{Country: e.country, City: e.city, Source: "derived"}
		}
	}

	first, _, found := strings.Cut(clean, ".")
	if found {
		if octet, err := strconv.Atoi(first); err == nil {
			return Location{Country: continentFor(octet), City: "Edge", Source: "derived"}
		}
	}

	return Location{Country: "Unknown", City: "Unknown", Source: "derived"}
}

func continentFor(octet int) string {
	switch {
	case octet <= 49:
		return "Asia-Pacific"
	case octet <= 99:
		return "Europe"
	case octet <= 149:
		return "North America"
	case octet <= 199:
		return "South America"
	default:
		return "Africa"
	}
}
