package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain ipv4", input: "203.0.113.9", want: "203.0.113.9"},
		{name: "ipv6 mapped", input: "::ffff:203.0.113.9", want: "203.0.113.9"},
		{name: "forwarding chain", input: "203.0.113.9, 10.0.0.1, 10.0.0.2", want: "203.0.113.9"},
		{name: "chain with mapped first hop", input: "::ffff:203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "surrounding whitespace", input: "  203.0.113.9  ", want: "203.0.113.9"},
		{name: "empty", input: "", want: "unknown"},
		{name: "ipv6 loopback", input: "::1", want: "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeIP(tt.input))
		})
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name        string
		ip          string
		wantCountry string
		wantCity    string
	}{
		{name: "rfc1918 ten block", ip: "10.1.2.3", wantCountry: "Private", wantCity: "RFC1918"},
		{name: "rfc1918 192 block", ip: "192.168.0.10", wantCountry: "Private", wantCity: "RFC1918"},
		{name: "loopback", ip: "127.0.0.1", wantCountry: "Local", wantCity: "Loopback"},
		{name: "test net", ip: "203.0.113.50", wantCountry: "Test-Net", wantCity: "Demo"},
		{name: "well known resolver", ip: "8.8.8.8", wantCountry: "United States", wantCity: "Mountain View"},
		{name: "mapped prefix normalized first", ip: "::ffff:8.8.8.8", wantCountry: "United States", wantCity: "Mountain View"},
		{name: "first octet asia pacific", ip: "42.0.0.1", wantCountry: "Asia-Pacific", wantCity: "Edge"},
		{name: "first octet europe", ip: "85.10.0.1", wantCountry: "Europe", wantCity: "Edge"},
		{name: "first octet north america", ip: "140.10.0.1", wantCountry: "North America", wantCity: "Edge"},
		{name: "first octet south america", ip: "190.10.0.1", wantCountry: "South America", wantCity: "Edge"},
		{name: "first octet africa", ip: "210.10.0.1", wantCountry: "Africa", wantCity: "Edge"},
		{name: "unparseable", ip: "not-an-ip", wantCountry: "Unknown", wantCity: "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := Lookup(tt.ip)
			assert.Equal(t, tt.wantCountry, loc.Country)
			assert.Equal(t, tt.wantCity, loc.City)
			assert.Equal(t, "derived", loc.Source)
		})
	}
}
