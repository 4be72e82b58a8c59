package tools

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validatorResolvingTo(addrs ...string) *URLValidator {
	return &URLValidator{resolve: func(host string) ([]net.IP, error) {
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, net.ParseIP(a))
		}
		return ips, nil
	}}
}

func TestValidateAllowsPublicHost(t *testing.T) {
	v := validatorResolvingTo("93.184.216.34")
	assert.NoError(t, v.Validate("https://api.example.com/v1/weather"))
}

func TestValidateRejectsScheme(t *testing.T) {
	v := NewURLValidator()

	for _, raw := range []string{
		"file:///etc/passwd",
		"ftp://example.com/data",
		"gopher://example.com",
	} {
		err := v.Validate(raw)
		require.Error(t, err, raw)
		assert.Contains(t, err.Error(), "scheme")
	}
}

func TestValidateRejectsLocalhost(t *testing.T) {
	v := NewURLValidator()

	assert.Error(t, v.Validate("http://localhost:8080/admin"))
	assert.Error(t, v.Validate("http://127.0.0.1/internal"))
	assert.Error(t, v.Validate("http://[::1]/internal"))
}

func TestValidateRejectsPrivateRanges(t *testing.T) {
	v := NewURLValidator()

	for _, raw := range []string{
		"http://10.0.0.5/api",
		"http://172.16.1.1/api",
		"http://192.168.1.10/api",
	} {
		assert.Error(t, v.Validate(raw), raw)
	}
}

func TestValidateRejectsMetadataEndpoint(t *testing.T) {
	v := NewURLValidator()

	err := v.Validate("http://169.254.169.254/latest/meta-data/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "link-local")

	assert.Error(t, v.Validate("http://metadata.google.internal/computeMetadata/v1/"))
}

func TestValidateRejectsHostResolvingPrivate(t *testing.T) {
	v := validatorResolvingTo("93.184.216.34", "10.0.0.5")

	err := v.Validate("https://rebound.example.com/hook")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private")
}

func TestValidateRejectsMissingHost(t *testing.T) {
	v := NewURLValidator()
	assert.Error(t, v.Validate("http:///path-only"))
}
