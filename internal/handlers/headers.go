package handlers

import (
	"net/http"

	"reasongate-gateway/internal/gateway"
)

const (
	DefaultProviderAHeader = "X-DeepSeek-API-Token"
	DefaultAnthropicHeader = "X-Anthropic-API-Token"
	DefaultGeminiHeader    = "X-Gemini-API-Token"
)

// CredentialHeaders names the request headers carrying the caller's
// provider credentials.
type CredentialHeaders struct {
	ProviderA string
	ProviderB string
}

func (h CredentialHeaders) extract(r *http.Request) (tokenA, tokenB string, err error) {
	if tokenA, err = credential(r, h.ProviderA); err != nil {
		return "", "", err
	}
	if tokenB, err = credential(r, h.ProviderB); err != nil {
		return "", "", err
	}
	return tokenA, tokenB, nil
}

func credential(r *http.Request, header string) (string, error) {
	values := r.Header.Values(header)
	if len(values) == 0 {
		return "", &gateway.HeaderMissingError{Header: header}
	}
	v := values[0]
	if v == "" || !visibleASCII(v) {
		return "", gateway.BadRequestf("invalid %s header value", header)
	}
	return v, nil
}

// visibleASCII allows printable ASCII, space and tab.
func visibleASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
