package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// ClientConfig holds the static, credential-free settings of a provider client.
// The API key is supplied per request through a Factory.
type ClientConfig struct {
	//required fields
	BaseURL string
	Model   string

	UpstreamTimeout time.Duration // per-call timeout (default: 5m, reasoning is slow)
	MaxRetries      int           // connect retries (default: 2)
	BaseBackoff     time.Duration // initial backoff (default: 100ms)

	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 100

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BaseURL is required")
	}
	if c.Model == "" {
		return errors.New("Model is required")
	}
	return nil
}

// WithDefaults returns a copy of ClientConfig with defaults applied.
func (c *ClientConfig) WithDefaults() ClientConfig {
	cfg := *c

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 100
	}

	return cfg
}

// NewHTTPClient returns cfg.HTTPClient or a pooled client shared by every
// per-request provider instance. wrap, when non-nil, decorates the transport.
func NewHTTPClient(cfg ClientConfig, wrap func(http.RoundTripper) http.RoundTripper) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	var rt http.RoundTripper = DefaultTransport(cfg)
	if wrap != nil {
		rt = wrap(rt)
	}
	return &http.Client{Transport: rt}
}

// DefaultTransport creates a pooled HTTP transport with bounded dial and TLS timeouts.
func DefaultTransport(cfg ClientConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// WithUpstreamTimeout bounds parent by cfg.UpstreamTimeout when one is set.
func WithUpstreamTimeout(parent context.Context, cfg ClientConfig) (context.Context, context.CancelFunc) {
	if cfg.UpstreamTimeout > 0 {
		return context.WithTimeout(parent, cfg.UpstreamTimeout)
	}
	return context.WithCancel(parent)
}

// StreamTimeout classifies a stream whose call context ctx, derived from
// parent by WithUpstreamTimeout, has ended. It returns nil while ctx is live
// or when parent is done, since then the consumer has gone away. Otherwise the
// upstream deadline fired and the stream is reported as failed.
func StreamTimeout(provider string, parent, ctx context.Context) error {
	if ctx.Err() == nil || parent.Err() != nil {
		return nil
	}
	return NewUpstreamError(provider, fmt.Errorf("stream interrupted: %w", ctx.Err()))
}

// FlattenHeaders keeps the first value of every header, keyed in lower case.
func FlattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}
