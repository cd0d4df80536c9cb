package utils

import (
	"crypto/tls"
	"net/http"
	"time"
)

// NewHTTPClient returns a client for provider calls. It sets no overall
// Timeout: a streamed completion may legitimately run for minutes, so only
// connection setup is bounded.
func NewHTTPClient(wrap func(http.RoundTripper) http.RoundTripper) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if wrap != nil {
		transport = wrap(transport)
	}
	return &http.Client{Transport: transport}
}
