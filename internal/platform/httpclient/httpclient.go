// Package httpclient builds the outbound HTTP client used for API lookups.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// New returns a client with a bounded per-request timeout and HTTP/2 enabled
// on a cloned default transport, so proxy and TLS defaults still apply.
func New(timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
