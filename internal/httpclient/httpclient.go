// Package httpclient builds the outbound client used for code exchange and
// client metadata discovery: bounded connect and total timeouts, bounded (or
// disabled) redirects, HTTP/2 when the upstream offers it.
package httpclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Options configures New.
type Options struct {
	// Timeout bounds the whole exchange including body read.
	Timeout        time.Duration
	ConnectTimeout time.Duration
	// MaxRedirects of 0 disables redirect following; the 3xx response is returned as is.
	MaxRedirects int
}

// ErrTooManyRedirects is wrapped in the *url.Error returned by Do.
var ErrTooManyRedirects = errors.New("httpclient: too many redirects")

func New(o Options) *http.Client {
	dialer := &net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   o.ConnectTimeout,
		ResponseHeaderTimeout: o.Timeout,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
	}
	// ConfigureTransport only fails when the transport is already configured.
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport: transport,
		Timeout:   o.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if o.MaxRedirects == 0 {
				return http.ErrUseLastResponse
			}
			if len(via) > o.MaxRedirects {
				return fmt.Errorf("%w (%d)", ErrTooManyRedirects, o.MaxRedirects)
			}
			return nil
		},
	}
}
