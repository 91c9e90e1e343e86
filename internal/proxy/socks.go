// Package proxy builds HTTP clients that route transcription traffic through
// an optional SOCKS5 proxy.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultTimeout bounds a whole request made through a client from [NewClient].
const DefaultTimeout = 120 * time.Second

// NewClient returns an HTTP client for addr. An empty addr yields a plain
// client with [DefaultTimeout]. Otherwise addr is a SOCKS5 endpoint given as
// "host:port" or "socks5://[user:pass@]host:port".
func NewClient(addr string) (*http.Client, error) {
	if addr == "" {
		return &http.Client{Timeout: DefaultTimeout}, nil
	}

	host, auth, err := parse(addr)
	if err != nil {
		return nil, err
	}
	dialer, err := proxy.SOCKS5("tcp", host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("proxy: socks5 %s: %w", host, err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   DefaultTimeout,
	}, nil
}

func parse(addr string) (string, *proxy.Auth, error) {
	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return "", nil, fmt.Errorf("proxy: invalid address %q: %w", addr, err)
		}
		return addr, nil, nil
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", nil, fmt.Errorf("proxy: invalid address %q: %w", addr, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return "", nil, fmt.Errorf("proxy: unsupported scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		return "", nil, fmt.Errorf("proxy: address %q has no port", addr)
	}

	var auth *proxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: pass}
	}
	return u.Host, auth, nil
}
