package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	// Registers the socks4 and socks4a schemes with x/net/proxy.
	_ "github.com/bdandy/go-socks4"
	xproxy "golang.org/x/net/proxy"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// Transport builds an *http.Transport that egresses through the given
// proxy. A nil config yields a direct transport. The stream transport has
// no overall timeout; response-header and dial timeouts bound connection
// setup so a dead proxy surfaces as a transient failure instead of a hang.
func Transport(cfg *domain.ProxyConfig) (*http.Transport, error) {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg == nil {
		return t, nil
	}

	switch cfg.Scheme {
	case domain.ProxyHTTP, domain.ProxyHTTPS:
		t.Proxy = http.ProxyURL(cfg.URL())
		return t, nil

	case domain.ProxySOCKS4, domain.ProxySOCKS4A, domain.ProxySOCKS5:
		u := cfg.URL()
		dialer, err := xproxy.FromURL(u, xproxy.Direct)
		if err != nil && cfg.Scheme == domain.ProxySOCKS4A {
			// Fall back to the socks4 dialer when the 4a variant is not
			// registered; the protocol differs only in where hostnames
			// are resolved.
			u.Scheme = string(domain.ProxySOCKS4)
			dialer, err = xproxy.FromURL(u, xproxy.Direct)
		}
		if err != nil {
			return nil, fmt.Errorf("proxy dialer for %s: %w", cfg, err)
		}
		if cd, ok := dialer.(xproxy.ContextDialer); ok {
			t.DialContext = cd.DialContext
		} else {
			t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		return t, nil

	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", cfg.Scheme)
	}
}
