package domain

import (
	"fmt"
	"net/url"
)

// ProxyScheme is the protocol spoken to an egress proxy.
type ProxyScheme string

const (
	ProxyHTTP    ProxyScheme = "http"
	ProxyHTTPS   ProxyScheme = "https"
	ProxySOCKS4  ProxyScheme = "socks4"
	ProxySOCKS4A ProxyScheme = "socks4a"
	ProxySOCKS5  ProxyScheme = "socks5"
)

// ValidProxyScheme reports whether s is a supported proxy scheme.
func ValidProxyScheme(s string) bool {
	switch ProxyScheme(s) {
	case ProxyHTTP, ProxyHTTPS, ProxySOCKS4, ProxySOCKS4A, ProxySOCKS5:
		return true
	}
	return false
}

// ProxyConfig is one configured egress proxy. Immutable once parsed, and
// comparable so the pool can key health state by value.
type ProxyConfig struct {
	Scheme   ProxyScheme
	Host     string
	Port     int
	Username string
	Password string
}

// Addr returns the host:port of the proxy.
func (p ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL renders the proxy as a scheme://[user:pass@]host:port URL.
func (p ProxyConfig) URL() *url.URL {
	u := &url.URL{
		Scheme: string(p.Scheme),
		Host:   p.Addr(),
	}
	if p.Username != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.Username, p.Password)
		} else {
			u.User = url.User(p.Username)
		}
	}
	return u
}

// String renders the proxy with the password masked, safe for logs.
func (p ProxyConfig) String() string {
	if p.Username != "" {
		return fmt.Sprintf("%s://%s:***@%s", p.Scheme, p.Username, p.Addr())
	}
	return fmt.Sprintf("%s://%s", p.Scheme, p.Addr())
}
