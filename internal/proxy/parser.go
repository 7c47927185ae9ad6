// Package proxy tracks a set of egress proxies, their health, and rotation
// order, and builds per-proxy HTTP transports.
package proxy

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// ParseFile loads proxy configurations from a file, one proxy per line in
// scheme://[user:pass@]host:port form. Blank lines and lines starting with
// '#' are skipped; anything else that fails to parse is a configuration
// error naming the offending line.
func ParseFile(path string) ([]domain.ProxyConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var configs []domain.ProxyConfig
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cfg, err := ParseLine(line)
		if err != nil {
			return nil, domain.NewConfigurationError("proxy file %s line %d: %v", path, lineNo, err)
		}
		configs = append(configs, cfg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return configs, nil
}

// ParseLine parses a single scheme://[user:pass@]host:port proxy URI.
func ParseLine(line string) (domain.ProxyConfig, error) {
	u, err := url.Parse(strings.TrimSpace(line))
	if err != nil {
		return domain.ProxyConfig{}, fmt.Errorf("invalid proxy URI %q: %w", line, err)
	}
	if !domain.ValidProxyScheme(u.Scheme) {
		return domain.ProxyConfig{}, fmt.Errorf("unsupported proxy scheme %q in %q", u.Scheme, line)
	}
	host := u.Hostname()
	if host == "" {
		return domain.ProxyConfig{}, fmt.Errorf("missing host in %q", line)
	}

	port := defaultPort(domain.ProxyScheme(u.Scheme))
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return domain.ProxyConfig{}, fmt.Errorf("invalid port in %q", line)
		}
	}

	cfg := domain.ProxyConfig{
		Scheme: domain.ProxyScheme(u.Scheme),
		Host:   host,
		Port:   port,
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

func defaultPort(scheme domain.ProxyScheme) int {
	switch scheme {
	case domain.ProxyHTTPS:
		return 443
	case domain.ProxySOCKS4, domain.ProxySOCKS4A, domain.ProxySOCKS5:
		return 1080
	default:
		return 80
	}
}
