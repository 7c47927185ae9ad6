package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// HealthCheckOptions configures the optional startup probe.
type HealthCheckOptions struct {
	URL     string
	Timeout time.Duration
}

func (o *HealthCheckOptions) withDefaults() HealthCheckOptions {
	out := *o
	if out.URL == "" {
		out.URL = "https://www.google.com"
	}
	if out.Timeout <= 0 {
		out.Timeout = 5 * time.Second
	}
	return out
}

// HealthCheck probes every configured proxy with a lightweight request and
// puts failing ones straight into cooldown before rotation begins. The check
// is advisory: a pool with zero healthy proxies still starts, and failed
// proxies re-enter rotation once their cooldown elapses.
func (p *Pool) HealthCheck(ctx context.Context, opts HealthCheckOptions) {
	o := opts.withDefaults()

	p.mu.Lock()
	configs := make([]domain.ProxyConfig, 0, len(p.entries))
	for _, e := range p.entries {
		configs = append(configs, e.cfg)
	}
	p.mu.Unlock()

	for _, cfg := range configs {
		if err := p.probe(ctx, o, cfg); err != nil {
			p.logger.Warn("proxy failed health check", "proxy", cfg.String(), "error", err)
			p.ReportFailure(cfg, true) // immediate cooldown
			continue
		}
		p.logger.Info("proxy healthy", "proxy", cfg.String())
	}

	if cooling := p.coolingCount(); cooling > 0 {
		p.logger.Warn("health check complete", "cooling", cooling, "total", p.Size())
	}
}

func (p *Pool) probe(ctx context.Context, o HealthCheckOptions, cfg domain.ProxyConfig) error {
	transport, err := Transport(&cfg)
	if err != nil {
		return err
	}
	client := &http.Client{Transport: transport, Timeout: o.Timeout}

	reqCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, o.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
