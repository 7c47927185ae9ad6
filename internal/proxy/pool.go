package proxy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ytsnap/ytsnap/internal/domain"
)

// Options tunes pool health policy. Zero values fall back to defaults.
type Options struct {
	// FailureThreshold is the consecutive-failure count that puts a proxy
	// into cooldown. Default 3.
	FailureThreshold int

	// CooldownBase is the first cooldown duration; each subsequent cooldown
	// of the same proxy doubles it. Default 30s.
	CooldownBase time.Duration

	// CooldownMax caps the exponential cooldown. Default 15m.
	CooldownMax time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.FailureThreshold <= 0 {
		out.FailureThreshold = 3
	}
	if out.CooldownBase <= 0 {
		out.CooldownBase = 30 * time.Second
	}
	if out.CooldownMax <= 0 {
		out.CooldownMax = 15 * time.Minute
	}
	return out
}

type entry struct {
	cfg domain.ProxyConfig

	consecutiveFailures int
	cooldownUntil       time.Time
	timesCooled         int
}

// Pool owns all per-proxy health state and serializes every transition under
// a single mutex, held only for bookkeeping and never across a network call.
type Pool struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	entries []*entry
	byCfg   map[domain.ProxyConfig]*entry
	last    int // index of the last-returned entry

	now func() time.Time // injectable for tests
}

// NewPool creates a pool over the configured proxies in the given rotation
// order. An empty config list is valid: Acquire then always returns nil,
// meaning the caller proceeds without a proxy.
func NewPool(configs []domain.ProxyConfig, opts Options, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		opts:   opts.withDefaults(),
		logger: logger,
		byCfg:  make(map[domain.ProxyConfig]*entry, len(configs)),
		last:   -1,
		now:    time.Now,
	}
	for _, cfg := range configs {
		if _, dup := p.byCfg[cfg]; dup {
			continue
		}
		e := &entry{cfg: cfg}
		p.entries = append(p.entries, e)
		p.byCfg[cfg] = e
	}
	return p
}

// Size returns the number of configured proxies.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Acquire returns the next eligible proxy in round-robin order, skipping
// proxies in cooldown. A nil result with nil error means no proxies were
// ever configured and the caller should go direct. If every configured
// proxy is cooling down, Acquire fails with ErrAllProxiesExhausted rather
// than silently bypassing the proxy layer.
func (p *Pool) Acquire() (*domain.ProxyConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nil, nil
	}

	now := p.now()
	for i := 1; i <= len(p.entries); i++ {
		idx := (p.last + i) % len(p.entries)
		e := p.entries[idx]
		if e.cooldownUntil.After(now) {
			continue
		}
		p.last = idx
		cfg := e.cfg
		return &cfg, nil
	}
	return nil, domain.ErrAllProxiesExhausted
}

// ReportSuccess clears a proxy's failure and cooldown state unconditionally.
func (p *Pool) ReportSuccess(cfg domain.ProxyConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byCfg[cfg]
	if !ok {
		return
	}
	e.consecutiveFailures = 0
	e.cooldownUntil = time.Time{}
	e.timesCooled = 0
}

// ReportFailure records a failed request through a proxy. Reaching the
// failure threshold places it in an exponentially growing cooldown. A
// rate-limited failure cools the proxy immediately regardless of the
// counter, since a 429 means the egress IP is flagged.
func (p *Pool) ReportFailure(cfg domain.ProxyConfig, rateLimited bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byCfg[cfg]
	if !ok {
		return
	}
	e.consecutiveFailures++
	if !rateLimited && e.consecutiveFailures < p.opts.FailureThreshold {
		return
	}

	d := p.opts.CooldownBase << e.timesCooled
	if d > p.opts.CooldownMax || d <= 0 {
		d = p.opts.CooldownMax
	}
	e.cooldownUntil = p.now().Add(d)
	e.timesCooled++
	e.consecutiveFailures = 0

	p.logger.Warn("proxy entering cooldown",
		"proxy", e.cfg.String(),
		"cooldown", d,
		"rate_limited", rateLimited,
	)
}

// coolingCount returns how many proxies are currently in cooldown.
func (p *Pool) coolingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	now := p.now()
	for _, e := range p.entries {
		if e.cooldownUntil.After(now) {
			n++
		}
	}
	return n
}
