package proxy

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ytsnap/ytsnap/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfigs(n int) []domain.ProxyConfig {
	configs := make([]domain.ProxyConfig, n)
	for i := range configs {
		configs[i] = domain.ProxyConfig{Scheme: domain.ProxyHTTP, Host: "proxy", Port: 8000 + i}
	}
	return configs
}

// fakeClock drives pool time in tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func withClock(p *Pool, c *fakeClock) *Pool {
	p.now = c.now
	return p
}

func TestAcquire_NoProxiesConfigured(t *testing.T) {
	p := NewPool(nil, Options{}, testLogger())

	cfg, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if cfg != nil {
		t.Errorf("Acquire = %v, want nil (direct connection)", cfg)
	}
}

func TestAcquire_RoundRobinVisitsAllBeforeRepeating(t *testing.T) {
	configs := testConfigs(4)
	p := NewPool(configs, Options{}, testLogger())

	seen := make(map[int]bool)
	for i := 0; i < len(configs); i++ {
		cfg, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire #%d: %v", i, err)
		}
		if seen[cfg.Port] {
			t.Fatalf("proxy %v returned twice before full rotation", cfg)
		}
		seen[cfg.Port] = true
	}
	if len(seen) != len(configs) {
		t.Errorf("visited %d proxies, want %d", len(seen), len(configs))
	}

	// The next acquire wraps around to the first.
	cfg, err := p.Acquire()
	if err != nil {
		t.Fatalf("Acquire after rotation: %v", err)
	}
	if cfg.Port != configs[0].Port {
		t.Errorf("wrap-around = port %d, want %d", cfg.Port, configs[0].Port)
	}
}

func TestAcquire_SkipsCoolingProxies(t *testing.T) {
	configs := testConfigs(3)
	clock := newFakeClock()
	p := withClock(NewPool(configs, Options{FailureThreshold: 1}, testLogger()), clock)

	// Cool the second proxy.
	p.ReportFailure(configs[1], false)

	for i := 0; i < 4; i++ {
		cfg, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if cfg.Port == configs[1].Port {
			t.Fatalf("cooling proxy was returned")
		}
	}
}

func TestReportFailure_ThresholdEntersCooldown(t *testing.T) {
	configs := testConfigs(1)
	clock := newFakeClock()
	p := withClock(NewPool(configs, Options{FailureThreshold: 3, CooldownBase: 30 * time.Second}, testLogger()), clock)

	p.ReportFailure(configs[0], false)
	p.ReportFailure(configs[0], false)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("two failures should not cool the proxy: %v", err)
	}

	p.ReportFailure(configs[0], false)
	if _, err := p.Acquire(); !errors.Is(err, domain.ErrAllProxiesExhausted) {
		t.Fatalf("three failures should exhaust the pool, got %v", err)
	}

	// Cooldown elapses; the proxy is eligible again.
	clock.advance(31 * time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("Acquire after cooldown: %v", err)
	}
}

func TestReportFailure_RateLimitedCoolsImmediately(t *testing.T) {
	configs := testConfigs(2)
	clock := newFakeClock()
	p := withClock(NewPool(configs, Options{FailureThreshold: 3}, testLogger()), clock)

	p.ReportFailure(configs[0], true)

	for i := 0; i < 3; i++ {
		cfg, err := p.Acquire()
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if cfg.Port == configs[0].Port {
			t.Fatal("rate-limited proxy should be cooling")
		}
	}
}

func TestReportFailure_CooldownEscalates(t *testing.T) {
	configs := testConfigs(1)
	clock := newFakeClock()
	p := withClock(NewPool(configs, Options{CooldownBase: 30 * time.Second, CooldownMax: 10 * time.Minute}, testLogger()), clock)

	// First cooldown: 30s.
	p.ReportFailure(configs[0], true)
	clock.advance(29 * time.Second)
	if _, err := p.Acquire(); !errors.Is(err, domain.ErrAllProxiesExhausted) {
		t.Fatal("should still be cooling at 29s")
	}
	clock.advance(2 * time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("first cooldown should last 30s: %v", err)
	}

	// Second cooldown doubles to 60s.
	p.ReportFailure(configs[0], true)
	clock.advance(31 * time.Second)
	if _, err := p.Acquire(); !errors.Is(err, domain.ErrAllProxiesExhausted) {
		t.Fatal("second cooldown should outlast 31s")
	}
	clock.advance(30 * time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("second cooldown should last 60s: %v", err)
	}
}

func TestReportSuccess_ClearsState(t *testing.T) {
	configs := testConfigs(1)
	clock := newFakeClock()
	p := withClock(NewPool(configs, Options{FailureThreshold: 3, CooldownBase: 30 * time.Second}, testLogger()), clock)

	p.ReportFailure(configs[0], true) // cooldown 30s, escalation counter 1
	p.ReportSuccess(configs[0])

	if _, err := p.Acquire(); err != nil {
		t.Fatalf("success should clear cooldown: %v", err)
	}

	// Escalation counter was reset too: the next cooldown is base again.
	p.ReportFailure(configs[0], true)
	clock.advance(31 * time.Second)
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("cooldown after success should be back to base: %v", err)
	}
}

func TestReportFailure_SuccessResetsCounter(t *testing.T) {
	configs := testConfigs(1)
	p := NewPool(configs, Options{FailureThreshold: 3}, testLogger())

	p.ReportFailure(configs[0], false)
	p.ReportFailure(configs[0], false)
	p.ReportSuccess(configs[0])
	p.ReportFailure(configs[0], false)
	p.ReportFailure(configs[0], false)

	if _, err := p.Acquire(); err != nil {
		t.Fatalf("counter should have reset on success: %v", err)
	}
}

func TestNewPool_DeduplicatesConfigs(t *testing.T) {
	cfg := domain.ProxyConfig{Scheme: domain.ProxyHTTP, Host: "h", Port: 1}
	p := NewPool([]domain.ProxyConfig{cfg, cfg}, Options{}, testLogger())
	if p.Size() != 1 {
		t.Errorf("Size = %d, want 1", p.Size())
	}
}

func TestAcquire_ConcurrentSerialized(t *testing.T) {
	configs := testConfigs(5)
	p := NewPool(configs, Options{}, testLogger())

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				cfg, err := p.Acquire()
				if err != nil || cfg == nil {
					t.Errorf("Acquire: cfg=%v err=%v", cfg, err)
					return
				}
				p.ReportFailure(*cfg, false)
				p.ReportSuccess(*cfg)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
