package downloader

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// progressReader wraps a stream body to log download progress and to detect
// stalls. A watchdog timer closes the body when stallTimeout elapses without
// a single byte arriving, so a black-holed connection fails the attempt
// instead of hanging until TCP keepalive gives up.
type progressReader struct {
	body         io.ReadCloser
	total        int64
	downloaded   int64
	stallTimeout time.Duration
	logEvery     time.Duration
	lastLog      time.Time
	logger       *slog.Logger

	watchdog *time.Timer
	stalled  atomic.Bool
}

func newProgressReader(body io.ReadCloser, total int64, stallTimeout, logEvery time.Duration, logger *slog.Logger) *progressReader {
	if logEvery <= 0 {
		logEvery = 30 * time.Second
	}
	p := &progressReader{
		body:         body,
		total:        total,
		stallTimeout: stallTimeout,
		logEvery:     logEvery,
		lastLog:      time.Now(),
		logger:       logger,
	}
	if stallTimeout > 0 {
		p.watchdog = time.AfterFunc(stallTimeout, func() {
			p.stalled.Store(true)
			body.Close()
		})
	}
	return p
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.body.Read(buf)
	if n > 0 {
		if p.watchdog != nil {
			p.watchdog.Reset(p.stallTimeout)
		}
		p.downloaded += int64(n)
		if now := time.Now(); now.Sub(p.lastLog) >= p.logEvery {
			p.logProgress()
			p.lastLog = now
		}
	}
	if err != nil && err != io.EOF && p.stalled.Load() {
		return n, fmt.Errorf("download stalled: no data for %v", p.stallTimeout)
	}
	return n, err
}

// stop disarms the watchdog; callers must invoke it once the copy finishes.
func (p *progressReader) stop() {
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		p.logger.Debug("download progress",
			"downloaded_mb", p.downloaded/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", float64(p.downloaded)/float64(p.total)*100),
		)
	} else {
		p.logger.Debug("download progress",
			"downloaded_mb", p.downloaded/(1024*1024),
		)
	}
}
