// Package collyfetcher implements the reachability probe using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
)

const (
	defaultTimeout  = 10 * time.Second
	maxProbeBodyLen = 64 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober implements menu.Prober with a single colly GET per call.
type Prober struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ menu.Prober = (*Prober)(nil)

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Prober.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.MaxBodySize = maxProbeBodyLen
	return &Prober{cfg: cfg, baseCollector: c}
}

// Probe issues a GET for url and returns the response status code. Any HTTP
// response, including 4xx and 5xx, yields its code with a nil error; only
// transport failures (DNS, refused, timeout) return an error.
func (p *Prober) Probe(ctx context.Context, url string) (int, error) {
	res, err := p.runCollector(ctx, p.buildCollector(), url)
	if err != nil {
		metrics.ObserveProbe(url, false)
		return 0, err
	}
	metrics.ObserveProbe(url, res.status == http.StatusOK)
	return res.status, nil
}

func (p *Prober) buildCollector() *colly.Collector {
	collector := p.baseCollector.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	return collector
}

func (p *Prober) configureCollectorHooks(hooks collectorHooks, status *int, probeErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*status = r.StatusCode
			return
		}
		*probeErr = err
	})
}

type probeResult struct {
	status int
	err    error
}

func (p *Prober) runCollector(ctx context.Context, collector *colly.Collector, url string) (probeResult, error) {
	done := make(chan probeResult, 1)
	go func() {
		var res probeResult
		p.configureCollectorHooks(collector, &res.status, &res.err)
		visitErr := collector.Visit(url)
		if res.status == 0 && res.err == nil {
			res.err = visitErr
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return probeResult{}, fmt.Errorf("colly probe canceled: %w", ctx.Err())
	case res := <-done:
		if res.status > 0 {
			return res, nil
		}
		if res.err != nil {
			return probeResult{}, fmt.Errorf("probe %s: %w", url, res.err)
		}
		return probeResult{}, fmt.Errorf("probe %s: no response", url)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
