// Package scraper runs the external scraper scripts and turns their output
// into menu records.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vendor-menu-cache/internal/menu"
	"github.com/JakeFAU/vendor-menu-cache/internal/metrics"
)

const maxLoggedStderr = 2048

// Config names the command and scripts the gateway invokes.
type Config struct {
	Command        string
	MealScript     string
	VendorScript   string
	WorkDir        string
	MaxOutputBytes int64
}

// Gateway implements menu.Scraper on top of a Runner.
type Gateway struct {
	cfg    Config
	runner Runner
	logger *zap.Logger
}

var _ menu.Scraper = (*Gateway)(nil)

// New constructs a Gateway. A nil runner uses an ExecRunner built from cfg.
func New(cfg Config, runner Runner, logger *zap.Logger) *Gateway {
	if cfg.Command == "" {
		cfg.Command = "python3"
	}
	if runner == nil {
		runner = ExecRunner{Dir: cfg.WorkDir, MaxOutput: cfg.MaxOutputBytes}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{cfg: cfg, runner: runner, logger: logger}
}

// ScrapeMeals runs the meal script for the vendor's menu URL.
func (g *Gateway) ScrapeMeals(ctx context.Context, vendorID int64, url string) ([]menu.MealRecord, error) {
	start := time.Now()
	stdout, err := g.run(ctx, "meals", url, g.cfg.MealScript, strconv.FormatInt(vendorID, 10), url)
	if err == nil {
		var records []menu.MealRecord
		records, err = parseArray[menu.MealRecord](url, stdout)
		if err == nil {
			if len(menu.MealsFromRecords(vendorID, records)) == 0 {
				err = &Error{Kind: KindEmpty, URL: url, Err: errors.New("no meals with a name")}
			} else {
				g.observe("meals", url, nil, start)
				return records, nil
			}
		}
	}
	g.observe("meals", url, err, start)
	return nil, err
}

// ScrapeVendor runs the vendor metadata script and returns the first record.
func (g *Gateway) ScrapeVendor(ctx context.Context, url string) (menu.VendorMetadata, error) {
	start := time.Now()
	stdout, err := g.run(ctx, "vendor", url, g.cfg.VendorScript, url)
	if err == nil {
		var records []menu.VendorMetadata
		records, err = parseArray[menu.VendorMetadata](url, stdout)
		if err == nil {
			if len(records) == 0 {
				err = &Error{Kind: KindEmpty, URL: url, Err: errors.New("no vendor metadata")}
			} else {
				g.observe("vendor", url, nil, start)
				return records[0], nil
			}
		}
	}
	g.observe("vendor", url, err, start)
	return menu.VendorMetadata{}, err
}

func (g *Gateway) run(ctx context.Context, op, url string, args ...string) ([]byte, error) {
	if args[0] == "" {
		return nil, &Error{Kind: KindInvocation, URL: url, Err: fmt.Errorf("no %s script configured", op)}
	}
	stdout, stderr, err := g.runner.Run(ctx, g.cfg.Command, args...)
	if len(stderr) > 0 {
		g.logger.Debug("scraper stderr",
			zap.String("operation", op),
			zap.String("url", url),
			zap.String("stderr", truncate(string(stderr), maxLoggedStderr)),
		)
	}
	if err != nil {
		kind := KindInvocation
		if errors.Is(err, ErrOutputTruncated) {
			kind = KindParse
		}
		return nil, &Error{Kind: kind, URL: url, Err: err}
	}
	return stdout, nil
}

func (g *Gateway) observe(op, url string, err error, start time.Time) {
	elapsed := time.Since(start)
	if err == nil {
		metrics.ObserveScrape(op, "success", elapsed)
		return
	}
	kind := KindOf(err)
	metrics.ObserveScrape(op, string(kind), elapsed)
	g.logger.Warn("scrape failed",
		zap.String("operation", op),
		zap.String("url", url),
		zap.String("kind", string(kind)),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
}

// parseArray decodes a JSON array of T. A top-level {"error": "..."} object,
// which the scripts print on failure, is reported as a parse failure carrying
// the script's message.
func parseArray[T any](url string, stdout []byte) ([]T, error) {
	body := bytes.TrimSpace(stdout)
	if len(body) == 0 {
		return nil, &Error{Kind: KindParse, URL: url, Err: errors.New("no output")}
	}
	if body[0] == '{' {
		var obj struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &obj); err == nil && obj.Error != "" {
			return nil, &Error{Kind: KindParse, URL: url, Err: fmt.Errorf("scraper reported: %s", obj.Error)}
		}
		return nil, &Error{Kind: KindParse, URL: url, Err: errors.New("expected a JSON array, got an object")}
	}
	var out []T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &Error{Kind: KindParse, URL: url, Err: fmt.Errorf("decode output: %w", err)}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:n]) + "..."
}
