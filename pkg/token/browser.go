package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/teslashibe/go-traffic/internal/log"
)

// BrowserConfig controls the headless browser.
type BrowserConfig struct {
	PageTimeout time.Duration `yaml:"page_timeout"` // Navigation limit
	Settle      time.Duration `yaml:"settle"`       // Wait after load for the player to request its playlist
	Filter      URLFilter     `yaml:"filter"`
	ExecPath    string        `yaml:"exec_path"`  // Chrome binary; empty lets chromedp search
	NoSandbox   bool          `yaml:"no_sandbox"` // Needed when running as root in containers
}

// DefaultBrowserConfig returns a 60s page load and a 5s settle wait.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		PageTimeout: 60 * time.Second,
		Settle:      5 * time.Second,
		Filter:      DefaultFilter(),
	}
}

// BrowserResolver loads the page in headless Chrome and watches its network
// requests for the playlist URL. A fresh browser is started per call so no
// cookies or cached tokens leak between sessions.
type BrowserResolver struct {
	config BrowserConfig
	logger *slog.Logger
}

// NewBrowserResolver creates a BrowserResolver.
func NewBrowserResolver(cfg BrowserConfig) *BrowserResolver {
	return &BrowserResolver{
		config: cfg,
		logger: log.Component("token"),
	}
}

// Resolve implements session.TokenResolver.
func (r *BrowserResolver) Resolve(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)
	if r.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.config.ExecPath))
	}
	if r.config.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	found := &firstMatch{filter: r.config.Filter}
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if req, ok := ev.(*network.EventRequestWillBeSent); ok && req.Request != nil {
			if found.Offer(req.Request.URL) {
				r.logger.Debug("playlist request seen", "url", truncate(req.Request.URL, 60))
			}
		}
	})

	// Start the browser before the navigation deadline begins.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return "", fmt.Errorf("token: start browser: %w", err)
	}

	r.logger.Info("refreshing stream token", "page", pageURL)
	navCtx, cancelNav := context.WithTimeout(browserCtx, r.config.PageTimeout)
	err := chromedp.Run(navCtx, chromedp.Navigate(pageURL))
	cancelNav()

	if err != nil {
		// A slow page may still have requested the playlist.
		r.logger.Warn("page load failed", "err", err)
	} else if r.config.Settle > 0 {
		if err := chromedp.Run(browserCtx, chromedp.Sleep(r.config.Settle)); err != nil {
			r.logger.Debug("settle interrupted", "err", err)
		}
	}

	if url := found.URL(); url != "" {
		return url, nil
	}
	if err != nil {
		return "", fmt.Errorf("token: %w: %w", ErrNotFound, err)
	}
	return "", ErrNotFound
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
