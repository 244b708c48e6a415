package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig configures the Chrome instance behind RodBrowser.
type RodConfig struct {
	Headless bool
	Bin      string
	Timeout  time.Duration

	// ControlURL connects to an already running Chrome instead of
	// launching one.
	ControlURL string
}

// RodBrowser drives a headless Chrome through the DevTools protocol. Chrome
// is launched lazily on first use and every call runs in a fresh page.
type RodBrowser struct {
	cfg    RodConfig
	logger *slog.Logger

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

var _ Browser = (*RodBrowser)(nil)

// NewRodBrowser returns a browser that starts Chrome on first use.
func NewRodBrowser(cfg RodConfig, logger *slog.Logger) *RodBrowser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RodBrowser{cfg: cfg, logger: logger}
}

func (b *RodBrowser) connect(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		b.logger.Warn("browser: stale connection, relaunching")
		b.closeLocked()
	}

	controlURL := b.cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(b.cfg.Headless)
		if b.cfg.Bin != "" {
			l = l.Bin(b.cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch chrome: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	// The browser outlives the call that started it.
	br := rod.New().ControlURL(controlURL).Context(context.WithoutCancel(ctx))
	if err := br.Connect(); err != nil {
		b.killLocked()
		return nil, fmt.Errorf("browser: connect to chrome: %w", err)
	}
	b.browser = br
	b.logger.Info("browser: chrome connected", "headless", b.cfg.Headless)
	return br, nil
}

// open creates a page bound to ctx and the configured timeout, navigates it
// to url and waits for the load event.
func (b *RodBrowser) open(ctx context.Context, url string) (*rod.Page, func(), error) {
	br, err := b.connect(ctx)
	if err != nil {
		return nil, nil, err
	}

	page, err := br.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, nil, fmt.Errorf("browser: create page: %w", err)
	}
	release := func() { _ = page.Close() }

	p := page.Context(ctx).Timeout(b.cfg.Timeout)
	if err := p.Navigate(url); err != nil {
		release()
		return nil, nil, fmt.Errorf("browser: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		release()
		return nil, nil, fmt.Errorf("browser: wait for load: %w", err)
	}
	return p, release, nil
}

// Fetch implements Browser.
func (b *RodBrowser) Fetch(ctx context.Context, url string) (Page, error) {
	p, release, err := b.open(ctx, url)
	if err != nil {
		return Page{}, err
	}
	defer release()

	out := Page{URL: url}
	if info, err := p.Info(); err == nil {
		out.Title = info.Title
		if info.URL != "" {
			out.URL = info.URL
		}
	}
	body, err := p.Element("body")
	if err != nil {
		return out, fmt.Errorf("browser: no body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return out, fmt.Errorf("browser: read text: %w", err)
	}
	out.Text = strings.TrimSpace(text)
	return out, nil
}

// Extract implements Browser.
func (b *RodBrowser) Extract(ctx context.Context, url, selector string) ([]string, error) {
	p, release, err := b.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer release()

	els, err := p.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

// Screenshot implements Browser.
func (b *RodBrowser) Screenshot(ctx context.Context, url string, fullPage bool) ([]byte, error) {
	p, release, err := b.open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := p.Screenshot(fullPage, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

// Close implements Browser. It is safe to call when Chrome never started.
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *RodBrowser) closeLocked() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	b.killLocked()
	return err
}

func (b *RodBrowser) killLocked() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
}
