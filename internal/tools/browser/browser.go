// Package browser implements the web tools: browse_url, extract_data,
// screenshot_url, web_search, compare_sources and generate_report. Pages are
// rendered by a Browser, normally a headless Chrome driven by rod.
package browser

import (
	"context"
	"time"
)

// Defaults for Config.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxContentChars = 5000
)

// Page is the rendered content of a URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Browser renders pages. Implementations must be safe for concurrent use.
type Browser interface {
	// Fetch loads url and returns its title and body text.
	Fetch(ctx context.Context, url string) (Page, error)

	// Extract loads url and returns the text of every element matching
	// the CSS selector.
	Extract(ctx context.Context, url, selector string) ([]string, error)

	// Screenshot loads url and returns a PNG capture.
	Screenshot(ctx context.Context, url string, fullPage bool) ([]byte, error)

	// Close releases the underlying browser process.
	Close() error
}
