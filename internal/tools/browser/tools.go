package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/tool"
)

// URL count bounds for the multi-source tools.
const (
	maxSearchURLs  = 10
	minCompareURLs = 2
	maxCompareURLs = 5
)

// fetchConcurrency bounds the pages rendered at once by multi-source tools.
const fetchConcurrency = 3

// Config configures the web tools and the Chrome instance behind them.
type Config struct {
	Headless        *bool                    `yaml:"headless"`
	Timeout         time.Duration            `yaml:"timeout"`
	Bin             string                   `yaml:"bin"`
	MaxContentChars int                      `yaml:"max_content_chars"`
	URLFilter       security.URLFilterConfig `yaml:"url_filter"`
}

// Defaults fills in zero-value fields. An empty allow list admits any
// public host.
func (c *Config) Defaults() {
	if c.Headless == nil {
		h := true
		c.Headless = &h
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxContentChars <= 0 {
		c.MaxContentChars = DefaultMaxContentChars
	}
	if len(c.URLFilter.AllowDomains) == 0 {
		c.URLFilter.AllowDomains = []string{security.AnyDomain}
	}
}

// Rod returns the RodConfig matching c.
func (c Config) Rod() RodConfig {
	c.Defaults()
	return RodConfig{Headless: *c.Headless, Bin: c.Bin, Timeout: c.Timeout}
}

type toolset struct {
	browser  Browser
	filter   *security.URLFilter
	maxChars int
	logger   *slog.Logger
	now      func() time.Time
}

// New returns the web tools backed by b.
func New(b Browser, cfg Config, logger *slog.Logger) []tool.Tool {
	cfg.Defaults()
	if logger == nil {
		logger = slog.Default()
	}
	ts := &toolset{
		browser:  b,
		filter:   security.NewURLFilter(cfg.URLFilter),
		maxChars: cfg.MaxContentChars,
		logger:   logger,
		now:      time.Now,
	}
	return []tool.Tool{
		&browseURL{Base: tool.Base{
			ToolName:        "browse_url",
			ToolDescription: "Open a web page and return its title and text.",
			ToolSchema:      json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"http:// or https:// URL"}},"required":["url"]}`),
		}, ts: ts},
		&extractData{Base: tool.Base{
			ToolName:        "extract_data",
			ToolDescription: "Open a web page and return the text of the elements matching a CSS selector.",
			ToolSchema: json.RawMessage(`{"type":"object","properties":{
				"url":{"type":"string","description":"http:// or https:// URL"},
				"selector":{"type":"string","description":"CSS selector, e.g. h1, .price, #main"}
			},"required":["url","selector"]}`),
		}, ts: ts},
		&screenshotURL{Base: tool.Base{
			ToolName:        "screenshot_url",
			ToolDescription: "Take a PNG screenshot of a web page and send it to the user.",
			ToolSchema: json.RawMessage(`{"type":"object","properties":{
				"url":{"type":"string","description":"http:// or https:// URL"},
				"full_page":{"type":"boolean","description":"Capture the whole page instead of the viewport"}
			},"required":["url"]}`),
		}, ts: ts},
		&webSearch{Base: tool.Base{
			ToolName:        "web_search",
			ToolDescription: "Browse up to 10 URLs and aggregate their content around a query.",
			ToolSchema: json.RawMessage(`{"type":"object","properties":{
				"urls":{"type":"array","items":{"type":"string"},"minItems":1,"maxItems":10},
				"query":{"type":"string","description":"Topic to focus on"}
			},"required":["urls"]}`),
		}, ts: ts},
		&compareSources{Base: tool.Base{
			ToolName:        "compare_sources",
			ToolDescription: "Browse 2 to 5 URLs and lay their content side by side for comparison.",
			ToolSchema: json.RawMessage(`{"type":"object","properties":{
				"urls":{"type":"array","items":{"type":"string"},"minItems":2,"maxItems":5},
				"topic":{"type":"string","description":"Aspect to compare"}
			},"required":["urls"]}`),
		}, ts: ts},
		&generateReport{Base: tool.Base{
			ToolName:        "generate_report",
			ToolDescription: "Browse sources for a topic and return a report skeleton to fill in.",
			ToolSchema: json.RawMessage(`{"type":"object","properties":{
				"topic":{"type":"string"},
				"urls":{"type":"array","items":{"type":"string"},"minItems":1,"maxItems":10},
				"sections":{"type":"array","items":{"type":"string"}}
			},"required":["topic","urls"]}`),
		}, ts: ts},
	}
}

// checkURL applies the scheme and domain policy.
func (ts *toolset) checkURL(raw string) *tool.Result {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		r := tool.Failure(tool.CodeInvalidArguments, "URL must start with http:// or https://")
		return &r
	}
	if err := ts.filter.Check(raw); err != nil {
		r := tool.Failure(tool.CodeDenied, err.Error())
		return &r
	}
	return nil
}

func (ts *toolset) truncate(s string) string {
	if utf8.RuneCountInString(s) <= ts.maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == ts.maxChars {
			return s[:i]
		}
		n++
	}
	return s
}

func decode(raw json.RawMessage, v any) *tool.Result {
	if err := json.Unmarshal(raw, v); err != nil {
		r := tool.Failure(tool.CodeInvalidArguments, "invalid arguments: "+err.Error())
		return &r
	}
	return nil
}

// PageResult is the payload of browse_url and one entry of the
// multi-source tools.
type PageResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (ts *toolset) fetch(ctx context.Context, url string) PageResult {
	if res := ts.checkURL(url); res != nil {
		return PageResult{URL: url, Error: res.Message}
	}
	page, err := ts.browser.Fetch(ctx, url)
	if err != nil {
		ts.logger.Warn("browser: fetch failed", "url", url, "error", err)
		return PageResult{URL: url, Error: "failed to load page"}
	}
	return PageResult{URL: url, Success: true, Title: page.Title, Content: ts.truncate(page.Text)}
}

// fetchAll renders urls with bounded concurrency, keeping input order.
func (ts *toolset) fetchAll(ctx context.Context, urls []string) []PageResult {
	results := make([]PageResult, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = ts.fetch(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type browseURL struct {
	tool.Base
	ts *toolset
}

type urlArgs struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	FullPage bool   `json:"full_page"`
}

func (t *browseURL) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a urlArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if res := t.ts.checkURL(a.URL); res != nil {
		return *res, nil
	}
	r := t.ts.fetch(ctx, a.URL)
	if !r.Success {
		return tool.Failure(tool.CodeExecution, "failed to browse URL: "+r.Error), nil
	}
	return tool.Success(r), nil
}

type extractData struct {
	tool.Base
	ts *toolset
}

// Extraction is the payload of extract_data.
type Extraction struct {
	URL      string   `json:"url"`
	Selector string   `json:"selector"`
	Results  []string `json:"results"`
	Count    int      `json:"count"`
}

func (t *extractData) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a urlArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if strings.TrimSpace(a.Selector) == "" {
		return tool.Failure(tool.CodeInvalidArguments, "selector must not be empty"), nil
	}
	if res := t.ts.checkURL(a.URL); res != nil {
		return *res, nil
	}

	texts, err := t.ts.browser.Extract(ctx, a.URL, a.Selector)
	if err != nil {
		t.ts.logger.Warn("browser: extract failed", "url", a.URL, "error", err)
		return tool.Failure(tool.CodeExecution, "failed to extract data"), nil
	}

	// Keep the whole payload within the content budget.
	budget := t.ts.maxChars
	out := make([]string, 0, len(texts))
	for _, s := range texts {
		if budget <= 0 {
			break
		}
		s = t.ts.truncate(s)
		if n := utf8.RuneCountInString(s); n > budget {
			s = string([]rune(s)[:budget])
		}
		budget -= utf8.RuneCountInString(s)
		out = append(out, s)
	}
	return tool.Success(Extraction{URL: a.URL, Selector: a.Selector, Results: out, Count: len(out)}), nil
}

type screenshotURL struct {
	tool.Base
	ts *toolset
}

func (t *screenshotURL) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a urlArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if res := t.ts.checkURL(a.URL); res != nil {
		return *res, nil
	}

	png, err := t.ts.browser.Screenshot(ctx, a.URL, a.FullPage)
	if err != nil {
		t.ts.logger.Warn("browser: screenshot failed", "url", a.URL, "error", err)
		return tool.Failure(tool.CodeExecution, "failed to take screenshot"), nil
	}

	res := tool.Success(map[string]any{"url": a.URL, "full_page": a.FullPage, "bytes": len(png)})
	return res.WithAttachment(tool.Attachment{Name: "screenshot.png", MIMEType: "image/png", Data: png}), nil
}

type multiArgs struct {
	URLs     []string `json:"urls"`
	Query    string   `json:"query"`
	Topic    string   `json:"topic"`
	Sections []string `json:"sections"`
}

// SearchResult is the payload of web_search.
type SearchResult struct {
	Query             string       `json:"query,omitempty"`
	Results           []PageResult `json:"results"`
	Summary           string       `json:"summary"`
	AggregatedContent string       `json:"aggregated_content"`
	SuccessCount      int          `json:"success_count"`
	FailCount         int          `json:"fail_count"`
}

func (ts *toolset) search(ctx context.Context, urls []string, query string) SearchResult {
	results := ts.fetchAll(ctx, urls)
	out := SearchResult{Query: query, Results: results}

	var parts []string
	for _, r := range results {
		if !r.Success {
			out.FailCount++
			continue
		}
		out.SuccessCount++
		title := r.Title
		if title == "" {
			title = r.URL
		}
		parts = append(parts, fmt.Sprintf("\n## %s\nSource: %s\n\n%s\n", title, r.URL, r.Content))
	}
	out.AggregatedContent = strings.Join(parts, "\n---\n")
	out.Summary = fmt.Sprintf("Browsed %d URLs: %d successful, %d failed", len(urls), out.SuccessCount, out.FailCount)
	return out
}

type webSearch struct {
	tool.Base
	ts *toolset
}

func (t *webSearch) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a multiArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if len(a.URLs) == 0 {
		return tool.Failure(tool.CodeInvalidArguments, "at least one URL is required"), nil
	}
	if len(a.URLs) > maxSearchURLs {
		return tool.Failure(tool.CodeInvalidArguments, fmt.Sprintf("maximum %d URLs allowed per search", maxSearchURLs)), nil
	}
	return tool.Success(t.ts.search(ctx, a.URLs, a.Query)), nil
}

type compareSources struct {
	tool.Base
	ts *toolset
}

// Comparison is the payload of compare_sources.
type Comparison struct {
	Comparison      string `json:"comparison"`
	SourcesCompared int    `json:"sources_compared"`
	Message         string `json:"message"`
}

func (t *compareSources) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a multiArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if len(a.URLs) < minCompareURLs {
		return tool.Failure(tool.CodeInvalidArguments, fmt.Sprintf("at least %d URLs are required for comparison", minCompareURLs)), nil
	}
	if len(a.URLs) > maxCompareURLs {
		return tool.Failure(tool.CodeInvalidArguments, fmt.Sprintf("maximum %d URLs allowed for comparison", maxCompareURLs)), nil
	}

	sr := t.ts.search(ctx, a.URLs, a.Topic)

	var b strings.Builder
	b.WriteString("# Source Comparison")
	if a.Topic != "" {
		b.WriteString(": " + a.Topic)
	}
	b.WriteString("\n\n## Sources Overview\n\n")
	for i, r := range sr.Results {
		title := r.Title
		if title == "" {
			title = "Untitled"
		}
		status := "✅ Success"
		if !r.Success {
			status = "❌ Failed"
		}
		fmt.Fprintf(&b, "**Source %d**: %s\nURL: %s\nStatus: %s\n\n", i+1, title, r.URL, status)
	}
	b.WriteString("---\n\n## Content Comparison\n\n")
	n := 0
	for _, r := range sr.Results {
		if !r.Success {
			continue
		}
		n++
		title := r.Title
		if title == "" {
			title = r.URL
		}
		fmt.Fprintf(&b, "### Source %d: %s\n\n%s\n\n---\n\n", n, title, r.Content)
	}
	b.WriteString("## Analysis Instructions\n\nCompare these sources and identify:\n" +
		"1. Common points across all sources\n" +
		"2. Unique information from each source\n" +
		"3. Contradictions or disagreements\n" +
		"4. The most reliable information\n")

	return tool.Success(Comparison{
		Comparison:      b.String(),
		SourcesCompared: sr.SuccessCount,
		Message:         "Comparison prepared. Analyze the differences and similarities.",
	}), nil
}

type generateReport struct {
	tool.Base
	ts *toolset
}

var defaultSections = []string{"Overview", "Key Findings", "Detailed Analysis", "Sources"}

// Report is the payload of generate_report.
type Report struct {
	Topic        string   `json:"topic"`
	Report       string   `json:"report"`
	SourcesCount int      `json:"sources_count"`
	Sections     []string `json:"sections"`
	Message      string   `json:"message"`
}

func (t *generateReport) Execute(ctx context.Context, raw json.RawMessage, _ tool.Env) (tool.Result, error) {
	var a multiArgs
	if res := decode(raw, &a); res != nil {
		return *res, nil
	}
	if strings.TrimSpace(a.Topic) == "" {
		return tool.Failure(tool.CodeInvalidArguments, "topic must not be empty"), nil
	}
	if len(a.URLs) == 0 || len(a.URLs) > maxSearchURLs {
		return tool.Failure(tool.CodeInvalidArguments, fmt.Sprintf("between 1 and %d URLs are required", maxSearchURLs)), nil
	}
	sections := a.Sections
	if len(sections) == 0 {
		sections = defaultSections
	}

	sr := t.ts.search(ctx, a.URLs, a.Topic)

	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report: %s\n\n", a.Topic)
	fmt.Fprintf(&b, "**Generated:** %s\n", t.ts.now().Format("2006-01-02"))
	fmt.Fprintf(&b, "**Sources:** %d URLs browsed successfully", sr.SuccessCount)
	if sr.FailCount > 0 {
		fmt.Fprintf(&b, ", %d failed", sr.FailCount)
	}
	b.WriteString("\n\n---\n\n## Aggregated Content from Sources\n\n")
	b.WriteString(sr.AggregatedContent)
	b.WriteString("\n\n---\n\n## Report Sections\n\n")
	for _, s := range sections {
		fmt.Fprintf(&b, "### %s\n\n[To be written from the content above]\n\n", s)
	}

	return tool.Success(Report{
		Topic:        a.Topic,
		Report:       b.String(),
		SourcesCount: sr.SuccessCount,
		Sections:     sections,
		Message:      "Report template generated. Analyze the content and fill in the sections.",
	}), nil
}
