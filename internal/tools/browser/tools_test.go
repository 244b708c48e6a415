package browser

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/deskclaw/internal/security"
	"github.com/flemzord/deskclaw/internal/tool"
)

type fakeBrowser struct {
	mu      sync.Mutex
	pages   map[string]Page
	fetched []string
	closed  bool
}

func (f *fakeBrowser) Fetch(_ context.Context, url string) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	p, ok := f.pages[url]
	if !ok {
		return Page{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	return p, nil
}

func (f *fakeBrowser) Extract(_ context.Context, url, selector string) ([]string, error) {
	if _, ok := f.pages[url]; !ok {
		return nil, errors.New("unreachable")
	}
	return []string{selector + " one", selector + " two"}, nil
}

func (f *fakeBrowser) Screenshot(_ context.Context, url string, fullPage bool) ([]byte, error) {
	if _, ok := f.pages[url]; !ok {
		return nil, errors.New("unreachable")
	}
	if fullPage {
		return []byte("PNG-full"), nil
	}
	return []byte("PNG"), nil
}

func (f *fakeBrowser) Close() error {
	f.closed = true
	return nil
}

func (f *fakeBrowser) fetchedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func newFake() *fakeBrowser {
	return &fakeBrowser{pages: map[string]Page{
		"https://a.example.com/": {Title: "Alpha", Text: "alpha text"},
		"https://b.example.com/": {Title: "Beta", Text: "beta text"},
		"https://c.example.com/": {Title: "", Text: strings.Repeat("c", 100)},
	}}
}

func registry(t *testing.T, b Browser, cfg Config) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(New(b, cfg, nil)...)
	return reg
}

func call(t *testing.T, reg *tool.Registry, name string, args any) tool.Result {
	t.Helper()
	raw, _ := json.Marshal(args)
	res, err := reg.Invoke(context.Background(), name, raw, tool.Env{Principal: "1"})
	if err != nil {
		t.Fatalf("Invoke(%s): %v", name, err)
	}
	return res
}

func TestBrowseURL(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{MaxContentChars: 5})
	res := call(t, reg, "browse_url", map[string]string{"url": "https://a.example.com/"})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	p := res.Data.(PageResult)
	if p.Title != "Alpha" || p.Content != "alpha" {
		t.Errorf("page = %+v, want content truncated to 5 chars", p)
	}

	res = call(t, reg, "browse_url", map[string]string{"url": "https://missing.example.com/"})
	if res.OK || res.Code != tool.CodeExecution {
		t.Errorf("unreachable page: %+v", res)
	}
}

func TestURLPolicy(t *testing.T) {
	t.Parallel()

	fake := newFake()
	reg := registry(t, fake, Config{URLFilter: security.URLFilterConfig{
		AllowDomains: []string{"a.example.com"},
	}})

	tests := []struct {
		url  string
		code tool.FailureCode
	}{
		{"ftp://a.example.com/", tool.CodeInvalidArguments},
		{"a.example.com", tool.CodeInvalidArguments},
		{"https://b.example.com/", tool.CodeDenied},
		{"http://127.0.0.1/", tool.CodeDenied},
		{"http://localhost:8080/", tool.CodeDenied},
	}
	for _, name := range []string{"browse_url", "screenshot_url"} {
		for _, tt := range tests {
			res := call(t, reg, name, map[string]string{"url": tt.url})
			if res.OK || res.Code != tt.code {
				t.Errorf("%s(%s) = %+v, want %s", name, tt.url, res, tt.code)
			}
		}
	}
	if len(fake.fetchedURLs()) != 0 {
		t.Errorf("blocked URLs reached the browser: %v", fake.fetchedURLs())
	}
}

func TestDefaultFilterAllowsPublicHosts(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	if res := call(t, reg, "browse_url", map[string]string{"url": "https://b.example.com/"}); !res.OK {
		t.Errorf("result = %+v", res)
	}
	if res := call(t, reg, "browse_url", map[string]string{"url": "http://192.168.1.1/"}); res.Code != tool.CodeDenied {
		t.Errorf("private address = %+v", res)
	}
}

func TestExtractData(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	res := call(t, reg, "extract_data", map[string]string{"url": "https://a.example.com/", "selector": "h2"})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	e := res.Data.(Extraction)
	if e.Count != 2 || e.Results[0] != "h2 one" {
		t.Errorf("extraction = %+v", e)
	}

	if res := call(t, reg, "extract_data", map[string]string{"url": "https://a.example.com/", "selector": " "}); res.Code != tool.CodeInvalidArguments {
		t.Errorf("empty selector = %+v", res)
	}
}

func TestScreenshotURL_Attachment(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	res := call(t, reg, "screenshot_url", map[string]any{"url": "https://a.example.com/", "full_page": true})
	if !res.OK || len(res.Attachments) != 1 {
		t.Fatalf("result = %+v", res)
	}
	att := res.Attachments[0]
	if att.MIMEType != "image/png" || string(att.Data) != "PNG-full" {
		t.Errorf("attachment = %+v", att)
	}
}

func TestWebSearch(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	res := call(t, reg, "web_search", map[string]any{
		"urls":  []string{"https://a.example.com/", "https://missing.example.com/", "https://b.example.com/"},
		"query": "greek letters",
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	sr := res.Data.(SearchResult)
	if sr.SuccessCount != 2 || sr.FailCount != 1 {
		t.Errorf("counts = %d/%d", sr.SuccessCount, sr.FailCount)
	}
	if sr.Results[1].URL != "https://missing.example.com/" || sr.Results[1].Success {
		t.Errorf("results out of order: %+v", sr.Results)
	}
	if !strings.Contains(sr.AggregatedContent, "## Alpha") || !strings.Contains(sr.AggregatedContent, "beta text") {
		t.Errorf("aggregated = %q", sr.AggregatedContent)
	}
	if sr.Summary != "Browsed 3 URLs: 2 successful, 1 failed" {
		t.Errorf("summary = %q", sr.Summary)
	}
}

func TestURLCountBounds(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	many := make([]string, 11)
	for i := range many {
		many[i] = "https://a.example.com/"
	}

	tests := []struct {
		tool string
		urls []string
	}{
		{"web_search", nil},
		{"web_search", many},
		{"compare_sources", many[:1]},
		{"compare_sources", many[:6]},
		{"generate_report", many},
	}
	for _, tt := range tests {
		res := call(t, reg, tt.tool, map[string]any{"urls": tt.urls, "topic": "x"})
		if res.OK || res.Code != tool.CodeInvalidArguments {
			t.Errorf("%s with %d urls = %+v", tt.tool, len(tt.urls), res)
		}
	}
}

func TestCompareSources(t *testing.T) {
	t.Parallel()

	reg := registry(t, newFake(), Config{})
	res := call(t, reg, "compare_sources", map[string]any{
		"urls":  []string{"https://a.example.com/", "https://c.example.com/"},
		"topic": "letters",
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	c := res.Data.(Comparison)
	if c.SourcesCompared != 2 || !strings.HasPrefix(c.Comparison, "# Source Comparison: letters") {
		t.Errorf("comparison = %+v", c)
	}
	if !strings.Contains(c.Comparison, "**Source 2**: Untitled") {
		t.Errorf("untitled source missing: %s", c.Comparison)
	}
}

func TestGenerateReport(t *testing.T) {
	t.Parallel()

	tools := New(newFake(), Config{}, nil)
	for _, tl := range tools {
		if gr, ok := tl.(*generateReport); ok {
			gr.ts.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
		}
	}
	reg := tool.NewRegistry()
	reg.MustRegister(tools...)

	res := call(t, reg, "generate_report", map[string]any{
		"topic":    "Go",
		"urls":     []string{"https://a.example.com/"},
		"sections": []string{"Summary"},
	})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	r := res.Data.(Report)
	for _, want := range []string{"# Research Report: Go", "**Generated:** 2026-03-01", "### Summary", "alpha text"} {
		if !strings.Contains(r.Report, want) {
			t.Errorf("report missing %q:\n%s", want, r.Report)
		}
	}

	res = call(t, reg, "generate_report", map[string]any{"topic": "Go", "urls": []string{"https://a.example.com/"}})
	if got := res.Data.(Report).Sections; len(got) != 4 {
		t.Errorf("default sections = %v", got)
	}
}

func TestRodBrowser_CloseWithoutStart(t *testing.T) {
	t.Parallel()

	if err := NewRodBrowser(RodConfig{}, nil).Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
