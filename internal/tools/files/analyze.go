package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flemzord/deskclaw/internal/tool"
)

// Scan depth bounds for analyze_files.
const (
	DefaultScanDepth = 2
	MaxScanDepth     = 5
)

// maxFilesPerCategory caps the file names reported per category.
const maxFilesPerCategory = 50

// suggestThreshold is the file count above which a category gets its own
// folder suggestion.
const suggestThreshold = 5

type category struct {
	name       string
	extensions []string
}

var categories = []category{
	{"Images", []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".heic"}},
	{"Documents", []string{".pdf", ".doc", ".docx", ".txt", ".md", ".rtf", ".odt", ".xls", ".xlsx", ".ppt", ".pptx", ".csv"}},
	{"Videos", []string{".mp4", ".avi", ".mov", ".mkv", ".flv", ".wmv", ".webm"}},
	{"Audio", []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"}},
	{"Archives", []string{".zip", ".rar", ".7z", ".tar", ".gz", ".bz2", ".xz"}},
	{"Code", []string{".js", ".ts", ".py", ".java", ".cpp", ".c", ".h", ".go", ".rs", ".swift", ".rb", ".sh"}},
}

const otherCategory = "Other"

func categorize(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, c := range categories {
		for _, e := range c.extensions {
			if e == ext {
				return c.name
			}
		}
	}
	return otherCategory
}

// Category is one bucket of an analysis.
type Category struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Files []string `json:"files"`
}

// Analysis is the payload of a successful analyze_files call.
type Analysis struct {
	Path       string     `json:"path"`
	TotalFiles int        `json:"total_files"`
	Categories []Category `json:"categories"`
	Summary    string     `json:"summary"`
	Truncated  bool       `json:"truncated,omitempty"`
}

type scanArgs struct {
	Path     string `json:"path"`
	MaxDepth int    `json:"max_depth"`
}

const scanSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Directory to analyze. Use \".\" for the working directory"},
		"max_depth": {"type": "integer", "minimum": 1, "maximum": 5, "description": "How many directory levels to scan (default 2)"}
	}
}`

type analyzeFiles struct {
	tool.Base
	ts *toolset
}

func newAnalyzeFiles(ts *toolset) *analyzeFiles {
	return &analyzeFiles{
		ts: ts,
		Base: tool.Base{
			ToolName:        "analyze_files",
			ToolDescription: "Scan a directory and group its files by type (images, documents, videos, audio, archives, code).",
			ToolSchema:      json.RawMessage(scanSchema),
		},
	}
}

func (t *analyzeFiles) Execute(ctx context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	a, res := t.ts.analyze(ctx, raw, env)
	if res != nil {
		return *res, nil
	}
	return tool.Success(a), nil
}

// analyze runs a breadth-first scan bounded by depth and the entry cap.
// Symlinks are never followed and sensitive entries are skipped.
func (ts *toolset) analyze(ctx context.Context, raw json.RawMessage, env tool.Env) (Analysis, *tool.Result) {
	var args scanArgs
	if res := decodeArgs(raw, &args); res != nil {
		return Analysis{}, res
	}
	if args.Path == "" {
		args.Path = "."
	}
	depth := args.MaxDepth
	if depth <= 0 {
		depth = DefaultScanDepth
	}
	if depth > MaxScanDepth {
		depth = MaxScanDepth
	}

	root, res := ts.resolve(args.Path, env)
	if res != nil {
		return Analysis{}, res
	}
	if res := ts.recheck(root, env); res != nil {
		return Analysis{}, res
	}
	info, err := os.Stat(root)
	if err != nil {
		r := fsFailure("analyze_files", err)
		return Analysis{}, &r
	}
	if !info.IsDir() {
		r := tool.Failure(tool.CodeInvalidArguments, "path is not a directory")
		return Analysis{}, &r
	}

	type pending struct {
		dir   string
		depth int
	}

	buckets := make(map[string]*Category)
	out := Analysis{Path: root}
	seen := 0
	queue := []pending{{dir: root, depth: 0}}

scan:
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			r := tool.Failure(tool.CodeTimeout, "analyze_files cancelled")
			return Analysis{}, &r
		}
		cur := queue[0]
		queue = queue[1:]

		dirents, err := os.ReadDir(cur.dir)
		if err != nil {
			continue
		}
		for _, d := range dirents {
			if seen >= ts.cfg.MaxScanEntries {
				out.Truncated = true
				break scan
			}
			seen++

			full := filepath.Join(cur.dir, d.Name())
			if _, err := ts.policy.Authorize(full, env.Scope); err != nil {
				continue
			}

			switch {
			case d.IsDir():
				if cur.depth+1 < depth {
					queue = append(queue, pending{dir: full, depth: cur.depth + 1})
				}
			case d.Type().IsRegular():
				name := categorize(d.Name())
				b, ok := buckets[name]
				if !ok {
					b = &Category{Name: name}
					buckets[name] = b
				}
				b.Count++
				if len(b.Files) < maxFilesPerCategory {
					rel, err := filepath.Rel(root, full)
					if err != nil {
						rel = full
					}
					b.Files = append(b.Files, rel)
				}
				out.TotalFiles++
			}
		}
	}

	var lines []string
	for _, c := range append(categories, category{name: otherCategory}) {
		if b, ok := buckets[c.name]; ok {
			out.Categories = append(out.Categories, *b)
			lines = append(lines, fmt.Sprintf("%s: %d files", b.Name, b.Count))
		}
	}
	out.Summary = fmt.Sprintf("Total: %d files", out.TotalFiles)
	if len(lines) > 0 {
		out.Summary += "\n\n" + strings.Join(lines, "\n")
	}
	return out, nil
}

type suggestOrganization struct {
	tool.Base
	ts *toolset
}

func newSuggestOrganization(ts *toolset) *suggestOrganization {
	return &suggestOrganization{
		ts: ts,
		Base: tool.Base{
			ToolName:        "suggest_organization",
			ToolDescription: "Suggest folders for organizing a directory based on the kinds of files it holds.",
			ToolSchema:      json.RawMessage(scanSchema),
		},
	}
}

// Suggestions is the payload of a successful suggest_organization call.
type Suggestions struct {
	Suggestions string     `json:"suggestions"`
	Categories  []Category `json:"categories"`
}

func (t *suggestOrganization) Execute(ctx context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	a, res := t.ts.analyze(ctx, raw, env)
	if res != nil {
		return *res, nil
	}

	var lines []string
	for _, c := range a.Categories {
		if c.Count > suggestThreshold {
			lines = append(lines, fmt.Sprintf("📁 Create %q folder and move %d %s files", c.Name, c.Count, strings.ToLower(c.Name)))
		}
	}
	if len(lines) == 0 {
		lines = []string{"✅ Directory is well-organized. No major changes needed."}
	} else {
		lines = append([]string{fmt.Sprintf("🔍 Found %d files that could be better organized:", a.TotalFiles), ""}, lines...)
	}

	return tool.Success(Suggestions{Suggestions: strings.Join(lines, "\n"), Categories: a.Categories}), nil
}
