// Package documents implements analyze_document, which extracts the text of
// PDF and DOCX files inside the sandbox.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/tool"
)

// DefaultMaxLength is the number of characters returned when the caller
// does not set max_length.
const DefaultMaxLength = 10000

// maxDocumentSize bounds the files analyze_document will open.
const maxDocumentSize = 50 << 20

var errUnsupported = errors.New("unsupported document type")

// Document is the payload of a successful analyze_document call.
type Document struct {
	Path           string `json:"path"`
	Format         string `json:"format"`
	Text           string `json:"text"`
	Pages          int    `json:"pages,omitempty"`
	OriginalLength int    `json:"original_length"`
	Truncated      bool   `json:"truncated"`
	Summary        string `json:"summary"`
}

type analyzeDocument struct {
	tool.Base
	policy *sandbox.Policy
}

// New returns the analyze_document tool. A nil policy uses the default
// denylist.
func New(policy *sandbox.Policy) tool.Tool {
	if policy == nil {
		policy = sandbox.MustPolicy()
	}
	return &analyzeDocument{
		policy: policy,
		Base: tool.Base{
			ToolName:        "analyze_document",
			ToolDescription: "Extract the text of a PDF or DOCX document inside the allowed directories.",
			ToolSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Document path, relative to the working directory or absolute"},
					"max_length": {"type": "integer", "minimum": 1, "description": "Maximum characters of text to return (default 10000)"}
				},
				"required": ["path"]
			}`),
		},
	}
}

type args struct {
	Path      string `json:"path"`
	MaxLength int    `json:"max_length"`
}

func (t *analyzeDocument) Execute(_ context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	var a args
	if err := json.Unmarshal(raw, &a); err != nil {
		return tool.Failure(tool.CodeInvalidArguments, "invalid arguments: "+err.Error()), nil
	}
	if a.MaxLength <= 0 {
		a.MaxLength = DefaultMaxLength
	}

	path, err := t.policy.Authorize(a.Path, env.Scope)
	if err != nil {
		return tool.Failure(tool.CodeSandboxDenied, err.Error()), nil
	}
	if err := t.policy.Recheck(path, env.Scope); err != nil {
		return tool.Failure(tool.CodeSandboxDenied, err.Error()), nil
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return tool.Failure(tool.CodeNotFound, "document not found"), nil
	case err != nil:
		return tool.Failure(tool.CodeExecution, "cannot open document"), nil
	case !info.Mode().IsRegular():
		return tool.Failure(tool.CodeInvalidArguments, "path is not a file"), nil
	case info.Size() > maxDocumentSize:
		return tool.Failure(tool.CodeExecution, fmt.Sprintf("document too large: %d bytes", info.Size())), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	var (
		text  string
		pages int
	)
	switch ext {
	case ".pdf":
		text, pages, err = extractPDF(path, info.Size())
	case ".docx":
		text, err = extractDOCX(path, info.Size())
	default:
		err = errUnsupported
	}
	if errors.Is(err, errUnsupported) {
		return tool.Failure(tool.CodeInvalidArguments,
			fmt.Sprintf("unsupported file type %q, supported: .pdf, .docx", ext)), nil
	}
	if err != nil {
		return tool.Failure(tool.CodeExecution, fmt.Sprintf("failed to analyze %s: %v", strings.TrimPrefix(ext, "."), err)), nil
	}

	doc := Document{
		Path:           path,
		Format:         strings.TrimPrefix(ext, "."),
		Pages:          pages,
		OriginalLength: utf8.RuneCountInString(text),
	}
	doc.Text, doc.Truncated = truncate(text, a.MaxLength)
	doc.Summary = summarize(doc)

	return tool.Success(doc), nil
}

func truncate(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

func summarize(d Document) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(d.Format))
	if d.Pages > 0 {
		fmt.Fprintf(&b, " with %d pages,", d.Pages)
	} else {
		b.WriteString(" with")
	}
	fmt.Fprintf(&b, " %d characters", d.OriginalLength)
	if d.Truncated {
		b.WriteString(" (truncated)")
	}
	return b.String()
}
