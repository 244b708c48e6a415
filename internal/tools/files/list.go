package files

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"sort"

	"github.com/flemzord/deskclaw/internal/tool"
)

type listDirectory struct {
	tool.Base
	ts *toolset
}

func newListDirectory(ts *toolset) *listDirectory {
	return &listDirectory{
		ts: ts,
		Base: tool.Base{
			ToolName:        "list_directory",
			ToolDescription: "List the entries of a directory inside the allowed directories.",
			ToolSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "Directory path. Use \".\" for the working directory"}
				}
			}`),
		},
	}
}

// Entry describes one directory entry.
type Entry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// ListResult is the payload of a successful list_directory call.
type ListResult struct {
	Path      string  `json:"path"`
	Entries   []Entry `json:"entries"`
	Truncated bool    `json:"truncated,omitempty"`
}

func (t *listDirectory) Execute(_ context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	var args readArgs
	if res := decodeArgs(raw, &args); res != nil {
		return *res, nil
	}
	if args.Path == "" {
		args.Path = "."
	}

	path, res := t.ts.resolve(args.Path, env)
	if res != nil {
		return *res, nil
	}

	out, err := t.ts.list(path, env)
	if err != nil {
		return *err, nil
	}
	return tool.Success(out), nil
}

func (ts *toolset) list(path string, env tool.Env) (ListResult, *tool.Result) {
	if res := ts.recheck(path, env); res != nil {
		return ListResult{}, res
	}

	info, err := os.Stat(path)
	if err != nil {
		r := fsFailure("list_directory", err)
		return ListResult{}, &r
	}
	if !info.IsDir() {
		r := tool.Failure(tool.CodeInvalidArguments, "path is not a directory")
		return ListResult{}, &r
	}

	dirents, err := os.ReadDir(path)
	if err != nil {
		r := fsFailure("list_directory", err)
		return ListResult{}, &r
	}

	out := ListResult{Path: path, Entries: make([]Entry, 0, len(dirents))}
	for _, d := range dirents {
		if len(out.Entries) >= ts.cfg.MaxScanEntries {
			out.Truncated = true
			break
		}
		e := Entry{Name: d.Name(), Type: entryType(d.Type())}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				e.Size = fi.Size()
			}
		}
		out.Entries = append(out.Entries, e)
	}
	sort.Slice(out.Entries, func(i, j int) bool {
		return out.Entries[i].Name < out.Entries[j].Name
	})
	return out, nil
}

func entryType(m fs.FileMode) string {
	switch {
	case m.IsDir():
		return "dir"
	case m&fs.ModeSymlink != 0:
		return "symlink"
	case m.IsRegular():
		return "file"
	default:
		return "other"
	}
}
