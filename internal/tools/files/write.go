package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/flemzord/deskclaw/internal/tool"
)

// Write modes.
const (
	ModeOverwrite = "overwrite"
	ModeAppend    = "append"
)

type writeFile struct {
	tool.Base
	ts *toolset
}

func newWriteFile(ts *toolset) *writeFile {
	return &writeFile{
		ts: ts,
		Base: tool.Base{
			ToolName:        "write_file",
			ToolDescription: "Write text to a file inside the allowed directories. Requires the user's approval.",
			Privileged:      true,
			ToolSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path, relative to the working directory or absolute"},
					"content": {"type": "string", "description": "Text to write"},
					"mode": {"type": "string", "enum": ["overwrite", "append"], "description": "Defaults to overwrite"}
				},
				"required": ["path", "content"]
			}`),
		},
	}
}

type writeArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Mode    string `json:"mode"`
}

// WriteResult is the payload of a successful write_file call.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
	Mode         string `json:"mode"`
}

func (t *writeFile) Execute(_ context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	var args writeArgs
	if res := decodeArgs(raw, &args); res != nil {
		return *res, nil
	}
	if args.Mode == "" {
		args.Mode = ModeOverwrite
	}

	path, res := t.ts.resolve(args.Path, env)
	if res != nil {
		return *res, nil
	}

	if res := t.ts.recheck(path, env); res != nil {
		return *res, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fsFailure("write_file", err), nil
	}
	// Parents may have been created or swapped since the first check.
	if res := t.ts.recheck(path, env); res != nil {
		return *res, nil
	}

	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			return tool.Failure(tool.CodeSandboxDenied, "access denied: refusing to write through a symlink"), nil
		}
		if info.IsDir() {
			return tool.Failure(tool.CodeInvalidArguments, "path is a directory"), nil
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | oNoFollow
	if args.Mode == ModeAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fsFailure("write_file", err), nil
	}
	n, err := f.WriteString(args.Content)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fsFailure("write_file", err), nil
	}

	return tool.Success(WriteResult{Path: path, BytesWritten: n, Mode: args.Mode}), nil
}
