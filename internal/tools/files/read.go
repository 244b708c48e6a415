package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/flemzord/deskclaw/internal/tool"
)

type readFile struct {
	tool.Base
	ts *toolset
}

func newReadFile(ts *toolset) *readFile {
	return &readFile{
		ts: ts,
		Base: tool.Base{
			ToolName:        "read_file",
			ToolDescription: "Read the contents of a UTF-8 text file inside the allowed directories.",
			ToolSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"path": {"type": "string", "description": "File path, relative to the working directory or absolute"}
				},
				"required": ["path"]
			}`),
		},
	}
}

type readArgs struct {
	Path string `json:"path"`
}

// ReadResult is the payload of a successful read_file call.
type ReadResult struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int64  `json:"size"`
	Truncated bool   `json:"truncated,omitempty"`
}

func (t *readFile) Execute(_ context.Context, raw json.RawMessage, env tool.Env) (tool.Result, error) {
	var args readArgs
	if res := decodeArgs(raw, &args); res != nil {
		return *res, nil
	}

	path, res := t.ts.resolve(args.Path, env)
	if res != nil {
		return *res, nil
	}
	if res := t.ts.recheck(path, env); res != nil {
		return *res, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fsFailure("read_file", err), nil
	}
	if info.IsDir() {
		return tool.Failure(tool.CodeInvalidArguments, "path is a directory, use list_directory"), nil
	}
	if !info.Mode().IsRegular() {
		return tool.Failure(tool.CodeInvalidArguments, "path is not a regular file"), nil
	}
	if info.Size() > t.ts.cfg.MaxFileSize {
		return tool.Failure(tool.CodeExecution,
			fmt.Sprintf("file too large: %d bytes (limit %d)", info.Size(), t.ts.cfg.MaxFileSize)), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fsFailure("read_file", err), nil
	}
	defer f.Close()

	limit := t.ts.cfg.MaxContentSize
	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return fsFailure("read_file", err), nil
	}

	truncated := len(data) > limit
	if truncated {
		data = trimToRune(data[:limit])
	}
	if !utf8.Valid(data) {
		return tool.Failure(tool.CodeInvalidArguments, "file is not UTF-8 text"), nil
	}

	return tool.Success(ReadResult{
		Path:      path,
		Content:   string(data),
		Size:      info.Size(),
		Truncated: truncated,
	}), nil
}

// trimToRune drops a trailing partial UTF-8 sequence left by a byte cut.
func trimToRune(b []byte) []byte {
	for i := 0; i < utf8.UTFMax && len(b) > 0 && !utf8.Valid(b); i++ {
		b = b[:len(b)-1]
	}
	return b
}
