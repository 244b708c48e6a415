// Package files implements the sandboxed filesystem tools: read_file,
// write_file, list_directory, analyze_files and suggest_organization.
//
// Every path argument is resolved through a sandbox.Policy and the canonical
// result is re-checked right before each filesystem operation.
package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/tool"
)

// Defaults for Config.
const (
	DefaultMaxFileSize    int64 = 10 << 20
	DefaultMaxContentSize       = 5 << 20
	DefaultMaxScanEntries       = 5000
)

// Config bounds what the file tools will read and scan.
type Config struct {
	MaxFileSize    int64 `yaml:"max_file_size"`
	MaxContentSize int   `yaml:"max_content_size"`
	MaxScanEntries int   `yaml:"max_scan_entries"`
}

// Defaults fills in zero-value fields.
func (c *Config) Defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.MaxContentSize <= 0 {
		c.MaxContentSize = DefaultMaxContentSize
	}
	if c.MaxScanEntries <= 0 {
		c.MaxScanEntries = DefaultMaxScanEntries
	}
}

// toolset holds what every file tool shares.
type toolset struct {
	policy *sandbox.Policy
	cfg    Config
}

// New returns the file tools bound to policy. A nil policy uses the default
// denylist.
func New(policy *sandbox.Policy, cfg Config) []tool.Tool {
	if policy == nil {
		policy = sandbox.MustPolicy()
	}
	cfg.Defaults()
	ts := &toolset{policy: policy, cfg: cfg}

	return []tool.Tool{
		newReadFile(ts),
		newWriteFile(ts),
		newListDirectory(ts),
		newAnalyzeFiles(ts),
		newSuggestOrganization(ts),
	}
}

// resolve authorizes raw against the caller's scope. On denial it returns a
// ready-made failure result.
func (ts *toolset) resolve(raw string, env tool.Env) (string, *tool.Result) {
	canonical, err := ts.policy.Authorize(raw, env.Scope)
	if err != nil {
		return "", denied(err)
	}
	return canonical, nil
}

// recheck re-validates canonical right before it is touched.
func (ts *toolset) recheck(canonical string, env tool.Env) *tool.Result {
	if err := ts.policy.Recheck(canonical, env.Scope); err != nil {
		return denied(err)
	}
	return nil
}

func denied(err error) *tool.Result {
	var de *sandbox.DeniedError
	if errors.As(err, &de) {
		r := tool.Failure(tool.CodeSandboxDenied, de.Error())
		return &r
	}
	r := tool.Failure(tool.CodeSandboxDenied, "access denied")
	return &r
}

// fsFailure maps a filesystem error to a principal-safe result.
func fsFailure(op string, err error) tool.Result {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return tool.Failure(tool.CodeNotFound, op+": no such file or directory")
	case errors.Is(err, fs.ErrPermission):
		return tool.Failure(tool.CodeExecution, op+": permission denied")
	default:
		return tool.Failure(tool.CodeExecution, fmt.Sprintf("%s failed", op))
	}
}

func decodeArgs(args json.RawMessage, v any) *tool.Result {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, v); err != nil {
		r := tool.Failure(tool.CodeInvalidArguments, "invalid arguments: "+err.Error())
		return &r
	}
	return nil
}
