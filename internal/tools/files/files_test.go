package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flemzord/deskclaw/internal/sandbox"
	"github.com/flemzord/deskclaw/internal/tool"
)

func tempRoot(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	return dir
}

func newRegistry(t *testing.T, cfg Config) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry()
	reg.MustRegister(New(nil, cfg)...)
	return reg
}

func envFor(root string) tool.Env {
	return tool.Env{Principal: "42", Scope: sandbox.Scope{WorkingDir: root, AllowedRoots: []string{root}}}
}

func invoke(t *testing.T, reg *tool.Registry, name string, env tool.Env, args any) tool.Result {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	res, err := reg.Invoke(context.Background(), name, raw, env)
	if err != nil {
		t.Fatalf("Invoke(%s): %v", name, err)
	}
	return res
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew_Catalogue(t *testing.T) {
	t.Parallel()

	want := map[string]bool{
		"read_file":            false,
		"write_file":           true,
		"list_directory":       false,
		"analyze_files":        false,
		"suggest_organization": false,
	}
	tools := New(nil, Config{})
	if len(tools) != len(want) {
		t.Fatalf("got %d tools, want %d", len(tools), len(want))
	}
	for _, tl := range tools {
		priv, ok := want[tl.Name()]
		if !ok {
			t.Errorf("unexpected tool %q", tl.Name())
			continue
		}
		if tl.RequiresConfirmation() != priv {
			t.Errorf("%s privileged = %v, want %v", tl.Name(), tl.RequiresConfirmation(), priv)
		}
		if !json.Valid(tl.Schema()) {
			t.Errorf("%s has invalid schema", tl.Name())
		}
	}
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	reg := newRegistry(t, Config{})
	env := envFor(root)

	content := "hello, café ☕\nline two\n"
	res := invoke(t, reg, "write_file", env, map[string]string{"path": "notes/today.txt", "content": content})
	if !res.OK {
		t.Fatalf("write_file failed: %+v", res)
	}
	wr := res.Data.(WriteResult)
	if wr.BytesWritten != len(content) || wr.Path != filepath.Join(root, "notes", "today.txt") {
		t.Errorf("write result = %+v", wr)
	}

	res = invoke(t, reg, "read_file", env, map[string]string{"path": "notes/today.txt"})
	if !res.OK {
		t.Fatalf("read_file failed: %+v", res)
	}
	if got := res.Data.(ReadResult).Content; got != content {
		t.Errorf("read back %q, want %q", got, content)
	}
}

func TestWriteFile_Append(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	reg := newRegistry(t, Config{})
	env := envFor(root)

	invoke(t, reg, "write_file", env, map[string]string{"path": "log.txt", "content": "a"})
	res := invoke(t, reg, "write_file", env, map[string]string{"path": "log.txt", "content": "b", "mode": "append"})
	if !res.OK {
		t.Fatalf("append failed: %+v", res)
	}
	got, _ := os.ReadFile(filepath.Join(root, "log.txt"))
	if string(got) != "ab" {
		t.Errorf("content = %q, want ab", got)
	}

	invoke(t, reg, "write_file", env, map[string]string{"path": "log.txt", "content": "c"})
	got, _ = os.ReadFile(filepath.Join(root, "log.txt"))
	if string(got) != "c" {
		t.Errorf("overwrite content = %q, want c", got)
	}
}

func TestWriteFile_SymlinkWritesCanonicalTarget(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	target := filepath.Join(root, "real.txt")
	mustWriteFile(t, target, "original")
	if err := os.Symlink(target, filepath.Join(root, "alias.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	reg := newRegistry(t, Config{})
	res := invoke(t, reg, "write_file", envFor(root), map[string]string{"path": "alias.txt", "content": "x"})

	// alias.txt canonicalizes to real.txt, so the write lands on the
	// canonical target, never through the link.
	if !res.OK {
		t.Fatalf("write through canonical path failed: %+v", res)
	}
	if res.Data.(WriteResult).Path != target {
		t.Errorf("wrote to %q, want canonical %q", res.Data.(WriteResult).Path, target)
	}
}

func TestFileTools_SandboxDenied(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	outside := tempRoot(t)
	mustWriteFile(t, filepath.Join(outside, "data.txt"), "x")
	mustWriteFile(t, filepath.Join(root, ".env"), "TOKEN=1")

	reg := newRegistry(t, Config{})
	env := envFor(root)

	tests := []struct {
		name string
		tool string
		args map[string]string
	}{
		{"read escape", "read_file", map[string]string{"path": "../" + filepath.Base(outside) + "/data.txt"}},
		{"read absolute outside", "read_file", map[string]string{"path": filepath.Join(outside, "data.txt")}},
		{"read dotenv", "read_file", map[string]string{"path": ".env"}},
		{"write outside", "write_file", map[string]string{"path": filepath.Join(outside, "new.txt"), "content": "x"}},
		{"list outside", "list_directory", map[string]string{"path": outside}},
		{"analyze outside", "analyze_files", map[string]string{"path": outside}},
	}
	for _, tt := range tests {
		res := invoke(t, reg, tt.tool, env, tt.args)
		if res.OK || res.Code != tool.CodeSandboxDenied {
			t.Errorf("%s: result = %+v, want sandbox_denied", tt.name, res)
		}
		if !strings.HasPrefix(res.Message, "access denied") {
			t.Errorf("%s: message = %q", tt.name, res.Message)
		}
	}

	if _, err := os.Stat(filepath.Join(outside, "new.txt")); err == nil {
		t.Error("write escaped the sandbox")
	}
}

func TestReadFile_Errors(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "big.txt"), strings.Repeat("x", 200))
	mustWriteFile(t, filepath.Join(root, "bin.dat"), "\xff\xfe\x00")
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}

	reg := newRegistry(t, Config{MaxFileSize: 100})
	env := envFor(root)

	tests := []struct {
		path string
		code tool.FailureCode
	}{
		{"missing.txt", tool.CodeNotFound},
		{"dir", tool.CodeInvalidArguments},
		{"big.txt", tool.CodeExecution},
		{"bin.dat", tool.CodeInvalidArguments},
	}
	for _, tt := range tests {
		res := invoke(t, reg, "read_file", env, map[string]string{"path": tt.path})
		if res.OK || res.Code != tt.code {
			t.Errorf("read_file(%s) = %+v, want code %s", tt.path, res, tt.code)
		}
	}
}

func TestReadFile_TruncatesContent(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	// "é" is two bytes, so a 5-byte cut lands inside a rune.
	mustWriteFile(t, filepath.Join(root, "long.txt"), "ééééé")

	reg := newRegistry(t, Config{MaxContentSize: 5})
	res := invoke(t, reg, "read_file", envFor(root), map[string]string{"path": "long.txt"})
	if !res.OK {
		t.Fatalf("read_file: %+v", res)
	}
	rr := res.Data.(ReadResult)
	if !rr.Truncated || rr.Content != "éé" || rr.Size != 10 {
		t.Errorf("result = %+v", rr)
	}
}

func TestListDirectory(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	mustWriteFile(t, filepath.Join(root, "b.txt"), "12345")
	mustWriteFile(t, filepath.Join(root, "a", "inner.txt"), "x")

	reg := newRegistry(t, Config{})
	res := invoke(t, reg, "list_directory", envFor(root), map[string]string{})
	if !res.OK {
		t.Fatalf("list_directory: %+v", res)
	}
	lr := res.Data.(ListResult)
	if lr.Path != root || len(lr.Entries) != 2 {
		t.Fatalf("result = %+v", lr)
	}
	if lr.Entries[0] != (Entry{Name: "a", Type: "dir"}) {
		t.Errorf("entry 0 = %+v", lr.Entries[0])
	}
	if lr.Entries[1] != (Entry{Name: "b.txt", Type: "file", Size: 5}) {
		t.Errorf("entry 1 = %+v", lr.Entries[1])
	}

	if res := invoke(t, reg, "list_directory", envFor(root), map[string]string{"path": "b.txt"}); res.Code != tool.CodeInvalidArguments {
		t.Errorf("listing a file: %+v", res)
	}
}

func makeTree(t *testing.T, root string) {
	t.Helper()
	for i := 0; i < 6; i++ {
		mustWriteFile(t, filepath.Join(root, "photo"+string(rune('a'+i))+".JPG"), "img")
	}
	mustWriteFile(t, filepath.Join(root, "report.pdf"), "pdf")
	mustWriteFile(t, filepath.Join(root, "misc.xyz"), "?")
	mustWriteFile(t, filepath.Join(root, "sub", "song.mp3"), "mp3")
	mustWriteFile(t, filepath.Join(root, "sub", "deeper", "code.go"), "package x")
	mustWriteFile(t, filepath.Join(root, ".ssh", "id_rsa"), "key")
}

func TestAnalyzeFiles(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	makeTree(t, root)
	reg := newRegistry(t, Config{})

	res := invoke(t, reg, "analyze_files", envFor(root), map[string]string{"path": "."})
	if !res.OK {
		t.Fatalf("analyze_files: %+v", res)
	}
	a := res.Data.(Analysis)

	counts := map[string]int{}
	for _, c := range a.Categories {
		counts[c.Name] = c.Count
	}
	want := map[string]int{"Images": 6, "Documents": 1, "Audio": 1, "Other": 1}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("%s = %d, want %d (all: %v)", name, counts[name], n, counts)
		}
	}
	if _, ok := counts["Code"]; ok {
		t.Error("default depth scanned sub/deeper")
	}
	if a.TotalFiles != 9 {
		t.Errorf("total = %d, want 9 (sensitive files skipped)", a.TotalFiles)
	}
	if a.Categories[0].Name != "Images" {
		t.Errorf("categories out of order: %+v", a.Categories)
	}
	if !strings.HasPrefix(a.Summary, "Total: 9 files") {
		t.Errorf("summary = %q", a.Summary)
	}
}

func TestAnalyzeFiles_DepthAndCap(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	makeTree(t, root)

	reg := newRegistry(t, Config{})
	res := invoke(t, reg, "analyze_files", envFor(root), map[string]any{"max_depth": 3})
	if a := res.Data.(Analysis); a.TotalFiles != 10 {
		t.Errorf("depth 3 total = %d, want 10", a.TotalFiles)
	}

	capped := newRegistry(t, Config{MaxScanEntries: 3})
	res = invoke(t, capped, "analyze_files", envFor(root), map[string]string{})
	if a := res.Data.(Analysis); !a.Truncated || a.TotalFiles > 3 {
		t.Errorf("capped analysis = %+v", a)
	}
}

func TestSuggestOrganization(t *testing.T) {
	t.Parallel()

	root := tempRoot(t)
	makeTree(t, root)
	reg := newRegistry(t, Config{})

	res := invoke(t, reg, "suggest_organization", envFor(root), map[string]string{})
	if !res.OK {
		t.Fatalf("suggest_organization: %+v", res)
	}
	s := res.Data.(Suggestions).Suggestions
	if !strings.Contains(s, `Create "Images" folder and move 6 images files`) {
		t.Errorf("suggestions = %q", s)
	}
	if strings.Contains(s, "Documents") {
		t.Errorf("category with <=5 files suggested: %q", s)
	}

	tidy := tempRoot(t)
	mustWriteFile(t, filepath.Join(tidy, "one.txt"), "1")
	res = invoke(t, reg, "suggest_organization", envFor(tidy), map[string]string{})
	if s := res.Data.(Suggestions).Suggestions; !strings.Contains(s, "well-organized") {
		t.Errorf("tidy suggestions = %q", s)
	}
}
