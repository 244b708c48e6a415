// Package sandbox authorizes filesystem paths against a principal's allowed
// roots and a denylist of sensitive names. It is the only boundary between a
// tool argument and the real filesystem: every file-touching tool resolves
// its path through a Policy and uses the canonical result, never the raw
// argument.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Deny reasons. They are safe to show to the principal.
const (
	ReasonEmpty     = "path must not be empty"
	ReasonOutside   = "outside allowed paths"
	ReasonSensitive = "sensitive"
	ReasonChanged   = "path changed during operation"
)

// Sentinel errors matched by DeniedError.Is.
var (
	ErrEmptyPath    = errors.New("sandbox: empty path")
	ErrOutsideRoots = errors.New("sandbox: outside allowed paths")
	ErrSensitive    = errors.New("sandbox: sensitive path")
	ErrPathChanged  = errors.New("sandbox: path changed during operation")
)

// DeniedError reports why a path was refused.
type DeniedError struct {
	Path   string
	Reason string
	kind   error
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Is lets errors.Is match the sentinel for the deny kind.
func (e *DeniedError) Is(target error) bool {
	return target == e.kind
}

func deny(path, reason string, kind error) *DeniedError {
	return &DeniedError{Path: path, Reason: reason, kind: kind}
}

// Scope is the part of a session the sandbox needs to decide.
type Scope struct {
	WorkingDir   string
	AllowedRoots []string
}

// Policy holds the compiled denylist. A Policy is immutable after
// construction and safe for concurrent use.
type Policy struct {
	deny []*regexp.Regexp
}

// DefaultDenyPatterns are matched against the slash-separated canonical path.
var DefaultDenyPatterns = []string{
	`\.ssh/`,
	`\.env$`,
	`\.env\.`,
	`id_rsa`,
	`id_ed25519`,
	`id_ecdsa`,
	`\.aws/credentials`,
	`\.aws/config`,
	`/etc/passwd`,
	`/etc/shadow`,
	`\.npmrc`,
	`\.pypirc`,
	`\.netrc`,
	`\.dockercfg`,
	`\.docker/config\.json`,
	`\.kube/config`,
	`\.pgpass`,
	`\.my\.cnf`,
	`private_key`,
	`(?i)secret`,
	`(?i)credential`,
}

// NewPolicy compiles the default denylist plus any extra patterns.
func NewPolicy(extra ...string) (*Policy, error) {
	patterns := make([]*regexp.Regexp, 0, len(DefaultDenyPatterns)+len(extra))
	for _, p := range append(append([]string{}, DefaultDenyPatterns...), extra...) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("sandbox: invalid deny pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Policy{deny: patterns}, nil
}

// MustPolicy is like NewPolicy but panics on an invalid pattern.
func MustPolicy(extra ...string) *Policy {
	p, err := NewPolicy(extra...)
	if err != nil {
		panic(err)
	}
	return p
}

var defaultPolicy = MustPolicy()

// Authorize checks candidate with the default denylist.
func Authorize(candidate string, scope Scope) (string, error) {
	return defaultPolicy.Authorize(candidate, scope)
}

// Authorize resolves candidate against scope and returns its canonical path.
// Containment is checked before the denylist so an escape attempt is always
// reported as outside the allowed paths.
func (p *Policy) Authorize(candidate string, scope Scope) (string, error) {
	if strings.TrimSpace(candidate) == "" {
		return "", deny(candidate, ReasonEmpty, ErrEmptyPath)
	}

	canonical := canonicalize(resolve(candidate, scope.WorkingDir))

	if !contained(canonical, scope.AllowedRoots) {
		return "", deny(candidate, ReasonOutside, ErrOutsideRoots)
	}

	if p.sensitive(canonical) {
		return "", deny(candidate, ReasonSensitive, ErrSensitive)
	}

	return canonical, nil
}

// Recheck re-authorizes a canonical path right before it is used and fails
// if it no longer resolves to the same location.
func (p *Policy) Recheck(canonical string, scope Scope) error {
	again, err := p.Authorize(canonical, scope)
	if err != nil {
		return err
	}
	if again != canonical {
		return deny(canonical, ReasonChanged, ErrPathChanged)
	}
	return nil
}

// Contains reports whether path lies inside one of roots after canonicalization.
func Contains(path string, roots []string) bool {
	return contained(canonicalize(filepath.Clean(path)), roots)
}

func (p *Policy) sensitive(canonical string) bool {
	slashed := filepath.ToSlash(canonical)
	for _, re := range p.deny {
		if re.MatchString(slashed) {
			return true
		}
	}
	return false
}

// resolve anchors relative paths at the working directory.
func resolve(candidate, workingDir string) string {
	if filepath.IsAbs(candidate) {
		return filepath.Clean(candidate)
	}
	return filepath.Join(workingDir, candidate)
}

// canonicalize follows symlinks when the path exists. When it does not (or
// its target dangles) the deepest existing ancestor is resolved and the
// remaining components are appended unchanged, so create-style operations
// still work.
func canonicalize(path string) string {
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return filepath.Clean(resolved)
	}

	dir, rest := path, ""
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		if _, err := os.Lstat(parent); err == nil {
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				return filepath.Join(resolved, rest)
			}
		}
		dir = parent
	}
}

func contained(canonical string, roots []string) bool {
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		r := canonicalize(filepath.Clean(root))
		if canonical == r {
			return true
		}
		prefix := r
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(canonical, prefix) {
			return true
		}
	}
	return false
}
