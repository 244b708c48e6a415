package session

import (
	"context"
	"fmt"
	"os"

	"github.com/flemzord/deskclaw/internal/sandbox"
)

// ChangeDir authorizes target against the session's scope, checks that it
// is a directory and makes it the new working directory. It returns the
// canonical path.
func ChangeDir(ctx context.Context, store Store, policy *sandbox.Policy, principal, target string) (string, error) {
	sess, err := store.Get(ctx, principal)
	if err != nil {
		return "", err
	}

	canonical, err := policy.Authorize(target, sess.Scope())
	if err != nil {
		return "", err
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, target)
	}

	if _, err := store.Update(ctx, principal, Patch{WorkingDir: &canonical}); err != nil {
		return "", err
	}
	return canonical, nil
}
