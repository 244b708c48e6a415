package bot

import "errors"

var (
	// ErrBotStopped is returned by Submit after Stop.
	ErrBotStopped = errors.New("bot: stopped")

	// ErrInboxFull is returned by Submit when the inbox cannot take more work.
	ErrInboxFull = errors.New("bot: inbox full")

	// ErrNotAllowed is returned by Submit for principals outside the allow list.
	ErrNotAllowed = errors.New("bot: principal not allowed")

	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("bot: missing dependency")
)
