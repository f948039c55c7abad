package identity

import "context"

// Logger is the leveled logging surface used across the package
type Logger interface {
	Debug(message string, args ...any)
	Info(message string, args ...any)
	Warn(message string, args ...any)
	Error(message string, args ...any)
}

// LoggerProvider hands out named loggers so hosts can fan the package's
// components into their own logging tree
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Unsubscribe tears down a live subscription. Implementations must be safe
// to call more than once.
type Unsubscribe func()

// SessionProvider is the external authenticator: it issues and validates
// credentials for the three sign-in methods and emits the current session
// whenever it changes, including sign-out (a nil session).
type SessionProvider interface {
	// OnSessionChange registers a listener for session changes. The listener
	// is invoked with the current session immediately on registration.
	OnSessionChange(fn func(*Session)) Unsubscribe

	SignInPassword(ctx context.Context, email, password string) (*Session, error)
	SignInOAuth(ctx context.Context) (*Session, error)

	SendMagicLink(ctx context.Context, email string) error
	CompleteMagicLink(ctx context.Context, email, url string) (*Session, error)
	IsMagicLinkURL(url string) bool

	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error
}

// ProfileHandler receives profile snapshots from a live subscription. The
// profile is nil when no document exists for the identity; err is non-nil
// for transport failures, which carry no information about the document.
type ProfileHandler func(profile *Profile, err error)

// ProfileStore is the durable profile collaborator. Create is
// create-if-absent: a second call for the same identity ID leaves the
// existing document untouched and reports ErrProfileConflict, which callers
// treat as success.
type ProfileStore interface {
	// Subscribe opens a live subscription for one identity. The handler
	// receives an initial snapshot (possibly "no document") followed by a
	// push on every later change.
	Subscribe(identityID string, fn ProfileHandler) Unsubscribe

	Create(ctx context.Context, identityID string, fields ProfileFields) (*Profile, error)
	Read(ctx context.Context, identityID string) (*Profile, error)
}

// IntentStore is the small cross-context key-value capability holding the
// pending signup intent. It models single-slot durable storage shared by
// every tab of the requesting browser profile.
type IntentStore interface {
	Put(ctx context.Context, intent PendingSignupIntent) error
	// Get returns nil with no error when no intent is stored.
	Get(ctx context.Context) (*PendingSignupIntent, error)
	Delete(ctx context.Context) error
}
