package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// DefaultCompletionTimeout bounds the wait on link completion so an expired
// or unreachable provider surfaces an error instead of hanging.
const DefaultCompletionTimeout = 10 * time.Second

// CompletedLink is the outcome of a finished magic-link flow: the session
// the provider established and the role recovered from the pending intent.
type CompletedLink struct {
	Session *Session
	Role    Role
	// IntentRecovered is false when the link was opened in a context that
	// never stored the intent, and the role fell back to the default.
	IntentRecovered bool
}

// Handoff carries signup intent across a context boundary the session
// provider cannot bridge on its own: the tab or device that opens a magic
// link is not necessarily the one that requested it.
type Handoff struct {
	sessions SessionProvider
	intents  IntentStore
	timeout  time.Duration
	logger   Logger
	provider LoggerProvider
}

// HandoffOption customizes handoff construction.
type HandoffOption func(*Handoff)

// WithCompletionTimeout bounds the provider call during link completion.
func WithCompletionTimeout(d time.Duration) HandoffOption {
	return func(h *Handoff) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithHandoffLogger overrides the logger.
func WithHandoffLogger(logger Logger) HandoffOption {
	return func(h *Handoff) {
		h.provider, h.logger = ResolveLogger("identity.handoff", h.provider, logger)
	}
}

// NewHandoff wires the handoff over the session provider and the durable
// cross-context intent storage.
func NewHandoff(sessions SessionProvider, intents IntentStore, opts ...HandoffOption) *Handoff {
	h := &Handoff{
		sessions: sessions,
		intents:  intents,
		timeout:  DefaultCompletionTimeout,
	}
	h.provider, h.logger = ResolveLogger("identity.handoff", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

type linkRequest struct {
	Email string
	Role  Role
}

func (r linkRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Role, validation.Required, validation.In(RoleStudent, RoleMentor)),
	)
}

// RequestLink stores the pending intent, then asks the provider to email a
// sign-in link. The intent is written first so a completion racing the send
// can still recover the chosen role; a failed send removes it again.
func (h *Handoff) RequestLink(ctx context.Context, email string, role Role) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if err := (linkRequest{Email: email, Role: role}).Validate(); err != nil {
		return err
	}

	intent := PendingSignupIntent{
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	}
	if err := h.intents.Put(ctx, intent); err != nil {
		return err
	}

	if err := h.sessions.SendMagicLink(ctx, email); err != nil {
		if delErr := h.intents.Delete(ctx); delErr != nil {
			h.logger.Warn("failed to clean up intent after send failure", "error", delErr)
		}
		return err
	}

	h.logger.Info("sign-in link requested", "email", email, "role", role)
	return nil
}

// StoredEmail returns the email from the pending intent, if this context
// stored one. Callers use it to decide whether to prompt for re-entry.
func (h *Handoff) StoredEmail(ctx context.Context) (string, bool) {
	intent, err := h.intents.Get(ctx)
	if err != nil || intent == nil {
		return "", false
	}
	return intent.Email, true
}

// CompleteLink finishes a magic-link sign-in for the given URL.
//
// When email is empty the locally stored intent supplies it; on a device
// that never stored the intent the caller must collect the email from the
// user first, signalled by ErrEmailRequired. A supplied email that does not
// match the stored intent fails with ErrIntentMismatch before any provider
// call. The provider enforces the match against the link itself, so a wrong
// email on an intent-less device still cannot complete.
//
// The intent is consumed only after the provider accepted the completion.
func (h *Handoff) CompleteLink(ctx context.Context, email, url string) (*CompletedLink, error) {
	if !h.sessions.IsMagicLinkURL(url) {
		return nil, ErrLinkInvalid
	}

	intent, err := h.intents.Get(ctx)
	if err != nil {
		h.logger.Warn("intent read failed during completion", "error", err)
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		if intent == nil {
			return nil, ErrEmailRequired
		}
		email = intent.Email
	}

	if intent != nil && !strings.EqualFold(email, intent.Email) {
		return nil, ErrIntentMismatch.WithMetadata(map[string]any{
			"email": email,
		})
	}

	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	session, err := h.sessions.CompleteMagicLink(cctx, email, url)
	if err != nil {
		return nil, err
	}

	role := RoleStudent
	recovered := false
	if intent != nil {
		role = intent.Role
		recovered = true
	}

	h.logger.Info("sign-in link completed", "email", email, "role", role, "intent_recovered", recovered)

	return &CompletedLink{
		Session:         session,
		Role:            role,
		IntentRecovered: recovered,
	}, nil
}

// Consume deletes the pending intent once the flow that needed it finished.
func (h *Handoff) Consume(ctx context.Context) error {
	return h.intents.Delete(ctx)
}

// MemoryIntentStore is the in-memory IntentStore used by tests and
// single-process hosts. Single slot, like the browser storage it stands in
// for.
type MemoryIntentStore struct {
	mu     sync.Mutex
	intent *PendingSignupIntent
}

// NewMemoryIntentStore returns an empty store.
func NewMemoryIntentStore() *MemoryIntentStore {
	return &MemoryIntentStore{}
}

// Put stores the intent, replacing any previous one.
func (s *MemoryIntentStore) Put(_ context.Context, intent PendingSignupIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intent = &intent
	return nil
}

// Get returns the stored intent or nil.
func (s *MemoryIntentStore) Get(context.Context) (*PendingSignupIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.intent == nil {
		return nil, nil
	}
	cp := *s.intent
	return &cp, nil
}

// Delete removes the stored intent, if any.
func (s *MemoryIntentStore) Delete(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intent = nil
	return nil
}
