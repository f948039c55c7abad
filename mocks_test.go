package identity_test

import (
	"context"
	"strings"
	"sync"

	"github.com/fundo-patronos/go-identity"
	"github.com/stretchr/testify/mock"
)

// fakeSessionProvider is a stateful in-memory session provider. Tests drive
// it through Emit and the Fn hooks.
type fakeSessionProvider struct {
	mu           sync.Mutex
	session      *identity.Session
	listeners    map[int]func(*identity.Session)
	nextListener int

	SignInPasswordFn    func(ctx context.Context, email, password string) (*identity.Session, error)
	CompleteMagicLinkFn func(ctx context.Context, email, url string) (*identity.Session, error)
	SendMagicLinkErr    error
	SentLinks           []string
}

func newFakeSessionProvider() *fakeSessionProvider {
	return &fakeSessionProvider{
		listeners: map[int]func(*identity.Session){},
	}
}

// Emit replaces the current session and pushes it to every listener.
func (f *fakeSessionProvider) Emit(session *identity.Session) {
	f.mu.Lock()
	f.session = session
	fns := make([]func(*identity.Session), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(session)
	}
}

func (f *fakeSessionProvider) OnSessionChange(fn func(*identity.Session)) identity.Unsubscribe {
	f.mu.Lock()
	id := f.nextListener
	f.nextListener++
	f.listeners[id] = fn
	current := f.session
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeSessionProvider) SignInPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if f.SignInPasswordFn != nil {
		return f.SignInPasswordFn(ctx, email, password)
	}
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeSessionProvider) SignInOAuth(context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (f *fakeSessionProvider) SendMagicLink(_ context.Context, email string) error {
	if f.SendMagicLinkErr != nil {
		return f.SendMagicLinkErr
	}
	f.mu.Lock()
	f.SentLinks = append(f.SentLinks, email)
	f.mu.Unlock()
	return nil
}

func (f *fakeSessionProvider) CompleteMagicLink(ctx context.Context, email, url string) (*identity.Session, error) {
	if f.CompleteMagicLinkFn != nil {
		return f.CompleteMagicLinkFn(ctx, email, url)
	}
	return nil, identity.ErrLinkInvalid
}

func (f *fakeSessionProvider) IsMagicLinkURL(url string) bool {
	return strings.Contains(url, "link=")
}

func (f *fakeSessionProvider) SendPasswordReset(context.Context, string) error {
	return nil
}

func (f *fakeSessionProvider) SignOut(context.Context) error {
	f.Emit(nil)
	return nil
}

type profileSub struct {
	identityID string
	fn         identity.ProfileHandler
	open       bool
}

// fakeProfileStore is an in-memory profile store with live subscriptions.
// It keeps every handler ever registered so tests can replay pushes through
// subscriptions the orchestrator already tore down.
type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*identity.Profile
	subs     []*profileSub

	SubscribeErr error
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{
		profiles: map[string]*identity.Profile{},
	}
}

func (f *fakeProfileStore) Subscribe(identityID string, fn identity.ProfileHandler) identity.Unsubscribe {
	f.mu.Lock()
	sub := &profileSub{identityID: identityID, fn: fn, open: true}
	f.subs = append(f.subs, sub)
	profile := cloneProfile(f.profiles[identityID])
	failure := f.SubscribeErr
	f.mu.Unlock()

	if failure != nil {
		fn(nil, failure)
	} else {
		fn(profile, nil)
	}

	return func() {
		f.mu.Lock()
		sub.open = false
		f.mu.Unlock()
	}
}

func (f *fakeProfileStore) Create(_ context.Context, identityID string, fields identity.ProfileFields) (*identity.Profile, error) {
	f.mu.Lock()
	if _, exists := f.profiles[identityID]; exists {
		f.mu.Unlock()
		return nil, identity.ErrProfileConflict.WithMetadata(map[string]any{
			"identity_id": identityID,
		})
	}

	profile := &identity.Profile{
		IdentityID:   identityID,
		Role:         fields.Role,
		Status:       fields.Status,
		SignupMethod: fields.Method,
		Email:        fields.Email,
		DisplayName:  fields.DisplayName,
		AvatarURL:    fields.AvatarURL,
	}
	profile.EnsureStatus()
	f.profiles[identityID] = profile
	f.mu.Unlock()

	f.push(identityID, profile, nil)
	return cloneProfile(profile), nil
}

func (f *fakeProfileStore) Read(_ context.Context, identityID string) (*identity.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	profile, ok := f.profiles[identityID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return cloneProfile(profile), nil
}

func (f *fakeProfileStore) UpdateStatus(_ context.Context, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error) {
	update := identity.BuildStatusUpdate(opts...)

	f.mu.Lock()
	profile, ok := f.profiles[identityID]
	if !ok {
		f.mu.Unlock()
		return nil, identity.ErrProfileNotFound
	}

	profile.Status = status
	if update.SuspendedAt != nil {
		profile.SuspendedAt = update.SuspendedAt
	} else if update.ClearSuspendedAt {
		profile.SuspendedAt = nil
	}
	if update.VerifiedAt != nil {
		profile.VerifiedAt = update.VerifiedAt
	}
	snapshot := cloneProfile(profile)
	f.mu.Unlock()

	f.push(identityID, snapshot, nil)
	return snapshot, nil
}

// SetProfile stores a profile and pushes it to open subscriptions.
func (f *fakeProfileStore) SetProfile(profile *identity.Profile) {
	f.mu.Lock()
	f.profiles[profile.IdentityID] = cloneProfile(profile)
	f.mu.Unlock()

	f.push(profile.IdentityID, profile, nil)
}

// PushError delivers a transport error to open subscriptions for the identity.
func (f *fakeProfileStore) PushError(identityID string, err error) {
	f.push(identityID, nil, err)
}

// PushStale invokes every handler ever registered for the identity,
// including ones whose subscription was already cancelled.
func (f *fakeProfileStore) PushStale(identityID string, profile *identity.Profile) {
	f.mu.Lock()
	fns := make([]identity.ProfileHandler, 0)
	for _, sub := range f.subs {
		if sub.identityID == identityID {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(cloneProfile(profile), nil)
	}
}

// OpenSubs returns the identity IDs with at least one live subscription.
func (f *fakeProfileStore) OpenSubs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := map[string]bool{}
	out := []string{}
	for _, sub := range f.subs {
		if sub.open && !seen[sub.identityID] {
			seen[sub.identityID] = true
			out = append(out, sub.identityID)
		}
	}
	return out
}

func (f *fakeProfileStore) push(identityID string, profile *identity.Profile, err error) {
	f.mu.Lock()
	fns := make([]identity.ProfileHandler, 0)
	for _, sub := range f.subs {
		if sub.open && sub.identityID == identityID {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(cloneProfile(profile), err)
	}
}

func cloneProfile(p *identity.Profile) *identity.Profile {
	if p == nil {
		return nil
	}
	return p.Clone()
}

// recordingSink collects activity events.
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// MockActivitySink implements identity.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event identity.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStatusUpdater implements identity.StatusUpdater
type MockStatusUpdater struct {
	mock.Mock
}

func (m *MockStatusUpdater) UpdateStatus(ctx context.Context, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error) {
	args := m.Called(ctx, identityID, status, opts)
	var profile *identity.Profile
	if v := args.Get(0); v != nil {
		profile = v.(*identity.Profile)
	}
	return profile, args.Error(1)
}
