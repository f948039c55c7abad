package repository

import (
	"context"
	"sync"

	"github.com/fundo-patronos/go-identity"
	goerrors "github.com/goliatone/go-errors"
)

// Store wraps the profiles repository with the live-subscription surface the
// orchestrator consumes. Every successful write fans the fresh document out
// to the subscribers registered for that identity, which is how an admin
// decision reaches an already-open client without reload.
//
// It implements both identity.ProfileStore and identity.StatusUpdater, so
// the same instance backs the orchestrator, the signup service, and the
// status machine.
type Store struct {
	repo     Profiles
	logger   identity.Logger
	provider identity.LoggerProvider

	mu       sync.Mutex
	subs     map[string]map[int]*storeSub
	versions map[string]uint64
	nextSub  int
}

// storeSub sequences deliveries to one subscriber. seen is the version of
// the last write fanned out to it; the initial snapshot is dropped when a
// write already delivered something fresher than the point read saw.
type storeSub struct {
	fn identity.ProfileHandler

	mu   sync.Mutex
	seen uint64
}

var (
	_ identity.ProfileStore  = (*Store)(nil)
	_ identity.StatusUpdater = (*Store)(nil)
)

// StoreOption customizes the store.
type StoreOption func(*Store)

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger identity.Logger) StoreOption {
	return func(s *Store) {
		s.provider, s.logger = identity.ResolveLogger("identity.repository", s.provider, logger)
	}
}

// NewStore builds the subscription-aware store over a profiles repository.
func NewStore(repo Profiles, opts ...StoreOption) *Store {
	s := &Store{
		repo:     repo,
		subs:     map[string]map[int]*storeSub{},
		versions: map[string]uint64{},
	}
	s.provider, s.logger = identity.ResolveLogger("identity.repository", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Subscribe registers a handler for one identity and delivers the initial
// snapshot asynchronously: the current document, or nil when none exists
// yet. Point-read failures surface through the handler as transport errors,
// never as "no document".
func (s *Store) Subscribe(identityID string, fn identity.ProfileHandler) identity.Unsubscribe {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[identityID] == nil {
		s.subs[identityID] = map[int]*storeSub{}
	}
	s.subs[identityID][id] = &storeSub{fn: fn}
	since := s.versions[identityID]
	s.mu.Unlock()

	go s.deliverInitial(identityID, id, since)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if handlers, ok := s.subs[identityID]; ok {
				delete(handlers, id)
				if len(handlers) == 0 {
					delete(s.subs, identityID)
				}
			}
			s.mu.Unlock()
		})
	}
}

// deliverInitial point-reads the current document and hands it to one
// subscriber. since is the write version at subscribe time; if a write fans
// out while the read is in flight, that write is fresher than anything the
// read can have seen, so the snapshot is discarded rather than delivered
// out of order.
func (s *Store) deliverInitial(identityID string, id int, since uint64) {
	profile, err := s.repo.GetByIdentityID(context.Background(), identityID)

	s.mu.Lock()
	sub, alive := s.subs[identityID][id]
	s.mu.Unlock()
	if !alive {
		return
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.seen > since {
		return
	}

	switch {
	case err == nil:
		sub.fn(profile.Clone(), nil)
	case goerrors.IsNotFound(err):
		sub.fn(nil, nil)
	default:
		s.logger.Warn("initial profile snapshot failed", "identity_id", identityID, "error", err)
		sub.fn(nil, identity.ErrSubscriptionFailed.WithMetadata(map[string]any{
			"identity_id": identityID,
		}))
	}
}

// Create persists a new profile and notifies subscribers. A duplicate
// create reports identity.ErrProfileConflict and notifies nobody.
func (s *Store) Create(ctx context.Context, identityID string, fields identity.ProfileFields) (*identity.Profile, error) {
	profile, err := s.repo.CreateIfAbsent(ctx, identityID, fields)
	if err != nil {
		return nil, err
	}

	s.notify(identityID, profile)
	return profile, nil
}

// Read returns the profile for one identity, or identity.ErrProfileNotFound.
func (s *Store) Read(ctx context.Context, identityID string) (*identity.Profile, error) {
	return s.repo.GetByIdentityID(ctx, identityID)
}

// UpdateStatus persists a lifecycle change and notifies subscribers with
// the updated document.
func (s *Store) UpdateStatus(ctx context.Context, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error) {
	profile, err := s.repo.UpdateStatus(ctx, identityID, status, opts...)
	if err != nil {
		return nil, err
	}

	s.notify(identityID, profile)
	return profile, nil
}

// TrackLogin stamps the last-login time without a subscriber notification:
// nothing routing-relevant changed.
func (s *Store) TrackLogin(ctx context.Context, identityID string) error {
	return s.repo.TrackLogin(ctx, identityID)
}

func (s *Store) notify(identityID string, profile *identity.Profile) {
	s.mu.Lock()
	s.versions[identityID]++
	version := s.versions[identityID]
	subs := make([]*storeSub, 0, len(s.subs[identityID]))
	for _, sub := range s.subs[identityID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if version > sub.seen {
			sub.seen = version
			sub.fn(profile.Clone(), nil)
		}
		sub.mu.Unlock()
	}
}
