package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fundo-patronos/go-identity"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type intentRecord struct {
	bun.BaseModel `bun:"table:signup_intents,alias:sin"`

	ContextKey string        `bun:"context_key,pk"`
	Email      string        `bun:"email,notnull"`
	Role       identity.Role `bun:"user_role,notnull"`
	CreatedAt  time.Time     `bun:"created_at,notnull"`
}

// Intents is a durable single-slot intent store scoped to one browser
// context. Each context key owns exactly one pending intent; storing a new
// one replaces whatever was there.
type Intents struct {
	db         *bun.DB
	contextKey string
}

var _ identity.IntentStore = (*Intents)(nil)

// NewIntents builds an intent store bound to a context key. The key
// identifies the requesting browser profile, so a link opened in another
// tab of the same profile sees the intent while another device does not.
func NewIntents(db *bun.DB, contextKey string) *Intents {
	return &Intents{
		db:         db,
		contextKey: strings.TrimSpace(contextKey),
	}
}

// Put stores the pending intent, replacing any existing one for this
// context.
func (s *Intents) Put(ctx context.Context, intent identity.PendingSignupIntent) error {
	record := &intentRecord{
		ContextKey: s.contextKey,
		Email:      strings.ToLower(strings.TrimSpace(intent.Email)),
		Role:       intent.Role,
		CreatedAt:  intent.CreatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (context_key) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("user_role = EXCLUDED.user_role").
		Set("created_at = EXCLUDED.created_at").
		Exec(ctx)

	return err
}

// Get returns the stored intent, or nil when this context has none.
func (s *Intents) Get(ctx context.Context) (*identity.PendingSignupIntent, error) {
	record := &intentRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.context_key = ?", s.contextKey).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &identity.PendingSignupIntent{
		Email:     record.Email,
		Role:      record.Role,
		CreatedAt: record.CreatedAt,
	}, nil
}

// Delete clears the stored intent. Deleting an absent intent is a no-op.
func (s *Intents) Delete(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*intentRecord)(nil)).
		Where("context_key = ?", s.contextKey).
		Exec(ctx)

	return err
}
