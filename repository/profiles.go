package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/fundo-patronos/go-identity"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles is the durable profile repository. Identity IDs are stored as
// the opaque strings the session provider issues; the generic repository
// helpers additionally accept them as UUIDs when they parse as one.
type Profiles interface {
	repository.Repository[*identity.Profile]

	GetByIdentityID(ctx context.Context, identityID string) (*identity.Profile, error)
	GetByIdentityIDTx(ctx context.Context, tx bun.IDB, identityID string) (*identity.Profile, error)
	CreateIfAbsent(ctx context.Context, identityID string, fields identity.ProfileFields) (*identity.Profile, error)
	CreateIfAbsentTx(ctx context.Context, tx bun.IDB, identityID string, fields identity.ProfileFields) (*identity.Profile, error)
	UpdateStatus(ctx context.Context, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error)
	TrackLogin(ctx context.Context, identityID string) error
}

type profiles struct {
	repository.Repository[*identity.Profile]
	db *bun.DB
}

var _ Profiles = (*profiles)(nil)

// NewProfiles builds the repository over a bun handle.
func NewProfiles(db *bun.DB) Profiles {
	repo := repository.NewRepository[*identity.Profile](db, repository.ModelHandlers[*identity.Profile]{
		NewRecord: func() *identity.Profile { return &identity.Profile{} },
		GetID: func(p *identity.Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			if id, err := uuid.Parse(p.IdentityID); err == nil {
				return id
			}
			return uuid.Nil
		},
		SetID: func(p *identity.Profile, id uuid.UUID) {
			if p != nil {
				p.IdentityID = id.String()
			}
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (r *profiles) GetByIdentityID(ctx context.Context, identityID string) (*identity.Profile, error) {
	return r.GetByIdentityIDTx(ctx, r.db, identityID)
}

func (r *profiles) GetByIdentityIDTx(ctx context.Context, tx bun.IDB, identityID string) (*identity.Profile, error) {
	record := &identity.Profile{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.identity_id = ?", strings.TrimSpace(identityID)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, identity.ErrProfileNotFound.WithMetadata(map[string]any{
				"identity_id": identityID,
			})
		}
		return nil, err
	}

	record.EnsureStatus()
	return record, nil
}

func (r *profiles) CreateIfAbsent(ctx context.Context, identityID string, fields identity.ProfileFields) (*identity.Profile, error) {
	return r.CreateIfAbsentTx(ctx, r.db, identityID, fields)
}

func (r *profiles) CreateIfAbsentTx(ctx context.Context, tx bun.IDB, identityID string, fields identity.ProfileFields) (*identity.Profile, error) {
	now := time.Now()
	record := &identity.Profile{
		IdentityID:   strings.TrimSpace(identityID),
		Role:         fields.Role,
		Status:       fields.Status,
		SignupMethod: fields.Method,
		Email:        strings.ToLower(strings.TrimSpace(fields.Email)),
		DisplayName:  fields.DisplayName,
		AvatarURL:    fields.AvatarURL,
		CreatedAt:    &now,
		UpdatedAt:    &now,
	}
	record.EnsureStatus()

	res, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (identity_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, identity.ErrProfileConflict.WithMetadata(map[string]any{
			"identity_id": identityID,
		})
	}

	return record, nil
}

func (r *profiles) UpdateStatus(ctx context.Context, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error) {
	return r.UpdateStatusTx(ctx, r.db, identityID, status, opts...)
}

func (r *profiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, identityID string, status identity.Status, opts ...identity.StatusUpdateOption) (*identity.Profile, error) {
	update := identity.BuildStatusUpdate(opts...)

	q := tx.NewUpdate().
		Model((*identity.Profile)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("identity_id = ?", strings.TrimSpace(identityID))

	if update.SuspendedAt != nil {
		q = q.Set("suspended_at = ?", update.SuspendedAt)
	} else if update.ClearSuspendedAt {
		q = q.Set("suspended_at = NULL")
	}

	if update.VerifiedAt != nil {
		q = q.Set("verified_at = ?", update.VerifiedAt)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, identity.ErrProfileNotFound.WithMetadata(map[string]any{
			"identity_id": identityID,
		})
	}

	return r.GetByIdentityIDTx(ctx, tx, identityID)
}

func (r *profiles) TrackLogin(ctx context.Context, identityID string) error {
	now := time.Now()
	_, err := r.db.NewUpdate().
		Model((*identity.Profile)(nil)).
		Set("last_login_at = ?", now).
		Set("updated_at = ?", now).
		Where("identity_id = ?", strings.TrimSpace(identityID)).
		Exec(ctx)

	return err
}

// CreateSchema creates the tables this package persists to. Hosts with a
// migration pipeline should prefer that; tests and examples use this.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	models := []any{
		(*identity.Profile)(nil),
		(*intentRecord)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	return nil
}
