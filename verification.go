package identity

import (
	"context"
	"strings"
	"time"
)

// DefaultVerificationTTL matches the 24 hour window verification emails
// advertise.
const DefaultVerificationTTL = 24 * time.Hour

// Verifier implements the self-service branch of the lifecycle: a password
// signup confirms its email with a signed single-purpose token and moves
// from pending verification to active without any admin involvement.
type Verifier struct {
	tokens   TokenService
	profiles ProfileStore
	machine  StatusMachine
	ttl      time.Duration
	logger   Logger
	provider LoggerProvider
}

// VerifierOption customizes the verifier.
type VerifierOption func(*Verifier)

// WithVerificationTTL overrides the token lifetime.
func WithVerificationTTL(ttl time.Duration) VerifierOption {
	return func(v *Verifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithVerifierLogger overrides the logger.
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *Verifier) {
		v.provider, v.logger = ResolveLogger("identity.verifier", v.provider, logger)
	}
}

// NewVerifier wires the verifier over the token service, profile store, and
// status machine.
func NewVerifier(tokens TokenService, profiles ProfileStore, machine StatusMachine, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		tokens:   tokens,
		profiles: profiles,
		machine:  machine,
		ttl:      DefaultVerificationTTL,
	}
	v.provider, v.logger = ResolveLogger("identity.verifier", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

// IssueToken mints a verification token for a profile that still has to
// confirm its email. The delivery of the email itself belongs to the
// transactional-email collaborator.
func (v *Verifier) IssueToken(ctx context.Context, identityID string) (string, error) {
	profile, err := v.profiles.Read(ctx, identityID)
	if err != nil {
		return "", err
	}

	if profile.Status != StatusPendingVerification {
		return "", ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "profile is not pending verification",
			"status": profile.Status,
		})
	}

	return v.tokens.MintVerification(identityID, profile.Email, v.ttl)
}

// Confirm validates a verification token and activates the profile it was
// minted for. Replaying a token after activation is a no-op: the only
// transition the token can drive is pending verification to active, so a
// second confirm finds nothing left to move.
func (v *Verifier) Confirm(ctx context.Context, token string) (*Profile, error) {
	claims, err := v.tokens.Validate(token, PurposeVerification)
	if err != nil {
		return nil, err
	}

	profile, err := v.profiles.Read(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(profile.Email, claims.Email) {
		return nil, ErrTokenMalformed.WithMetadata(map[string]any{
			"reason": "token email does not match profile",
		})
	}

	if profile.Status == StatusActive {
		v.logger.Debug("verification token replayed for active profile", "identity_id", profile.IdentityID)
		return profile, nil
	}

	actor := ActorRef{ID: profile.IdentityID, Type: ActorTypeSelf}
	updated, err := v.machine.Transition(ctx, actor, profile, StatusActive,
		WithTransitionReason("email verified"))
	if err != nil {
		return nil, err
	}

	v.logger.Info("email verified", "identity_id", profile.IdentityID)
	return updated, nil
}
