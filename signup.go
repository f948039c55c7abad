package identity

import (
	"context"
	"strings"
	"time"
)

// Signup owns the multi-step path from "session exists" to "profile
// exists". A session may live for a while with no profile (the mid-signup
// window); this service closes that window by creating the profile once a
// role is known, idempotently by identity ID so double submission and retry
// are safe.
type Signup struct {
	sessions SessionProvider
	profiles ProfileStore
	handoff  *Handoff
	approval *ApprovalPolicy
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

// SignupOption customizes the signup service.
type SignupOption func(*Signup)

// WithSignupActivitySink sets the sink receiving signup audit events.
func WithSignupActivitySink(sink ActivitySink) SignupOption {
	return func(s *Signup) {
		s.activity = normalizeActivitySink(sink)
	}
}

// WithSignupLogger overrides the logger.
func WithSignupLogger(logger Logger) SignupOption {
	return func(s *Signup) {
		s.provider, s.logger = ResolveLogger("identity.signup", s.provider, logger)
	}
}

// WithSignupClock injects a custom clock (useful for tests).
func WithSignupClock(clock func() time.Time) SignupOption {
	return func(s *Signup) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewSignup wires the signup service.
func NewSignup(sessions SessionProvider, profiles ProfileStore, handoff *Handoff, approval *ApprovalPolicy, opts ...SignupOption) *Signup {
	if approval == nil {
		approval = NewApprovalPolicy(nil)
	}

	s := &Signup{
		sessions: sessions,
		profiles: profiles,
		handoff:  handoff,
		approval: approval,
		activity: noopActivitySink{},
		now:      time.Now,
	}
	s.provider, s.logger = ResolveLogger("identity.signup", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// BeginSignup records signup intent for the chosen method. Only the magic
// link needs durable storage: its completion may happen in another tab or on
// another device. Password and oauth signups complete in the same context,
// so there is no storage round-trip.
func (s *Signup) BeginSignup(ctx context.Context, email string, role Role, method SignupMethod) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if !method.IsValid() {
		return ErrLinkInvalid.WithMetadata(map[string]any{
			"reason": "unknown signup method",
			"method": method,
		})
	}

	if method == MethodMagicLink {
		if err := s.handoff.RequestLink(ctx, email, role); err != nil {
			return err
		}
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLinkRequested,
			Metadata:  map[string]any{"email": email, "role": role},
		})
		return nil
	}

	if err := (linkRequest{Email: email, Role: role}).Validate(); err != nil {
		return err
	}

	s.record(ctx, ActivityEvent{
		EventType: ActivityEventSignupStarted,
		Metadata:  map[string]any{"email": email, "role": role, "method": method},
	})

	return nil
}

// CompleteSignup creates the profile for the current session after role
// selection. This is the path for password signups and for oauth users whose
// popup produced a session with no matching profile.
//
// Creation is create-if-absent: a concurrent or repeated submission for the
// same identity returns the already-created profile and never errors.
func (s *Signup) CompleteSignup(ctx context.Context, session *Session, role Role, method SignupMethod) (*Profile, error) {
	if session == nil || session.IdentityID == "" {
		return nil, ErrNoSession
	}

	if err := (linkRequest{Email: session.Email, Role: role}).Validate(); err != nil {
		return nil, err
	}

	profile, err := s.createProfile(ctx, session, role, method)
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventSignupCompleted,
		Actor:      ActorRef{ID: session.IdentityID, Type: ActorTypeSelf},
		IdentityID: session.IdentityID,
		ToStatus:   profile.Status,
		Metadata:   map[string]any{"role": role, "method": method},
	})

	return profile, nil
}

// CompleteMagicLink finishes the cross-context flow: validates the link,
// establishes the session, creates the profile with the role recovered from
// the pending intent, and consumes the intent. Opening the same link again
// finds the profile already created and changes nothing.
func (s *Signup) CompleteMagicLink(ctx context.Context, email, url string) (*Profile, *Session, error) {
	link, err := s.handoff.CompleteLink(ctx, email, url)
	if err != nil {
		return nil, nil, err
	}

	profile, err := s.createProfile(ctx, link.Session, link.Role, MethodMagicLink)
	if err != nil {
		return nil, nil, err
	}

	if err := s.handoff.Consume(ctx); err != nil {
		s.logger.Warn("failed to consume signup intent", "error", err)
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventLinkCompleted,
		Actor:      ActorRef{ID: link.Session.IdentityID, Type: ActorTypeSelf},
		IdentityID: link.Session.IdentityID,
		ToStatus:   profile.Status,
		Metadata:   map[string]any{"role": link.Role, "intent_recovered": link.IntentRecovered},
	})

	return profile, link.Session, nil
}

func (s *Signup) createProfile(ctx context.Context, session *Session, role Role, method SignupMethod) (*Profile, error) {
	fields := ProfileFields{
		Email:       session.Email,
		DisplayName: session.DisplayName,
		AvatarURL:   session.AvatarURL,
		Role:        role,
		Method:      method,
		Status:      s.approval.InitialStatus(session.Email, role, method),
	}
	fields.DisplayName = fields.DisplayNameOrDefault()

	profile, err := s.profiles.Create(ctx, session.IdentityID, fields)
	if err != nil {
		if IsProfileConflict(err) {
			// already created, by this flow or a concurrent one; the
			// existing document wins and the caller sees success
			s.logger.Info("profile already exists, treating create as success",
				"identity_id", session.IdentityID)
			s.record(ctx, ActivityEvent{
				EventType:  ActivityEventDuplicateProfile,
				IdentityID: session.IdentityID,
			})
			return s.profiles.Read(ctx, session.IdentityID)
		}
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventProfileCreated,
		Actor:      ActorRef{ID: session.IdentityID, Type: ActorTypeSelf},
		IdentityID: session.IdentityID,
		ToStatus:   profile.Status,
	})

	return profile, nil
}

func (s *Signup) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("signup activity sink error", "error", err)
	}
}
