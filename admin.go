package identity

import "context"

// Admin bundles the status-administration operations behind the approval
// queue. Every mutation funnels through the StatusMachine so the transition
// graph and audit trail stay consistent; the orchestrator never calls these,
// it reacts to the store events they produce.
type Admin struct {
	profiles ProfileStore
	machine  StatusMachine
	logger   Logger
	provider LoggerProvider
}

// NewAdmin wires the admin surface over the profile store and status machine.
func NewAdmin(profiles ProfileStore, machine StatusMachine) *Admin {
	a := &Admin{
		profiles: profiles,
		machine:  machine,
	}
	a.provider, a.logger = ResolveLogger("identity.admin", nil, nil)
	return a
}

// WithLogger overrides the logger.
func (a *Admin) WithLogger(l Logger) *Admin {
	a.provider, a.logger = ResolveLogger("identity.admin", a.provider, l)
	return a
}

// Approve moves a pending-approval profile to active.
func (a *Admin) Approve(ctx context.Context, actor ActorRef, identityID string, opts ...TransitionOption) (*Profile, error) {
	return a.transition(ctx, actor, identityID, StatusActive, opts...)
}

// Reject suspends a pending-approval profile.
func (a *Admin) Reject(ctx context.Context, actor ActorRef, identityID string, opts ...TransitionOption) (*Profile, error) {
	return a.transition(ctx, actor, identityID, StatusSuspended, opts...)
}

// Suspend blocks an active profile.
func (a *Admin) Suspend(ctx context.Context, actor ActorRef, identityID string, opts ...TransitionOption) (*Profile, error) {
	return a.transition(ctx, actor, identityID, StatusSuspended, opts...)
}

// Reinstate lifts a suspension.
func (a *Admin) Reinstate(ctx context.Context, actor ActorRef, identityID string, opts ...TransitionOption) (*Profile, error) {
	return a.transition(ctx, actor, identityID, StatusActive, opts...)
}

func (a *Admin) transition(ctx context.Context, actor ActorRef, identityID string, target Status, opts ...TransitionOption) (*Profile, error) {
	profile, err := a.profiles.Read(ctx, identityID)
	if err != nil {
		return nil, err
	}

	from := a.machine.CurrentStatus(profile)
	updated, err := a.machine.Transition(ctx, actor, profile, target, opts...)
	if err != nil {
		a.logger.Warn("admin transition rejected",
			"identity_id", identityID, "target", target, "error", err)
		return nil, err
	}

	a.logger.Info("admin transition applied",
		"identity_id", identityID, "from", from, "to", target, "actor", actor.ID)

	return updated, nil
}
