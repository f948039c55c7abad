package identity

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "IDENTITY_INVALID_STATUS_TRANSITION"
	textCodeAdminOnly         = "IDENTITY_ADMIN_ONLY_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid profile status transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrAdminOnlyTransition is returned when a non-admin actor attempts a
// transition the platform reserves for administrators.
var ErrAdminOnlyTransition = goerrors.New("status transition requires an admin actor", goerrors.CategoryAuthz).
	WithTextCode(textCodeAdminOnly).
	WithCode(goerrors.CodeForbidden)

// Actor types recognized by the status machine.
const (
	ActorTypeAdmin  = "admin"
	ActorTypeSelf   = "self"
	ActorTypeSystem = "system"
)

// StatusUpdate carries the persisted side effects of a transition.
type StatusUpdate struct {
	SuspendedAt      *time.Time
	ClearSuspendedAt bool
	VerifiedAt       *time.Time
}

// StatusUpdateOption customizes the persisted update.
type StatusUpdateOption func(*StatusUpdate)

// WithSuspendedAt records when the account entered suspension. Passing nil
// clears the timestamp on the way out of suspension.
func WithSuspendedAt(t *time.Time) StatusUpdateOption {
	return func(u *StatusUpdate) {
		if t == nil {
			u.SuspendedAt = nil
			u.ClearSuspendedAt = true
			return
		}
		u.SuspendedAt = t
		u.ClearSuspendedAt = false
	}
}

// WithVerifiedAt records when the email was confirmed.
func WithVerifiedAt(t time.Time) StatusUpdateOption {
	return func(u *StatusUpdate) {
		u.VerifiedAt = &t
	}
}

// BuildStatusUpdate folds options into a StatusUpdate for store implementations.
func BuildStatusUpdate(opts ...StatusUpdateOption) StatusUpdate {
	update := StatusUpdate{}
	for _, opt := range opts {
		if opt != nil {
			opt(&update)
		}
	}
	return update
}

// StatusUpdater persists status changes. The durable profile store fans the
// resulting document change out to live subscribers, which is how an
// already-open client learns about an admin decision without reload.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, identityID string, status Status, opts ...StatusUpdateOption) (*Profile, error)
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Profile *Profile
	From    Status
	To      Status
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StatusMachine defines lifecycle operations for profiles.
type StatusMachine interface {
	Transition(ctx context.Context, actor ActorRef, profile *Profile, target Status, opts ...TransitionOption) (*Profile, error)
	CurrentStatus(profile *Profile) Status
}

// StatusMachineOption customizes machine construction.
type StatusMachineOption func(*statusMachine)

// WithStatusMachineClock injects a custom clock (useful for tests).
func WithStatusMachineClock(clock func() time.Time) StatusMachineOption {
	return func(sm *statusMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStatusMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStatusMachineActivitySink(sink ActivitySink) StatusMachineOption {
	return func(sm *statusMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStatusMachineHookErrorHandler overrides how hook failures are propagated.
// Provide a handler to convert hook errors into domain-specific responses,
// otherwise the default handler panics with guidance for developers.
func WithStatusMachineHookErrorHandler(handler HookErrorHandler) StatusMachineOption {
	return func(sm *statusMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStatusMachineLogger overrides the logger used for sink failures.
func WithStatusMachineLogger(logger Logger) StatusMachineOption {
	return func(sm *statusMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithSuspensionTime overrides the timestamp recorded when entering suspension.
func WithSuspensionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.suspensionTime = &t
	}
}

// NewStatusMachine returns the default implementation backed by the provided
// store. The transition graph is monotonic per branch: a pending
// verification only ever self-serves into active, a pending approval is
// decided by an admin, and suspension flips back and forth under admin
// control only.
func NewStatusMachine(store StatusUpdater, opts ...StatusMachineOption) StatusMachine {
	sm := &statusMachine{
		store: store,
		transitions: map[Status]map[Status]struct{}{
			StatusPendingVerification: {
				StatusActive: {},
			},
			StatusPendingApproval: {
				StatusActive:    {},
				StatusSuspended: {},
			},
			StatusActive: {
				StatusSuspended: {},
			},
			StatusSuspended: {
				StatusActive: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type statusMachine struct {
	store            StatusUpdater
	transitions      map[Status]map[Status]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata       TransitionMetadata
	force          bool
	beforeHooks    []TransitionHook
	afterHooks     []TransitionHook
	suspensionTime *time.Time
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *statusMachine) Transition(ctx context.Context, actor ActorRef, profile *Profile, target Status, opts ...TransitionOption) (*Profile, error) {
	if profile == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "profile is nil",
		})
	}

	profile.EnsureStatus()
	from := profile.Status
	if !target.IsValid() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "target status is not part of the lifecycle",
			"target": target,
		})
	}

	if from == target {
		return profile, nil
	}

	options := sm.buildTransitionOptions(opts...)

	if !options.force && !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if !options.force && requiresAdmin(from) && actor.Type != ActorTypeAdmin {
		return nil, ErrAdminOnlyTransition.WithMetadata(map[string]any{
			"from":  from,
			"to":    target,
			"actor": actor.Type,
		})
	}

	ctxData := TransitionContext{
		Actor:   actor,
		Profile: profile,
		From:    from,
		To:      target,
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts, chosenSuspension := sm.buildStatusOptions(profile, from, target, options)

	updated, err := sm.store.UpdateStatus(ctx, profile.IdentityID, target, statusOpts...)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(profile, updated, target, from, chosenSuspension)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		Actor:      actor,
		IdentityID: profile.IdentityID,
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(ctxData.Meta),
	})

	return profile, nil
}

func (sm *statusMachine) CurrentStatus(profile *Profile) Status {
	if profile == nil {
		return ""
	}
	profile.EnsureStatus()
	return profile.Status
}

// requiresAdmin reports whether every transition out of from is reserved for
// administrators. Only the verification branch self-serves.
func requiresAdmin(from Status) bool {
	return from != StatusPendingVerification
}

func (sm *statusMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *statusMachine) canTransition(from, to Status) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *statusMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *statusMachine) buildStatusOptions(profile *Profile, from, to Status, opts *transitionOptions) ([]StatusUpdateOption, *time.Time) {
	statusOpts := []StatusUpdateOption{}
	var suspensionTime *time.Time

	if to == StatusSuspended {
		switch {
		case opts.suspensionTime != nil:
			suspensionTime = opts.suspensionTime
		case profile.SuspendedAt != nil:
			suspensionTime = profile.SuspendedAt
		default:
			now := sm.now()
			suspensionTime = &now
		}
		statusOpts = append(statusOpts, WithSuspendedAt(suspensionTime))
	} else if from == StatusSuspended && profile.SuspendedAt != nil {
		statusOpts = append(statusOpts, WithSuspendedAt(nil))
	}

	if from == StatusPendingVerification && to == StatusActive {
		statusOpts = append(statusOpts, WithVerifiedAt(sm.now()))
	}

	return statusOpts, suspensionTime
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"go-identity: %s transition hook failed: %v\nIdentityID: %s from=%s to=%s reason=%s\nProvide identity.WithStatusMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.Profile.IdentityID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (sm *statusMachine) applyUpdates(profile, updated *Profile, target, from Status, suspensionTime *time.Time) {
	if updated != nil {
		if updated.Status != "" {
			profile.Status = updated.Status
		} else {
			profile.Status = target
		}
		profile.SuspendedAt = updated.SuspendedAt
		profile.VerifiedAt = updated.VerifiedAt
		return
	}

	profile.Status = target
	if target == StatusSuspended {
		profile.SuspendedAt = suspensionTime
	} else if from == StatusSuspended {
		profile.SuspendedAt = nil
	}
}

func (sm *statusMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: ActorTypeSystem}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("status machine activity sink error: %v", err)
	}
}

func (sm *statusMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
