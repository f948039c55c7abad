package identity

import (
	"context"
	"sort"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Orchestrator reconciles the session stream and the profile document stream
// into a single ReconciledAccountState. It is the only component allowed to
// hold subscriptions to both collaborators at once.
//
// All transitions are computed on one event loop: listeners from either
// collaborator only enqueue, so interleaved deliveries can never produce two
// concurrent transitions. Each profile subscription is tagged with the epoch
// it was opened in and pushes carrying a stale tag are discarded, so a store
// push for identity A is never attributed to identity B after a rapid
// sign-out/sign-in.
type Orchestrator struct {
	sessions SessionProvider
	profiles ProfileStore

	logger   Logger
	provider LoggerProvider

	events chan orchestratorEvent
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup

	mu           sync.RWMutex
	current      ReconciledAccountState
	listeners    map[int]func(ReconciledAccountState)
	nextListener int

	// loop-owned, never touched outside the run goroutine
	epoch        uint64
	profileUnsub Unsubscribe
	sessionUnsub Unsubscribe
}

type orchestratorEventKind int

const (
	eventSessionChanged orchestratorEventKind = iota
	eventProfileSnapshot
)

type orchestratorEvent struct {
	kind    orchestratorEventKind
	session *Session
	epoch   uint64
	profile *Profile
	err     error
}

// OrchestratorOption customizes orchestrator construction
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger overrides the logger
func WithOrchestratorLogger(logger Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.provider, o.logger = ResolveLogger("identity.orchestrator", o.provider, logger)
	}
}

// WithOrchestratorLoggerProvider overrides the logger provider
func WithOrchestratorLoggerProvider(provider LoggerProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		o.provider, o.logger = ResolveLogger("identity.orchestrator", provider, nil)
	}
}

// NewOrchestrator wires the two collaborators. Call Start to begin
// processing and Close (or cancel the Start context) to release every
// subscription.
func NewOrchestrator(sessions SessionProvider, profiles ProfileStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sessions:  sessions,
		profiles:  profiles,
		events:    make(chan orchestratorEvent, 64),
		done:      make(chan struct{}),
		current:   ReconciledAccountState{Phase: PhaseInitializing},
		listeners: map[int]func(ReconciledAccountState){},
	}

	o.provider, o.logger = ResolveLogger("identity.orchestrator", nil, nil)

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// Start subscribes to the session provider and begins the event loop. The
// orchestrator shuts down when ctx is cancelled or Close is called,
// releasing both subscriptions on every exit path.
func (o *Orchestrator) Start(ctx context.Context) error {
	select {
	case <-o.done:
		return goerrors.New("orchestrator is closed", goerrors.CategoryOperation)
	default:
	}

	o.sessionUnsub = o.sessions.OnSessionChange(func(s *Session) {
		o.enqueue(orchestratorEvent{kind: eventSessionChanged, session: s})
	})

	o.wg.Add(1)
	go o.run(ctx)

	return nil
}

// Close tears down both subscriptions and stops the loop. Safe to call more
// than once and concurrently with event delivery.
func (o *Orchestrator) Close() error {
	o.closed.Do(func() {
		close(o.done)
	})
	o.wg.Wait()
	return nil
}

// State returns the current snapshot
func (o *Orchestrator) State() ReconciledAccountState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// OnChange registers a listener invoked after every state change. Listeners
// run on the event loop, in registration order, with a state value they may
// keep.
func (o *Orchestrator) OnChange(fn func(ReconciledAccountState)) Unsubscribe {
	if fn == nil {
		return func() {}
	}

	o.mu.Lock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.listeners, id)
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) enqueue(e orchestratorEvent) {
	select {
	case o.events <- e:
	case <-o.done:
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer o.wg.Done()
	defer o.teardown()

	for {
		select {
		case e := <-o.events:
			o.handle(e)
		case <-ctx.Done():
			return
		case <-o.done:
			return
		}
	}
}

func (o *Orchestrator) teardown() {
	if o.profileUnsub != nil {
		o.profileUnsub()
		o.profileUnsub = nil
	}
	if o.sessionUnsub != nil {
		o.sessionUnsub()
		o.sessionUnsub = nil
	}
	o.closed.Do(func() {
		close(o.done)
	})
}

func (o *Orchestrator) handle(e orchestratorEvent) {
	switch e.kind {
	case eventSessionChanged:
		o.handleSession(e.session)
	case eventProfileSnapshot:
		o.handleProfile(e)
	}
}

func (o *Orchestrator) handleSession(session *Session) {
	if session == nil {
		// cancel before the phase flips so no event from the old identity
		// can leak into the signed-out state
		o.cancelProfileSubscription()
		o.emit(ReconciledAccountState{Phase: PhaseSignedOut})
		return
	}

	current := o.State()
	if current.Session != nil && current.Session.IdentityID == session.IdentityID {
		// same identity, refresh the volatile attributes only
		o.emit(ReconciledAccountState{
			Phase:   current.Phase,
			Session: session,
			Profile: current.Profile,
		})
		return
	}

	o.cancelProfileSubscription()
	o.epoch++
	epoch := o.epoch

	o.emit(ReconciledAccountState{Phase: PhaseSubscribing, Session: session})

	o.profileUnsub = o.profiles.Subscribe(session.IdentityID, func(profile *Profile, err error) {
		o.enqueue(orchestratorEvent{
			kind:    eventProfileSnapshot,
			epoch:   epoch,
			profile: profile,
			err:     err,
		})
	})

	o.logger.Debug("profile subscription opened", "identity_id", session.IdentityID)
}

func (o *Orchestrator) handleProfile(e orchestratorEvent) {
	if e.epoch != o.epoch {
		o.logger.Debug("discarding stale profile event", "epoch", e.epoch, "current", o.epoch)
		return
	}

	current := o.State()
	if current.Session == nil {
		// subscription already cancelled, nothing to attribute this to
		return
	}

	if e.err != nil {
		// transport failure carries no information about the account; keep
		// serving the last known state instead of collapsing to signed-out
		o.logger.Warn("profile subscription transport error, keeping last known state",
			"identity_id", current.Session.IdentityID, "error", e.err)
		return
	}

	if e.profile == nil {
		o.emit(ReconciledAccountState{
			Phase:   PhaseAwaitingRoleSelection,
			Session: current.Session,
		})
		return
	}

	e.profile.EnsureStatus()
	o.emit(ReconciledAccountState{
		Phase:   PhaseHasProfile,
		Session: current.Session,
		Profile: e.profile,
	})
}

func (o *Orchestrator) cancelProfileSubscription() {
	if o.profileUnsub == nil {
		return
	}
	o.profileUnsub()
	o.profileUnsub = nil
}

func (o *Orchestrator) emit(state ReconciledAccountState) {
	o.mu.Lock()
	o.current = state
	ids := make([]int, 0, len(o.listeners))
	for id := range o.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(ReconciledAccountState), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, o.listeners[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
