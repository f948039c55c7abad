package identity

// Phase is the orchestrator's discrete summary of (session, profile) state
type Phase string

const (
	// PhaseInitializing is the startup window before the provider reports
	// whether a session exists
	PhaseInitializing Phase = "initializing"
	// PhaseSignedOut has no active session
	PhaseSignedOut Phase = "signed_out"
	// PhaseSubscribing has a session but the profile subscription has not
	// delivered its first snapshot yet
	PhaseSubscribing Phase = "subscribing"
	// PhaseAwaitingRoleSelection has a session and no profile document: the
	// person authenticated mid-signup and still has to pick a role
	PhaseAwaitingRoleSelection Phase = "awaiting_role_selection"
	// PhaseHasProfile has both a session and a profile document
	PhaseHasProfile Phase = "has_profile"
)

// IsLoading reports whether the phase is still settling and consumers should
// hold rendering instead of redirecting
func (p Phase) IsLoading() bool {
	return p == PhaseInitializing || p == PhaseSubscribing
}

// ReconciledAccountState is the derived, never-persisted merge of the current
// session and profile. It is recomputed on every session or profile event.
type ReconciledAccountState struct {
	Phase   Phase
	Session *Session
	Profile *Profile
}

// Status returns the profile status, or "" outside PhaseHasProfile
func (s ReconciledAccountState) Status() Status {
	if s.Phase != PhaseHasProfile || s.Profile == nil {
		return ""
	}
	s.Profile.EnsureStatus()
	return s.Profile.Status
}

// Authenticated reports whether a session and a profile both exist
func (s ReconciledAccountState) Authenticated() bool {
	return s.Session != nil && s.Profile != nil
}
