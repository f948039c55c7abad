package identity

// DecisionKind enumerates the routing verdicts the gate can produce
type DecisionKind string

const (
	// DecisionLoading renders a neutral placeholder; never redirect while
	// state is still settling
	DecisionLoading DecisionKind = "loading"
	// DecisionToLogin routes to the sign-in screen
	DecisionToLogin DecisionKind = "to_login"
	// DecisionToRoleSelection routes to the role prompt for authenticated
	// users that never completed signup
	DecisionToRoleSelection DecisionKind = "to_role_selection"
	// DecisionToStatusPage routes to the page explaining the current
	// non-active status
	DecisionToStatusPage DecisionKind = "to_status_page"
	// DecisionToRoleHome routes a wrong-section access to the home of the
	// profile's own role
	DecisionToRoleHome DecisionKind = "to_role_home"
	// DecisionAllow renders the protected content
	DecisionAllow DecisionKind = "allow"
)

// Decision is the gate's verdict for one protected surface
type Decision struct {
	Kind DecisionKind
	// Status is set for DecisionToStatusPage
	Status Status
	// Role is set for DecisionToRoleHome
	Role Role
}

// Allowed reports whether the protected content may render
func (d Decision) Allowed() bool {
	return d.Kind == DecisionAllow
}

// Gate classifies an already-reconciled account state against the roles a
// surface requires. It is pure and total: it performs no I/O and every
// (phase, requiredRoles) pair maps to exactly one Decision, so repeated
// calls with the same input always return the same output.
//
// An empty requiredRoles means any active profile may pass. A non-active
// status always routes to its status page, even when the role matches.
func Gate(state ReconciledAccountState, requiredRoles []Role) Decision {
	switch state.Phase {
	case PhaseInitializing, PhaseSubscribing:
		return Decision{Kind: DecisionLoading}

	case PhaseSignedOut:
		return Decision{Kind: DecisionToLogin}

	case PhaseAwaitingRoleSelection:
		return Decision{Kind: DecisionToRoleSelection}

	case PhaseHasProfile:
		profile := state.Profile
		if profile == nil {
			// inconsistent snapshot, treat as still settling
			return Decision{Kind: DecisionLoading}
		}

		status := profile.Status
		if status == "" {
			status = StatusPendingApproval
		}
		if status != StatusActive {
			return Decision{Kind: DecisionToStatusPage, Status: status}
		}

		if len(requiredRoles) > 0 && !containsRole(requiredRoles, profile.Role) {
			return Decision{Kind: DecisionToRoleHome, Role: profile.Role}
		}

		return Decision{Kind: DecisionAllow}
	}

	// unknown phases never grant access and never redirect
	return Decision{Kind: DecisionLoading}
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
