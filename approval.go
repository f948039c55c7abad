package identity

import "strings"

// ApprovalPolicy decides the initial status of a new profile from the email
// domain, the chosen role, and the signup method.
//
// Accounts on a domain the platform has not whitelisted for the role always
// start pending an admin decision. On a whitelisted domain, oauth and
// magic-link signups proved email ownership during sign-in and activate
// immediately; password signups still have to confirm their address.
type ApprovalPolicy struct {
	domains map[Role][]string
}

// DefaultApprovedDomains mirrors the platform's admissions rules
var DefaultApprovedDomains = map[Role][]string{
	RoleStudent: {"dac.unicamp.br", "patronos.org"},
	RoleMentor:  {"patronos.org"},
}

// NewApprovalPolicy builds a policy from per-role approved domain lists.
// A nil map uses DefaultApprovedDomains.
func NewApprovalPolicy(domains map[Role][]string) *ApprovalPolicy {
	if domains == nil {
		domains = DefaultApprovedDomains
	}

	normalized := make(map[Role][]string, len(domains))
	for role, list := range domains {
		for _, d := range list {
			d = strings.ToLower(strings.TrimSpace(d))
			if d == "" {
				continue
			}
			normalized[role] = append(normalized[role], d)
		}
	}

	return &ApprovalPolicy{domains: normalized}
}

// IsAutoApproved checks whether the email's domain is whitelisted for the role
func (p *ApprovalPolicy) IsAutoApproved(email string, role Role) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])

	for _, d := range p.domains[role] {
		if d == domain {
			return true
		}
	}
	return false
}

// InitialStatus derives the status a freshly created profile starts in
func (p *ApprovalPolicy) InitialStatus(email string, role Role, method SignupMethod) Status {
	if !p.IsAutoApproved(email, role) {
		return StatusPendingApproval
	}

	switch method {
	case MethodOAuth, MethodMagicLink:
		return StatusActive
	default:
		return StatusPendingVerification
	}
}
