package identity

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Role is the account's role on the platform
type Role string

const (
	// RoleStudent is a student looking for mentorship
	RoleStudent Role = "student"
	// RoleMentor is a mentor offering sessions
	RoleMentor Role = "mentor"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleMentor:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(roleStr)))
	return role, role.IsValid()
}

// AllRoles returns every predefined role
func AllRoles() []Role {
	return []Role{RoleStudent, RoleMentor}
}

// Status is the account lifecycle status
type Status string

const (
	// StatusPendingVerification waits for the owner to confirm their email
	StatusPendingVerification Status = "pending_verification"
	// StatusPendingApproval waits for an admin decision
	StatusPendingApproval Status = "pending_approval"
	// StatusActive has full access
	StatusActive Status = "active"
	// StatusSuspended is blocked by an admin
	StatusSuspended Status = "suspended"
)

// IsValid checks if the status is part of the lifecycle
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingVerification, StatusPendingApproval, StatusActive, StatusSuspended:
		return true
	default:
		return false
	}
}

// ParseStatus safely parses a string into a Status type
func ParseStatus(statusStr string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(statusStr)))
	return status, status.IsValid()
}

// AllStatuses returns every lifecycle status
func AllStatuses() []Status {
	return []Status{
		StatusPendingVerification,
		StatusPendingApproval,
		StatusActive,
		StatusSuspended,
	}
}

// SignupMethod records how an account was created, for audit
type SignupMethod string

const (
	// MethodPassword is email plus password
	MethodPassword SignupMethod = "password"
	// MethodOAuth is the provider popup flow
	MethodOAuth SignupMethod = "oauth"
	// MethodMagicLink is the passwordless emailed link
	MethodMagicLink SignupMethod = "magic_link"
)

// IsValid checks if the method is one we issue credentials for
func (m SignupMethod) IsValid() bool {
	switch m {
	case MethodPassword, MethodOAuth, MethodMagicLink:
		return true
	default:
		return false
	}
}

// Session holds the attributes the auth provider vouches for. It is
// ephemeral; the core never persists it.
type Session struct {
	IdentityID  string `json:"identity_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Profile is the durable account record, one-to-one with an identity ID
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	IdentityID    string         `bun:"identity_id,pk" json:"identity_id,omitempty"`
	Role          Role           `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status        Status         `bun:"status,notnull" json:"status,omitempty"`
	SignupMethod  SignupMethod   `bun:"signup_method,notnull" json:"signup_method,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	DisplayName   string         `bun:"display_name" json:"display_name,omitempty"`
	AvatarURL     string         `bun:"avatar_url" json:"avatar_url,omitempty"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	SuspendedAt   *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	VerifiedAt    *time.Time     `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	LastLoginAt   *time.Time     `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills records created before the lifecycle column existed
func (p *Profile) EnsureStatus() {
	if p.Status == "" {
		p.Status = StatusPendingApproval
	}
}

// IsActive reports whether the profile has full access
func (p *Profile) IsActive() bool {
	return p != nil && p.Status == StatusActive
}

// IsSuspended reports whether an admin blocked the profile
func (p *Profile) IsSuspended() bool {
	return p != nil && p.Status == StatusSuspended
}

// IsPending reports whether the profile still waits on verification or approval
func (p *Profile) IsPending() bool {
	if p == nil {
		return false
	}
	return p.Status == StatusPendingVerification || p.Status == StatusPendingApproval
}

// AddMetadata will append information to a metadata attribute
func (p *Profile) AddMetadata(key string, val any) *Profile {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = val
	return p
}

// Clone returns a shallow copy safe to hand to listeners
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// PendingSignupIntent is the short-lived record that bridges a signup across
// a redirect or device boundary: the email the link was issued for and the
// role the user picked before the link was sent.
type PendingSignupIntent struct {
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ProfileFields carries the denormalized session attributes copied onto a
// profile at creation time.
type ProfileFields struct {
	Email       string
	DisplayName string
	AvatarURL   string
	Role        Role
	Method      SignupMethod
	// Status is derived by the signup flow from the approval policy; stores
	// persist it verbatim.
	Status Status
}

// DisplayNameOrDefault falls back to the email local part, the way the
// signup forms do when the provider has no display name.
func (f ProfileFields) DisplayNameOrDefault() string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	if at := strings.Index(f.Email, "@"); at > 0 {
		return f.Email[:at]
	}
	return f.Email
}
