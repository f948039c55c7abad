package identity

import (
	"github.com/goliatone/go-errors"
)

// Text codes let API layers branch on failures without parsing messages.
const (
	TextCodeInvalidCreds       = "identity_invalid_credentials"
	TextCodeRateLimited        = "identity_rate_limited"
	TextCodeLinkInvalid        = "identity_link_invalid"
	TextCodeLinkExpired        = "identity_link_expired"
	TextCodeIntentMismatch     = "identity_intent_mismatch"
	TextCodeIntentNotFound     = "identity_intent_not_found"
	TextCodeEmailRequired      = "identity_email_required"
	TextCodeProfileConflict    = "identity_profile_conflict"
	TextCodeProfileNotFound    = "identity_profile_not_found"
	TextCodeNoSession          = "identity_no_session"
	TextCodeSubscriptionFailed = "identity_subscription_failed"
	TextCodeTokenMalformed     = "identity_token_malformed"
)

// ErrInvalidCredentials is returned for a bad email/password pair. Shown by
// the calling form as a field-level message, never fatal.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrRateLimited is returned when sign-in attempts or link sends exceed the
// provider's allowance.
var ErrRateLimited = errors.New("too many attempts, retry later", errors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrLinkInvalid is returned when a URL is not a sign-in link at all, or the
// code inside it fails validation.
var ErrLinkInvalid = errors.New("sign-in link is invalid", errors.CategoryBadInput).
	WithTextCode(TextCodeLinkInvalid).
	WithCode(errors.CodeBadRequest)

// ErrLinkExpired is returned when a sign-in link was valid once but its code
// has expired. Distinguishable from ErrLinkInvalid so the caller can offer a
// resend instead of a generic failure.
var ErrLinkExpired = errors.New("sign-in link has expired", errors.CategoryAuth).
	WithTextCode(TextCodeLinkExpired).
	WithCode(errors.CodeUnauthorized)

// ErrIntentMismatch is returned when the email supplied at link completion
// does not match the one the link was issued for. Surfaced to the user as
// "please confirm your email" with a retry path.
var ErrIntentMismatch = errors.New("email does not match the sign-in link", errors.CategoryValidation).
	WithTextCode(TextCodeIntentMismatch).
	WithCode(errors.CodeBadRequest)

// ErrIntentNotFound is returned when no pending signup intent exists for the
// completing flow.
var ErrIntentNotFound = errors.New("no pending signup found", errors.CategoryNotFound).
	WithTextCode(TextCodeIntentNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmailRequired is returned when a link is opened on a device that never
// stored the intent, so the user has to re-enter the email before completion.
var ErrEmailRequired = errors.New("confirm your email to finish signing in", errors.CategoryValidation).
	WithTextCode(TextCodeEmailRequired).
	WithCode(errors.CodeBadRequest)

// ErrProfileConflict is returned by stores when a profile already exists for
// an identity ID. Callers treat it as success: creation is idempotent.
var ErrProfileConflict = errors.New("profile already exists for identity", errors.CategoryConflict).
	WithTextCode(TextCodeProfileConflict).
	WithCode(errors.CodeConflict)

// ErrProfileNotFound is returned by point reads for identities that never
// completed role selection.
var ErrProfileNotFound = errors.New("profile not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoSession is returned by operations that require an authenticated
// session when none is active.
var ErrNoSession = errors.New("no active session", errors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(errors.CodeUnauthorized)

// ErrSubscriptionFailed wraps transport failures on the live profile
// subscription. The orchestrator falls back to last-known state on it;
// identity loss is never inferred from transport.
var ErrSubscriptionFailed = errors.New("profile subscription transport failure", errors.CategoryOperation).
	WithTextCode(TextCodeSubscriptionFailed)

// ErrTokenMalformed is returned when a signed link or verification token
// cannot be parsed or fails signature checks.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// IsLinkExpired will check for expired sign-in links
func IsLinkExpired(err error) bool {
	return errors.Is(err, ErrLinkExpired)
}

// IsProfileConflict will check for idempotent duplicate creates
func IsProfileConflict(err error) bool {
	return errors.Is(err, ErrProfileConflict)
}
