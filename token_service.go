package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenPurpose scopes a signed token to the single flow it was minted for.
type TokenPurpose string

const (
	PurposeMagicLink     TokenPurpose = "magic_link"
	PurposeVerification  TokenPurpose = "email_verification"
	PurposePasswordReset TokenPurpose = "password_reset"
)

// LinkClaims is the claim set carried by sign-in links, email verification
// tokens, and password reset tokens.
type LinkClaims struct {
	jwt.RegisteredClaims
	Email   string       `json:"email"`
	Purpose TokenPurpose `json:"purpose"`
}

// TokenService mints and validates the signed single-purpose tokens used by
// the passwordless and verification flows.
type TokenService interface {
	MintLink(email string, ttl time.Duration) (string, error)
	MintVerification(identityID, email string, ttl time.Duration) (string, error)
	MintPasswordReset(email string, ttl time.Duration) (string, error)
	Validate(tokenString string, purpose TokenPurpose) (*LinkClaims, error)
}

// TokenServiceImpl implements the TokenService interface with HMAC signing.
type TokenServiceImpl struct {
	signingKey []byte
	issuer     string
	logger     Logger
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(signingKey []byte, issuer string, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     logger,
	}
}

// MintLink mints a sign-in link code bound to the email it was issued for.
func (ts *TokenServiceImpl) MintLink(email string, ttl time.Duration) (string, error) {
	return ts.mint(PurposeMagicLink, "", email, ttl)
}

// MintVerification mints an email confirmation token for an existing profile.
func (ts *TokenServiceImpl) MintVerification(identityID, email string, ttl time.Duration) (string, error) {
	return ts.mint(PurposeVerification, identityID, email, ttl)
}

// MintPasswordReset mints a reset token for the account owning the email.
func (ts *TokenServiceImpl) MintPasswordReset(email string, ttl time.Duration) (string, error) {
	return ts.mint(PurposePasswordReset, "", email, ttl)
}

func (ts *TokenServiceImpl) mint(purpose TokenPurpose, subject, email string, ttl time.Duration) (string, error) {
	if email == "" {
		return "", errors.New("email is required to mint a token", errors.CategoryBadInput)
	}
	if ttl <= 0 {
		return "", errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	now := time.Now()
	claims := &LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   email,
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Validate parses a token string and checks signature, expiry, and purpose.
// Expired codes return ErrLinkExpired so callers can offer a resend;
// everything else that fails returns ErrTokenMalformed.
func (ts *TokenServiceImpl) Validate(tokenString string, purpose TokenPurpose) (*LinkClaims, error) {
	parserOptions := []jwt.ParserOption{}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &LinkClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrLinkExpired
		}
		return nil, ErrTokenMalformed.WithMetadata(map[string]any{
			"cause": err.Error(),
		})
	}

	claims, ok := token.Claims.(*LinkClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	if claims.Purpose != purpose {
		return nil, ErrTokenMalformed.WithMetadata(map[string]any{
			"expected_purpose": purpose,
			"purpose":          claims.Purpose,
		})
	}

	return claims, nil
}
