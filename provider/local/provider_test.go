package local_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fundo-patronos/go-identity"
	"github.com/fundo-patronos/go-identity/provider/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// linkCapture stands in for the mailer and keeps the last link sent.
type linkCapture struct {
	mu    sync.Mutex
	links []string
}

func (c *linkCapture) send(_ context.Context, _, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link)
	return nil
}

func (c *linkCapture) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return ""
	}
	return c.links[len(c.links)-1]
}

func newProvider(t *testing.T, opts ...local.Option) *local.Provider {
	t.Helper()

	tokens := identity.NewTokenService([]byte("test-signing-key-0123456789abcdef"), "go-identity-test", nil)
	base := []local.Option{
		local.WithRateLimit(rate.Inf, 0),
	}
	return local.NewProvider(tokens, append(base, opts...)...)
}

func TestRegisterAndSignInPassword(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	id, err := p.Register(ctx, "Ana@dac.unicamp.br", "correct horse battery", "Ana")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	session, err := p.SignInPassword(ctx, "ana@dac.unicamp.br", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, id, session.IdentityID)
	assert.Equal(t, "ana@dac.unicamp.br", session.Email)
	assert.Equal(t, "Ana", session.DisplayName)
}

func TestSignInPasswordWrongPassword(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.Register(ctx, "ana@dac.unicamp.br", "correct horse battery", "Ana")
	require.NoError(t, err)

	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = p.SignInPassword(ctx, "nobody@dac.unicamp.br", "anything")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials, "unknown emails fail the same way")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.Register(ctx, "ana@dac.unicamp.br", "password one", "Ana")
	require.NoError(t, err)

	_, err = p.Register(ctx, "Ana@dac.unicamp.br", "password two", "Other")
	assert.ErrorIs(t, err, identity.ErrProfileConflict)
}

func TestRegisterRejectsEmptyInputs(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	_, err := p.Register(ctx, "", "password", "Ana")
	assert.ErrorIs(t, err, identity.ErrEmailRequired)

	_, err = p.Register(ctx, "ana@dac.unicamp.br", "", "Ana")
	assert.Error(t, err)
}

func TestOnSessionChangeDeliversCurrentImmediately(t *testing.T) {
	p := newProvider(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []*identity.Session
	record := func(s *identity.Session) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	unsub := p.OnSessionChange(record)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Nil(t, seen[0], "no session yet")
	mu.Unlock()

	_, err := p.Register(ctx, "ana@dac.unicamp.br", "correct horse battery", "Ana")
	require.NoError(t, err)
	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "correct horse battery")
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 2)
	require.NotNil(t, seen[1])
	assert.Equal(t, "ana@dac.unicamp.br", seen[1].Email)
	mu.Unlock()

	require.NoError(t, p.SignOut(ctx))

	mu.Lock()
	require.Len(t, seen, 3)
	assert.Nil(t, seen[2])
	mu.Unlock()

	unsub()
	unsub()

	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "correct horse battery")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, seen, 3, "unsubscribed listeners stay silent")
	mu.Unlock()
}

func TestMagicLinkRoundTrip(t *testing.T) {
	capture := &linkCapture{}
	p := newProvider(t, local.WithLinkSender(capture.send))
	ctx := context.Background()

	require.NoError(t, p.SendMagicLink(ctx, "Ana@dac.unicamp.br"))

	link := capture.last()
	require.NotEmpty(t, link)
	assert.True(t, p.IsMagicLinkURL(link))
	assert.False(t, p.IsMagicLinkURL("https://localhost/sign-in"))

	// the opening device never saw this email before
	session, err := p.CompleteMagicLink(ctx, "ana@dac.unicamp.br", link)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "ana@dac.unicamp.br", session.Email)
	assert.NotEmpty(t, session.IdentityID)

	// completing again resolves to the same account
	again, err := p.CompleteMagicLink(ctx, "ana@dac.unicamp.br", link)
	require.NoError(t, err)
	assert.Equal(t, session.IdentityID, again.IdentityID)
}

func TestCompleteMagicLinkEmailMismatch(t *testing.T) {
	capture := &linkCapture{}
	p := newProvider(t, local.WithLinkSender(capture.send))
	ctx := context.Background()

	require.NoError(t, p.SendMagicLink(ctx, "ana@dac.unicamp.br"))

	_, err := p.CompleteMagicLink(ctx, "other@dac.unicamp.br", capture.last())
	assert.ErrorIs(t, err, identity.ErrIntentMismatch)
}

func TestCompleteMagicLinkExpired(t *testing.T) {
	capture := &linkCapture{}
	p := newProvider(t,
		local.WithLinkSender(capture.send),
		local.WithLinkTTL(time.Nanosecond),
	)
	ctx := context.Background()

	require.NoError(t, p.SendMagicLink(ctx, "ana@dac.unicamp.br"))
	time.Sleep(10 * time.Millisecond)

	_, err := p.CompleteMagicLink(ctx, "ana@dac.unicamp.br", capture.last())
	require.Error(t, err)
	assert.True(t, identity.IsLinkExpired(err))
}

func TestCompleteMagicLinkRejectsPlainURL(t *testing.T) {
	p := newProvider(t)

	_, err := p.CompleteMagicLink(context.Background(), "ana@dac.unicamp.br", "https://localhost/home")
	assert.ErrorIs(t, err, identity.ErrLinkInvalid)
}

func TestRateLimitAppliesPerEmail(t *testing.T) {
	tokens := identity.NewTokenService([]byte("test-signing-key-0123456789abcdef"), "go-identity-test", nil)
	p := local.NewProvider(tokens, local.WithRateLimit(rate.Every(time.Hour), 2))
	ctx := context.Background()

	_, err := p.SignInPassword(ctx, "ana@dac.unicamp.br", "guess-1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "guess-2")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "guess-3")
	assert.ErrorIs(t, err, identity.ErrRateLimited)

	// other addresses keep their own allowance
	_, err = p.SignInPassword(ctx, "rui@patronos.org", "guess-1")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestSignInOAuthUsesExchange(t *testing.T) {
	p := newProvider(t, local.WithOAuthExchange(func(context.Context) (*identity.Session, error) {
		return &identity.Session{
			Email:       "rui@patronos.org",
			DisplayName: "Rui",
			AvatarURL:   "https://cdn.test/rui.png",
		}, nil
	}))
	ctx := context.Background()

	session, err := p.SignInOAuth(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, session.IdentityID, "first sight registers the account")
	assert.Equal(t, "rui@patronos.org", session.Email)
	assert.Equal(t, "Rui", session.DisplayName)

	again, err := p.SignInOAuth(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.IdentityID, again.IdentityID)
}

func TestSignInOAuthUnconfigured(t *testing.T) {
	p := newProvider(t)

	_, err := p.SignInOAuth(context.Background())
	assert.Error(t, err)
}

func TestPasswordResetFlow(t *testing.T) {
	capture := &linkCapture{}
	p := newProvider(t, local.WithResetSender(capture.send))
	ctx := context.Background()

	_, err := p.Register(ctx, "ana@dac.unicamp.br", "old password", "Ana")
	require.NoError(t, err)

	require.NoError(t, p.SendPasswordReset(ctx, "ana@dac.unicamp.br"))
	link := capture.last()
	require.NotEmpty(t, link)

	require.NoError(t, p.ResetPassword(ctx, link, "new password"))

	_, err = p.SignInPassword(ctx, "ana@dac.unicamp.br", "old password")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	session, err := p.SignInPassword(ctx, "ana@dac.unicamp.br", "new password")
	require.NoError(t, err)
	assert.Equal(t, "ana@dac.unicamp.br", session.Email)
}

func TestPasswordResetUnknownEmailStaysSilent(t *testing.T) {
	capture := &linkCapture{}
	p := newProvider(t, local.WithResetSender(capture.send))

	require.NoError(t, p.SendPasswordReset(context.Background(), "nobody@dac.unicamp.br"))
	assert.Empty(t, capture.last(), "the endpoint must not confirm which addresses exist")
}

func TestHashPassword(t *testing.T) {
	hash, err := local.HashPassword("correct horse battery")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	require.NoError(t, local.ComparePasswordAndHash("correct horse battery", hash))
	assert.ErrorIs(t, local.ComparePasswordAndHash("wrong", hash), identity.ErrInvalidCredentials)

	_, err = local.HashPassword("")
	assert.Error(t, err)
}
