package local

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fundo-patronos/go-identity"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// DefaultLinkTTL bounds how long a sign-in link stays valid.
const DefaultLinkTTL = time.Hour

// DefaultResetTTL bounds how long a password reset token stays valid.
const DefaultResetTTL = time.Hour

// LinkSender delivers an out-of-band link to the address it was minted
// for. Production hosts plug in their mailer; tests capture the link.
type LinkSender func(ctx context.Context, email, link string) error

// OAuthExchange completes an external OAuth flow and returns the resulting
// session. The default exchange reports that no OAuth backend is wired.
type OAuthExchange func(ctx context.Context) (*identity.Session, error)

type account struct {
	identityID   string
	email        string
	displayName  string
	avatarURL    string
	passwordHash string
}

// Provider is an in-process session provider. It owns its credential
// records, signs its own magic links, and emits session changes to every
// registered listener, starting with the current session at registration
// time.
type Provider struct {
	tokens        identity.TokenService
	sendLink      LinkSender
	sendReset     LinkSender
	exchangeOAuth OAuthExchange
	baseURL       string
	linkTTL       time.Duration
	resetTTL      time.Duration

	logger   identity.Logger
	provider identity.LoggerProvider

	limit rate.Limit
	burst int

	mu           sync.Mutex
	accounts     map[string]*account
	limiters     map[string]*rate.Limiter
	session      *identity.Session
	listeners    map[int]func(*identity.Session)
	nextListener int
}

var _ identity.SessionProvider = (*Provider)(nil)

// Option customizes the provider.
type Option func(*Provider)

// WithLogger overrides the logger.
func WithLogger(logger identity.Logger) Option {
	return func(p *Provider) {
		p.provider, p.logger = identity.ResolveLogger("identity.provider.local", p.provider, logger)
	}
}

// WithLinkSender sets the magic link delivery hook.
func WithLinkSender(sender LinkSender) Option {
	return func(p *Provider) {
		if sender != nil {
			p.sendLink = sender
		}
	}
}

// WithResetSender sets the password reset delivery hook.
func WithResetSender(sender LinkSender) Option {
	return func(p *Provider) {
		if sender != nil {
			p.sendReset = sender
		}
	}
}

// WithOAuthExchange wires the external OAuth completion step.
func WithOAuthExchange(exchange OAuthExchange) Option {
	return func(p *Provider) {
		if exchange != nil {
			p.exchangeOAuth = exchange
		}
	}
}

// WithBaseURL sets the page magic links point at.
func WithBaseURL(base string) Option {
	return func(p *Provider) {
		if base != "" {
			p.baseURL = base
		}
	}
}

// WithLinkTTL overrides how long sign-in links stay valid.
func WithLinkTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.linkTTL = ttl
		}
	}
}

// WithResetTTL overrides how long reset tokens stay valid.
func WithResetTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.resetTTL = ttl
		}
	}
}

// WithRateLimit throttles per-email credential attempts and link sends.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(p *Provider) {
		p.limit = limit
		p.burst = burst
	}
}

// NewProvider builds a provider signing its links with the given token
// service.
func NewProvider(tokens identity.TokenService, opts ...Option) *Provider {
	p := &Provider{
		tokens:    tokens,
		baseURL:   "https://localhost/sign-in",
		linkTTL:   DefaultLinkTTL,
		resetTTL:  DefaultResetTTL,
		limit:     rate.Every(time.Second),
		burst:     5,
		accounts:  map[string]*account{},
		limiters:  map[string]*rate.Limiter{},
		listeners: map[int]func(*identity.Session){},
	}
	p.provider, p.logger = identity.ResolveLogger("identity.provider.local", nil, nil)

	p.sendLink = func(ctx context.Context, email, link string) error {
		p.logger.Warn("no link sender configured, dropping sign-in link", "email", email)
		return nil
	}
	p.sendReset = func(ctx context.Context, email, link string) error {
		p.logger.Warn("no reset sender configured, dropping reset link", "email", email)
		return nil
	}
	p.exchangeOAuth = func(ctx context.Context) (*identity.Session, error) {
		return nil, goerrors.New("no OAuth exchange configured", goerrors.CategoryOperation).
			WithTextCode("IDENTITY_OAUTH_UNCONFIGURED")
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// Register creates a password account. It returns ErrProfileConflict when
// the email is already registered.
func (p *Provider) Register(ctx context.Context, email, password, displayName string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", identity.ErrEmailRequired
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.accounts[email]; exists {
		return "", identity.ErrProfileConflict.WithMetadata(map[string]any{
			"email": email,
		})
	}

	acct := &account{
		identityID:   uuid.NewString(),
		email:        email,
		displayName:  displayName,
		passwordHash: hash,
	}
	p.accounts[email] = acct

	return acct.identityID, nil
}

// OnSessionChange registers a session listener and invokes it immediately
// with the current session.
func (p *Provider) OnSessionChange(fn func(*identity.Session)) identity.Unsubscribe {
	if fn == nil {
		return func() {}
	}

	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	current := cloneSession(p.session)
	p.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// SignInPassword validates the credentials and establishes a session.
func (p *Provider) SignInPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	email = normalizeEmail(email)
	if err := p.allow(email); err != nil {
		return nil, err
	}

	p.mu.Lock()
	acct, ok := p.accounts[email]
	p.mu.Unlock()

	if !ok {
		// Burn a comparison so lookups and mismatches take similar time.
		_ = ComparePasswordAndHash(password, randomHash())
		return nil, identity.ErrInvalidCredentials
	}

	if err := ComparePasswordAndHash(password, acct.passwordHash); err != nil {
		return nil, err
	}

	return p.establish(acct), nil
}

// SignInOAuth completes the configured OAuth exchange and establishes the
// session it returns, registering the account on first sight.
func (p *Provider) SignInOAuth(ctx context.Context) (*identity.Session, error) {
	session, err := p.exchangeOAuth(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, identity.ErrNoSession
	}

	acct := p.ensureAccount(session.Email, session.DisplayName, session.AvatarURL)
	return p.establish(acct), nil
}

// SendMagicLink mints a sign-in link bound to the email and hands it to
// the configured sender.
func (p *Provider) SendMagicLink(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return identity.ErrEmailRequired
	}
	if err := p.allow(email); err != nil {
		return err
	}

	token, err := p.tokens.MintLink(email, p.linkTTL)
	if err != nil {
		return err
	}

	return p.sendLink(ctx, email, p.buildLink(token))
}

// IsMagicLinkURL reports whether the URL carries a sign-in link token.
func (p *Provider) IsMagicLinkURL(rawURL string) bool {
	return extractLinkToken(rawURL) != ""
}

// CompleteMagicLink validates the link, checks the email matches the one
// the link was minted for, and establishes a session. First-time emails get
// an account created on the spot, which is what lets a signup finish on a
// device that has never seen the user before.
func (p *Provider) CompleteMagicLink(ctx context.Context, email, rawURL string) (*identity.Session, error) {
	token := extractLinkToken(rawURL)
	if token == "" {
		return nil, identity.ErrLinkInvalid
	}

	claims, err := p.tokens.Validate(token, identity.PurposeMagicLink)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(normalizeEmail(email), claims.Email) {
		// The link is fine, the confirmed email is not the one it was
		// minted for. Callers prompt for the email again on this error.
		return nil, identity.ErrIntentMismatch.WithMetadata(map[string]any{
			"reason": "email does not match link target",
		})
	}

	acct := p.ensureAccount(claims.Email, "", "")
	return p.establish(acct), nil
}

// SendPasswordReset mints a reset token for a registered email. Unknown
// emails succeed silently so the endpoint does not confirm which addresses
// have accounts.
func (p *Provider) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return identity.ErrEmailRequired
	}
	if err := p.allow(email); err != nil {
		return err
	}

	p.mu.Lock()
	_, registered := p.accounts[email]
	p.mu.Unlock()

	if !registered {
		p.logger.Debug("password reset requested for unknown email", "email", email)
		return nil
	}

	token, err := p.tokens.MintPasswordReset(email, p.resetTTL)
	if err != nil {
		return err
	}

	return p.sendReset(ctx, email, p.buildLink(token))
}

// ResetPassword validates a reset token and replaces the account password.
func (p *Provider) ResetPassword(ctx context.Context, rawURL, password string) error {
	token := extractLinkToken(rawURL)
	if token == "" {
		return identity.ErrLinkInvalid
	}

	claims, err := p.tokens.Validate(token, identity.PurposePasswordReset)
	if err != nil {
		return err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[claims.Email]
	if !ok {
		return identity.ErrProfileNotFound.WithMetadata(map[string]any{
			"email": claims.Email,
		})
	}
	acct.passwordHash = hash

	return nil
}

// SignOut clears the current session and notifies listeners with nil.
func (p *Provider) SignOut(ctx context.Context) error {
	p.setSession(nil)
	return nil
}

func (p *Provider) establish(acct *account) *identity.Session {
	session := &identity.Session{
		IdentityID:  acct.identityID,
		Email:       acct.email,
		DisplayName: acct.displayName,
		AvatarURL:   acct.avatarURL,
	}
	p.setSession(session)
	return cloneSession(session)
}

func (p *Provider) ensureAccount(email, displayName, avatarURL string) *account {
	email = normalizeEmail(email)

	p.mu.Lock()
	defer p.mu.Unlock()

	if acct, ok := p.accounts[email]; ok {
		if displayName != "" {
			acct.displayName = displayName
		}
		if avatarURL != "" {
			acct.avatarURL = avatarURL
		}
		return acct
	}

	acct := &account{
		identityID:   uuid.NewString(),
		email:        email,
		displayName:  displayName,
		avatarURL:    avatarURL,
		passwordHash: randomHash(),
	}
	p.accounts[email] = acct

	return acct
}

func (p *Provider) setSession(session *identity.Session) {
	p.mu.Lock()
	p.session = cloneSession(session)

	ids := make([]int, 0, len(p.listeners))
	for id := range p.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	listeners := make([]func(*identity.Session), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, p.listeners[id])
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(cloneSession(session))
	}
}

func (p *Provider) allow(email string) error {
	p.mu.Lock()
	limiter, ok := p.limiters[email]
	if !ok {
		limiter = rate.NewLimiter(p.limit, p.burst)
		p.limiters[email] = limiter
	}
	p.mu.Unlock()

	if !limiter.Allow() {
		return identity.ErrRateLimited.WithMetadata(map[string]any{
			"email": email,
		})
	}

	return nil
}

func (p *Provider) buildLink(token string) string {
	return p.baseURL + "?link=" + url.QueryEscape(token)
}

func extractLinkToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("link")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneSession(s *identity.Session) *identity.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

var (
	randomHashOnce sync.Once
	randomHashVal  string
)

// randomHash is compared against for unknown accounts so password sign-in
// does not leak which emails exist through timing. Computed on first use;
// bcrypt at the configured cost is too slow to pay at package init.
func randomHash() string {
	randomHashOnce.Do(func() {
		h, err := HashPassword(uuid.NewString())
		if err != nil {
			return
		}
		randomHashVal = h
	})
	return randomHashVal
}
