package identity

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-errors"
)

// Config carries the tunables of the identity core. Zero values fall back
// to the platform defaults; LoadConfig fills it from the environment.
type Config struct {
	SigningKey        string        `env:"IDENTITY_SIGNING_KEY"`
	TokenIssuer       string        `env:"IDENTITY_TOKEN_ISSUER" envDefault:"go-identity"`
	LinkTTL           time.Duration `env:"IDENTITY_LINK_TTL" envDefault:"1h"`
	VerificationTTL   time.Duration `env:"IDENTITY_VERIFICATION_TTL" envDefault:"24h"`
	PasswordResetTTL  time.Duration `env:"IDENTITY_PASSWORD_RESET_TTL" envDefault:"1h"`
	CompletionTimeout time.Duration `env:"IDENTITY_COMPLETION_TIMEOUT" envDefault:"10s"`
	StudentDomains    []string      `env:"IDENTITY_STUDENT_DOMAINS" envSeparator:"," envDefault:"dac.unicamp.br,patronos.org"`
	MentorDomains     []string      `env:"IDENTITY_MENTOR_DOMAINS" envSeparator:"," envDefault:"patronos.org"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "failed to parse identity configuration")
	}
	return cfg, nil
}

// ApprovedDomains assembles the per-role whitelist for the approval policy.
func (c *Config) ApprovedDomains() map[Role][]string {
	return map[Role][]string{
		RoleStudent: c.StudentDomains,
		RoleMentor:  c.MentorDomains,
	}
}

// Validate makes sure the configuration is complete enough to sign tokens.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		return errors.New("IDENTITY_SIGNING_KEY is required", errors.CategoryValidation)
	}
	return nil
}
