package session

import (
	"errors"
	"strconv"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"clubhouse/cmd/internal/auth/authz"
)

// Verifier turns a bearer token into a Principal.
type Verifier interface {
	Verify(token string, now time.Time) (Principal, error)
}

// TokenManager issues and verifies PASETO v4.public access tokens.
type TokenManager struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration

	secret   paseto.V4AsymmetricSecretKey
	public   paseto.V4AsymmetricPublicKey
	canIssue bool
}

// NewTokenManager builds a TokenManager from cfg. With only a public key it can verify but not issue.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	m := &TokenManager{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
	}
	if m.issuer == "" || m.ttl <= 0 || m.clockSkew < 0 {
		return nil, ErrConfig
	}

	switch {
	case cfg.SecretKeyHex != "":
		secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.SecretKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		m.secret = secret
		m.public = secret.Public()
		m.canIssue = true
	case cfg.PublicKeyHex != "":
		public, err := paseto.NewV4AsymmetricPublicKeyFromHex(cfg.PublicKeyHex)
		if err != nil {
			return nil, ErrConfig
		}
		m.public = public
	default:
		return nil, ErrConfig
	}
	return m, nil
}

// NewEphemeralTokenManager generates a throwaway key pair. Tokens do not survive a restart.
func NewEphemeralTokenManager(cfg Config) (*TokenManager, error) {
	cfg.SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	return NewTokenManager(cfg)
}

func (m *TokenManager) PublicKeyHex() string {
	return m.public.ExportHex()
}

// Issue signs an access token for p valid from now for the configured TTL.
func (m *TokenManager) Issue(p Principal, now time.Time) (string, time.Time, error) {
	if !m.canIssue {
		return "", time.Time{}, errors.New("session: token manager has no secret key")
	}
	if p.UserID <= 0 {
		return "", time.Time{}, errors.New("session: principal without user id")
	}
	if _, ok := authz.ParseRole(string(p.Role)); !ok {
		return "", time.Time{}, errors.New("session: principal without valid role")
	}

	exp := now.Add(m.ttl)

	tok := paseto.NewToken()
	tok.SetIssuer(m.issuer)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)

	// uid travels as a string so it never passes through a JSON float.
	_ = tok.Set("uid", strconv.FormatInt(p.UserID, 10))
	_ = tok.Set("role", string(p.Role))

	return tok.V4Sign(m.secret, nil), exp, nil
}

// Verify checks signature and issuer, and validates iat/nbf/exp at now shifted
// forward by the clock skew.
func (m *TokenManager) Verify(token string, now time.Time) (Principal, error) {
	if token == "" {
		return Principal{}, ErrInvalidToken
	}

	p := paseto.NewParser()
	p.AddRule(paseto.IssuedBy(m.issuer))
	p.AddRule(paseto.ValidAt(now.Add(m.clockSkew)))

	parsed, err := p.ParseV4Public(m.public, token, nil)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	rawUID, err := parsed.GetString("uid")
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	uid, err := strconv.ParseInt(rawUID, 10, 64)
	if err != nil || uid <= 0 {
		return Principal{}, ErrInvalidToken
	}
	rawRole, err := parsed.GetString("role")
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	role, ok := authz.ParseRole(rawRole)
	if !ok {
		return Principal{}, ErrInvalidToken
	}

	return Principal{UserID: uid, Role: role}, nil
}
