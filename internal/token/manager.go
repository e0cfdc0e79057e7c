package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")

	errMissingSecret = errors.New("token secret is required")
	errInvalidTTL    = errors.New("invalid TTL configuration")
)

type Config struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
}

// Manager signs and verifies HS256 access tokens.
type Manager struct {
	config Config
	now    func() time.Time
}

type Claims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errMissingSecret
	}
	if cfg.AccessTTL <= 0 {
		return nil, errInvalidTTL
	}
	return &Manager{config: cfg, now: time.Now}, nil
}

// Issue returns a signed access token for uid and its expiry.
func (m *Manager) Issue(uid string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.config.AccessTTL)

	claims := Claims{
		UID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return m.config.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves an access token to its user id.
func (m *Manager) Authenticate(tokenStr string) (string, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.UID, nil
}
