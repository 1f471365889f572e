package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
)

const defaultTokenTTLMinutes = 60

// Claims are the JWT claims meshgate issues. Subject carries the user
// email; no other identity is tracked.
type Claims struct {
	jwt.RegisteredClaims
}

// Service authenticates users against the configured user list and issues
// and validates access tokens.
type Service struct {
	secret []byte
	ttl    time.Duration

	// users maps lowercased email to its PHC password hash.
	users map[string]string
}

// NewService creates an auth service from security configuration.
func NewService(cfg config.SecurityConfig) *Service {
	ttlMinutes := cfg.JWT.AccessTokenTTL
	if ttlMinutes <= 0 {
		ttlMinutes = defaultTokenTTLMinutes
	}

	users := make(map[string]string, len(cfg.Users))
	for _, u := range cfg.Users {
		users[strings.ToLower(u.Email)] = u.PasswordHash
	}

	return &Service{
		secret: []byte(cfg.JWT.Secret),
		ttl:    time.Duration(ttlMinutes) * time.Minute,
		users:  users,
	}
}

// TokenTTL returns the access token lifetime.
func (s *Service) TokenTTL() time.Duration {
	return s.ttl
}

// Login verifies credentials and returns a signed access token. Unknown
// users and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(email, password string) (string, error) {
	hash, ok := s.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		// Burn comparable time so user enumeration by timing is harder.
		_, _ = VerifyPassword(password, phcDummy)
		return "", ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, hash)
	if err != nil || !match {
		return "", ErrInvalidCredentials
	}

	return s.issueToken(email)
}

// ValidateToken checks a token's signature and expiry and returns the
// authenticated identity.
func (s *Service) ValidateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims.Subject, nil
}

func (s *Service) issueToken(email string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.ToLower(strings.TrimSpace(email)),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// phcDummy is a valid Argon2id hash of an unguessable value, used to keep
// failed-user and failed-password timings in the same ballpark.
const phcDummy = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$u1fTvSIDiEAWnnBPmN1jDzEOrhHmREN+LQWWdcGFV7s"
