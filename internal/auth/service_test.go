package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/nmoncrief/meshgate/internal/infrastructure/config"
)

func testService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	return NewService(config.SecurityConfig{
		JWT: config.JWTConfig{
			Secret:         "test-signing-secret",
			AccessTokenTTL: 30,
		},
		Users: []config.UserConfig{
			{Email: "ops@example.com", PasswordHash: hash},
		},
	})
}

func TestLoginAndValidate(t *testing.T) {
	svc := testService(t)

	token, err := svc.Login("ops@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	identity, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if identity != "ops@example.com" {
		t.Errorf("identity = %q, want ops@example.com", identity)
	}
}

func TestLoginEmailCaseInsensitive(t *testing.T) {
	svc := testService(t)
	if _, err := svc.Login("  OPS@Example.COM ", "s3cret-pass"); err != nil {
		t.Errorf("Login() with mixed-case email error = %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := testService(t)

	if _, err := svc.Login("ops@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login("nobody@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user error = %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := testService(t)
	token, err := svc.Login("ops@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := svc.ValidateToken(token + "x"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("tampered token error = %v, want ErrTokenInvalid", err)
	}
	if _, err := svc.ValidateToken(""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("empty token error = %v, want ErrTokenInvalid", err)
	}

	// A token signed with a different secret must not validate.
	other := NewService(config.SecurityConfig{
		JWT:   config.JWTConfig{Secret: "other-secret", AccessTokenTTL: 30},
		Users: nil,
	})
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("cross-secret token error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenTTLDefault(t *testing.T) {
	svc := NewService(config.SecurityConfig{JWT: config.JWTConfig{Secret: "s"}})
	if svc.TokenTTL() != time.Duration(defaultTokenTTLMinutes)*time.Minute {
		t.Errorf("TokenTTL() = %v", svc.TokenTTL())
	}
}
