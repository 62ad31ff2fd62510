package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
)

type limiterStub struct {
	count int
	err   error
	calls int
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	l.calls++
	return l.count, 42, l.err
}

func newAuthService(env *testEnv, limiter RateLimiter) *AuthService {
	svc := NewAuthService(env.repo, limiter, "test-secret", 30*time.Minute, 5)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func register(t *testing.T, svc *AuthService, phone, username, pin string) *domain.Account {
	t.Helper()
	account, err := svc.Register(context.Background(), domain.RegisterRequest{
		Name:        "Ama Mensah",
		PhoneNumber: phone,
		PIN:         pin,
		Username:    username,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return account
}

func TestAuthService_RegisterValidation(t *testing.T) {
	env := newTestEnv(t, false)
	svc := newAuthService(env, nil)

	tests := []struct {
		name string
		req  domain.RegisterRequest
		want error
	}{
		{name: "missing name", req: domain.RegisterRequest{PhoneNumber: "0241111111", PIN: "1234", Username: "ama"}, want: ErrInvalidName},
		{name: "missing username", req: domain.RegisterRequest{Name: "Ama", PhoneNumber: "0241111111", PIN: "1234"}, want: ErrInvalidUsername},
		{name: "short phone", req: domain.RegisterRequest{Name: "Ama", PhoneNumber: "024111", PIN: "1234", Username: "ama"}, want: ErrInvalidPhoneNumber},
		{name: "letters in phone", req: domain.RegisterRequest{Name: "Ama", PhoneNumber: "02411111ab", PIN: "1234", Username: "ama"}, want: ErrInvalidPhoneNumber},
		{name: "long pin", req: domain.RegisterRequest{Name: "Ama", PhoneNumber: "0241111111", PIN: "12345", Username: "ama"}, want: ErrInvalidPIN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	account := register(t, svc, "0241111111", "ama", "1234")
	if !account.IsActive || !account.Balance.IsZero() || account.PINHash == "1234" {
		t.Fatalf("unexpected account %+v", account)
	}
	if _, err := svc.Register(context.Background(), domain.RegisterRequest{Name: "Other", PhoneNumber: "0242222222", PIN: "1234", Username: "AMA"}); !errors.Is(err, store.ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount for a username differing in case, got %v", err)
	}
}

func TestAuthService_LoginAndParseToken(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	svc := newAuthService(env, nil)
	register(t, svc, "0241111111", "ama", "1234")

	session, err := svc.Login(ctx, domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "1234"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !session.ExpiresAt.Equal(fixedNow.Add(30 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	claims, err := svc.ParseToken(session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "0241111111" || claims.Admin {
		t.Fatalf("unexpected claims %+v", claims)
	}

	svc.now = func() time.Time { return fixedNow.Add(31 * time.Minute) }
	if _, err := svc.ParseToken(session.Token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	other := NewAuthService(env.repo, nil, "another-secret", time.Minute, 5)
	if _, err := other.ParseToken(session.Token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	svc := newAuthService(env, nil)
	register(t, svc, "0241111111", "ama", "1234")

	tests := []struct {
		name string
		req  domain.LoginRequest
	}{
		{name: "wrong pin", req: domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "9999"}},
		{name: "wrong account number", req: domain.LoginRequest{Username: "ama", AccountNumber: "0249999999", PIN: "1234"}},
		{name: "unknown username", req: domain.LoginRequest{Username: "kofi", AccountNumber: "0241111111", PIN: "1234"}},
		{name: "empty pin", req: domain.LoginRequest{Username: "ama", AccountNumber: "0241111111"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Login(ctx, tt.req); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}

	if _, err := env.repo.SetAccountActive(ctx, "0241111111", false); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := svc.Login(ctx, domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "1234"}); !errors.Is(err, ErrAccountFrozen) {
		t.Fatalf("expected ErrAccountFrozen, got %v", err)
	}
}

func TestAuthService_LoginRateLimit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	limiter := &limiterStub{count: 6}
	svc := newAuthService(env, limiter)
	register(t, svc, "0241111111", "ama", "1234")

	_, err := svc.Login(ctx, domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "1234"})
	var limitErr *RateLimitError
	if !errors.As(err, &limitErr) || !errors.Is(err, ErrRateLimited) || limitErr.RetryAfterSeconds != 42 {
		t.Fatalf("expected RateLimitError, got %v", err)
	}

	limiter.count, limiter.err = 0, errors.New("redis down")
	if _, err := svc.Login(ctx, domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "1234"}); err != nil {
		t.Fatalf("limiter failures must not block login: %v", err)
	}
}

func TestAuthService_ChangePIN(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, false)
	svc := newAuthService(env, nil)
	register(t, svc, "0241111111", "ama", "1234")

	if err := svc.ChangePIN(ctx, "0241111111", domain.ChangePINRequest{CurrentPIN: "0000", NewPIN: "4321"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePIN(ctx, "0241111111", domain.ChangePINRequest{CurrentPIN: "1234", NewPIN: "43"}); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
	if err := svc.ChangePIN(ctx, "0241111111", domain.ChangePINRequest{CurrentPIN: "1234", NewPIN: "4321"}); err != nil {
		t.Fatalf("change pin: %v", err)
	}
	if _, err := svc.Login(ctx, domain.LoginRequest{Username: "ama", AccountNumber: "0241111111", PIN: "4321"}); err != nil {
		t.Fatalf("login with new pin: %v", err)
	}
}
