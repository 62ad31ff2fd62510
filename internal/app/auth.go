/**
 * @description
 * This file contains the `AuthService`: customer registration, PIN login and the
 * signed session tokens the HTTP layer accepts. PINs are stored as bcrypt hashes
 * and sessions are HS256 JWTs carrying the account number as subject.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: session tokens.
 * - golang.org/x/crypto/bcrypt: PIN hashing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const loginRateScope = "login"

var (
	phonePattern = regexp.MustCompile(`^\d{10}$`)
	pinPattern   = regexp.MustCompile(`^\d{4}$`)
)

// Claims are the session token claims. Subject is the account number.
type Claims struct {
	Admin bool `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

type AuthService struct {
	repo       store.Repository
	limiter    RateLimiter
	secret     []byte
	ttl        time.Duration
	loginLimit int
	now        func() time.Time
}

func NewAuthService(repo store.Repository, limiter RateLimiter, secret string, ttl time.Duration, loginLimitPerMinute int) *AuthService {
	return &AuthService{
		repo:       repo,
		limiter:    limiter,
		secret:     []byte(secret),
		ttl:        ttl,
		loginLimit: loginLimitPerMinute,
		now:        time.Now,
	}
}

func hashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash pin: %w", err)
	}
	return string(hash), nil
}

func pinMatches(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// Register opens an account whose number is the customer's 10-digit phone number.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest) (*domain.Account, error) {
	name := strings.TrimSpace(req.Name)
	username := strings.TrimSpace(req.Username)
	phone := strings.TrimSpace(req.PhoneNumber)
	switch {
	case name == "":
		return nil, ErrInvalidName
	case username == "":
		return nil, ErrInvalidUsername
	case !phonePattern.MatchString(phone):
		return nil, ErrInvalidPhoneNumber
	case !pinPattern.MatchString(req.PIN):
		return nil, ErrInvalidPIN
	}

	hash, err := hashPIN(req.PIN)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		AccountNumber: phone,
		Name:          name,
		Username:      username,
		PINHash:       hash,
		NationalID:    strings.TrimSpace(req.NationalID),
		Address:       strings.TrimSpace(req.Address),
		Balance:       decimal.Zero,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	log.Printf("level=info component=auth account=%s username=%s msg=\"account registered\"", account.AccountNumber, account.Username)
	return account, nil
}

// Login checks the username, account number and PIN together and issues a session.
// Frozen accounts cannot log in.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.Session, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.PIN == "" {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, loginRateScope, username, s.loginLimit, time.Minute)
		if err != nil {
			// Redis trouble should not lock everyone out.
			log.Printf("level=warn component=auth username=%s err=%v msg=\"rate limiter unavailable\"", username, err)
		} else if s.loginLimit > 0 && count > s.loginLimit {
			return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
		}
	}

	account, err := s.repo.FindAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if account.AccountNumber != strings.TrimSpace(req.AccountNumber) || !pinMatches(account.PINHash, req.PIN) {
		log.Printf("level=warn component=auth username=%s msg=\"login rejected\"", username)
		return nil, ErrInvalidCredentials
	}
	if !account.IsActive {
		return nil, ErrAccountFrozen
	}

	return s.issue(account)
}

func (s *AuthService) issue(account *domain.Account) (*domain.Session, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := Claims{
		Admin: account.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.AccountNumber,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &domain.Session{Token: token, ExpiresAt: expires, Account: *account}, nil
}

// ParseToken validates a session token and returns its claims.
func (s *AuthService) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, accountNumber string, update domain.ProfileUpdate) (*domain.Account, error) {
	if update.Name != nil && strings.TrimSpace(*update.Name) == "" {
		return nil, ErrInvalidName
	}
	return s.repo.UpdateProfile(ctx, accountNumber, update)
}

func (s *AuthService) ChangePIN(ctx context.Context, accountNumber string, req domain.ChangePINRequest) error {
	if !pinPattern.MatchString(req.NewPIN) {
		return ErrInvalidPIN
	}
	account, err := s.repo.FindAccount(ctx, accountNumber)
	if err != nil {
		return err
	}
	if !pinMatches(account.PINHash, req.CurrentPIN) {
		return ErrInvalidCredentials
	}
	hash, err := hashPIN(req.NewPIN)
	if err != nil {
		return err
	}
	return s.repo.UpdatePINHash(ctx, accountNumber, hash)
}
