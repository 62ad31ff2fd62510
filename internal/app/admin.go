package app

import (
	"context"
	"log"
	"strings"

	"github.com/wirebuddy/ledger-service/internal/domain"
	"github.com/wirebuddy/ledger-service/internal/store"
)

const DefaultResetPIN = "0000"

// AdminService holds the account-level operations reserved for administrators.
type AdminService struct {
	repo       store.Repository
	defaultPIN string
}

func NewAdminService(repo store.Repository, defaultPIN string) *AdminService {
	if !pinPattern.MatchString(defaultPIN) {
		defaultPIN = DefaultResetPIN
	}
	return &AdminService{repo: repo, defaultPIN: defaultPIN}
}

// Freeze deactivates an account. Frozen accounts cannot log in or receive transfers.
func (s *AdminService) Freeze(ctx context.Context, accountNumber, admin string) (*domain.Account, error) {
	return s.setActive(ctx, accountNumber, false, admin)
}

func (s *AdminService) Unfreeze(ctx context.Context, accountNumber, admin string) (*domain.Account, error) {
	return s.setActive(ctx, accountNumber, true, admin)
}

func (s *AdminService) setActive(ctx context.Context, accountNumber string, active bool, admin string) (*domain.Account, error) {
	account, err := s.repo.SetAccountActive(ctx, strings.TrimSpace(accountNumber), active)
	if err != nil {
		return nil, err
	}
	log.Printf("level=info component=admin admin=%s account=%s active=%t msg=\"account status changed\"", admin, account.AccountNumber, active)
	return account, nil
}

// ResetPIN sets the account's PIN back to the configured default.
func (s *AdminService) ResetPIN(ctx context.Context, accountNumber, admin string) error {
	accountNumber = strings.TrimSpace(accountNumber)
	if _, err := s.repo.FindAccount(ctx, accountNumber); err != nil {
		return err
	}
	hash, err := hashPIN(s.defaultPIN)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePINHash(ctx, accountNumber, hash); err != nil {
		return err
	}
	log.Printf("level=info component=admin admin=%s account=%s msg=\"pin reset to default\"", admin, accountNumber)
	return nil
}

// Search matches names case-insensitively and account numbers by substring. An empty
// query lists every account.
func (s *AdminService) Search(ctx context.Context, query string) ([]domain.Account, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.repo.ListAccounts(ctx)
	}
	return s.repo.SearchAccounts(ctx, query)
}

func (s *AdminService) Account(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.repo.FindAccount(ctx, strings.TrimSpace(accountNumber))
}

func (s *AdminService) Stats(ctx context.Context) (*domain.SystemStats, error) {
	return s.repo.SystemStats(ctx)
}
