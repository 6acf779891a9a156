package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
)

type AccountStore interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, a *models.Account) error
	Ensure(ctx context.Context, id, email string) (*models.Account, bool, error)
	UpdateProfile(ctx context.Context, a *models.Account) error
}

type AccountService struct {
	accounts AccountStore
}

func NewAccountService(accounts AccountStore) *AccountService {
	return &AccountService{accounts: accounts}
}

// Ensure loads the caller's account, creating an empty active one the first
// time an identity is seen.
func (s *AccountService) Ensure(ctx context.Context, id, email string) (*models.Account, bool, error) {
	if strings.TrimSpace(id) == "" {
		return nil, false, errors.New("account id is required")
	}
	acct, created, err := s.accounts.Ensure(ctx, id, email)
	if err != nil {
		return nil, false, fmt.Errorf("ensure account: %w", err)
	}
	return acct, created, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (*models.Account, error) {
	acct, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, ledger.ErrAccountNotFound
	}
	return acct, nil
}

type CreateAccountInput struct {
	ID            string
	Email         string
	Name          string
	CompanyName   string
	Phone         string
	Website       string
	LogoURL       string
	ApplyBranding bool
	IsAdmin       bool
}

// Create provisions an account from the admin surface. Balances start at zero;
// tokens are granted through the ledger.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*models.Account, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	acct := &models.Account{
		ID:            id,
		Email:         in.Email,
		Name:          in.Name,
		CompanyName:   in.CompanyName,
		Phone:         in.Phone,
		Website:       in.Website,
		LogoURL:       in.LogoURL,
		ApplyBranding: in.ApplyBranding,
		IsActive:      true,
		IsAdmin:       in.IsAdmin,
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return s.Get(ctx, id)
}

type ProfileInput struct {
	Name          *string
	CompanyName   *string
	Phone         *string
	Website       *string
	LogoURL       *string
	ApplyBranding *bool
}

func (s *AccountService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*models.Account, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&acct.Name, in.Name)
	set(&acct.CompanyName, in.CompanyName)
	set(&acct.Phone, in.Phone)
	set(&acct.Website, in.Website)
	set(&acct.LogoURL, in.LogoURL)
	if in.ApplyBranding != nil {
		acct.ApplyBranding = *in.ApplyBranding
	}
	if err := s.accounts.UpdateProfile(ctx, acct); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return acct, nil
}
