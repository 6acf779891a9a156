package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sorapixel/studio/internal/models"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const selectAccount = `
SELECT id, COALESCE(email, ''), COALESCE(name, ''), COALESCE(company_name, ''), COALESCE(phone, ''), COALESCE(website, ''),
       COALESCE(logo_url, ''), apply_branding, is_active, is_admin, token_balance, free_tier_used,
       COALESCE(DATE_FORMAT(daily_reward_claimed_on, '%Y-%m-%d'), ''), created_at, updated_at
FROM accounts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.CompanyName, &a.Phone, &a.Website, &a.LogoURL,
		&a.ApplyBranding, &a.IsActive, &a.IsAdmin, &a.TokenBalance, &a.FreeTierUsed,
		&a.DailyRewardClaimedOn, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(r.db.QueryRowContext(ctx, selectAccount+" WHERE id = ?", id))
}

func (r *AccountRepository) Create(ctx context.Context, a *models.Account) error {
	const query = `
INSERT INTO accounts (id, email, name, company_name, phone, website, logo_url, apply_branding, is_active, is_admin, token_balance)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.Email, a.Name, a.CompanyName, a.Phone, a.Website, a.LogoURL,
		a.ApplyBranding, a.IsActive, a.IsAdmin, a.TokenBalance); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Ensure returns the account with the given id, creating an empty active one
// on first sight. The boolean reports whether a row was created.
func (r *AccountRepository) Ensure(ctx context.Context, id, email string) (*models.Account, bool, error) {
	const query = `INSERT IGNORE INTO accounts (id, email, is_active) VALUES (?, NULLIF(?, ''), 1)`
	res, err := r.db.ExecContext(ctx, query, id, email)
	if err != nil {
		return nil, false, fmt.Errorf("ensure account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("ensure rows affected: %w", err)
	}
	acct, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if acct == nil {
		return nil, false, fmt.Errorf("ensure account %s: row vanished", id)
	}
	return acct, affected > 0, nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, a *models.Account) error {
	const query = `
UPDATE accounts SET name = NULLIF(?, ''), company_name = NULLIF(?, ''), phone = NULLIF(?, ''), website = NULLIF(?, ''),
       logo_url = NULLIF(?, ''), apply_branding = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, a.Name, a.CompanyName, a.Phone, a.Website, a.LogoURL, a.ApplyBranding, a.ID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// ConsumeFreeTier bumps free_tier_used only while it is below limit.
func (r *AccountRepository) ConsumeFreeTier(ctx context.Context, id string, limit int) (*models.Account, bool, error) {
	const query = `
UPDATE accounts SET free_tier_used = free_tier_used + 1, updated_at = NOW()
WHERE id = ? AND is_active = 1 AND free_tier_used < ?`
	return r.conditionalUpdate(ctx, "consume free tier", id, query, id, limit)
}

// DebitTokens subtracts amount only when the balance covers it.
func (r *AccountRepository) DebitTokens(ctx context.Context, id string, amount int) (*models.Account, bool, error) {
	const query = `
UPDATE accounts SET token_balance = token_balance - ?, updated_at = NOW()
WHERE id = ? AND is_active = 1 AND token_balance >= ?`
	return r.conditionalUpdate(ctx, "debit tokens", id, query, amount, id, amount)
}

func (r *AccountRepository) CreditTokens(ctx context.Context, id string, amount int) (*models.Account, bool, error) {
	const query = `UPDATE accounts SET token_balance = token_balance + ?, updated_at = NOW() WHERE id = ?`
	return r.conditionalUpdate(ctx, "credit tokens", id, query, amount, id)
}

// ClaimDailyReward credits amount and stamps day unless day is already stamped.
func (r *AccountRepository) ClaimDailyReward(ctx context.Context, id, day string, amount int) (*models.Account, bool, error) {
	const query = `
UPDATE accounts SET token_balance = token_balance + ?, daily_reward_claimed_on = ?, updated_at = NOW()
WHERE id = ? AND is_active = 1 AND (daily_reward_claimed_on IS NULL OR daily_reward_claimed_on <> ?)`
	return r.conditionalUpdate(ctx, "claim daily reward", id, query, amount, day, id, day)
}

// conditionalUpdate runs a single guarded UPDATE and reads the row back inside
// the same transaction, so the returned snapshot reflects this statement.
// A nil account means the id does not exist.
func (r *AccountRepository) conditionalUpdate(ctx context.Context, op, id, query string, args ...any) (*models.Account, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("%s: rows affected: %w", op, err)
	}

	acct, err := scanAccount(tx.QueryRowContext(ctx, selectAccount+" WHERE id = ?", id))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if acct == nil {
		return nil, false, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return acct, affected > 0, nil
}
