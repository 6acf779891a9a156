package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is inactive")
	ErrInvalidAmount   = errors.New("amount must be positive")
)

// InsufficientCreditError is returned when a reservation is denied.
type InsufficientCreditError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: need %d tokens, have %d", e.Required, e.Available)
}

// Store is the durable account row. Every mutating method must be a single
// atomic conditional update and return the row as it is after that update.
// A nil account with a nil error means the id does not exist.
type Store interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	ConsumeFreeTier(ctx context.Context, id string, limit int) (*models.Account, bool, error)
	DebitTokens(ctx context.Context, id string, amount int) (*models.Account, bool, error)
	CreditTokens(ctx context.Context, id string, amount int) (*models.Account, bool, error)
	ClaimDailyReward(ctx context.Context, id, day string, amount int) (*models.Account, bool, error)
}

type Config struct {
	FreeTierLimit     int
	CostPerGeneration int
	DailyReward       int
	Location          *time.Location
}

type Reservation struct {
	Allowed          bool
	UsedFreeTier     bool
	RemainingBalance int
	Reason           string
}

type RewardResult struct {
	Granted    bool
	Amount     int
	NewBalance int
}

type Balance struct {
	TokenBalance         int  `json:"token_balance"`
	FreeTierUsed         int  `json:"free_tier_used"`
	FreeLimit            int  `json:"free_limit"`
	IsFreeTier           bool `json:"is_free_tier"`
	DailyRewardAvailable bool `json:"daily_reward_available"`
}

type Ledger struct {
	store Store
	cfg   Config
	log   zerolog.Logger
	now   func() time.Time
}

func New(store Store, cfg Config, log zerolog.Logger) *Ledger {
	if cfg.CostPerGeneration <= 0 {
		cfg.CostPerGeneration = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Ledger{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "ledger").Logger(),
		now:   time.Now,
	}
}

func (l *Ledger) CostPerGeneration() int {
	return l.cfg.CostPerGeneration
}

// CheckAndReserve spends one generation: free tier first, then
// CostPerGeneration tokens. A denied reservation returns an
// InsufficientCreditError alongside the result.
func (l *Ledger) CheckAndReserve(ctx context.Context, accountID string) (Reservation, error) {
	acct, err := l.load(ctx, accountID)
	if err != nil {
		return Reservation{}, err
	}

	if acct.FreeTierUsed < l.cfg.FreeTierLimit {
		after, ok, err := l.store.ConsumeFreeTier(ctx, accountID, l.cfg.FreeTierLimit)
		if err != nil {
			return Reservation{}, fmt.Errorf("reserve free tier: %w", err)
		}
		if after == nil {
			return Reservation{}, ErrAccountNotFound
		}
		if ok {
			l.log.Debug().Str("account_id", accountID).Int("free_tier_used", after.FreeTierUsed).Msg("reserved free tier generation")
			return Reservation{Allowed: true, UsedFreeTier: true, RemainingBalance: after.TokenBalance}, nil
		}
		if !after.IsActive {
			return Reservation{}, ErrAccountInactive
		}
		// Lost the race for the last free slot; fall through to paid.
	}

	return l.debit(ctx, accountID, l.cfg.CostPerGeneration)
}

// Deduct atomically spends amount tokens for a flat-rate batch.
func (l *Ledger) Deduct(ctx context.Context, accountID string, amount int) (Reservation, error) {
	if amount <= 0 {
		return Reservation{}, ErrInvalidAmount
	}
	if _, err := l.load(ctx, accountID); err != nil {
		return Reservation{}, err
	}
	return l.debit(ctx, accountID, amount)
}

func (l *Ledger) debit(ctx context.Context, accountID string, amount int) (Reservation, error) {
	after, ok, err := l.store.DebitTokens(ctx, accountID, amount)
	if err != nil {
		return Reservation{}, fmt.Errorf("debit tokens: %w", err)
	}
	if after == nil {
		return Reservation{}, ErrAccountNotFound
	}
	if !ok {
		if !after.IsActive {
			return Reservation{}, ErrAccountInactive
		}
		insufficient := &InsufficientCreditError{Required: amount, Available: after.TokenBalance}
		return Reservation{
			RemainingBalance: after.TokenBalance,
			Reason:           insufficient.Error(),
		}, insufficient
	}
	l.log.Debug().Str("account_id", accountID).Int("amount", amount).Int("balance", after.TokenBalance).Msg("debited tokens")
	return Reservation{Allowed: true, RemainingBalance: after.TokenBalance}, nil
}

// Credit adds tokens. Used by payment fulfillment and admin grants.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	after, ok, err := l.store.CreditTokens(ctx, accountID, amount)
	if err != nil {
		return 0, fmt.Errorf("credit tokens: %w", err)
	}
	if after == nil || !ok {
		return 0, ErrAccountNotFound
	}
	l.log.Info().Str("account_id", accountID).Int("amount", amount).Int("balance", after.TokenBalance).Msg("credited tokens")
	return after.TokenBalance, nil
}

// ClaimDailyReward grants the reward at most once per calendar day in the
// configured timezone.
func (l *Ledger) ClaimDailyReward(ctx context.Context, accountID string) (RewardResult, error) {
	acct, err := l.load(ctx, accountID)
	if err != nil {
		return RewardResult{}, err
	}
	if l.cfg.DailyReward <= 0 {
		return RewardResult{NewBalance: acct.TokenBalance}, nil
	}

	after, ok, err := l.store.ClaimDailyReward(ctx, accountID, l.today(), l.cfg.DailyReward)
	if err != nil {
		return RewardResult{}, fmt.Errorf("claim daily reward: %w", err)
	}
	if after == nil {
		return RewardResult{}, ErrAccountNotFound
	}
	if !ok {
		if !after.IsActive {
			return RewardResult{}, ErrAccountInactive
		}
		return RewardResult{NewBalance: after.TokenBalance}, nil
	}
	l.log.Info().Str("account_id", accountID).Int("amount", l.cfg.DailyReward).Msg("daily reward granted")
	return RewardResult{Granted: true, Amount: l.cfg.DailyReward, NewBalance: after.TokenBalance}, nil
}

func (l *Ledger) Balance(ctx context.Context, accountID string) (Balance, error) {
	acct, err := l.store.FindByID(ctx, accountID)
	if err != nil {
		return Balance{}, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return Balance{}, ErrAccountNotFound
	}
	return Balance{
		TokenBalance:         acct.TokenBalance,
		FreeTierUsed:         acct.FreeTierUsed,
		FreeLimit:            l.cfg.FreeTierLimit,
		IsFreeTier:           acct.FreeTierUsed < l.cfg.FreeTierLimit,
		DailyRewardAvailable: l.cfg.DailyReward > 0 && acct.DailyRewardClaimedOn != l.today(),
	}, nil
}

func (l *Ledger) load(ctx context.Context, accountID string) (*models.Account, error) {
	acct, err := l.store.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	if !acct.IsActive {
		return nil, ErrAccountInactive
	}
	return acct, nil
}

func (l *Ledger) today() string {
	return l.now().In(l.cfg.Location).Format("2006-01-02")
}
