package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/config"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/telegram"
)

var (
	ErrPaymentsDisabled = errors.New("payments are not configured")
	ErrUnknownBundle    = errors.New("unknown token bundle")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrInvalidSignature = errors.New("payment signature mismatch")
)

const providerRazorpay = "razorpay"

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	MarkPaid(ctx context.Context, orderID, providerRef string) (bool, error)
}

type TokenCreditor interface {
	Credit(ctx context.Context, accountID string, amount int) (int, error)
}

type PaymentService struct {
	keyID     string
	keySecret string
	baseURL   string
	payments  PaymentStore
	ledger    TokenCreditor
	alerts    Alerter
	client    *http.Client
	log       zerolog.Logger
}

func NewPaymentService(cfg config.Config, payments PaymentStore, l TokenCreditor, alerts Alerter, log zerolog.Logger) *PaymentService {
	return &PaymentService{
		keyID:     cfg.RazorpayKeyID,
		keySecret: cfg.RazorpayKeySecret,
		baseURL:   cfg.RazorpayBaseURL,
		payments:  payments,
		ledger:    l,
		alerts:    alerts,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("component", "payments").Logger(),
	}
}

func (s *PaymentService) Enabled() bool {
	return s.keyID != "" && s.keySecret != ""
}

func (s *PaymentService) Bundles() []models.TokenBundle {
	return models.TokenBundles
}

type Order struct {
	OrderID     string             `json:"order_id"`
	AmountMinor int64              `json:"amount"`
	Currency    string             `json:"currency"`
	KeyID       string             `json:"key_id"`
	Bundle      models.TokenBundle `json:"bundle"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder opens a gateway order for a bundle and stores it as created.
func (s *PaymentService) CreateOrder(ctx context.Context, accountID, bundleID string) (*Order, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsDisabled
	}
	bundle, ok := models.FindBundle(bundleID)
	if !ok {
		return nil, ErrUnknownBundle
	}

	payload := map[string]any{
		"amount":   bundle.AmountMinor(),
		"currency": "INR",
		"receipt":  "rcpt_" + uuid.NewString()[:18],
		"notes":    map[string]string{"account_id": accountID, "bundle_id": bundle.ID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build razorpay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.keyID, s.keySecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("razorpay request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read razorpay response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("razorpay error: status=%d body=%s", resp.StatusCode, raw)
	}
	var parsed razorpayOrder
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode razorpay response: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("invalid razorpay response (missing order id)")
	}

	pmt := &models.Payment{
		AccountID:   accountID,
		BundleID:    bundle.ID,
		Provider:    providerRazorpay,
		OrderID:     parsed.ID,
		Currency:    "INR",
		AmountMinor: bundle.AmountMinor(),
		Tokens:      bundle.Tokens,
		Status:      models.PaymentCreated,
	}
	if err := s.payments.Create(ctx, pmt); err != nil {
		return nil, fmt.Errorf("store payment: %w", err)
	}
	s.log.Info().Str("account_id", accountID).Str("order_id", parsed.ID).Str("bundle", bundle.ID).Msg("payment order created")

	return &Order{
		OrderID:     parsed.ID,
		AmountMinor: pmt.AmountMinor,
		Currency:    pmt.Currency,
		KeyID:       s.keyID,
		Bundle:      bundle,
	}, nil
}

type VerifyResult struct {
	TokensAdded      int  `json:"tokens_added"`
	NewBalance       int  `json:"new_balance"`
	AlreadyProcessed bool `json:"already_processed"`
}

// Verify checks the gateway signature and credits the bundle once. Repeated
// calls for the same order report AlreadyProcessed and credit nothing.
func (s *PaymentService) Verify(ctx context.Context, accountID, orderID, paymentID, signature string) (*VerifyResult, error) {
	if !s.Enabled() {
		return nil, ErrPaymentsDisabled
	}
	if !s.validSignature(orderID, paymentID, signature) {
		s.log.Warn().Str("account_id", accountID).Str("order_id", orderID).Msg("payment signature mismatch")
		return nil, ErrInvalidSignature
	}

	pmt, err := s.payments.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if pmt == nil || pmt.AccountID != accountID {
		return nil, ErrPaymentNotFound
	}

	applied, err := s.payments.MarkPaid(ctx, orderID, paymentID)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &VerifyResult{AlreadyProcessed: true}, nil
	}

	balance, err := s.ledger.Credit(ctx, accountID, pmt.Tokens)
	if err != nil {
		if s.alerts != nil {
			s.alerts.Alert(context.WithoutCancel(ctx), telegram.Alert{
				Kind:      "payment_credit_failed",
				AccountID: accountID,
				Message:   "payment marked paid but tokens were not credited",
				Err:       err,
				Fields:    map[string]string{"order_id": orderID, "payment_id": paymentID},
			})
		}
		return nil, fmt.Errorf("credit tokens: %w", err)
	}
	s.log.Info().Str("account_id", accountID).Str("order_id", orderID).Int("tokens", pmt.Tokens).Msg("payment fulfilled")
	return &VerifyResult{TokensAdded: pmt.Tokens, NewBalance: balance}, nil
}

func (s *PaymentService) validSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(s.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(got, mac.Sum(nil))
}
