package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type GenerationKind string

const (
	KindStudio         GenerationKind = "studio"
	KindJewelryHero    GenerationKind = "jewelry-hero"
	KindJewelryPack    GenerationKind = "jewelry-pack"
	KindJewelryAngle   GenerationKind = "jewelry-angle"
	KindJewelryRecolor GenerationKind = "jewelry-recolor"
	KindJewelryHD      GenerationKind = "jewelry-hd"
	KindJewelryListing GenerationKind = "jewelry-listing"
	KindCatalogue      GenerationKind = "catalogue"
	KindTryOn          GenerationKind = "try-on"
)

type UsageStatus string

const (
	UsageSuccess UsageStatus = "success"
	UsagePartial UsageStatus = "partial"
	UsageFailure UsageStatus = "failure"
)

type Account struct {
	ID                   string
	Email                string
	Name                 string
	CompanyName          string
	Phone                string
	Website              string
	LogoURL              string
	ApplyBranding        bool
	IsActive             bool
	IsAdmin              bool
	TokenBalance         int
	FreeTierUsed         int
	DailyRewardClaimedOn string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Branded reports whether outputs for this account get the branding bar.
func (a *Account) Branded() bool {
	return a != nil && a.ApplyBranding && a.CompanyName != ""
}

type UsageRecord struct {
	ID           string
	AccountID    string
	Kind         GenerationKind
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	Model        string
	Status       UsageStatus
	Metadata     json.RawMessage
	CreatedAt    time.Time
}

type UsageSummary struct {
	Kind         GenerationKind `json:"kind"`
	Generations  int            `json:"generations"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
}

type ProjectImage struct {
	Label       string `json:"label"`
	StoragePath string `json:"storage_path"`
	Size        int    `json:"size"`
	URL         string `json:"url,omitempty"`
}

type Project struct {
	ID        string         `json:"id"`
	AccountID string         `json:"account_id"`
	Title     string         `json:"title"`
	Kind      GenerationKind `json:"project_type"`
	Images    []ProjectImage `json:"images"`
	CreatedAt time.Time      `json:"created_at"`
}

type PaymentStatus string

const (
	PaymentCreated PaymentStatus = "created"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Payment struct {
	ID          int64
	AccountID   string
	BundleID    string
	Provider    string
	OrderID     string
	ProviderRef string
	Currency    string
	AmountMinor int64
	Tokens      int
	Status      PaymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type TokenBundle struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Tokens   int             `json:"tokens"`
	PriceINR decimal.Decimal `json:"price_inr"`
}

// AmountMinor returns the price in paise.
func (b TokenBundle) AmountMinor() int64 {
	return b.PriceINR.Shift(2).Round(0).IntPart()
}

var TokenBundles = []TokenBundle{
	{ID: "50_tokens", Name: "50 Tokens", Tokens: 50, PriceINR: decimal.NewFromInt(500)},
	{ID: "100_tokens", Name: "100 Tokens", Tokens: 100, PriceINR: decimal.NewFromInt(800)},
	{ID: "200_tokens", Name: "200 Tokens", Tokens: 200, PriceINR: decimal.NewFromInt(1500)},
	{ID: "500_tokens", Name: "500 Tokens", Tokens: 500, PriceINR: decimal.NewFromInt(3000)},
}

func FindBundle(id string) (TokenBundle, bool) {
	for _, b := range TokenBundles {
		if b.ID == id {
			return b, true
		}
	}
	return TokenBundle{}, false
}

// Pricing holds the flat token prices of the batched generation kinds.
type Pricing struct {
	TokensPerImage        int `json:"tokens_per_image"`
	CatalogueCostPerImage int `json:"catalogue_per_image"`
	PhotoPack             int `json:"photo_pack"`
	RecolorSingle         int `json:"recolor_single"`
	HDUpscale             int `json:"hd_upscale"`
	Listing               int `json:"listing"`
}
