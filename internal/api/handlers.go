package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/prompts"
	"github.com/sorapixel/studio/internal/service"
)

type accountJSON struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	CompanyName   string `json:"company_name"`
	Phone         string `json:"phone"`
	Website       string `json:"website"`
	LogoURL       string `json:"logo_url"`
	ApplyBranding bool   `json:"apply_branding"`
	IsAdmin       bool   `json:"is_admin"`
	TokenBalance  int    `json:"token_balance"`
	FreeTierUsed  int    `json:"free_tier_used"`
}

func toAccountJSON(a *models.Account) accountJSON {
	return accountJSON{
		ID:            a.ID,
		Email:         a.Email,
		Name:          a.Name,
		CompanyName:   a.CompanyName,
		Phone:         a.Phone,
		Website:       a.Website,
		LogoURL:       a.LogoURL,
		ApplyBranding: a.ApplyBranding,
		IsAdmin:       a.IsAdmin,
		TokenBalance:  a.TokenBalance,
		FreeTierUsed:  a.FreeTierUsed,
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, toAccountJSON(accountFrom(r.Context())))
}

type profileRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=120"`
	CompanyName   *string `json:"company_name" validate:"omitempty,max=120"`
	Phone         *string `json:"phone" validate:"omitempty,max=32"`
	Website       *string `json:"website" validate:"omitempty,max=255"`
	LogoURL       *string `json:"logo_url" validate:"omitempty,url,max=1024"`
	ApplyBranding *bool   `json:"apply_branding"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.deps.Accounts.UpdateProfile(r.Context(), accountFrom(r.Context()).ID, service.ProfileInput{
		Name:          req.Name,
		CompanyName:   req.CompanyName,
		Phone:         req.Phone,
		Website:       req.Website,
		LogoURL:       req.LogoURL,
		ApplyBranding: req.ApplyBranding,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAccountJSON(acct))
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	bal, err := s.deps.Credits.Balance(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"token_balance":          bal.TokenBalance,
		"free_tier_used":         bal.FreeTierUsed,
		"free_limit":             bal.FreeLimit,
		"tokens_per_image":       s.opts.Pricing.TokensPerImage,
		"is_free_tier":           bal.IsFreeTier,
		"daily_reward_available": bal.DailyRewardAvailable,
		"pricing":                s.opts.Pricing,
	})
}

func (s *Server) handleDailyReward(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Credits.ClaimDailyReward(r.Context(), accountFrom(r.Context()).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"granted":     res.Granted,
		"amount":      res.Amount,
		"new_balance": res.NewBalance,
	})
}

func (s *Server) handleRatios(w http.ResponseWriter, r *http.Request) {
	type ratioJSON struct {
		ID       string `json:"id"`
		Label    string `json:"label"`
		Platform string `json:"platform"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Circular bool   `json:"circular,omitempty"`
	}
	ratios := prompts.Ratios()
	out := make([]ratioJSON, len(ratios))
	for i, rt := range ratios {
		out[i] = ratioJSON{ID: rt.ID, Label: rt.Label, Platform: rt.Platform, Width: rt.Width, Height: rt.Height, Circular: rt.Circular}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ratios": out, "default": prompts.DefaultRatioID})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	kind := models.GenerationKind(strings.TrimSpace(q.Get("kind")))

	projects, err := s.deps.Projects.List(r.Context(), accountFrom(r.Context()).ID, kind, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Projects.Get(r.Context(), accountFrom(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Projects.Delete(r.Context(), accountFrom(r.Context()).ID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBundles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"bundles": s.deps.Payments.Bundles()})
}

type orderRequest struct {
	BundleID string `json:"bundle_id" validate:"required"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := s.deps.Payments.CreateOrder(r.Context(), accountFrom(r.Context()).ID, req.BundleID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, order)
}

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required,hexadecimal"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Payments.Verify(r.Context(), accountFrom(r.Context()).ID, req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

type createAccountRequest struct {
	ID            string `json:"id" validate:"omitempty,max=64"`
	Email         string `json:"email" validate:"omitempty,email"`
	Name          string `json:"name" validate:"max=120"`
	CompanyName   string `json:"company_name" validate:"max=120"`
	Phone         string `json:"phone" validate:"max=32"`
	Website       string `json:"website" validate:"max=255"`
	LogoURL       string `json:"logo_url" validate:"omitempty,url"`
	ApplyBranding bool   `json:"apply_branding"`
	IsAdmin       bool   `json:"is_admin"`
	InitialTokens int    `json:"initial_tokens" validate:"gte=0"`
}

func (s *Server) handleAdminCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	acct, err := s.deps.Accounts.Create(r.Context(), service.CreateAccountInput{
		ID:            req.ID,
		Email:         req.Email,
		Name:          req.Name,
		CompanyName:   req.CompanyName,
		Phone:         req.Phone,
		Website:       req.Website,
		LogoURL:       req.LogoURL,
		ApplyBranding: req.ApplyBranding,
		IsAdmin:       req.IsAdmin,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.InitialTokens > 0 {
		balance, err := s.deps.Credits.Credit(r.Context(), acct.ID, req.InitialTokens)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		acct.TokenBalance = balance
	}
	s.log.Info().Str("account_id", acct.ID).Str("admin", accountFrom(r.Context()).ID).Msg("account created by admin")
	s.writeJSON(w, http.StatusCreated, toAccountJSON(acct))
}

type grantRequest struct {
	Amount int `json:"amount" validate:"required,gt=0"`
}

func (s *Server) handleAdminGrantTokens(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	balance, err := s.deps.Credits.Credit(r.Context(), id, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info().Str("account_id", id).Int("amount", req.Amount).Str("admin", accountFrom(r.Context()).ID).Msg("tokens granted")
	s.writeJSON(w, http.StatusOK, map[string]any{"account_id": id, "tokens_added": req.Amount, "new_balance": balance})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	hours, err := strconv.Atoi(r.URL.Query().Get("hours"))
	if err != nil || hours <= 0 {
		hours = 24
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	summary, err := s.deps.Stats.Summary(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if summary == nil {
		summary = []models.UsageSummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"since": since.UTC(), "hours": hours, "kinds": summary})
}
