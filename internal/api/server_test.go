package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/ratelimit"
	"github.com/sorapixel/studio/internal/service"
)

const testSecret = "test-secret"

var pngPayload = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n0000IHDR"))

type stubGenerations struct {
	result  *service.Result
	err     error
	lastReq service.Request
	calls   int
	// wait blocks Generate until the request context ends.
	wait bool
}

func (g *stubGenerations) Generate(ctx context.Context, req service.Request) (*service.Result, error) {
	g.calls++
	g.lastReq = req
	if g.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return g.result, g.err
}

func (g *stubGenerations) GenerateListing(context.Context, *models.Account, gemini.InputImage, string) (*service.ListingResult, error) {
	g.calls++
	return &service.ListingResult{Listing: map[string]any{"title": "Ring"}, CreditsRemaining: 4}, g.err
}

type stubAccounts struct {
	accounts map[string]*models.Account
}

func (a *stubAccounts) Ensure(_ context.Context, id, email string) (*models.Account, bool, error) {
	if acct, ok := a.accounts[id]; ok {
		return acct, false, nil
	}
	acct := &models.Account{ID: id, Email: email, IsActive: true}
	a.accounts[id] = acct
	return acct, true, nil
}

func (a *stubAccounts) Create(_ context.Context, in service.CreateAccountInput) (*models.Account, error) {
	acct := &models.Account{ID: in.ID, Email: in.Email, IsActive: true}
	a.accounts[in.ID] = acct
	return acct, nil
}

func (a *stubAccounts) UpdateProfile(_ context.Context, id string, in service.ProfileInput) (*models.Account, error) {
	acct := a.accounts[id]
	if in.CompanyName != nil {
		acct.CompanyName = *in.CompanyName
	}
	return acct, nil
}

type stubCredits struct {
	granted map[string]int
}

func (c *stubCredits) Balance(context.Context, string) (ledger.Balance, error) {
	return ledger.Balance{TokenBalance: 12, FreeTierUsed: 9, FreeLimit: 9}, nil
}

func (c *stubCredits) ClaimDailyReward(context.Context, string) (ledger.RewardResult, error) {
	return ledger.RewardResult{Granted: true, Amount: 2, NewBalance: 14}, nil
}

func (c *stubCredits) Credit(_ context.Context, id string, amount int) (int, error) {
	if id == "ghost" {
		return 0, ledger.ErrAccountNotFound
	}
	c.granted[id] += amount
	return c.granted[id], nil
}

type stubProjects struct{}

func (stubProjects) Get(_ context.Context, accountID, id string) (*models.Project, error) {
	if id != "p1" || accountID != "user-1" {
		return nil, service.ErrProjectNotFound
	}
	return &models.Project{ID: "p1", AccountID: accountID}, nil
}

func (stubProjects) List(context.Context, string, models.GenerationKind, int, int) ([]models.Project, error) {
	return nil, nil
}

func (stubProjects) Delete(_ context.Context, accountID, id string) error {
	if id != "p1" {
		return service.ErrProjectNotFound
	}
	return nil
}

type stubPayments struct{}

func (stubPayments) Bundles() []models.TokenBundle { return models.TokenBundles }

func (stubPayments) CreateOrder(context.Context, string, string) (*service.Order, error) {
	return nil, service.ErrPaymentsDisabled
}

func (stubPayments) Verify(context.Context, string, string, string, string) (*service.VerifyResult, error) {
	return nil, service.ErrInvalidSignature
}

type stubStats struct{}

func (stubStats) Summary(context.Context, time.Time) ([]models.UsageSummary, error) {
	return []models.UsageSummary{{Kind: models.KindStudio, Generations: 3}}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{RetryAfter: 42 * time.Second}, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true}, errors.New("redis: connection refused")
}

type fixture struct {
	srv     *Server
	gen     *stubGenerations
	credits *stubCredits
}

func newFixture(t *testing.T, limiter ratelimit.Limiter) *fixture {
	t.Helper()
	f := &fixture{
		gen:     &stubGenerations{result: &service.Result{Success: true}},
		credits: &stubCredits{granted: map[string]int{}},
	}
	f.srv = NewServer(Options{JWTSecret: testSecret, Pricing: models.Pricing{TokensPerImage: 1}}, Deps{
		Generations: f.gen,
		Accounts:    &stubAccounts{accounts: map[string]*models.Account{}},
		Credits:     f.credits,
		Projects:    stubProjects{},
		Payments:    stubPayments{},
		Stats:       stubStats{},
		Limiter:     limiter,
	}, zerolog.Nop())
	return f
}

func token(t *testing.T, sub string, admin bool) string {
	t.Helper()
	claims := Claims{
		IsAdmin: admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(t, http.MethodGet, "/v1/credits", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/credits", "not.a.jwt", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", rec.Code)
	}
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if rec := f.do(t, http.MethodGet, "/v1/credits", none, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("alg none: status %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/v1/credits", token(t, "user-1", false), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d body %s", rec.Code, rec.Body)
	}
	body := decodeBody(t, rec)
	if body["token_balance"] != float64(12) || body["tokens_per_image"] != float64(1) {
		t.Fatalf("credits body = %v", body)
	}
}

func TestGenerationErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "insufficient",
			err:    &ledger.InsufficientCreditError{Required: 4, Available: 1},
			status: http.StatusForbidden,
			check: func(t *testing.T, body map[string]any) {
				if body["required"] != float64(4) || body["available"] != float64(1) {
					t.Fatalf("body = %v", body)
				}
			},
		},
		{name: "generator", err: &service.GeneratorError{Label: "Studio Shot", Err: errors.New("overloaded")}, status: http.StatusBadGateway},
		{name: "inactive", err: ledger.ErrAccountInactive, status: http.StatusForbidden},
		{name: "not found", err: ledger.ErrAccountNotFound, status: http.StatusNotFound},
		{name: "invalid", err: service.ErrInvalidRequest, status: http.StatusBadRequest},
		{name: "hd off", err: service.ErrUpscaleUnavailable, status: http.StatusServiceUnavailable},
		{name: "storage", err: errors.New("connection refused"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.gen.err = tc.err
			rec := f.do(t, http.MethodPost, "/v1/studio/generate", token(t, "user-1", false), map[string]any{"image": pngPayload})
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body)
			}
			if tc.check != nil {
				tc.check(t, decodeBody(t, rec))
			}
		})
	}
}

func TestGenerationResponseShape(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.result = &service.Result{
		Success: true,
		Images: []service.OutputImage{
			{Label: "Standing", Data: []byte("img"), MIMEType: "image/png", Succeeded: true},
			{Label: "Side View (failed)", Error: "blocked"},
		},
		CreditsRemaining: 6,
	}
	rec := f.do(t, http.MethodPost, "/v1/catalogue/generate", token(t, "user-1", false), map[string]any{
		"image":             "data:image/png;base64," + pngPayload,
		"additional_images": []string{pngPayload},
		"poses":             []string{"standing", "side_view"},
		"aspect_ratio":      "portrait-4-5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	var body generationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.CreditsRemaining != 6 || len(body.Images) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Images[0].Base64 != base64.StdEncoding.EncodeToString([]byte("img")) || body.Images[1].Error != "blocked" || body.Images[1].Base64 != "" {
		t.Fatalf("images = %+v", body.Images)
	}

	req := f.gen.lastReq
	if req.Kind != models.KindCatalogue || len(req.Images) != 2 || req.Options.RatioID != "portrait-4-5" || len(req.Options.Poses) != 2 {
		t.Fatalf("request = %+v", req)
	}
	if req.Account == nil || req.Account.ID != "user-1" {
		t.Fatalf("account not attached: %+v", req.Account)
	}
}

func TestJewelryFullPackSelectsPackKind(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/v1/jewelry/generate", token(t, "user-1", false), map[string]any{
		"image": pngPayload, "step": "full_pack", "jewelry_type": "ring",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if f.gen.lastReq.Kind != models.KindJewelryPack || f.gen.lastReq.Options.JewelryType != "ring" {
		t.Fatalf("request = %+v", f.gen.lastReq)
	}
}

func TestValidationRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	bearer := token(t, "user-1", false)
	cases := map[string]struct {
		path string
		body any
	}{
		"missing image":  {"/v1/studio/generate", map[string]any{}},
		"not an image":   {"/v1/studio/generate", map[string]any{"image": base64.StdEncoding.EncodeToString([]byte("hello"))}},
		"too many poses": {"/v1/catalogue/generate", map[string]any{"image": pngPayload, "poses": []string{"a", "b", "c", "d", "e"}}},
		"bad metal":      {"/v1/jewelry/recolor", map[string]any{"image": pngPayload, "target_metal": "bronze"}},
		"no person":      {"/v1/jewelry/tryon", map[string]any{"image": pngPayload}},
		"bad step":       {"/v1/jewelry/generate", map[string]any{"image": pngPayload, "step": "everything"}},
	}
	for name, tc := range cases {
		rec := f.do(t, http.MethodPost, tc.path, bearer, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400 (%s)", name, rec.Code, rec.Body)
		}
	}
	if f.gen.calls != 0 {
		t.Fatalf("generator reached %d times", f.gen.calls)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, denyAll{})
	rec := f.do(t, http.MethodPost, "/v1/studio/generate", token(t, "user-1", false), map[string]any{"image": pngPayload})
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "42" {
		t.Fatalf("status = %d retry-after = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if rec := f.do(t, http.MethodGet, "/v1/credits", token(t, "user-1", false), nil); rec.Code != http.StatusOK {
		t.Fatalf("non-generation route limited: %d", rec.Code)
	}

	f = newFixture(t, brokenLimiter{})
	if rec := f.do(t, http.MethodPost, "/v1/studio/generate", token(t, "user-1", false), map[string]any{"image": pngPayload}); rec.Code != http.StatusOK {
		t.Fatalf("limiter error did not fail open: %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(t, http.MethodGet, "/v1/admin/stats", token(t, "user-1", false), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin stats: %d", rec.Code)
	}
	admin := token(t, "admin-1", true)
	if rec := f.do(t, http.MethodGet, "/v1/admin/stats?hours=6", admin, nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"generations":3`) {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body)
	}

	rec := f.do(t, http.MethodPost, "/v1/admin/accounts/user-9/tokens", admin, map[string]any{"amount": 25})
	if rec.Code != http.StatusOK || decodeBody(t, rec)["new_balance"] != float64(25) {
		t.Fatalf("grant: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/v1/admin/accounts/ghost/tokens", admin, map[string]any{"amount": 5}); rec.Code != http.StatusNotFound {
		t.Fatalf("grant to unknown account: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/admin/accounts/user-9/tokens", admin, map[string]any{"amount": 0}); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero grant: %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/admin/accounts", admin, map[string]any{"id": "shop-1", "email": "owner@shop.example", "initial_tokens": 10})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account: %d %s", rec.Code, rec.Body)
	}
	if body := decodeBody(t, rec); body["id"] != "shop-1" || body["token_balance"] != float64(10) {
		t.Fatalf("created = %v", body)
	}
}

func TestProjectsAndPayments(t *testing.T) {
	f := newFixture(t, nil)
	bearer := token(t, "user-1", false)

	if rec := f.do(t, http.MethodGet, "/v1/projects/p1", bearer, nil); rec.Code != http.StatusOK {
		t.Fatalf("get project: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/projects/p1", token(t, "user-2", false), nil); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign project: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/v1/projects/p1", bearer, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete project: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/v1/projects", bearer, nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"projects":[]`) {
		t.Fatalf("list projects: %d %s", rec.Code, rec.Body)
	}

	if rec := f.do(t, http.MethodGet, "/v1/payments/bundles", "", nil); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "500_tokens") {
		t.Fatalf("bundles: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, "/v1/payments/orders", bearer, map[string]any{"bundle_id": "50_tokens"}); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("orders without gateway: %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/v1/payments/verify", bearer, map[string]any{
		"razorpay_order_id": "order_1", "razorpay_payment_id": "pay_1", "razorpay_signature": "abcdef",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature: %d", rec.Code)
	}
}

type failingPinger struct{ err error }

func (p failingPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.deps.DB = failingPinger{}
	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthy: %d", rec.Code)
	}
	f.srv.deps.DB = failingPinger{err: errors.New("dial tcp: refused")}
	if rec := f.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy: %d", rec.Code)
	}
}

func TestGenerationHonoursRequestTimeout(t *testing.T) {
	f := newFixture(t, nil)
	f.gen.wait = true
	f.srv = NewServer(Options{JWTSecret: testSecret, RequestTimeout: 50 * time.Millisecond}, Deps{
		Generations: f.gen,
		Accounts:    &stubAccounts{accounts: map[string]*models.Account{}},
		Credits:     f.credits,
		Projects:    stubProjects{},
		Payments:    stubPayments{},
		Stats:       stubStats{},
	}, zerolog.Nop())

	start := time.Now()
	rec := f.do(t, http.MethodPost, "/v1/studio/generate", token(t, "user-1", false), map[string]any{"image": pngPayload})
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("generation ran for %v after a 50ms timeout", elapsed)
	}
}
