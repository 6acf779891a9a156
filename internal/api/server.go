package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/sorapixel/studio/internal/gemini"
	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/models"
	"github.com/sorapixel/studio/internal/ratelimit"
	"github.com/sorapixel/studio/internal/service"
)

// maxBodyBytes bounds a request carrying up to four base64 images.
const maxBodyBytes = 64 << 20

type Generator interface {
	Generate(ctx context.Context, req service.Request) (*service.Result, error)
	GenerateListing(ctx context.Context, acct *models.Account, img gemini.InputImage, jewelryType string) (*service.ListingResult, error)
}

type Accounts interface {
	Ensure(ctx context.Context, id, email string) (*models.Account, bool, error)
	Create(ctx context.Context, in service.CreateAccountInput) (*models.Account, error)
	UpdateProfile(ctx context.Context, id string, in service.ProfileInput) (*models.Account, error)
}

type Credits interface {
	Balance(ctx context.Context, accountID string) (ledger.Balance, error)
	ClaimDailyReward(ctx context.Context, accountID string) (ledger.RewardResult, error)
	Credit(ctx context.Context, accountID string, amount int) (int, error)
}

type Projects interface {
	Get(ctx context.Context, accountID, id string) (*models.Project, error)
	List(ctx context.Context, accountID string, kind models.GenerationKind, limit, offset int) ([]models.Project, error)
	Delete(ctx context.Context, accountID, id string) error
}

type Payments interface {
	Bundles() []models.TokenBundle
	CreateOrder(ctx context.Context, accountID, bundleID string) (*service.Order, error)
	Verify(ctx context.Context, accountID, orderID, paymentID, signature string) (*service.VerifyResult, error)
}

type Stats interface {
	Summary(ctx context.Context, since time.Time) ([]models.UsageSummary, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Deps struct {
	Generations Generator
	Accounts    Accounts
	Credits     Credits
	Projects    Projects
	Payments    Payments
	Stats       Stats
	Limiter     ratelimit.Limiter
	DB          Pinger
}

type Options struct {
	Addr           string
	JWTSecret      string
	RequestTimeout time.Duration
	Pricing        models.Pricing
}

type Server struct {
	opts     Options
	deps     Deps
	validate *validator.Validate
	log      zerolog.Logger
	router   *chi.Mux
}

func NewServer(opts Options, deps Deps, log zerolog.Logger) *Server {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Noop{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Server{
		opts:     opts,
		deps:     deps,
		validate: validate,
		log:      log.With().Str("component", "api").Logger(),
		router:   r,
	}
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/ratios", s.handleRatios)
		v1.Get("/payments/bundles", s.handleBundles)

		v1.Group(func(authed chi.Router) {
			authed.Use(s.authenticate)

			authed.Get("/account", s.handleGetAccount)
			authed.Patch("/account", s.handleUpdateAccount)
			authed.Get("/credits", s.handleCredits)
			authed.Post("/credits/daily-reward", s.handleDailyReward)

			authed.Group(func(gen chi.Router) {
				gen.Use(s.rateLimit)
				gen.Use(middleware.Timeout(s.opts.RequestTimeout))
				gen.Post("/studio/generate", s.handleStudio)
				gen.Post("/jewelry/generate", s.handleJewelry)
				gen.Post("/jewelry/angle", s.handleJewelryAngle)
				gen.Post("/jewelry/recolor", s.handleJewelryRecolor)
				gen.Post("/jewelry/hd", s.handleJewelryHD)
				gen.Post("/jewelry/listing", s.handleJewelryListing)
				gen.Post("/jewelry/tryon", s.handleTryOn)
				gen.Post("/catalogue/generate", s.handleCatalogue)
			})

			authed.Get("/projects", s.handleListProjects)
			authed.Get("/projects/{id}", s.handleGetProject)
			authed.Delete("/projects/{id}", s.handleDeleteProject)

			authed.Post("/payments/orders", s.handleCreateOrder)
			authed.Post("/payments/verify", s.handleVerifyPayment)

			authed.Route("/admin", func(admin chi.Router) {
				admin.Use(s.requireAdmin)
				admin.Post("/accounts", s.handleAdminCreateAccount)
				admin.Post("/accounts/{id}/tokens", s.handleAdminGrantTokens)
				admin.Get("/stats", s.handleAdminStats)
			})
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      s.opts.RequestTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http shutdown error")
		}
	}()

	s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.log.Error().Err(err).Msg("health check: database unreachable")
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and runs its validate tags.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &requestError{msg: "invalid json: " + err.Error()}
	}
	if err := s.validate.Struct(dst); err != nil {
		return err
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
