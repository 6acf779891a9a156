package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sorapixel/studio/internal/models"
)

type ctxKey string

const (
	accountKey ctxKey = "account"
	claimsKey  ctxKey = "claims"
)

// Claims is the bearer token payload. Subject carries the account id.
type Claims struct {
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

func accountFrom(ctx context.Context) *models.Account {
	acct, _ := ctx.Value(accountKey).(*models.Account)
	return acct
}

func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		evt := s.log.Info()
		if status >= http.StatusInternalServerError {
			evt = s.log.Error()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) parseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(s.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// authenticate verifies the bearer token and loads (or first creates) the
// caller's account.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		claims, err := s.parseToken(strings.TrimSpace(token))
		if err != nil {
			s.log.Debug().Err(err).Msg("rejected bearer token")
			s.writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid token"})
			return
		}

		acct, created, err := s.deps.Accounts.Ensure(r.Context(), claims.Subject, claims.Email)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if created {
			s.log.Info().Str("account_id", acct.ID).Msg("account created on first request")
		}
		if !acct.IsActive {
			s.writeJSON(w, http.StatusForbidden, errorBody{Error: "account is inactive"})
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, accountKey, acct)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFrom(r.Context()); c == nil || !c.IsAdmin {
			s.writeJSON(w, http.StatusForbidden, errorBody{Error: "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies the per-account generation window. Limiter errors let the
// request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acct := accountFrom(r.Context())
		if acct == nil {
			next.ServeHTTP(w, r)
			return
		}
		d, err := s.deps.Limiter.Allow(r.Context(), "generate:"+acct.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("account_id", acct.ID).Msg("rate limiter unavailable, allowing request")
		}
		if !d.Allowed && err == nil {
			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			s.writeJSON(w, http.StatusTooManyRequests, errorBody{Error: fmt.Sprintf("too many generation requests, retry in %ds", secs)})
			return
		}
		next.ServeHTTP(w, r)
	})
}
