package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sorapixel/studio/internal/ledger"
	"github.com/sorapixel/studio/internal/service"
)

type errorBody struct {
	Error     string `json:"error"`
	Required  *int   `json:"required,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// requestError is a malformed request detected by a handler.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error { return &requestError{msg: msg} }

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficient *ledger.InsufficientCreditError
		genErr       *service.GeneratorError
		reqErr       *requestError
		invalid      validator.ValidationErrors
	)
	switch {
	case errors.As(err, &insufficient):
		s.writeJSON(w, http.StatusForbidden, errorBody{
			Error:     "insufficient credits",
			Required:  &insufficient.Required,
			Available: &insufficient.Available,
		})
	case errors.Is(err, ledger.ErrAccountInactive):
		s.writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, service.ErrProjectNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request deadline exceeded")
		s.writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "generation timed out, please try again"})
	case errors.As(err, &genErr):
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("generator failure")
		s.writeJSON(w, http.StatusBadGateway, errorBody{Error: "image generation failed, please try again"})
	case errors.As(err, &invalid):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: validationMessage(invalid)})
	case errors.As(err, &reqErr),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnsupportedKind),
		errors.Is(err, service.ErrUnknownBundle),
		errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, ledger.ErrInvalidAmount):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrUpscaleUnavailable),
		errors.Is(err, service.ErrPaymentsDisabled):
		s.writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("handler error")
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		if fe.Param() != "" {
			parts = append(parts, fe.Field()+" failed "+fe.Tag()+"="+fe.Param())
			continue
		}
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
