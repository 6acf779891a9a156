package gemini

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// RetryPolicy retries transient provider errors with exponential backoff:
// BaseDelay, 2*BaseDelay, 4*BaseDelay, ... for at most MaxRetries extra attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// Sleep waits for d or until ctx is done. Nil means a timer-backed wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

var retryableSignatures = []string{
	"rate limit",
	"ratelimit",
	"too many requests",
	"resource_exhausted",
	"resource exhausted",
	"unavailable",
	"internal error",
	"deadline_exceeded",
	"overloaded",
}

// statusToken finds a bare HTTP status code such as "503" but not "5000"
// or a port like ":443".
var statusToken = regexp.MustCompile(`(?:^|[^\w:.])([45]\d\d)\b`)

// IsRetryable reports whether err looks like a transient provider failure.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return retryableAPIError(*apiErrPtr)
	}

	msg := strings.ToLower(err.Error())
	if m := statusToken.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		return retryableCode(n)
	}
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func retryableCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func retryableAPIError(e genai.APIError) bool {
	if e.Code != 0 {
		return retryableCode(e.Code)
	}
	switch strings.ToUpper(e.Status) {
	case "RESOURCE_EXHAUSTED", "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "overloaded")
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the retry
// budget is spent. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, log zerolog.Logger, op string, fn func(ctx context.Context) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := p.BaseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			log.Warn().Err(err).Str("op", op).Int("attempts", attempt+1).Msg("retries exhausted")
			return err
		}

		log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).Dur("delay", delay).Msg("transient provider error, backing off")
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
