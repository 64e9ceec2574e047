package server

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/tjfontaine/workflow-gateway/internal/auth"
	"github.com/tjfontaine/workflow-gateway/internal/domain"
	"github.com/tjfontaine/workflow-gateway/internal/metrics"
	"github.com/tjfontaine/workflow-gateway/internal/ratelimit"
)

// rateLimitContextKey is the context key for rate limit info
type rateLimitContextKey struct{}

// RateLimitInfo is the limiter state reported to the caller.
type RateLimitInfo struct {
	RequestsLimit     int
	RequestsRemaining int
	// RequestsReset is the time until the window resets, e.g. "42s".
	RequestsReset string
}

// SetRateLimits stores rate limit info in context.
func SetRateLimits(ctx context.Context, rl *RateLimitInfo) context.Context {
	return context.WithValue(ctx, rateLimitContextKey{}, rl)
}

// GetRateLimits retrieves rate limit info from context.
// Returns nil if no rate limits are set.
func GetRateLimits(ctx context.Context) *RateLimitInfo {
	if rl, ok := ctx.Value(rateLimitContextKey{}).(*RateLimitInfo); ok {
		return rl
	}
	return nil
}

// RateLimitOptions configures RateLimitMiddleware.
type RateLimitOptions struct {
	Limiter ratelimit.Limiter
	// FailOpen lets requests through when the limiter backend errors.
	FailOpen bool
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// RateLimitMiddleware applies a limiter keyed by caller id, falling back to
// the client address for anonymous callers. It must run after AuthMiddleware.
// Every limited response carries x-ratelimit-*-requests headers.
func RateLimitMiddleware(opts RateLimitOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := opts.Limiter.Allow(r.Context(), rateLimitKey(r))
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter error", slog.String("error", err.Error()))
				if opts.FailOpen {
					next.ServeHTTP(w, r)
					return
				}
				opts.Metrics.ObserveRateLimited("unavailable")
				WriteError(w, r, domain.ErrUnavailable("Rate limiter unavailable"))
				return
			}

			reset := decision.ResetAt.Sub(now())
			info := &RateLimitInfo{
				RequestsLimit:     decision.Limit,
				RequestsRemaining: decision.Remaining,
				RequestsReset:     formatReset(reset),
			}
			writeRateLimitHeaders(w.Header(), info)

			if !decision.Allowed {
				opts.Metrics.ObserveRateLimited("exceeded")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(reset)))
				WriteError(w, r, domain.ErrRateLimit("Rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r.WithContext(SetRateLimits(r.Context(), info)))
		})
	}
}

func writeRateLimitHeaders(h http.Header, rl *RateLimitInfo) {
	// Standard format: x-ratelimit-{limit|remaining|reset}-requests
	if rl.RequestsLimit > 0 {
		h.Set("x-ratelimit-limit-requests", strconv.Itoa(rl.RequestsLimit))
		// 0 is a valid remaining value once a limit is known
		h.Set("x-ratelimit-remaining-requests", strconv.Itoa(rl.RequestsRemaining))
	}
	if rl.RequestsReset != "" {
		h.Set("x-ratelimit-reset-requests", rl.RequestsReset)
	}
}

func rateLimitKey(r *http.Request) string {
	if caller := auth.CallerFromContext(r.Context()); caller.Authenticated {
		return "user:" + caller.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func formatReset(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return strconv.Itoa(retryAfterSeconds(d)) + "s"
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
