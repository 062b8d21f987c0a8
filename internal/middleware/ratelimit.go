package middleware

import (
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/picthaisky/english-speaking-coach/internal/metrics"
)

const rateLimitPrefix = "ratelimit"

// NewRateLimitStore keeps counters in Redis so every API instance shares
// them. A nil client gives a per-process memory store.
func NewRateLimitStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: rateLimitPrefix}), nil
	}
	store, err := redisstore.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: rateLimitPrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit store: %w", err)
	}
	return store, nil
}

// RateLimit limits requests per client IP. rate uses the limiter format,
// e.g. "30-M" for thirty per minute. route labels the deny metric.
func RateLimit(rate string, store limiter.Store, route string) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	mw := stdlib.NewMiddleware(
		limiter.New(store, parsed),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RateLimited.WithLabelValues(route).Inc()
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("route", route).Msg("rate limiter store failed")
			writeError(w, http.StatusServiceUnavailable, "RATE_LIMITER_UNAVAILABLE", "Please try again shortly.", r)
		}),
	)
	return mw.Handler, nil
}
