package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"
	"parcel-tracking/internal/services"
)

// LocationRateLimit ограничивает частоту обновлений позиции для курьеров.
// Администраторы не ограничиваются.
func LocationRateLimit(limiter *services.RateLimiterService, log *logger.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok || identity.Role != models.RoleCourier {
				next(w, r)
				return
			}

			result, err := limiter.CheckCourierLimit(r.Context(), identity.UserID)
			if err != nil {
				log.WithError(err).Error("Rate limit check error")
				next(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", result.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", result.Remaining))

			if !result.Allowed {
				retryAfter := int(time.Until(result.ResetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":       "rate_limit_exceeded",
					"message":     "Too many location updates, slow down",
					"limit":       result.Limit,
					"retry_after": retryAfter,
				})
				return
			}

			next(w, r)
		}
	}
}
