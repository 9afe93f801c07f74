package middleware

import (
	"fmt"
	"strconv"
	"time"

	redisStore "github.com/MihaCh13/PaySafe--Hackathon/internal/adapter/storage/redis"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the per-group rate limits. Money-moving
// groups run tighter than reads.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"transfers":     {Limit: 100, Window: time.Minute},
		"topup":         {Limit: 20, Window: time.Minute},
		"withdraw":      {Limit: 20, Window: time.Minute},
		"escrow":        {Limit: 60, Window: time.Minute},
		"budget":        {Limit: 120, Window: time.Minute},
		"loans":         {Limit: 30, Window: time.Minute},
		"subscriptions": {Limit: 60, Window: time.Minute},
		"accounts":      {Limit: 60, Window: time.Minute},
		"reports":       {Limit: 120, Window: time.Minute},
		"auth_token":    {Limit: 10, Window: time.Minute},
		"ops":           {Limit: 10, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
func RateLimiter(store *redisStore.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := extractIdentifier(c)
		key := fmt.Sprintf("%s:%s", identifier, group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys the limit on the authenticated owner when present,
// falling back to the client IP for unauthenticated routes.
func extractIdentifier(c *gin.Context) string {
	if ownerID, exists := c.Get(CtxOwnerID); exists {
		return fmt.Sprintf("owner:%v", ownerID)
	}
	return c.ClientIP()
}
