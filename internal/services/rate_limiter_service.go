package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/redis"

	"github.com/google/uuid"
)

// Lua скрипт для атомарной проверки и инкремента счетчика обновлений
const locationLimitLuaScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])

local current = redis.call('INCR', key)
if current == 1 then
    redis.call('EXPIRE', key, ttl)
end

if current > limit then
    return {0, current}
end
return {1, current}
`

// RateLimiterService ограничивает частоту обновлений позиции на курьера.
// Курьерские приложения иногда шлют координаты на каждый тик GPS;
// лимит защищает базу от лавины записей истории.
type RateLimiterService struct {
	redis  *redis.Client
	config *config.RateLimitConfig
	log    *logger.Logger
}

// RateLimitResult содержит результат проверки лимита
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// NewRateLimiterService создает новый сервис лимитов
func NewRateLimiterService(redis *redis.Client, cfg *config.RateLimitConfig, log *logger.Logger) *RateLimiterService {
	return &RateLimiterService{
		redis:  redis,
		config: cfg,
		log:    log,
	}
}

// CheckCourierLimit проверяет, не превысил ли курьер лимит обновлений позиции.
// При ошибке Redis запрос пропускается (fail-open).
func (s *RateLimiterService) CheckCourierLimit(ctx context.Context, courierID uuid.UUID) (*RateLimitResult, error) {
	if !s.config.Enabled {
		return &RateLimitResult{
			Allowed:   true,
			Remaining: math.MaxInt,
			Limit:     math.MaxInt,
		}, nil
	}

	client := s.redis.GetClient()
	limit := s.config.UpdatesRPM
	key := fmt.Sprintf("rate_limit:location:%s", courierID)

	result, err := client.Eval(ctx, locationLimitLuaScript, []string{key}, limit, 60).Result()
	if err != nil {
		s.log.WithError(err).WithField("courier_id", courierID).Error("Rate limit check failed, allowing request")
		return &RateLimitResult{
			Allowed:   true,
			Remaining: limit,
			Limit:     limit,
		}, nil
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		s.log.WithField("courier_id", courierID).Error("Unexpected rate limit script result, allowing request")
		return &RateLimitResult{
			Allowed:   true,
			Remaining: limit,
			Limit:     limit,
		}, nil
	}

	allowed := resultSlice[0].(int64) == 1
	currentCount := int(resultSlice[1].(int64))

	remaining := limit - currentCount
	if remaining < 0 {
		remaining = 0
	}

	ttl, _ := client.TTL(ctx, key).Result()

	if !allowed {
		s.log.WithFields(map[string]interface{}{
			"courier_id": courierID,
			"count":      currentCount,
			"limit":      limit,
		}).Warn("Courier exceeded location update limit")
	}

	return &RateLimitResult{
		Allowed:   allowed,
		Remaining: remaining,
		Limit:     limit,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
