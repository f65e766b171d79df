package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/redis"
)

// Префиксы ключей кеша
const (
	CacheKeyParcel  = "parcel"
	CacheKeyCourier = "courier"
)

// CacheService управляет кешированием чтений посылок и курьеров
type CacheService struct {
	redis     *redis.Client
	config    *config.CacheConfig
	log       *logger.Logger
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// CacheMetrics представляет метрики кеширования
type CacheMetrics struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	TotalReqs uint64  `json:"total_requests"`
	HitRate   float64 `json:"hit_rate"`
}

// NewCacheService создает новый сервис кеширования
func NewCacheService(redis *redis.Client, cfg *config.CacheConfig, log *logger.Logger) *CacheService {
	return &CacheService{
		redis:  redis,
		config: cfg,
		log:    log,
	}
}

// Get получает данные из кеша и десериализует в target
func (s *CacheService) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	if !s.config.Enabled {
		s.misses.Add(1)
		return false, nil
	}

	err := s.redis.Get(ctx, key, target)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			s.misses.Add(1)
			return false, nil
		}
		s.log.WithError(err).WithField("key", key).Error("Failed to get from cache")
		return false, err
	}

	s.hits.Add(1)
	return true, nil
}

// Set сохраняет данные в кеш с TTL
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.config.Enabled {
		return nil
	}

	if err := s.redis.Set(ctx, key, value, ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Error("Failed to set cache")
		return err
	}

	return nil
}

// Delete удаляет ключи из кеша (инвалидация)
func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if !s.config.Enabled || len(keys) == 0 {
		return nil
	}

	if err := s.redis.Delete(ctx, keys...); err != nil {
		s.log.WithError(err).WithField("keys", keys).Error("Failed to delete from cache")
		return err
	}

	s.evictions.Add(uint64(len(keys)))
	return nil
}

// GetMetrics возвращает метрики кеширования
func (s *CacheService) GetMetrics() *CacheMetrics {
	hits := s.hits.Load()
	misses := s.misses.Load()
	totalReqs := hits + misses

	var hitRate float64
	if totalReqs > 0 {
		hitRate = float64(hits) / float64(totalReqs) * 100
	}

	return &CacheMetrics{
		Hits:      hits,
		Misses:    misses,
		Evictions: s.evictions.Load(),
		TotalReqs: totalReqs,
		HitRate:   hitRate,
	}
}

// GetDefaultTTL возвращает TTL по умолчанию
func (s *CacheService) GetDefaultTTL() time.Duration {
	return time.Duration(s.config.DefaultTTL) * time.Second
}

// GetHotDataTTL возвращает TTL для горячих данных
func (s *CacheService) GetHotDataTTL() time.Duration {
	return time.Duration(s.config.HotDataTTL) * time.Second
}

// BuildKey создает ключ для кеша с префиксом
func BuildKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}
