package handlers

import (
	"context"
	"net/http"
	"time"

	"parcel-tracking/internal/database"
	"parcel-tracking/internal/gateway"
	"parcel-tracking/internal/redis"
	"parcel-tracking/internal/services"
)

// HealthHandler представляет обработчик для проверки здоровья системы
type HealthHandler struct {
	db          *database.DB
	redisClient *redis.Client
	hub         *gateway.Hub
	cache       *services.CacheService
}

// NewHealthHandler создает новый обработчик здоровья
func NewHealthHandler(db *database.DB, redisClient *redis.Client, hub *gateway.Hub, cache *services.CacheService) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redisClient: redisClient,
		hub:         hub,
		cache:       cache,
	}
}

// HealthResponse представляет ответ проверки здоровья
type HealthResponse struct {
	Status   string                 `json:"status"`
	Services map[string]string      `json:"services"`
	Gateway  *gateway.HubStats      `json:"gateway"`
	Cache    *services.CacheMetrics `json:"cache"`
	Version  string                 `json:"version"`
	Uptime   string                 `json:"uptime"`
}

var startTime = time.Now()

// Health проверяет состояние всех компонентов системы
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	svc := make(map[string]string)
	overallStatus := "healthy"

	// Проверка базы данных
	if err := h.db.Health(); err != nil {
		svc["database"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		svc["database"] = "healthy"
	}

	// Проверка Redis
	if err := h.redisClient.Health(ctx); err != nil {
		svc["redis"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		svc["redis"] = "healthy"
	}

	// Kafka проверку можно добавить позже
	svc["kafka"] = "not checked"

	stats := h.hub.Stats()
	response := HealthResponse{
		Status:   overallStatus,
		Services: svc,
		Gateway:  &stats,
		Cache:    h.cache.GetMetrics(),
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).String(),
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, response)
}

// Readiness проверяет готовность приложения к обработке запросов
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Быстрая проверка основных компонентов
	if err := h.db.Health(); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Database not ready")
		return
	}

	if err := h.redisClient.Health(ctx); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, "Redis not ready")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Liveness проверяет, что приложение живо
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(startTime).String(),
	})
}
