package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/middleware"
	"parcel-tracking/internal/models"
	"parcel-tracking/internal/services"

	"github.com/google/uuid"
)

// CourierHandler представляет обработчик запросов по курьерам
type CourierHandler struct {
	couriers *services.CourierService
	tracking *services.TrackingService
	cache    *services.CacheService
	log      *logger.Logger
}

// NewCourierHandler создает новый обработчик курьеров
func NewCourierHandler(couriers *services.CourierService, tracking *services.TrackingService, cache *services.CacheService, log *logger.Logger) *CourierHandler {
	return &CourierHandler{
		couriers: couriers,
		tracking: tracking,
		cache:    cache,
		log:      log,
	}
}

// UpdateLocation обрабатывает PATCH /api/couriers/{id}/location:
// полный цикл приема координат с геозонной оценкой всех активных посылок
func (h *CourierHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	courierID, err := extractUUIDFromPath(r.URL.Path, "/api/couriers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid courier ID")
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Курьер может обновлять только свою позицию
	if identity.Role == models.RoleCourier && identity.UserID != courierID {
		writeErrorResponse(w, http.StatusForbidden, "Couriers may only update their own location")
		return
	}

	var req models.UpdateCourierLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.tracking.IngestCourierLocation(courierID, req.Latitude, req.Longitude, req.Address)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeErrorResponse(w, http.StatusNotFound, "Courier not found")
		} else {
			h.log.WithError(err).Error("Failed to ingest courier location")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to update location")
		}
		return
	}

	// Инвалидация кеша курьера: позиция изменилась
	cacheKey := services.BuildKey(services.CacheKeyCourier, courierID.String())
	if err := h.cache.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate courier cache")
	}

	updated := result.UpdatedParcelIDs
	if updated == nil {
		updated = []uuid.UUID{}
	}

	writeJSONResponse(w, http.StatusOK, &models.CourierLocationResponse{
		Success:        true,
		Message:        "Location updated successfully",
		UpdatedParcels: updated,
	})
}

// GetLocationHistory обрабатывает GET /api/couriers/{id}/location-history
func (h *CourierHandler) GetLocationHistory(w http.ResponseWriter, r *http.Request) {
	courierID, err := extractUUIDFromPath(r.URL.Path, "/api/couriers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid courier ID")
		return
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if identity.Role == models.RoleCourier && identity.UserID != courierID {
		writeErrorResponse(w, http.StatusForbidden, "Couriers may only view their own history")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	records, err := h.couriers.GetLocationHistory(courierID, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to get location history")
		writeErrorResponse(w, http.StatusInternalServerError, "Failed to get location history")
		return
	}

	if records == nil {
		records = []*models.CourierLocationRecord{}
	}

	writeJSONResponse(w, http.StatusOK, records)
}

// GetCourier обрабатывает GET /api/couriers/{id}
func (h *CourierHandler) GetCourier(w http.ResponseWriter, r *http.Request) {
	courierID, err := extractUUIDFromPath(r.URL.Path, "/api/couriers/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid courier ID")
		return
	}

	// Попытка получить из кеша
	cacheKey := services.BuildKey(services.CacheKeyCourier, courierID.String())
	var cached models.Courier
	if found, _ := h.cache.Get(r.Context(), cacheKey, &cached); found {
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	courier, err := h.couriers.GetCourier(courierID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeErrorResponse(w, http.StatusNotFound, "Courier not found")
		} else {
			h.log.WithError(err).Error("Failed to get courier")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to get courier")
		}
		return
	}

	if err := h.cache.Set(r.Context(), cacheKey, courier, h.cache.GetHotDataTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache courier")
	}

	writeJSONResponse(w, http.StatusOK, courier)
}
