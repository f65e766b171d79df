package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/gateway"
	"parcel-tracking/internal/kafka"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/middleware"
	"parcel-tracking/internal/models"
	"parcel-tracking/internal/services"

	"github.com/google/uuid"
)

// ParcelHandler представляет обработчик запросов по посылкам
type ParcelHandler struct {
	parcels  *services.ParcelService
	tracking *services.TrackingService
	hub      *gateway.Hub
	producer *kafka.Producer
	cache    *services.CacheService
	log      *logger.Logger
}

// NewParcelHandler создает новый обработчик посылок
func NewParcelHandler(
	parcels *services.ParcelService,
	tracking *services.TrackingService,
	hub *gateway.Hub,
	producer *kafka.Producer,
	cache *services.CacheService,
	log *logger.Logger,
) *ParcelHandler {
	return &ParcelHandler{
		parcels:  parcels,
		tracking: tracking,
		hub:      hub,
		producer: producer,
		cache:    cache,
		log:      log,
	}
}

// GetParcel обрабатывает GET /api/parcels/{id}
func (h *ParcelHandler) GetParcel(w http.ResponseWriter, r *http.Request) {
	parcelID, identity, ok := h.parcelRequest(w, r)
	if !ok {
		return
	}

	cacheKey := services.BuildKey(services.CacheKeyParcel, parcelID.String())
	var cached models.Parcel
	if found, _ := h.cache.Get(r.Context(), cacheKey, &cached); found {
		if !h.requireParticipant(w, identity, &models.ParcelParticipants{
			SenderID:          cached.SenderID,
			ReceiverID:        cached.ReceiverID,
			AssignedCourierID: cached.AssignedCourierID,
		}) {
			return
		}
		writeJSONResponse(w, http.StatusOK, &cached)
		return
	}

	parcel, err := h.parcels.GetParcel(parcelID)
	if err != nil {
		h.writeParcelError(w, err, "Failed to get parcel")
		return
	}

	if !h.requireParticipant(w, identity, &models.ParcelParticipants{
		SenderID:          parcel.SenderID,
		ReceiverID:        parcel.ReceiverID,
		AssignedCourierID: parcel.AssignedCourierID,
	}) {
		return
	}

	if err := h.cache.Set(r.Context(), cacheKey, parcel, h.cache.GetDefaultTTL()); err != nil {
		h.log.WithError(err).Error("Failed to cache parcel")
	}

	writeJSONResponse(w, http.StatusOK, parcel)
}

// UpdateLocation обрабатывает PATCH /api/parcels/{id}/location-update:
// обновление позиции по одной посылке от назначенного курьера
func (h *ParcelHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	parcelID, identity, ok := h.parcelRequest(w, r)
	if !ok {
		return
	}

	var req models.ParcelLocationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validateCoordinates(req.Latitude, req.Longitude); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.tracking.UpdateParcelLocation(parcelID, identity.UserID, req.Latitude, req.Longitude)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			writeErrorResponse(w, http.StatusNotFound, "Parcel not found")
		case strings.Contains(err.Error(), "no assigned courier"):
			writeErrorResponse(w, http.StatusBadRequest, "Parcel has no assigned courier")
		case strings.Contains(err.Error(), "not assigned"):
			writeErrorResponse(w, http.StatusForbidden, "Courier is not assigned to this parcel")
		default:
			h.log.WithError(err).Error("Failed to update parcel location")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to update parcel location")
		}
		return
	}

	h.invalidateParcelCache(r, parcelID)

	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Location updated successfully",
		"status":  string(status),
	})
}

// UpdateStatus обрабатывает PATCH /api/parcels/{id}/status: ручное изменение
// статуса администратором, минуя геозонную оценку
func (h *ParcelHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	parcelID, _, ok := h.parcelRequest(w, r)
	if !ok {
		return
	}

	var req models.UpdateParcelStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	parcel, err := h.tracking.UpdateParcelStatus(parcelID, req.Status, req.Notes)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "invalid parcel status"):
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
		case strings.Contains(err.Error(), "not found"):
			writeErrorResponse(w, http.StatusNotFound, "Parcel not found")
		default:
			h.log.WithError(err).Error("Failed to update parcel status")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to update parcel status")
		}
		return
	}

	h.invalidateParcelCache(r, parcelID)

	writeJSONResponse(w, http.StatusOK, parcel)
}

// AssignCourier обрабатывает POST /api/parcels/{id}/assign
func (h *ParcelHandler) AssignCourier(w http.ResponseWriter, r *http.Request) {
	parcelID, _, ok := h.parcelRequest(w, r)
	if !ok {
		return
	}

	var req models.AssignCourierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CourierID == uuid.Nil {
		writeErrorResponse(w, http.StatusBadRequest, "Courier ID is required")
		return
	}

	parcel, err := h.parcels.AssignCourier(parcelID, req.CourierID)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "not found"):
			writeErrorResponse(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "not available"):
			writeErrorResponse(w, http.StatusBadRequest, err.Error())
		default:
			h.log.WithError(err).Error("Failed to assign courier")
			writeErrorResponse(w, http.StatusInternalServerError, "Failed to assign courier")
		}
		return
	}

	// Подписчики посылки узнают о назначении немедленно
	h.hub.BroadcastParcelUpdate(parcelID, "courier-assigned", map[string]interface{}{
		"courierId": req.CourierID,
	})

	if err := h.producer.PublishParcelCourierAssigned(&models.ParcelCourierAssignedEvent{
		ParcelID:   parcel.ID,
		CourierID:  req.CourierID,
		SenderID:   parcel.SenderID,
		ReceiverID: parcel.ReceiverID,
		Timestamp:  time.Now(),
	}); err != nil {
		h.log.WithError(err).Error("Failed to publish courier assigned event")
	}

	h.invalidateParcelCache(r, parcelID)
	courierCacheKey := services.BuildKey(services.CacheKeyCourier, req.CourierID.String())
	if err := h.cache.Delete(r.Context(), courierCacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate courier cache")
	}

	writeJSONResponse(w, http.StatusOK, parcel)
}

// GetEvents обрабатывает GET /api/parcels/{id}/events
func (h *ParcelHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	parcelID, identity, ok := h.parcelRequest(w, r)
	if !ok {
		return
	}

	participants, err := h.parcels.GetParticipants(parcelID)
	if err != nil {
		h.writeParcelError(w, err, "Failed to get parcel")
		return
	}
	if !h.requireParticipant(w, identity, participants) {
		return
	}

	events, err := h.parcels.GetEvents(parcelID)
	if err != nil {
		h.writeParcelError(w, err, "Failed to get parcel events")
		return
	}

	if events == nil {
		events = []*models.ParcelEvent{}
	}

	writeJSONResponse(w, http.StatusOK, events)
}

// parcelRequest извлекает ID посылки и идентичность запроса
func (h *ParcelHandler) parcelRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, *auth.Identity, bool) {
	parcelID, err := extractUUIDFromPath(r.URL.Path, "/api/parcels/")
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "Invalid parcel ID")
		return uuid.Nil, nil, false
	}

	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, nil, false
	}

	return parcelID, identity, true
}

// requireParticipant проверяет, что идентичность имеет доступ к посылке
func (h *ParcelHandler) requireParticipant(w http.ResponseWriter, identity *auth.Identity, p *models.ParcelParticipants) bool {
	switch identity.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		if p.SenderID == identity.UserID || p.ReceiverID == identity.UserID {
			return true
		}
	case models.RoleCourier:
		if p.AssignedCourierID != nil && *p.AssignedCourierID == identity.UserID {
			return true
		}
	}

	writeErrorResponse(w, http.StatusForbidden, "Access denied to parcel")
	return false
}

func (h *ParcelHandler) writeParcelError(w http.ResponseWriter, err error, fallback string) {
	if strings.Contains(err.Error(), "not found") {
		writeErrorResponse(w, http.StatusNotFound, "Parcel not found")
		return
	}
	h.log.WithError(err).Error(fallback)
	writeErrorResponse(w, http.StatusInternalServerError, fallback)
}

func (h *ParcelHandler) invalidateParcelCache(r *http.Request, parcelID uuid.UUID) {
	cacheKey := services.BuildKey(services.CacheKeyParcel, parcelID.String())
	if err := h.cache.Delete(r.Context(), cacheKey); err != nil {
		h.log.WithError(err).Error("Failed to invalidate parcel cache")
	}
}
