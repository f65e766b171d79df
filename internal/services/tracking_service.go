package services

import (
	"fmt"
	"time"

	"parcel-tracking/internal/config"
	"parcel-tracking/internal/geo"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

// Заметка журнала для автоматических переходов
const autoTransitionNotes = "Status automatically updated"

// CourierStore представляет границу хранилища курьеров
type CourierStore interface {
	GetCourier(courierID uuid.UUID) (*models.Courier, error)
	SaveLocationRecord(rec *models.CourierLocationRecord) error
}

// ParcelStore представляет границу хранилища посылок
type ParcelStore interface {
	GetParcel(parcelID uuid.UUID) (*models.Parcel, error)
	ActiveParcelsForCourier(courierID uuid.UUID) ([]*models.Parcel, error)
	SaveTrackingPoint(pt *models.ParcelTrackingPoint) error
	ApplyTransition(t *ParcelTransition) error
}

// Broadcaster представляет интерфейс рассылки событий подписчикам,
// отделенный от транспорта
type Broadcaster interface {
	BroadcastCourierLocation(courierID uuid.UUID, lat, lng float64, address *string, timestamp time.Time)
	BroadcastStatusUpdate(update *models.StatusUpdate)
}

// EventPublisher представляет интерфейс публикации доменных событий во внешнюю шину
type EventPublisher interface {
	PublishLocationUpdated(courierID uuid.UUID, lat, lng float64) error
	PublishParcelStatusChanged(ev *models.ParcelStatusChangedEvent) error
}

// ParcelTransition представляет атомарный переход статуса посылки:
// точка маршрута (если есть), новый статус и запись журнала
type ParcelTransition struct {
	ParcelID    uuid.UUID
	From        models.ParcelStatus
	To          models.ParcelStatus
	Point       *models.ParcelTrackingPoint
	Notes       string
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
	OccurredAt  time.Time
}

// IngestResult представляет результат обработки обновления позиции курьера
type IngestResult struct {
	UpdatedParcelIDs []uuid.UUID
}

// TrackingService представляет движок геозонной оценки: принимает координаты
// курьера, сохраняет историю и выводит переходы статусов посылок
type TrackingService struct {
	couriers    CourierStore
	parcels     ParcelStore
	broadcaster Broadcaster
	events      EventPublisher
	cfg         *config.TrackingConfig
	log         *logger.Logger
}

// NewTrackingService создает новый движок геозонной оценки
func NewTrackingService(
	couriers CourierStore,
	parcels ParcelStore,
	broadcaster Broadcaster,
	events EventPublisher,
	cfg *config.TrackingConfig,
	log *logger.Logger,
) *TrackingService {
	return &TrackingService{
		couriers:    couriers,
		parcels:     parcels,
		broadcaster: broadcaster,
		events:      events,
		cfg:         cfg,
		log:         log,
	}
}

// IngestCourierLocation обрабатывает обновление позиции курьера:
// сохраняет историю, оценивает геозоны всех активных посылок и рассылает
// события подписчикам. Посылки обрабатываются последовательно, каждая в
// своей транзакции; ошибка одной посылки не блокирует остальные.
func (s *TrackingService) IngestCourierLocation(courierID uuid.UUID, lat, lng float64, address *string) (*IngestResult, error) {
	courier, err := s.couriers.GetCourier(courierID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	record := &models.CourierLocationRecord{
		ID:        uuid.New(),
		CourierID: courier.ID,
		Lat:       lat,
		Lng:       lng,
		Address:   address,
		CreatedAt: now,
	}
	if err := s.couriers.SaveLocationRecord(record); err != nil {
		return nil, fmt.Errorf("failed to record courier location: %w", err)
	}

	parcels, err := s.parcels.ActiveParcelsForCourier(courier.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active parcels: %w", err)
	}

	result := &IngestResult{}
	var fired []*ParcelTransition

	for _, parcel := range parcels {
		point := &models.ParcelTrackingPoint{
			ID:        uuid.New(),
			ParcelID:  parcel.ID,
			CourierID: courier.ID,
			Lat:       lat,
			Lng:       lng,
			Address:   address,
			CreatedAt: now,
		}

		transition := s.evaluateGeofence(parcel, lat, lng, now)
		if transition == nil {
			if err := s.parcels.SaveTrackingPoint(point); err != nil {
				s.log.WithError(err).WithField("parcel_id", parcel.ID).Error("Failed to save tracking point")
			}
			continue
		}

		transition.Point = point
		if err := s.parcels.ApplyTransition(transition); err != nil {
			s.log.WithError(err).WithField("parcel_id", parcel.ID).Error("Failed to apply status transition")
			continue
		}

		result.UpdatedParcelIDs = append(result.UpdatedParcelIDs, parcel.ID)
		fired = append(fired, transition)
	}

	// Рассылка — только после того, как все записи зафиксированы
	s.broadcaster.BroadcastCourierLocation(courier.ID, lat, lng, address, now)
	if err := s.events.PublishLocationUpdated(courier.ID, lat, lng); err != nil {
		s.log.WithError(err).Error("Failed to publish location updated event")
	}

	for _, t := range fired {
		s.publishTransition(t, courier.ID, address)
	}

	s.log.WithFields(map[string]interface{}{
		"courier_id":      courier.ID,
		"active_parcels":  len(parcels),
		"updated_parcels": len(result.UpdatedParcelIDs),
	}).Info("Courier location ingested")

	return result, nil
}

// UpdateParcelLocation обрабатывает обновление позиции по одной посылке.
// Доступно только назначенному курьеру.
func (s *TrackingService) UpdateParcelLocation(parcelID, courierID uuid.UUID, lat, lng float64) (models.ParcelStatus, error) {
	parcel, err := s.parcels.GetParcel(parcelID)
	if err != nil {
		return "", err
	}

	if parcel.AssignedCourierID == nil {
		return "", fmt.Errorf("parcel has no assigned courier")
	}
	if *parcel.AssignedCourierID != courierID {
		return "", fmt.Errorf("courier is not assigned to this parcel")
	}

	now := time.Now()
	point := &models.ParcelTrackingPoint{
		ID:        uuid.New(),
		ParcelID:  parcel.ID,
		CourierID: courierID,
		Lat:       lat,
		Lng:       lng,
		CreatedAt: now,
	}

	transition := s.evaluateGeofence(parcel, lat, lng, now)
	if transition == nil {
		if err := s.parcels.SaveTrackingPoint(point); err != nil {
			return "", fmt.Errorf("failed to save tracking point: %w", err)
		}
		return parcel.Status, nil
	}

	transition.Point = point
	if err := s.parcels.ApplyTransition(transition); err != nil {
		return "", err
	}

	s.broadcaster.BroadcastCourierLocation(courierID, lat, lng, nil, now)
	s.publishTransition(transition, courierID, nil)

	return transition.To, nil
}

// UpdateParcelStatus применяет ручное изменение статуса: геозонная оценка
// не выполняется, но журнал и рассылка работают как обычно
func (s *TrackingService) UpdateParcelStatus(parcelID uuid.UUID, newStatus models.ParcelStatus, notes string) (*models.Parcel, error) {
	switch newStatus {
	case models.ParcelStatusPending, models.ParcelStatusPicked, models.ParcelStatusInTransit,
		models.ParcelStatusDelivered, models.ParcelStatusCancelled:
	default:
		return nil, fmt.Errorf("invalid parcel status: %s", newStatus)
	}

	parcel, err := s.parcels.GetParcel(parcelID)
	if err != nil {
		return nil, err
	}

	if notes == "" {
		notes = "Status manually updated"
	}

	now := time.Now()
	transition := &ParcelTransition{
		ParcelID:   parcel.ID,
		From:       parcel.Status,
		To:         newStatus,
		Notes:      notes,
		OccurredAt: now,
	}
	switch newStatus {
	case models.ParcelStatusPicked:
		transition.PickedUpAt = &now
	case models.ParcelStatusDelivered:
		transition.DeliveredAt = &now
	}

	if err := s.parcels.ApplyTransition(transition); err != nil {
		return nil, err
	}

	s.publishTransition(transition, uuidOrNil(parcel.AssignedCourierID), nil)

	parcel.Status = newStatus
	parcel.PickedUpAt = coalesceTime(transition.PickedUpAt, parcel.PickedUpAt)
	parcel.DeliveredAt = coalesceTime(transition.DeliveredAt, parcel.DeliveredAt)
	parcel.UpdatedAt = now
	return parcel, nil
}

// evaluateGeofence применяет таблицу переходов к одной посылке.
// PICKED за пределами радиуса забора становится IN_TRANSIT;
// IN_TRANSIT в радиусе доставки становится DELIVERED.
// Конечные статусы сюда не попадают: выборка активных посылок
// ограничена PICKED и IN_TRANSIT.
func (s *TrackingService) evaluateGeofence(parcel *models.Parcel, lat, lng float64, now time.Time) *ParcelTransition {
	switch parcel.Status {
	case models.ParcelStatusPicked:
		distanceToPickup := geo.DistanceKm(lat, lng, parcel.PickupLat, parcel.PickupLng)
		if !geo.WithinProximity(distanceToPickup, s.cfg.PickupRadiusKm) {
			return &ParcelTransition{
				ParcelID:   parcel.ID,
				From:       parcel.Status,
				To:         models.ParcelStatusInTransit,
				Notes:      autoTransitionNotes,
				OccurredAt: now,
			}
		}

	case models.ParcelStatusInTransit:
		distanceToDestination := geo.DistanceKm(lat, lng, parcel.DestinationLat, parcel.DestinationLng)
		if geo.WithinProximity(distanceToDestination, s.cfg.DeliveryRadiusKm) {
			deliveredAt := now
			return &ParcelTransition{
				ParcelID:    parcel.ID,
				From:        parcel.Status,
				To:          models.ParcelStatusDelivered,
				Notes:       autoTransitionNotes,
				DeliveredAt: &deliveredAt,
				OccurredAt:  now,
			}
		}
	}

	return nil
}

// publishTransition рассылает status-update подписчикам и публикует
// доменное событие во внешнюю шину
func (s *TrackingService) publishTransition(t *ParcelTransition, courierID uuid.UUID, address *string) {
	var location *models.GeoPoint
	if t.Point != nil {
		location = &models.GeoPoint{
			Latitude:  t.Point.Lat,
			Longitude: t.Point.Lng,
			Address:   address,
		}
	}

	s.broadcaster.BroadcastStatusUpdate(&models.StatusUpdate{
		ParcelID:  t.ParcelID,
		Status:    t.To,
		Location:  location,
		Timestamp: t.OccurredAt,
	})

	ev := &models.ParcelStatusChangedEvent{
		ParcelID:  t.ParcelID,
		OldStatus: t.From,
		NewStatus: t.To,
		Location:  location,
		Timestamp: t.OccurredAt,
	}
	if courierID != uuid.Nil {
		ev.CourierID = &courierID
	}
	if err := s.events.PublishParcelStatusChanged(ev); err != nil {
		s.log.WithError(err).WithField("parcel_id", t.ParcelID).Error("Failed to publish status changed event")
	}
}

func uuidOrNil(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func coalesceTime(a, b *time.Time) *time.Time {
	if a != nil {
		return a
	}
	return b
}
