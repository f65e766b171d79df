package models

import (
	"time"

	"github.com/google/uuid"
)

// EventType представляет тип события
type EventType string

const (
	EventTypeParcelStatusChanged   EventType = "parcel.status_changed"
	EventTypeParcelCourierAssigned EventType = "parcel.courier_assigned"
	EventTypeLocationUpdated       EventType = "courier.location_updated"
)

// Event представляет базовое событие
type Event struct {
	ID        uuid.UUID   `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ParcelStatusChangedEvent представляет событие изменения статуса посылки
type ParcelStatusChangedEvent struct {
	ParcelID  uuid.UUID    `json:"parcel_id"`
	OldStatus ParcelStatus `json:"old_status"`
	NewStatus ParcelStatus `json:"new_status"`
	CourierID *uuid.UUID   `json:"courier_id,omitempty"`
	Location  *GeoPoint    `json:"location,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// ParcelCourierAssignedEvent представляет событие назначения курьера на посылку
type ParcelCourierAssignedEvent struct {
	ParcelID   uuid.UUID `json:"parcel_id"`
	CourierID  uuid.UUID `json:"courier_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// LocationUpdatedEvent представляет событие обновления позиции курьера
type LocationUpdatedEvent struct {
	CourierID uuid.UUID `json:"courier_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdate представляет сообщение location-update для подписчиков.
// Поля в camelCase — формат, который ожидают веб-клиенты.
type LocationUpdate struct {
	ParcelID  uuid.UUID `json:"parcelId"`
	CourierID uuid.UUID `json:"courierId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Address   *string   `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusUpdate представляет сообщение status-update для подписчиков
type StatusUpdate struct {
	ParcelID  uuid.UUID    `json:"parcelId"`
	Status    ParcelStatus `json:"status"`
	Location  *GeoPoint    `json:"location,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
