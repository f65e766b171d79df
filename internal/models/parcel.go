package models

import (
	"time"

	"github.com/google/uuid"
)

// ParcelStatus представляет статус посылки
type ParcelStatus string

const (
	ParcelStatusPending   ParcelStatus = "PENDING"
	ParcelStatusPicked    ParcelStatus = "PICKED"
	ParcelStatusInTransit ParcelStatus = "IN_TRANSIT"
	ParcelStatusDelivered ParcelStatus = "DELIVERED"
	ParcelStatusCancelled ParcelStatus = "CANCELLED"
)

// IsTerminal проверяет, является ли статус конечным.
// После DELIVERED и CANCELLED геозонные переходы больше не выполняются.
func (s ParcelStatus) IsTerminal() bool {
	return s == ParcelStatusDelivered || s == ParcelStatusCancelled
}

// IsActiveLeg проверяет, участвует ли посылка в геозонной оценке
func (s ParcelStatus) IsActiveLeg() bool {
	return s == ParcelStatusPicked || s == ParcelStatusInTransit
}

// Parcel представляет посылку в системе
type Parcel struct {
	ID                 uuid.UUID    `json:"id" db:"id"`
	SenderID           uuid.UUID    `json:"sender_id" db:"sender_id"`
	ReceiverID         uuid.UUID    `json:"receiver_id" db:"receiver_id"`
	AssignedCourierID  *uuid.UUID   `json:"assigned_courier_id,omitempty" db:"assigned_courier_id"`
	PickupAddress      string       `json:"pickup_address" db:"pickup_address"`
	DestinationAddress string       `json:"destination_address" db:"destination_address"`
	PickupLat          float64      `json:"pickup_lat" db:"pickup_lat"`
	PickupLng          float64      `json:"pickup_lng" db:"pickup_lng"`
	DestinationLat     float64      `json:"destination_lat" db:"destination_lat"`
	DestinationLng     float64      `json:"destination_lng" db:"destination_lng"`
	Status             ParcelStatus `json:"status" db:"status"`
	PickedUpAt         *time.Time   `json:"picked_up_at,omitempty" db:"picked_up_at"`
	DeliveredAt        *time.Time   `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// ParcelParticipants представляет участников посылки для проверки доступа
type ParcelParticipants struct {
	SenderID          uuid.UUID
	ReceiverID        uuid.UUID
	AssignedCourierID *uuid.UUID
}

// UpdateParcelStatusRequest представляет запрос на ручное обновление статуса
type UpdateParcelStatusRequest struct {
	Status ParcelStatus `json:"status"`
	Notes  string       `json:"notes,omitempty"`
}

// AssignCourierRequest представляет запрос на назначение курьера
type AssignCourierRequest struct {
	CourierID uuid.UUID `json:"courier_id"`
}

// ParcelLocationUpdateRequest представляет запрос курьера на обновление
// позиции по конкретной посылке
type ParcelLocationUpdateRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
