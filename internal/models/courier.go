package models

import (
	"time"

	"github.com/google/uuid"
)

// Role представляет роль пользователя в системе
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
	RoleCourier  Role = "COURIER"
)

// Courier представляет курьера в системе
type Courier struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Phone       string     `json:"phone" db:"phone"`
	Email       string     `json:"email" db:"email"`
	IsAvailable bool       `json:"is_available" db:"is_available"`
	CurrentLat  *float64   `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLng  *float64   `json:"current_lng,omitempty" db:"current_lng"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// UpdateCourierLocationRequest представляет запрос на обновление позиции курьера
type UpdateCourierLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}

// CourierLocationResponse представляет ответ на обновление позиции курьера
type CourierLocationResponse struct {
	Success        bool        `json:"success"`
	Message        string      `json:"message"`
	UpdatedParcels []uuid.UUID `json:"updated_parcels"`
}
