package models

import (
	"time"

	"github.com/google/uuid"
)

// CourierLocationRecord представляет запись истории перемещений курьера.
// Записи только добавляются и никогда не изменяются.
type CourierLocationRecord struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CourierID uuid.UUID `json:"courier_id" db:"courier_id"`
	Lat       float64   `json:"lat" db:"lat"`
	Lng       float64   `json:"lng" db:"lng"`
	Address   *string   `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ParcelTrackingPoint представляет точку маршрута посылки:
// одна точка на каждую активную посылку при каждом обновлении позиции
type ParcelTrackingPoint struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ParcelID  uuid.UUID `json:"parcel_id" db:"parcel_id"`
	CourierID uuid.UUID `json:"courier_id" db:"courier_id"`
	Lat       float64   `json:"lat" db:"lat"`
	Lng       float64   `json:"lng" db:"lng"`
	Address   *string   `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ParcelEvent представляет запись журнала аудита изменений статуса посылки
type ParcelEvent struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	ParcelID  uuid.UUID    `json:"parcel_id" db:"parcel_id"`
	Status    ParcelStatus `json:"status" db:"status"`
	Lat       *float64     `json:"lat,omitempty" db:"lat"`
	Lng       *float64     `json:"lng,omitempty" db:"lng"`
	Address   *string      `json:"address,omitempty" db:"address"`
	Notes     string       `json:"notes" db:"notes"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// GeoPoint представляет координаты с необязательным адресом
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   *string `json:"address,omitempty"`
}
