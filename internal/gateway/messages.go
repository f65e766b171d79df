package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Имена входящих событий
const (
	EventSubscribeParcel   = "subscribe-parcel"
	EventUnsubscribeParcel = "unsubscribe-parcel"
)

// Имена исходящих событий
const (
	EventSubscribed     = "subscribed"
	EventUnsubscribed   = "unsubscribed"
	EventError          = "error"
	EventLocationUpdate = "location-update"
	EventStatusUpdate   = "status-update"
	EventParcelUpdate   = "parcel-update"
	EventNotification   = "notification"
	EventCourierUpdate  = "courier-update"
)

// InboundMessage представляет типизированное входящее сообщение клиента
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundMessage представляет исходящее сообщение для подписчиков
type OutboundMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// SubscribeRequest представляет запрос на подписку/отписку от посылки
type SubscribeRequest struct {
	ParcelID uuid.UUID `json:"parcelId"`
}

// SubscriptionAck представляет подтверждение подписки/отписки
type SubscriptionAck struct {
	ParcelID uuid.UUID `json:"parcelId"`
}

// ErrorPayload представляет сообщение об ошибке для клиента
type ErrorPayload struct {
	Message string `json:"message"`
}
