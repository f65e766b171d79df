package gateway

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

// Ошибки подписки, возвращаемые клиенту как event "error"
var (
	ErrNotAuthenticated = errors.New("unauthorized")
	ErrParcelNotFound   = errors.New("parcel not found")
	ErrAccessDenied     = errors.New("access denied to parcel")
)

// ParcelDirectory представляет границу чтения посылок для гейтвея:
// проверка доступа при подписке и разрешение активных посылок курьера
type ParcelDirectory interface {
	GetParticipants(parcelID uuid.UUID) (*models.ParcelParticipants, error)
	ActiveParcelIDsForCourier(courierID uuid.UUID) ([]uuid.UUID, error)
}

// subscriber представляет получателя исходящих сообщений.
// Send не блокируется: false означает переполненный буфер (медленный клиент).
type subscriber interface {
	ID() string
	Send(msg *OutboundMessage) bool
	Close()
}

// session связывает подключение с аутентифицированной идентичностью
type session struct {
	sub      subscriber
	identity auth.Identity
	topics   map[string]struct{}
}

// HubStats представляет счетчики гейтвея
type HubStats struct {
	Sessions int `json:"sessions"`
	Topics   int `json:"topics"`
}

// Hub владеет реестром сессий и реестром подписок и выполняет рассылку.
// Создается при старте сервиса и передается компонентам явно; доступ к
// внутренним картам защищен одним мьютексом, поэтому порядок сообщений
// в пределах одного топика сохраняется.
type Hub struct {
	parcels ParcelDirectory
	log     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session            // socketID -> session
	topics   map[string]map[string]*session // topic -> socketID -> session
}

// NewHub создает новый гейтвей-хаб
func NewHub(parcels ParcelDirectory, log *logger.Logger) *Hub {
	return &Hub{
		parcels:  parcels,
		log:      log,
		sessions: make(map[string]*session),
		topics:   make(map[string]map[string]*session),
	}
}

func topicParcel(parcelID uuid.UUID) string { return "parcel:" + parcelID.String() }
func topicUser(userID uuid.UUID) string { return "user:" + userID.String() }
func topicCourier(courierID uuid.UUID) string { return "courier:" + courierID.String() }

// Register регистрирует аутентифицированное подключение. Подключение сразу
// попадает в свой персональный канал и, для курьеров, в канал курьера —
// они служат для адресных уведомлений, не для подписок на посылки.
func (h *Hub) Register(sub subscriber, identity auth.Identity) {
	s := &session{
		sub:      sub,
		identity: identity,
		topics:   make(map[string]struct{}),
	}

	h.mu.Lock()
	h.sessions[sub.ID()] = s
	h.join(s, topicUser(identity.UserID))
	if identity.Role == models.RoleCourier {
		h.join(s, topicCourier(identity.UserID))
	}
	h.mu.Unlock()

	h.log.WithFields(map[string]interface{}{
		"socket_id": sub.ID(),
		"user_id":   identity.UserID,
		"role":      identity.Role,
	}).Info("Client connected")
}

// Unregister удаляет сессию и каскадно снимает все ее подписки
func (h *Hub) Unregister(socketID string) {
	h.mu.Lock()
	s, ok := h.sessions[socketID]
	if ok {
		for topic := range s.topics {
			h.leave(s, topic)
		}
		delete(h.sessions, socketID)
	}
	h.mu.Unlock()

	if ok {
		h.log.WithField("socket_id", socketID).Info("Client disconnected")
	}
}

// Subscribe добавляет подключение в топик посылки. Авторизация проверяется
// один раз, в момент подписки: ADMIN проходит всегда, CUSTOMER должен быть
// отправителем или получателем, COURIER — назначенным курьером.
// Повторная подписка идемпотентна.
func (h *Hub) Subscribe(socketID string, parcelID uuid.UUID) error {
	h.mu.RLock()
	s, ok := h.sessions[socketID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotAuthenticated
	}

	// Проверка доступа выполняется без удержания мьютекса:
	// поход в хранилище не должен блокировать рассылку
	participants, err := h.parcels.GetParticipants(parcelID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return ErrParcelNotFound
		}
		return fmt.Errorf("failed to verify parcel access: %w", err)
	}

	if !hasParcelAccess(s.identity, participants) {
		return ErrAccessDenied
	}

	h.mu.Lock()
	h.join(s, topicParcel(parcelID))
	h.mu.Unlock()

	h.log.WithFields(map[string]interface{}{
		"socket_id": socketID,
		"parcel_id": parcelID,
	}).Info("Client subscribed to parcel")

	return nil
}

// Unsubscribe снимает подписку; вызов без подписки безопасен
func (h *Hub) Unsubscribe(socketID string, parcelID uuid.UUID) {
	h.mu.Lock()
	if s, ok := h.sessions[socketID]; ok {
		h.leave(s, topicParcel(parcelID))
	}
	h.mu.Unlock()
}

// BroadcastCourierLocation рассылает location-update подписчикам всех
// активных посылок курьера, по одному сообщению на посылку
func (h *Hub) BroadcastCourierLocation(courierID uuid.UUID, lat, lng float64, address *string, timestamp time.Time) {
	parcelIDs, err := h.parcels.ActiveParcelIDsForCourier(courierID)
	if err != nil {
		h.log.WithError(err).WithField("courier_id", courierID).Error("Failed to resolve active parcels for broadcast")
		return
	}

	for _, parcelID := range parcelIDs {
		h.broadcast(topicParcel(parcelID), &OutboundMessage{
			Event: EventLocationUpdate,
			Data: &models.LocationUpdate{
				ParcelID:  parcelID,
				CourierID: courierID,
				Latitude:  lat,
				Longitude: lng,
				Address:   address,
				Timestamp: timestamp,
			},
		})
	}
}

// BroadcastStatusUpdate рассылает status-update подписчикам посылки
func (h *Hub) BroadcastStatusUpdate(update *models.StatusUpdate) {
	h.broadcast(topicParcel(update.ParcelID), &OutboundMessage{
		Event: EventStatusUpdate,
		Data:  update,
	})
}

// BroadcastParcelUpdate рассылает общее обновление посылки
// (например, назначение курьера) подписчикам ее топика
func (h *Hub) BroadcastParcelUpdate(parcelID uuid.UUID, updateType string, data map[string]interface{}) {
	payload := map[string]interface{}{
		"parcelId":  parcelID,
		"type":      updateType,
		"timestamp": time.Now(),
	}
	for k, v := range data {
		payload[k] = v
	}

	h.broadcast(topicParcel(parcelID), &OutboundMessage{
		Event: EventParcelUpdate,
		Data:  payload,
	})
}

// NotifyUser отправляет адресное уведомление в персональный канал пользователя
func (h *Hub) NotifyUser(userID uuid.UUID, payload interface{}) {
	h.broadcast(topicUser(userID), &OutboundMessage{
		Event: EventNotification,
		Data:  payload,
	})
}

// NotifyCourier отправляет адресное уведомление в канал курьера
func (h *Hub) NotifyCourier(courierID uuid.UUID, payload interface{}) {
	h.broadcast(topicCourier(courierID), &OutboundMessage{
		Event: EventCourierUpdate,
		Data:  payload,
	})
}

// Stats возвращает текущие счетчики гейтвея
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Sessions: len(h.sessions),
		Topics:   len(h.topics),
	}
}

// broadcast отправляет сообщение всем текущим членам топика: доставка
// максимум один раз, без очередей и повторов. Клиенты с переполненным
// буфером отключаются. Мьютекс берется на запись: рассылки сериализуются,
// и все подписчики топика видят события в одном и том же порядке.
func (h *Hub) broadcast(topic string, msg *OutboundMessage) {
	var stalled []*session

	h.mu.Lock()
	for _, s := range h.topics[topic] {
		if !s.sub.Send(msg) {
			stalled = append(stalled, s)
		}
	}
	h.mu.Unlock()

	for _, s := range stalled {
		h.log.WithField("socket_id", s.sub.ID()).Warn("Dropping slow client")
		h.Unregister(s.sub.ID())
		s.sub.Close()
	}
}

// join добавляет сессию в топик; вызывается под мьютексом
func (h *Hub) join(s *session, topic string) {
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[string]*session)
		h.topics[topic] = members
	}
	members[s.sub.ID()] = s
	s.topics[topic] = struct{}{}
}

// leave удаляет сессию из топика и вычищает пустой топик; вызывается под мьютексом
func (h *Hub) leave(s *session, topic string) {
	if members, ok := h.topics[topic]; ok {
		delete(members, s.sub.ID())
		if len(members) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}

// hasParcelAccess применяет правила доступа к посылке по роли
func hasParcelAccess(identity auth.Identity, p *models.ParcelParticipants) bool {
	switch identity.Role {
	case models.RoleAdmin:
		return true
	case models.RoleCustomer:
		return p.SenderID == identity.UserID || p.ReceiverID == identity.UserID
	case models.RoleCourier:
		return p.AssignedCourierID != nil && *p.AssignedCourierID == identity.UserID
	default:
		return false
	}
}
