package gateway

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

type fakeSubscriber struct {
	id     string
	msgs   []*OutboundMessage
	full   bool
	closed bool
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(msg *OutboundMessage) bool {
	if f.full {
		return false
	}
	f.msgs = append(f.msgs, msg)
	return true
}

func (f *fakeSubscriber) Close() { f.closed = true }

type fakeDirectory struct {
	participants map[uuid.UUID]*models.ParcelParticipants
	active       map[uuid.UUID][]uuid.UUID
	err          error
}

func (f *fakeDirectory) GetParticipants(parcelID uuid.UUID) (*models.ParcelParticipants, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.participants[parcelID]
	if !ok {
		return nil, fmt.Errorf("parcel not found")
	}
	return p, nil
}

func (f *fakeDirectory) ActiveParcelIDsForCourier(courierID uuid.UUID) ([]uuid.UUID, error) {
	return f.active[courierID], nil
}

func newTestHub(dir *fakeDirectory) *Hub {
	return NewHub(dir, logger.NewNop())
}

func adminIdentity() auth.Identity {
	return auth.Identity{UserID: uuid.New(), Role: models.RoleAdmin}
}

func countEvents(msgs []*OutboundMessage, event string) int {
	n := 0
	for _, m := range msgs {
		if m.Event == event {
			n++
		}
	}
	return n
}

func TestHubSubscribeAndBroadcastStatus(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {SenderID: uuid.New(), ReceiverID: uuid.New()},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	hub.BroadcastStatusUpdate(&models.StatusUpdate{
		ParcelID:  parcelID,
		Status:    models.ParcelStatusInTransit,
		Timestamp: time.Now(),
	})

	if got := countEvents(sub.msgs, EventStatusUpdate); got != 1 {
		t.Fatalf("expected exactly 1 status-update, got %d", got)
	}
}

func TestHubSubscribeIdempotent(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	// Повторная подписка не должна удваивать доставку
	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatalf("first Subscribe failed: %v", err)
	}
	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatalf("second Subscribe failed: %v", err)
	}

	hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})

	if got := countEvents(sub.msgs, EventStatusUpdate); got != 1 {
		t.Fatalf("expected exactly 1 status-update after double subscribe, got %d", got)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	hub.Unsubscribe(sub.id, parcelID)

	hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})

	if got := countEvents(sub.msgs, EventStatusUpdate); got != 0 {
		t.Fatalf("expected no status-update after unsubscribe, got %d", got)
	}
}

func TestHubResubscribeDeliversExactlyOnce(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatal(err)
	}
	hub.Unsubscribe(sub.id, parcelID)
	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatal(err)
	}

	hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})

	if got := countEvents(sub.msgs, EventStatusUpdate); got != 1 {
		t.Fatalf("expected exactly 1 status-update after resubscribe, got %d", got)
	}
}

func TestHubUnsubscribeWithoutSubscriptionIsSafe(t *testing.T) {
	hub := newTestHub(&fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{}})

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	// Не должно паниковать и не должно ломать сессию
	hub.Unsubscribe(sub.id, uuid.New())
	hub.Unsubscribe("unknown-socket", uuid.New())
}

func TestHubSubscribeUnknownSession(t *testing.T) {
	hub := newTestHub(&fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{}})

	err := hub.Subscribe("ghost", uuid.New())
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestHubSubscribeParcelNotFound(t *testing.T) {
	hub := newTestHub(&fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{}})

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())

	err := hub.Subscribe(sub.id, uuid.New())
	if !errors.Is(err, ErrParcelNotFound) {
		t.Fatalf("expected ErrParcelNotFound, got %v", err)
	}
}

func TestHubSubscribeAccessRules(t *testing.T) {
	sender := uuid.New()
	receiver := uuid.New()
	courier := uuid.New()
	parcelID := uuid.New()

	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {SenderID: sender, ReceiverID: receiver, AssignedCourierID: &courier},
	}}

	tests := []struct {
		name     string
		identity auth.Identity
		allowed  bool
	}{
		{"admin always allowed", auth.Identity{UserID: uuid.New(), Role: models.RoleAdmin}, true},
		{"sender allowed", auth.Identity{UserID: sender, Role: models.RoleCustomer}, true},
		{"receiver allowed", auth.Identity{UserID: receiver, Role: models.RoleCustomer}, true},
		{"unrelated customer denied", auth.Identity{UserID: uuid.New(), Role: models.RoleCustomer}, false},
		{"assigned courier allowed", auth.Identity{UserID: courier, Role: models.RoleCourier}, true},
		{"foreign courier denied", auth.Identity{UserID: uuid.New(), Role: models.RoleCourier}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := newTestHub(dir)
			sub := &fakeSubscriber{id: "s1"}
			hub.Register(sub, tt.identity)

			err := hub.Subscribe(sub.id, parcelID)
			if tt.allowed && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, ErrAccessDenied) {
				t.Fatalf("expected ErrAccessDenied, got %v", err)
			}

			// Отказ в подписке означает отсутствие последующей доставки
			hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})
			got := countEvents(sub.msgs, EventStatusUpdate)
			if tt.allowed && got != 1 {
				t.Errorf("expected 1 status-update for allowed identity, got %d", got)
			}
			if !tt.allowed && got != 0 {
				t.Errorf("denied identity must not receive updates, got %d", got)
			}
		})
	}
}

func TestHubUnregisterCascades(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())
	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	hub.Unregister(sub.id)

	hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})
	if len(sub.msgs) != 0 {
		t.Fatalf("expected no delivery after unregister, got %d messages", len(sub.msgs))
	}

	// Пустые топики вычищаются
	stats := hub.Stats()
	if stats.Sessions != 0 || stats.Topics != 0 {
		t.Fatalf("expected empty hub, got %+v", stats)
	}
}

func TestHubSlowClientDisconnected(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	slow := &fakeSubscriber{id: "slow", full: true}
	fast := &fakeSubscriber{id: "fast"}
	hub.Register(slow, adminIdentity())
	hub.Register(fast, adminIdentity())

	if err := hub.Subscribe(slow.id, parcelID); err != nil {
		t.Fatalf("Subscribe slow failed: %v", err)
	}
	if err := hub.Subscribe(fast.id, parcelID); err != nil {
		t.Fatalf("Subscribe fast failed: %v", err)
	}

	hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})

	if !slow.closed {
		t.Error("slow client must be closed")
	}
	if countEvents(fast.msgs, EventStatusUpdate) != 1 {
		t.Error("fast client must still receive the message")
	}
	if hub.Stats().Sessions != 1 {
		t.Errorf("slow session must be removed, stats: %+v", hub.Stats())
	}
}

func TestHubBroadcastCourierLocationPerParcel(t *testing.T) {
	courierID := uuid.New()
	parcelA := uuid.New()
	parcelB := uuid.New()

	dir := &fakeDirectory{
		participants: map[uuid.UUID]*models.ParcelParticipants{
			parcelA: {},
			parcelB: {},
		},
		active: map[uuid.UUID][]uuid.UUID{
			courierID: {parcelA, parcelB},
		},
	}
	hub := newTestHub(dir)

	subA := &fakeSubscriber{id: "a"}
	subB := &fakeSubscriber{id: "b"}
	hub.Register(subA, adminIdentity())
	hub.Register(subB, adminIdentity())
	if err := hub.Subscribe(subA.id, parcelA); err != nil {
		t.Fatal(err)
	}
	if err := hub.Subscribe(subB.id, parcelB); err != nil {
		t.Fatal(err)
	}

	hub.BroadcastCourierLocation(courierID, 41.3, 69.2, nil, time.Now())

	for _, sub := range []*fakeSubscriber{subA, subB} {
		if got := countEvents(sub.msgs, EventLocationUpdate); got != 1 {
			t.Errorf("subscriber %s: expected 1 location-update, got %d", sub.id, got)
		}
	}

	// Каждый подписчик получает сообщение со своей посылкой
	upd := subA.msgs[0].Data.(*models.LocationUpdate)
	if upd.ParcelID != parcelA || upd.CourierID != courierID {
		t.Errorf("unexpected location-update payload: %+v", upd)
	}
}

func TestHubNotifyUserAndCourier(t *testing.T) {
	hub := newTestHub(&fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{}})

	courier := &fakeSubscriber{id: "c1"}
	courierID := uuid.New()
	hub.Register(courier, auth.Identity{UserID: courierID, Role: models.RoleCourier})

	customer := &fakeSubscriber{id: "u1"}
	customerID := uuid.New()
	hub.Register(customer, auth.Identity{UserID: customerID, Role: models.RoleCustomer})

	// Курьер состоит и в персональном канале, и в канале курьера
	hub.NotifyCourier(courierID, map[string]string{"type": "assignment"})
	hub.NotifyUser(customerID, map[string]string{"type": "update"})

	if countEvents(courier.msgs, EventCourierUpdate) != 1 {
		t.Error("courier must receive courier-update notification")
	}
	if countEvents(customer.msgs, EventNotification) != 1 {
		t.Error("customer must receive notification")
	}
	if countEvents(customer.msgs, EventCourierUpdate) != 0 {
		t.Error("customer must not receive courier channel messages")
	}
}

// yieldingSubscriber уступает планировщику внутри Send, повышая шанс
// перемешивания при несериализованных рассылках
type yieldingSubscriber struct {
	id       string
	mu       sync.Mutex
	statuses []models.ParcelStatus
}

func (y *yieldingSubscriber) ID() string { return y.id }

func (y *yieldingSubscriber) Send(msg *OutboundMessage) bool {
	runtime.Gosched()
	if upd, ok := msg.Data.(*models.StatusUpdate); ok {
		y.mu.Lock()
		y.statuses = append(y.statuses, upd.Status)
		y.mu.Unlock()
	}
	return true
}

func (y *yieldingSubscriber) Close() {}

func TestHubConcurrentBroadcastsKeepTopicOrder(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	subs := make([]*yieldingSubscriber, 60)
	for i := range subs {
		subs[i] = &yieldingSubscriber{id: fmt.Sprintf("s%d", i)}
		hub.Register(subs[i], adminIdentity())
		if err := hub.Subscribe(subs[i].id, parcelID); err != nil {
			t.Fatal(err)
		}
	}

	// Две конкурирующие рассылки в один топик: все подписчики обязаны
	// увидеть события в одном и том же порядке
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusInTransit})
	}()
	go func() {
		defer wg.Done()
		hub.BroadcastStatusUpdate(&models.StatusUpdate{ParcelID: parcelID, Status: models.ParcelStatusDelivered})
	}()
	wg.Wait()

	first := subs[0].statuses
	if len(first) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(first))
	}
	for _, sub := range subs[1:] {
		if len(sub.statuses) != 2 {
			t.Fatalf("subscriber %s: expected 2 deliveries, got %d", sub.id, len(sub.statuses))
		}
		if sub.statuses[0] != first[0] || sub.statuses[1] != first[1] {
			t.Fatalf("subscribers observed the same topic in different orders: %v vs %v", first, sub.statuses)
		}
	}
}

func TestHubBroadcastParcelUpdate(t *testing.T) {
	parcelID := uuid.New()
	dir := &fakeDirectory{participants: map[uuid.UUID]*models.ParcelParticipants{
		parcelID: {},
	}}
	hub := newTestHub(dir)

	sub := &fakeSubscriber{id: "s1"}
	hub.Register(sub, adminIdentity())
	if err := hub.Subscribe(sub.id, parcelID); err != nil {
		t.Fatal(err)
	}

	courierID := uuid.New()
	hub.BroadcastParcelUpdate(parcelID, "courier-assigned", map[string]interface{}{
		"courierId": courierID,
	})

	if countEvents(sub.msgs, EventParcelUpdate) != 1 {
		t.Fatalf("expected 1 parcel-update, got %d", countEvents(sub.msgs, EventParcelUpdate))
	}
	payload := sub.msgs[len(sub.msgs)-1].Data.(map[string]interface{})
	if payload["type"] != "courier-assigned" || payload["courierId"] != courierID {
		t.Errorf("unexpected parcel-update payload: %+v", payload)
	}
}
