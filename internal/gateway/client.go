package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"parcel-tracking/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBufferSize = 64
)

// Client представляет одно websocket подключение к гейтвею
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan *OutboundMessage
	done chan struct{}
	log  *logger.Logger

	closeOnce sync.Once
}

func newClient(id string, hub *Hub, conn *websocket.Conn, log *logger.Logger) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *OutboundMessage, sendBufferSize),
		done: make(chan struct{}),
		log:  log,
	}
}

// ID возвращает идентификатор подключения
func (c *Client) ID() string {
	return c.id
}

// Send ставит сообщение в буфер отправки без блокировки.
// false означает переполненный буфер: клиент не успевает читать.
func (c *Client) Send(msg *OutboundMessage) bool {
	select {
	case <-c.done:
		return true // подключение уже закрывается, сообщение можно отбросить
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close закрывает подключение; безопасен при повторных вызовах
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump читает входящие сообщения и диспетчеризует их в хаб.
// Выход из цикла снимает сессию и все ее подписки.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).WithField("socket_id", c.id).Debug("Unexpected close")
			}
			return
		}

		var msg InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: "Malformed message"}})
			continue
		}

		c.dispatch(&msg)
	}
}

// dispatch обрабатывает одно входящее сообщение
func (c *Client) dispatch(msg *InboundMessage) {
	switch msg.Event {
	case EventSubscribeParcel:
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: "Invalid subscribe request"}})
			return
		}

		switch err := c.hub.Subscribe(c.id, req.ParcelID); err {
		case nil:
			c.Send(&OutboundMessage{Event: EventSubscribed, Data: SubscriptionAck{ParcelID: req.ParcelID}})
		case ErrParcelNotFound, ErrAccessDenied, ErrNotAuthenticated:
			c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: err.Error()}})
		default:
			c.log.WithError(err).WithField("socket_id", c.id).Error("Subscribe failed")
			c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: "Failed to subscribe to parcel"}})
		}

	case EventUnsubscribeParcel:
		var req SubscribeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: "Invalid unsubscribe request"}})
			return
		}

		c.hub.Unsubscribe(c.id, req.ParcelID)
		c.Send(&OutboundMessage{Event: EventUnsubscribed, Data: SubscriptionAck{ParcelID: req.ParcelID}})

	default:
		c.Send(&OutboundMessage{Event: EventError, Data: ErrorPayload{Message: "Unknown event: " + msg.Event}})
	}
}

// writePump пишет исходящие сообщения и поддерживает ping/pong
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.WithError(err).WithField("socket_id", c.id).Debug("Write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
