package gateway

import (
	"net/http"
	"strings"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler принимает websocket подключения неймспейса tracking
type Handler struct {
	hub      *Hub
	tokens   *auth.TokenService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler создает новый обработчик websocket подключений
func NewHandler(hub *Hub, tokens *auth.TokenService, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Браузерные клиенты приходят с произвольных origin;
			// доступ контролируется bearer токеном
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeTracking аутентифицирует рукопожатие и поднимает подключение.
// Неаутентифицированная попытка отклоняется до апгрейда: никакое
// частично-аутентифицированное состояние не сохраняется.
func (h *Handler) ServeTracking(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		h.log.Warn("Client attempted to connect without token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity, err := h.tokens.Verify(token)
	if err != nil {
		h.log.WithError(err).Warn("Websocket authentication failed")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Error("Websocket upgrade failed")
		return
	}

	client := newClient(uuid.New().String(), h.hub, conn, h.log)
	h.hub.Register(client, *identity)

	go client.writePump()
	go client.readPump()
}

// extractToken достает bearer токен из query параметра или заголовка
func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}
