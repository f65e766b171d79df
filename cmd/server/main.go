package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parcel-tracking/internal/auth"
	"parcel-tracking/internal/config"
	"parcel-tracking/internal/database"
	"parcel-tracking/internal/gateway"
	"parcel-tracking/internal/handlers"
	"parcel-tracking/internal/kafka"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/middleware"
	"parcel-tracking/internal/models"
	"parcel-tracking/internal/redis"
	"parcel-tracking/internal/services"
)

func main() {
	// Загрузка конфигурации
	cfg := config.Load()

	// Инициализация логгера
	log := logger.New(&cfg.Logger)
	log.Info("Starting parcel tracking server...")

	// Подключение к базе данных
	db, err := database.Connect(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Подключение к Redis
	redisClient, err := redis.Connect(&cfg.Redis, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	// Создание Kafka producer
	producer, err := kafka.NewProducer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka producer")
	}
	defer producer.Close()

	// Создание Kafka consumer
	consumer, err := kafka.NewConsumer(&cfg.Kafka, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka consumer")
	}
	defer consumer.Stop()

	// Инициализация сервисов
	tokenService := auth.NewTokenService(&cfg.Auth)
	cacheService := services.NewCacheService(redisClient, &cfg.Cache, log)
	rateLimiter := services.NewRateLimiterService(redisClient, &cfg.RateLimit, log)
	courierService := services.NewCourierService(db, log)
	parcelService := services.NewParcelService(db, log)

	// Гейтвей и движок геозонной оценки: хаб рассылает события подписчикам,
	// producer публикует их во внешнюю шину
	hub := gateway.NewHub(parcelService, log)
	trackingService := services.NewTrackingService(courierService, parcelService, hub, producer, &cfg.Tracking, log)

	// Инициализация handlers
	courierHandler := handlers.NewCourierHandler(courierService, trackingService, cacheService, log)
	parcelHandler := handlers.NewParcelHandler(parcelService, trackingService, hub, producer, cacheService, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, hub, cacheService)
	wsHandler := gateway.NewHandler(hub, tokenService, log)

	// Регистрация обработчиков событий Kafka
	registerEventHandlers(consumer, hub, log)

	// Запуск Kafka consumer
	if err := consumer.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start Kafka consumer")
	}

	// Настройка HTTP роутера
	mux := setupRoutes(courierHandler, parcelHandler, healthHandler, wsHandler, tokenService, rateLimiter, log)

	// Создание HTTP сервера
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		log.WithField("address", server.Addr).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

// setupRoutes настраивает маршруты HTTP сервера
func setupRoutes(
	courierHandler *handlers.CourierHandler,
	parcelHandler *handlers.ParcelHandler,
	healthHandler *handlers.HealthHandler,
	wsHandler *gateway.Handler,
	tokens *auth.TokenService,
	rateLimiter *services.RateLimiterService,
	log *logger.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()

	authenticate := middleware.Authenticate(tokens, log)
	locationLimit := middleware.LocationRateLimit(rateLimiter, log)

	// Health check endpoints
	mux.HandleFunc("/health", corsMiddleware(healthHandler.Health))
	mux.HandleFunc("/health/readiness", corsMiddleware(healthHandler.Readiness))
	mux.HandleFunc("/health/liveness", corsMiddleware(healthHandler.Liveness))

	// Websocket гейтвей: аутентификация выполняется при рукопожатии
	mux.HandleFunc("/ws/tracking", wsHandler.ServeTracking)

	// Courier endpoints
	mux.HandleFunc("/api/couriers/", corsMiddleware(authenticate(handleCourierRoute(courierHandler, locationLimit))))

	// Parcel endpoints
	mux.HandleFunc("/api/parcels/", corsMiddleware(authenticate(handleParcelRoute(parcelHandler))))

	return mux
}

// handleCourierRoute обрабатывает маршруты для отдельного курьера
func handleCourierRoute(handler *handlers.CourierHandler, locationLimit func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	updateLocation := middleware.RequireRoles(models.RoleCourier, models.RoleAdmin)(locationLimit(handler.UpdateLocation))
	locationHistory := middleware.RequireRoles(models.RoleCourier, models.RoleAdmin)(handler.GetLocationHistory)

	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/location"):
			if r.Method == http.MethodPatch {
				updateLocation(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case strings.HasSuffix(r.URL.Path, "/location-history"):
			if r.Method == http.MethodGet {
				locationHistory(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		default:
			if r.Method == http.MethodGet {
				handler.GetCourier(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		}
	}
}

// handleParcelRoute обрабатывает маршруты для отдельной посылки
func handleParcelRoute(handler *handlers.ParcelHandler) http.HandlerFunc {
	updateLocation := middleware.RequireRoles(models.RoleCourier)(handler.UpdateLocation)
	updateStatus := middleware.RequireRoles(models.RoleAdmin)(handler.UpdateStatus)
	assignCourier := middleware.RequireRoles(models.RoleAdmin)(handler.AssignCourier)

	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/location-update"):
			if r.Method == http.MethodPatch {
				updateLocation(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case strings.HasSuffix(r.URL.Path, "/status"):
			if r.Method == http.MethodPatch {
				updateStatus(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case strings.HasSuffix(r.URL.Path, "/assign"):
			if r.Method == http.MethodPost {
				assignCourier(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		case strings.HasSuffix(r.URL.Path, "/events"):
			if r.Method == http.MethodGet {
				handler.GetEvents(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		default:
			if r.Method == http.MethodGet {
				handler.GetParcel(w, r)
			} else {
				writeErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			}
		}
	}
}

// registerEventHandlers регистрирует обработчики событий Kafka
func registerEventHandlers(consumer *kafka.Consumer, hub *gateway.Hub, log *logger.Logger) {
	// Назначение курьера: адресные уведомления курьеру и участникам посылки
	consumer.RegisterHandler(models.EventTypeParcelCourierAssigned, func(ctx context.Context, event *models.Event) error {
		var assigned models.ParcelCourierAssignedEvent
		if err := kafka.DecodeEventData(event, &assigned); err != nil {
			return err
		}

		payload := map[string]interface{}{
			"parcelId":  assigned.ParcelID,
			"type":      "courier-assigned",
			"timestamp": assigned.Timestamp,
		}
		hub.NotifyCourier(assigned.CourierID, payload)
		hub.NotifyUser(assigned.SenderID, payload)
		hub.NotifyUser(assigned.ReceiverID, payload)

		log.WithField("event_id", event.ID).Info("Processed courier assigned event")
		return nil
	})

	consumer.RegisterHandler(models.EventTypeParcelStatusChanged, func(ctx context.Context, event *models.Event) error {
		log.WithField("event_id", event.ID).Debug("Processing parcel status changed event")
		// Рассылка подписчикам выполняется на инстансе, принявшем обновление;
		// здесь можно добавить логику уведомлений, обновления статистики и т.д.
		return nil
	})
}

// corsMiddleware и другие helper функции
func corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error": "%s", "message": "%s"}`, http.StatusText(statusCode), message)
}
