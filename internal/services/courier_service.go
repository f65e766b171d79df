package services

import (
	"database/sql"
	"fmt"
	"time"

	"parcel-tracking/internal/database"
	"parcel-tracking/internal/logger"
	"parcel-tracking/internal/models"

	"github.com/google/uuid"
)

// CourierService представляет сервис для работы с курьерами
type CourierService struct {
	db  *database.DB
	log *logger.Logger
}

// NewCourierService создает новый экземпляр сервиса курьеров
func NewCourierService(db *database.DB, log *logger.Logger) *CourierService {
	return &CourierService{
		db:  db,
		log: log,
	}
}

// GetCourier получает курьера по ID
func (s *CourierService) GetCourier(courierID uuid.UUID) (*models.Courier, error) {
	courier := &models.Courier{}

	query := `
		SELECT id, name, phone, email, is_available, current_lat, current_lng,
		       created_at, updated_at, last_seen_at
		FROM couriers
		WHERE id = $1 AND deleted_at IS NULL
	`

	err := s.db.QueryRow(query, courierID).Scan(
		&courier.ID, &courier.Name, &courier.Phone, &courier.Email,
		&courier.IsAvailable, &courier.CurrentLat, &courier.CurrentLng,
		&courier.CreatedAt, &courier.UpdatedAt, &courier.LastSeenAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("courier not found")
		}
		return nil, fmt.Errorf("failed to get courier: %w", err)
	}

	return courier, nil
}

// SaveLocationRecord добавляет запись в историю перемещений курьера
// и обновляет его текущую позицию. Обе записи выполняются в одной транзакции.
func (s *CourierService) SaveLocationRecord(rec *models.CourierLocationRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertQuery := `
		INSERT INTO courier_locations (id, courier_id, lat, lng, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = tx.Exec(insertQuery, rec.ID, rec.CourierID, rec.Lat, rec.Lng, rec.Address, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert location record: %w", err)
	}

	updateQuery := `
		UPDATE couriers
		SET current_lat = $1, current_lng = $2, last_seen_at = $3, updated_at = $3
		WHERE id = $4
	`
	result, err := tx.Exec(updateQuery, rec.Lat, rec.Lng, rec.CreatedAt, rec.CourierID)
	if err != nil {
		return fmt.Errorf("failed to update courier position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("courier not found")
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"courier_id": rec.CourierID,
		"lat":        rec.Lat,
		"lng":        rec.Lng,
	}).Debug("Courier location recorded")

	return nil
}

// GetLocationHistory получает историю перемещений курьера, новые записи первыми
func (s *CourierService) GetLocationHistory(courierID uuid.UUID, limit int) ([]*models.CourierLocationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT id, courier_id, lat, lng, address, created_at
		FROM courier_locations
		WHERE courier_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(query, courierID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get location history: %w", err)
	}
	defer rows.Close()

	var records []*models.CourierLocationRecord
	for rows.Next() {
		rec := &models.CourierLocationRecord{}
		if err := rows.Scan(&rec.ID, &rec.CourierID, &rec.Lat, &rec.Lng,
			&rec.Address, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location record: %w", err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// SetAvailability обновляет доступность курьера
func (s *CourierService) SetAvailability(courierID uuid.UUID, available bool) error {
	query := `
		UPDATE couriers
		SET is_available = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`

	result, err := s.db.Exec(query, available, time.Now(), courierID)
	if err != nil {
		return fmt.Errorf("failed to update courier availability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("courier not found")
	}

	s.log.WithFields(map[string]interface{}{
		"courier_id":   courierID,
		"is_available": available,
	}).Info("Courier availability updated")

	return nil
}
