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

// ParcelService представляет сервис для работы с посылками
type ParcelService struct {
	db  *database.DB
	log *logger.Logger
}

// NewParcelService создает новый экземпляр сервиса посылок
func NewParcelService(db *database.DB, log *logger.Logger) *ParcelService {
	return &ParcelService{
		db:  db,
		log: log,
	}
}

const parcelColumns = `
	id, sender_id, receiver_id, assigned_courier_id,
	pickup_address, destination_address,
	pickup_lat, pickup_lng, destination_lat, destination_lng,
	status, picked_up_at, delivered_at, created_at, updated_at
`

func scanParcel(row interface {
	Scan(dest ...interface{}) error
}) (*models.Parcel, error) {
	parcel := &models.Parcel{}
	err := row.Scan(
		&parcel.ID, &parcel.SenderID, &parcel.ReceiverID, &parcel.AssignedCourierID,
		&parcel.PickupAddress, &parcel.DestinationAddress,
		&parcel.PickupLat, &parcel.PickupLng, &parcel.DestinationLat, &parcel.DestinationLng,
		&parcel.Status, &parcel.PickedUpAt, &parcel.DeliveredAt, &parcel.CreatedAt, &parcel.UpdatedAt,
	)
	return parcel, err
}

// GetParcel получает посылку по ID
func (s *ParcelService) GetParcel(parcelID uuid.UUID) (*models.Parcel, error) {
	query := `SELECT ` + parcelColumns + ` FROM parcels WHERE id = $1 AND deleted_at IS NULL`

	parcel, err := scanParcel(s.db.QueryRow(query, parcelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("parcel not found")
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}

	return parcel, nil
}

// GetParticipants получает участников посылки для проверки доступа
func (s *ParcelService) GetParticipants(parcelID uuid.UUID) (*models.ParcelParticipants, error) {
	p := &models.ParcelParticipants{}

	query := `
		SELECT sender_id, receiver_id, assigned_courier_id
		FROM parcels
		WHERE id = $1 AND deleted_at IS NULL
	`

	err := s.db.QueryRow(query, parcelID).Scan(&p.SenderID, &p.ReceiverID, &p.AssignedCourierID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("parcel not found")
		}
		return nil, fmt.Errorf("failed to get parcel participants: %w", err)
	}

	return p, nil
}

// ActiveParcelsForCourier получает активные посылки курьера:
// статус PICKED или IN_TRANSIT, участвуют в геозонной оценке
func (s *ParcelService) ActiveParcelsForCourier(courierID uuid.UUID) ([]*models.Parcel, error) {
	query := `SELECT ` + parcelColumns + `
		FROM parcels
		WHERE assigned_courier_id = $1
		  AND status IN ($2, $3)
		  AND deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.db.Query(query, courierID, models.ParcelStatusPicked, models.ParcelStatusInTransit)
	if err != nil {
		return nil, fmt.Errorf("failed to get active parcels: %w", err)
	}
	defer rows.Close()

	var parcels []*models.Parcel
	for rows.Next() {
		parcel, err := scanParcel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parcel: %w", err)
		}
		parcels = append(parcels, parcel)
	}

	return parcels, nil
}

// ActiveParcelIDsForCourier получает только идентификаторы активных посылок курьера
func (s *ParcelService) ActiveParcelIDsForCourier(courierID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM parcels
		WHERE assigned_courier_id = $1
		  AND status IN ($2, $3)
		  AND deleted_at IS NULL
	`

	rows, err := s.db.Query(query, courierID, models.ParcelStatusPicked, models.ParcelStatusInTransit)
	if err != nil {
		return nil, fmt.Errorf("failed to get active parcel ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan parcel id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

// SaveTrackingPoint добавляет точку маршрута посылки
func (s *ParcelService) SaveTrackingPoint(pt *models.ParcelTrackingPoint) error {
	query := `
		INSERT INTO parcel_tracking_points (id, parcel_id, courier_id, lat, lng, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(query, pt.ID, pt.ParcelID, pt.CourierID, pt.Lat, pt.Lng, pt.Address, pt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save tracking point: %w", err)
	}

	return nil
}

// ApplyTransition атомарно применяет переход статуса: точка маршрута
// (если есть), новый статус и запись журнала выполняются в одной транзакции.
// Рассылка подписчикам происходит только после коммита.
func (s *ParcelService) ApplyTransition(t *ParcelTransition) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if t.Point != nil {
		pointQuery := `
			INSERT INTO parcel_tracking_points (id, parcel_id, courier_id, lat, lng, address, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err = tx.Exec(pointQuery, t.Point.ID, t.Point.ParcelID, t.Point.CourierID,
			t.Point.Lat, t.Point.Lng, t.Point.Address, t.Point.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save tracking point: %w", err)
		}
	}

	statusQuery := `
		UPDATE parcels
		SET status = $1,
		    picked_up_at = COALESCE($2, picked_up_at),
		    delivered_at = COALESCE($3, delivered_at),
		    updated_at = $4
		WHERE id = $5 AND deleted_at IS NULL
	`
	result, err := tx.Exec(statusQuery, t.To, t.PickedUpAt, t.DeliveredAt, t.OccurredAt, t.ParcelID)
	if err != nil {
		return fmt.Errorf("failed to update parcel status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("parcel not found")
	}

	var lat, lng *float64
	var address *string
	if t.Point != nil {
		lat, lng, address = &t.Point.Lat, &t.Point.Lng, t.Point.Address
	}

	eventQuery := `
		INSERT INTO parcel_events (id, parcel_id, status, lat, lng, address, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(eventQuery, uuid.New(), t.ParcelID, t.To, lat, lng, address, t.Notes, t.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to save parcel event: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"parcel_id":  t.ParcelID,
		"old_status": t.From,
		"new_status": t.To,
	}).Info("Parcel status transition applied")

	return nil
}

// AssignCourier назначает курьера на посылку и помечает его занятым
func (s *ParcelService) AssignCourier(parcelID, courierID uuid.UUID) (*models.Parcel, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Проверяем, что курьер существует и доступен
	var isAvailable bool
	courierQuery := `SELECT is_available FROM couriers WHERE id = $1 AND deleted_at IS NULL`
	err = tx.QueryRow(courierQuery, courierID).Scan(&isAvailable)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("courier not found")
		}
		return nil, fmt.Errorf("failed to check courier: %w", err)
	}
	if !isAvailable {
		return nil, fmt.Errorf("courier is not available")
	}

	courierUpdate := `UPDATE couriers SET is_available = false, updated_at = $1 WHERE id = $2`
	if _, err = tx.Exec(courierUpdate, time.Now(), courierID); err != nil {
		return nil, fmt.Errorf("failed to update courier availability: %w", err)
	}

	parcelUpdate := `
		UPDATE parcels
		SET assigned_courier_id = $1, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
		RETURNING ` + parcelColumns

	parcel, err := scanParcel(tx.QueryRow(parcelUpdate, courierID, time.Now(), parcelID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("parcel not found")
		}
		return nil, fmt.Errorf("failed to assign courier: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"parcel_id":  parcelID,
		"courier_id": courierID,
	}).Info("Courier assigned to parcel")

	return parcel, nil
}

// GetEvents получает журнал событий посылки в порядке создания
func (s *ParcelService) GetEvents(parcelID uuid.UUID) ([]*models.ParcelEvent, error) {
	if _, err := s.GetParticipants(parcelID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, parcel_id, status, lat, lng, address, notes, created_at
		FROM parcel_events
		WHERE parcel_id = $1
		ORDER BY created_at
	`

	rows, err := s.db.Query(query, parcelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parcel events: %w", err)
	}
	defer rows.Close()

	var events []*models.ParcelEvent
	for rows.Next() {
		ev := &models.ParcelEvent{}
		if err := rows.Scan(&ev.ID, &ev.ParcelID, &ev.Status, &ev.Lat, &ev.Lng,
			&ev.Address, &ev.Notes, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan parcel event: %w", err)
		}
		events = append(events, ev)
	}

	return events, nil
}
