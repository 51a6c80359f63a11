package repositories

import (
	"context"
	"fmt"
	"time"

	"flightcore/internal/models"
	"flightcore/pkg/database"
)

const reservationColumns = `id, booking_id, flight_id, seats, expires_at, created_at, deleted_at`

// ReservationRepository handles seat reservation database operations.
// Rows are only ever soft-deleted; every active-set query filters on
// deleted_at IS NULL.
type ReservationRepository struct {
	db *database.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

func scanReservation(row interface {
	Scan(dest ...interface{}) error
}, res *models.SeatReservation) error {
	return row.Scan(
		&res.ID, &res.BookingID, &res.FlightID, &res.Seats,
		&res.ExpiresAt, &res.CreatedAt, &res.DeletedAt,
	)
}

// Insert inserts a reservation row. The partial unique index on
// (booking_id, flight_id) WHERE deleted_at IS NULL turns a duplicate
// active hold into a constraint violation.
func (r *ReservationRepository) Insert(ctx context.Context, q database.Execer, res *models.SeatReservation) error {
	query := `
		INSERT INTO seat_reservations (id, booking_id, flight_id, seats, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := q.ExecContext(ctx, query,
		res.ID, res.BookingID, res.FlightID, res.Seats, res.ExpiresAt, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	return nil
}

// FindActiveByBooking returns the active reservations for a booking.
func (r *ReservationRepository) FindActiveByBooking(ctx context.Context, bookingID string) ([]models.SeatReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM seat_reservations
		WHERE booking_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to find active reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.SeatReservation
	for rows.Next() {
		var res models.SeatReservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}

// ExistsActive reports whether the booking holds any active reservation.
func (r *ReservationRepository) ExistsActive(ctx context.Context, bookingID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM seat_reservations
			WHERE booking_id = $1 AND deleted_at IS NULL
		)
	`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, bookingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active reservations: %w", err)
	}

	return exists, nil
}

// SoftDeleteByBooking tombstones every active reservation of the booking
// in one statement and returns how many rows it touched.
func (r *ReservationRepository) SoftDeleteByBooking(ctx context.Context, q database.Execer, bookingID string, now time.Time) (int64, error) {
	query := `
		UPDATE seat_reservations
		SET deleted_at = $1
		WHERE booking_id = $2 AND deleted_at IS NULL
	`

	result, err := q.ExecContext(ctx, query, now, bookingID)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete reservations: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// FindExpired returns active reservations whose TTL has passed.
func (r *ReservationRepository) FindExpired(ctx context.Context, now time.Time) ([]models.SeatReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM seat_reservations
		WHERE deleted_at IS NULL AND expires_at <= $1
		ORDER BY expires_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired reservations: %w", err)
	}
	defer rows.Close()

	var reservations []models.SeatReservation
	for rows.Next() {
		var res models.SeatReservation
		if err := scanReservation(rows, &res); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}
