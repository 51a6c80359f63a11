package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flightcore/internal/models"
	"flightcore/pkg/database"

	"github.com/lib/pq"
)

// ErrBookingNotFound is returned when no booking row matches the id.
var ErrBookingNotFound = fmt.Errorf("booking not found")

// ErrDuplicateIdempotencyKey is returned when an insert loses the race on
// the idempotency_key unique index. The caller re-fetches the winner.
var ErrDuplicateIdempotencyKey = fmt.Errorf("duplicate idempotency key")

const bookingColumns = `booking_id, user_id, flight_type, flight_identifier, no_of_seats,
		       total_price, status, idempotency_key, created_at, updated_at`

// BookingRepository handles booking database operations
type BookingRepository struct {
	db *database.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *database.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func scanBooking(row interface {
	Scan(dest ...interface{}) error
}, booking *models.Booking) error {
	var idemKey sql.NullString
	err := row.Scan(
		&booking.BookingID, &booking.UserID, &booking.FlightType,
		&booking.FlightIdentifier, &booking.NoOfSeats, &booking.TotalPrice,
		&booking.Status, &idemKey, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		return err
	}
	booking.IdempotencyKey = idemKey.String
	return nil
}

// CreateBooking inserts a booking and its ordered legs in one transaction.
func (r *BookingRepository) CreateBooking(ctx context.Context, booking *models.Booking, legs []string) (*models.Booking, error) {
	now := time.Now().UTC()

	err := r.db.WithinTx(ctx, func(q database.Execer) error {
		query := `
			INSERT INTO bookings (booking_id, user_id, flight_type, flight_identifier,
			                     no_of_seats, total_price, status, idempotency_key,
			                     created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`

		var idemKey interface{}
		if booking.IdempotencyKey != "" {
			idemKey = booking.IdempotencyKey
		}

		_, err := q.ExecContext(ctx, query,
			booking.BookingID, booking.UserID, booking.FlightType,
			booking.FlightIdentifier, booking.NoOfSeats, booking.TotalPrice,
			booking.Status, idemKey, now, now,
		)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
				return ErrDuplicateIdempotencyKey
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}

		legQuery := `
			INSERT INTO booking_flights (booking_id, flight_id, leg_order)
			VALUES ($1, $2, $3)
		`
		for order, flightID := range legs {
			if _, err := q.ExecContext(ctx, legQuery, booking.BookingID, flightID, order); err != nil {
				return fmt.Errorf("failed to insert booking leg: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now

	return booking, nil
}

// GetBookingByID gets a booking by ID
func (r *BookingRepository) GetBookingByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE booking_id = $1
	`

	var booking models.Booking
	err := scanBooking(r.db.QueryRowContext(ctx, query, bookingID), &booking)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return &booking, nil
}

// FindByIdempotencyKey returns the booking created under the key, or
// ErrBookingNotFound when the key has never been used.
func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE idempotency_key = $1
	`

	var booking models.Booking
	err := scanBooking(r.db.QueryRowContext(ctx, query, key), &booking)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find booking by idempotency key: %w", err)
	}

	return &booking, nil
}

// GetBookingsByUserID gets bookings for a user
func (r *BookingRepository) GetBookingsByUserID(ctx context.Context, userID string) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var booking models.Booking
		if err := scanBooking(rows, &booking); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// FindPendingOlderThan returns PENDING bookings created before cutoff,
// the reconciler's candidates for TIMEOUT.
func (r *BookingRepository) FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, models.BookingStatusPending, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		var booking models.Booking
		if err := scanBooking(rows, &booking); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// UpdateStatusFromPending transitions a booking out of PENDING. The
// status predicate makes concurrent callers race safely: exactly one
// observes true, the rest see the booking already settled.
func (r *BookingRepository) UpdateStatusFromPending(ctx context.Context, bookingID string, status models.BookingStatus) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $1, updated_at = $2
		WHERE booking_id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), bookingID, models.BookingStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetBookingLegs returns the booking's leg flight ids in leg order.
func (r *BookingRepository) GetBookingLegs(ctx context.Context, bookingID string) ([]string, error) {
	query := `
		SELECT flight_id
		FROM booking_flights
		WHERE booking_id = $1
		ORDER BY leg_order ASC
	`

	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking legs: %w", err)
	}
	defer rows.Close()

	var legs []string
	for rows.Next() {
		var flightID string
		if err := rows.Scan(&flightID); err != nil {
			return nil, fmt.Errorf("failed to scan booking leg: %w", err)
		}
		legs = append(legs, flightID)
	}

	return legs, rows.Err()
}
