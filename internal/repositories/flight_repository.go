package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flightcore/internal/models"
	"flightcore/pkg/database"
)

// ErrFlightNotFound is returned when no flight row matches the id.
var ErrFlightNotFound = fmt.Errorf("flight not found")

const flightColumns = `flight_id, source, destination, departure_time, arrival_time,
		       total_seats, available_seats, price, status, version, created_at, updated_at`

// FlightRepository handles flight database operations. available_seats is
// only ever written through ConditionalDecrement and Increment, both of
// which the inventory engine calls under the flight mutex.
type FlightRepository struct {
	db *database.DB
}

// NewFlightRepository creates a new flight repository
func NewFlightRepository(db *database.DB) *FlightRepository {
	return &FlightRepository{db: db}
}

func scanFlight(row interface {
	Scan(dest ...interface{}) error
}, flight *models.Flight) error {
	return row.Scan(
		&flight.FlightID, &flight.Source, &flight.Destination,
		&flight.DepartureTime, &flight.ArrivalTime,
		&flight.TotalSeats, &flight.AvailableSeats, &flight.Price,
		&flight.Status, &flight.Version, &flight.CreatedAt, &flight.UpdatedAt,
	)
}

// GetFlightByID gets a flight by ID
func (r *FlightRepository) GetFlightByID(ctx context.Context, flightID string) (*models.Flight, error) {
	query := `
		SELECT ` + flightColumns + `
		FROM flights
		WHERE flight_id = $1
	`

	var flight models.Flight
	err := scanFlight(r.db.QueryRowContext(ctx, query, flightID), &flight)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrFlightNotFound
		}
		return nil, fmt.Errorf("failed to get flight: %w", err)
	}

	return &flight, nil
}

// ListActiveFlights lists flights still open for booking.
func (r *FlightRepository) ListActiveFlights(ctx context.Context) ([]models.Flight, error) {
	query := `
		SELECT ` + flightColumns + `
		FROM flights
		WHERE status = 'ACTIVE'
		ORDER BY departure_time ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active flights: %w", err)
	}
	defer rows.Close()

	var flights []models.Flight
	for rows.Next() {
		var flight models.Flight
		if err := scanFlight(rows, &flight); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, flight)
	}

	return flights, rows.Err()
}

// ConditionalDecrement atomically subtracts seats from available_seats iff
// enough remain. Returns whether a row was updated; false means
// insufficient seats, not an error. The single-statement predicate keeps
// available_seats non-negative under any interleaving.
func (r *FlightRepository) ConditionalDecrement(ctx context.Context, q database.Execer, flightID string, seats int) (bool, error) {
	query := `
		UPDATE flights
		SET available_seats = available_seats - $1,
		    version = version + 1,
		    updated_at = $2
		WHERE flight_id = $3 AND available_seats >= $1
	`

	result, err := q.ExecContext(ctx, query, seats, time.Now().UTC(), flightID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement available seats: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// Increment returns seats to available_seats, clamped at total_seats.
func (r *FlightRepository) Increment(ctx context.Context, q database.Execer, flightID string, seats int) error {
	query := `
		UPDATE flights
		SET available_seats = LEAST(total_seats, available_seats + $1),
		    version = version + 1,
		    updated_at = $2
		WHERE flight_id = $3
	`

	result, err := q.ExecContext(ctx, query, seats, time.Now().UTC(), flightID)
	if err != nil {
		return fmt.Errorf("failed to increment available seats: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrFlightNotFound
	}

	return nil
}

// CreateFlight creates a new flight
func (r *FlightRepository) CreateFlight(ctx context.Context, flight *models.Flight) (*models.Flight, error) {
	query := `
		INSERT INTO flights (flight_id, source, destination, departure_time, arrival_time,
		                    total_seats, available_seats, price, status, version,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		flight.FlightID, flight.Source, flight.Destination,
		flight.DepartureTime, flight.ArrivalTime,
		flight.TotalSeats, flight.AvailableSeats, flight.Price,
		flight.Status, flight.Version, now, now,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create flight: %w", err)
	}

	flight.CreatedAt = now
	flight.UpdatedAt = now

	return flight, nil
}
