package models

import (
	"time"
)

// SeatReservation represents a TTL-bounded hold of seats for a booking on
// one flight leg. A reservation is active while DeletedAt is nil; soft
// deletion is the only way out of the active set.
type SeatReservation struct {
	ID        string     `json:"id" db:"id"`
	BookingID string     `json:"booking_id" db:"booking_id"`
	FlightID  string     `json:"flight_id" db:"flight_id"`
	Seats     int        `json:"seats" db:"seats"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsExpired reports whether the reservation has outlived its TTL.
func (r *SeatReservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
