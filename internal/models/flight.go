package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FlightStatus represents the status of a flight
type FlightStatus string

const (
	FlightStatusActive    FlightStatus = "ACTIVE"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

// Flight represents a flight entity. AvailableSeats is authoritative here
// and is mutated only by the inventory engine while holding the per-flight
// mutex.
type Flight struct {
	FlightID       string          `json:"flight_id" db:"flight_id"`
	Source         string          `json:"source" db:"source"`
	Destination    string          `json:"destination" db:"destination"`
	DepartureTime  time.Time       `json:"departure_time" db:"departure_time"`
	ArrivalTime    time.Time       `json:"arrival_time" db:"arrival_time"`
	TotalSeats     int             `json:"total_seats" db:"total_seats"`
	AvailableSeats int             `json:"available_seats" db:"available_seats"`
	Price          decimal.Decimal `json:"price" db:"price"`
	Status         FlightStatus    `json:"status" db:"status"`
	Version        int             `json:"version" db:"version"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// SeatCacheKey returns the Redis key holding this flight's cached seat count.
func SeatCacheKey(flightID string) string {
	return fmt.Sprintf("flight:%s:seats", flightID)
}

// FlightLockKey returns the Redis key used for this flight's distributed mutex.
func FlightLockKey(flightID string) string {
	return fmt.Sprintf("lock:flight:%s", flightID)
}
