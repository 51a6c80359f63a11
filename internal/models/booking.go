package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the status of a booking. PENDING is the only
// non-terminal state; CONFIRMED, FAILED and TIMEOUT are absorbing.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusFailed    BookingStatus = "FAILED"
	BookingStatusTimeout   BookingStatus = "TIMEOUT"
)

// IsTerminal reports whether the status admits no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusConfirmed || s == BookingStatusFailed || s == BookingStatusTimeout
}

// FlightType distinguishes a single scheduled flight from a computed
// multi-leg route bundled under a synthetic identifier.
type FlightType string

const (
	FlightTypeDirect   FlightType = "DIRECT"
	FlightTypeComputed FlightType = "COMPUTED"
)

// ComputedRoutePrefix marks synthetic identifiers naming a computed route.
const ComputedRoutePrefix = "CF_"

// IsComputedRoute reports whether the identifier names a computed route
// rather than a direct flight.
func IsComputedRoute(identifier string) bool {
	return strings.HasPrefix(identifier, ComputedRoutePrefix)
}

// Booking represents a booking entity
type Booking struct {
	BookingID        string          `json:"booking_id" db:"booking_id"`
	UserID           string          `json:"user_id" db:"user_id"`
	FlightType       FlightType      `json:"flight_type" db:"flight_type"`
	FlightIdentifier string          `json:"flight_identifier" db:"flight_identifier"`
	NoOfSeats        int             `json:"no_of_seats" db:"no_of_seats"`
	TotalPrice       decimal.Decimal `json:"total_price" db:"total_price"`
	Status           BookingStatus   `json:"status" db:"status"`
	IdempotencyKey   string          `json:"idempotency_key,omitempty" db:"idempotency_key"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// BookingLeg is one concrete flight within a booking. LegOrder starts at 0
// and is dense within a booking.
type BookingLeg struct {
	ID        int64  `json:"id" db:"id"`
	BookingID string `json:"booking_id" db:"booking_id"`
	FlightID  string `json:"flight_id" db:"flight_id"`
	LegOrder  int    `json:"leg_order" db:"leg_order"`
}

// BookingRequest represents a booking creation request
type BookingRequest struct {
	UserID           string `json:"user_id"`
	FlightIdentifier string `json:"flight_identifier"`
	Seats            int    `json:"seats"`
}

// BookingEntry is the projection of a booking returned by the booking
// HTTP surface, carrying the resolved leg flight ids.
type BookingEntry struct {
	BookingID        string          `json:"booking_id"`
	UserID           string          `json:"user_id"`
	FlightType       FlightType      `json:"flight_type"`
	FlightIdentifier string          `json:"flight_identifier"`
	NoOfSeats        int             `json:"no_of_seats"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           BookingStatus   `json:"status"`
	Legs             []string        `json:"legs"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentCallbackStatus values the external payment processor reports.
const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailure = "FAILURE"
	PaymentStatusTimeout = "TIMEOUT"
)

// PaymentCallback is the asynchronous terminal report POSTed by the
// payment processor to the callback endpoint.
type PaymentCallback struct {
	BookingID string `json:"booking_id"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// SeatUpdateEvent represents an event for seat inventory changes
type SeatUpdateEvent struct {
	FlightID  string    `json:"flight_id"`
	BookingID string    `json:"booking_id"`
	Seats     int       `json:"seats"`
	Operation string    `json:"operation"` // reserved or released
	Timestamp time.Time `json:"timestamp"`
}

// PaymentEvent represents a payment processing event
type PaymentEvent struct {
	BookingID string          `json:"booking_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsValid checks if the booking request carries the fields validation
// requires before any side effect happens.
func (br *BookingRequest) IsValid(minSeats, maxSeats int) bool {
	return br.UserID != "" && br.FlightIdentifier != "" &&
		br.Seats >= minSeats && br.Seats <= maxSeats
}

// Entry projects a booking plus its resolved legs into the wire shape.
func (b *Booking) Entry(legs []string) *BookingEntry {
	return &BookingEntry{
		BookingID:        b.BookingID,
		UserID:           b.UserID,
		FlightType:       b.FlightType,
		FlightIdentifier: b.FlightIdentifier,
		NoOfSeats:        b.NoOfSeats,
		TotalPrice:       b.TotalPrice,
		Status:           b.Status,
		Legs:             legs,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
}
