// Package inventory implements the seat reservation state machine
// coordinating the flight store, reservation store, seat cache and flight
// mutex. It is the sole writer of available_seats and reservation rows.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flightcore/internal/cache"
	"flightcore/internal/lock"
	"flightcore/internal/metrics"
	"flightcore/internal/models"
	"flightcore/internal/obslog"
	"flightcore/internal/repositories"
	"flightcore/internal/scheduler"
	"flightcore/pkg/database"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// Outcome tags the result of a reserve operation.
type Outcome string

const (
	OutcomeSuccess         Outcome = "SUCCESS"
	OutcomeAlreadyReserved Outcome = "ALREADY_RESERVED"
	OutcomeNoSeats         Outcome = "NO_SEATS"
	OutcomeLockFailed      Outcome = "LOCK_FAILED"
	OutcomeInternal        Outcome = "INTERNAL"
)

// ReserveResult is the tagged outcome of Reserve. ExpiresAt is set for
// SUCCESS and ALREADY_RESERVED; FailedFlightID for NO_SEATS; Err for
// INTERNAL.
type ReserveResult struct {
	Outcome        Outcome
	ExpiresAt      time.Time
	ReservationIDs []string
	FailedFlightID string
	Err            error
}

// errInsufficientSeats aborts the reserve transaction when any leg cannot
// cover the requested seats; the rollback undoes earlier decrements.
var errInsufficientSeats = errors.New("insufficient seats")

// FlightStore defines the flight persistence operations used by Engine.
type FlightStore interface {
	GetFlightByID(ctx context.Context, flightID string) (*models.Flight, error)
	ConditionalDecrement(ctx context.Context, q database.Execer, flightID string, seats int) (bool, error)
	Increment(ctx context.Context, q database.Execer, flightID string, seats int) error
}

// ReservationStore defines the reservation persistence operations used by Engine.
type ReservationStore interface {
	Insert(ctx context.Context, q database.Execer, res *models.SeatReservation) error
	FindActiveByBooking(ctx context.Context, bookingID string) ([]models.SeatReservation, error)
	ExistsActive(ctx context.Context, bookingID string) (bool, error)
	SoftDeleteByBooking(ctx context.Context, q database.Execer, bookingID string, now time.Time) (int64, error)
	FindExpired(ctx context.Context, now time.Time) ([]models.SeatReservation, error)
}

// SeatCache defines the cache operations used by Engine.
type SeatCache interface {
	SetAvailableSeats(ctx context.Context, flightID string, seats int) error
}

// Locker defines the mutex operations used by Engine.
type Locker interface {
	AcquireMany(ctx context.Context, flightIDs []string) (*lock.Handle, error)
	Release(ctx context.Context, h *lock.Handle)
}

// TxRunner defines the transaction boundary the engine wraps around
// multi-statement mutations.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(q database.Execer) error) error
}

// Engine is the inventory reservation state machine.
type Engine struct {
	flights      FlightStore
	reservations ReservationStore
	cache        SeatCache
	locks        Locker
	tx           TxRunner
	clock        scheduler.Clock
	log          *obslog.Logger
	metrics      *metrics.Metrics
	tracerName   string
}

// NewEngine creates a new inventory engine
func NewEngine(
	flightRepo *repositories.FlightRepository,
	reservationRepo *repositories.ReservationRepository,
	cacheService *cache.FlightCacheService,
	mutex *lock.FlightMutex,
	db *database.DB,
	clock scheduler.Clock,
	log *obslog.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		flights:      flightRepo,
		reservations: reservationRepo,
		cache:        cacheService,
		locks:        mutex,
		tx:           db,
		clock:        clock,
		log:          log,
		metrics:      m,
		tracerName:   "flightcore/inventory-engine",
	}
}

// newReservationID generates a reservation id distinguishable from
// booking and flight ids.
func newReservationID() string {
	return "RES_" + uuid.New().String()
}

// Reserve atomically holds seats on every requested flight for the
// booking. All-or-nothing: insufficient seats on any leg leaves every
// flight untouched. Repeated calls for the same booking are no-ops
// returning the prior expiry.
func (e *Engine) Reserve(ctx context.Context, bookingID string, flightIDs []string, seats int, ttl time.Duration) ReserveResult {
	tr := otel.Tracer(e.tracerName)
	ctx, span := tr.Start(ctx, "InventoryEngine.Reserve")
	defer span.End()

	timer := prometheus.NewTimer(e.metrics.ReserveDuration)
	defer timer.ObserveDuration()

	result := e.reserve(ctx, bookingID, flightIDs, seats, ttl)
	e.metrics.ReserveOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	return result
}

func (e *Engine) reserve(ctx context.Context, bookingID string, flightIDs []string, seats int, ttl time.Duration) ReserveResult {
	existing, err := e.reservations.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return ReserveResult{Outcome: OutcomeInternal, Err: fmt.Errorf("failed to check existing reservations: %w", err)}
	}
	if len(existing) > 0 {
		return ReserveResult{Outcome: OutcomeAlreadyReserved, ExpiresAt: existing[0].ExpiresAt}
	}

	handle, err := e.locks.AcquireMany(ctx, flightIDs)
	if err != nil {
		e.log.Warn("reserve lock acquisition failed",
			zap.String("booking_id", bookingID),
			zap.Strings("flight_ids", flightIDs),
			zap.Error(err),
		)
		return ReserveResult{Outcome: OutcomeLockFailed}
	}
	defer e.locks.Release(ctx, handle)

	now := e.clock.Now()
	expiresAt := now.Add(ttl)

	var failedFlight string
	reservationIDs := make([]string, 0, len(flightIDs))
	err = e.tx.WithinTx(ctx, func(q database.Execer) error {
		for _, flightID := range flightIDs {
			ok, err := e.flights.ConditionalDecrement(ctx, q, flightID, seats)
			if err != nil {
				return err
			}
			if !ok {
				failedFlight = flightID
				return errInsufficientSeats
			}
		}

		for _, flightID := range flightIDs {
			res := &models.SeatReservation{
				ID:        newReservationID(),
				BookingID: bookingID,
				FlightID:  flightID,
				Seats:     seats,
				ExpiresAt: expiresAt,
				CreatedAt: now,
			}
			if err := e.reservations.Insert(ctx, q, res); err != nil {
				return err
			}
			reservationIDs = append(reservationIDs, res.ID)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errInsufficientSeats) {
			return ReserveResult{Outcome: OutcomeNoSeats, FailedFlightID: failedFlight}
		}
		return ReserveResult{Outcome: OutcomeInternal, Err: fmt.Errorf("reserve transaction failed: %w", err)}
	}

	// Still under the lock, after commit: repair the projection.
	e.refreshCache(ctx, flightIDs)

	return ReserveResult{Outcome: OutcomeSuccess, ExpiresAt: expiresAt, ReservationIDs: reservationIDs}
}

// Confirm commits the booking's hold after successful payment. The seats
// stay decremented; only the reservation rows are tombstoned. Returns
// false when no active unexpired reservation exists.
func (e *Engine) Confirm(ctx context.Context, bookingID string) (bool, error) {
	tr := otel.Tracer(e.tracerName)
	ctx, span := tr.Start(ctx, "InventoryEngine.Confirm")
	defer span.End()

	reservations, err := e.reservations.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		e.metrics.ConfirmOutcomes.WithLabelValues("error").Inc()
		return false, fmt.Errorf("failed to load reservations: %w", err)
	}
	if len(reservations) == 0 {
		e.metrics.ConfirmOutcomes.WithLabelValues("expired").Inc()
		return false, nil
	}

	now := e.clock.Now()
	for i := range reservations {
		if reservations[i].IsExpired(now) {
			e.metrics.ConfirmOutcomes.WithLabelValues("expired").Inc()
			return false, nil
		}
	}

	handle, err := e.locks.AcquireMany(ctx, flightIDsOf(reservations))
	if err != nil {
		e.metrics.ConfirmOutcomes.WithLabelValues("lock_failed").Inc()
		return false, nil
	}
	defer e.locks.Release(ctx, handle)

	err = e.tx.WithinTx(ctx, func(q database.Execer) error {
		_, err := e.reservations.SoftDeleteByBooking(ctx, q, bookingID, e.clock.Now())
		return err
	})
	if err != nil {
		e.metrics.ConfirmOutcomes.WithLabelValues("error").Inc()
		return false, fmt.Errorf("confirm transaction failed: %w", err)
	}

	e.metrics.ConfirmOutcomes.WithLabelValues("confirmed").Inc()
	return true, nil
}

// Release returns the booking's held seats to availability and tombstones
// its reservations. Returns false when nothing was held.
func (e *Engine) Release(ctx context.Context, bookingID string) (bool, error) {
	tr := otel.Tracer(e.tracerName)
	ctx, span := tr.Start(ctx, "InventoryEngine.Release")
	defer span.End()

	released, err := e.releaseBooking(ctx, bookingID)
	if err != nil {
		e.metrics.ReleaseOutcomes.WithLabelValues("error").Inc()
		return false, err
	}
	if !released {
		e.metrics.ReleaseOutcomes.WithLabelValues("noop").Inc()
		return false, nil
	}
	e.metrics.ReleaseOutcomes.WithLabelValues("released").Inc()
	return true, nil
}

func (e *Engine) releaseBooking(ctx context.Context, bookingID string) (bool, error) {
	reservations, err := e.reservations.FindActiveByBooking(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("failed to load reservations: %w", err)
	}
	if len(reservations) == 0 {
		return false, nil
	}

	flightIDs := flightIDsOf(reservations)

	handle, err := e.locks.AcquireMany(ctx, flightIDs)
	if err != nil {
		return false, fmt.Errorf("failed to acquire locks for release: %w", err)
	}
	defer e.locks.Release(ctx, handle)

	err = e.tx.WithinTx(ctx, func(q database.Execer) error {
		for i := range reservations {
			if err := e.flights.Increment(ctx, q, reservations[i].FlightID, reservations[i].Seats); err != nil {
				return err
			}
		}
		_, err := e.reservations.SoftDeleteByBooking(ctx, q, bookingID, e.clock.Now())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("release transaction failed: %w", err)
	}

	e.refreshCache(ctx, flightIDs)

	return true, nil
}

// HasActiveReservation reports whether the booking still holds seats.
func (e *Engine) HasActiveReservation(ctx context.Context, bookingID string) (bool, error) {
	return e.reservations.ExistsActive(ctx, bookingID)
}

// SweepExpired releases every reservation whose TTL has passed as of now.
// Bookings are processed independently: a failure on one is logged and
// does not block the rest; unfinished ones are retried next tick. Returns
// the number of bookings released.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) int {
	tr := otel.Tracer(e.tracerName)
	ctx, span := tr.Start(ctx, "InventoryEngine.SweepExpired")
	defer span.End()

	expired, err := e.reservations.FindExpired(ctx, now)
	if err != nil {
		e.log.Error("sweep failed to enumerate expired reservations", zap.Error(err))
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	// Group rows by booking to release each hold with one lock round.
	bookingIDs := make([]string, 0, len(expired))
	seen := make(map[string]struct{}, len(expired))
	for i := range expired {
		if _, dup := seen[expired[i].BookingID]; dup {
			continue
		}
		seen[expired[i].BookingID] = struct{}{}
		bookingIDs = append(bookingIDs, expired[i].BookingID)
	}

	released := 0
	for _, bookingID := range bookingIDs {
		ok, err := e.releaseBooking(ctx, bookingID)
		if err != nil {
			e.log.Warn("sweep failed to release booking",
				zap.String("booking_id", bookingID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			released++
			e.metrics.SweptBookings.Inc()
		}
	}

	if released > 0 {
		e.log.Info("sweep released expired reservations",
			zap.Int("bookings", released),
			zap.Time("as_of", now),
		)
	}

	return released
}

// refreshCache rewrites the cached seat counts from the flight store.
// Failures are logged only; a stale entry is repaired on the next
// operation or by a read-through.
func (e *Engine) refreshCache(ctx context.Context, flightIDs []string) {
	for _, flightID := range flightIDs {
		flight, err := e.flights.GetFlightByID(ctx, flightID)
		if err != nil {
			e.log.Warn("cache refresh read failed", zap.String("flight_id", flightID), zap.Error(err))
			continue
		}
		if err := e.cache.SetAvailableSeats(ctx, flightID, flight.AvailableSeats); err != nil {
			e.log.Warn("cache refresh write failed", zap.String("flight_id", flightID), zap.Error(err))
		}
	}
}

func flightIDsOf(reservations []models.SeatReservation) []string {
	ids := make([]string, len(reservations))
	for i := range reservations {
		ids[i] = reservations[i].FlightID
	}
	return ids
}
