// Package orchestrator exposes the public booking API, driving the
// CLAIM → PAY → CONFIRM lifecycle over the inventory engine.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"flightcore/internal/adapters"
	"flightcore/internal/apperr"
	"flightcore/internal/config"
	"flightcore/internal/inventory"
	"flightcore/internal/metrics"
	"flightcore/internal/models"
	"flightcore/internal/obslog"
	"flightcore/internal/repositories"
	"flightcore/internal/scheduler"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// BookingStore defines persistence operations used by Orchestrator.
type BookingStore interface {
	CreateBooking(ctx context.Context, booking *models.Booking, legs []string) (*models.Booking, error)
	GetBookingByID(ctx context.Context, bookingID string) (*models.Booking, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	GetBookingsByUserID(ctx context.Context, userID string) ([]models.Booking, error)
	FindPendingOlderThan(ctx context.Context, cutoff time.Time) ([]models.Booking, error)
	UpdateStatusFromPending(ctx context.Context, bookingID string, status models.BookingStatus) (bool, error)
	GetBookingLegs(ctx context.Context, bookingID string) ([]string, error)
}

// Inventory defines the engine operations used by Orchestrator.
type Inventory interface {
	Reserve(ctx context.Context, bookingID string, flightIDs []string, seats int, ttl time.Duration) inventory.ReserveResult
	Confirm(ctx context.Context, bookingID string) (bool, error)
	Release(ctx context.Context, bookingID string) (bool, error)
	HasActiveReservation(ctx context.Context, bookingID string) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) int
}

// Producer defines the Kafka producer operations used by Orchestrator.
type Producer interface {
	SendSeatUpdateEvent(ctx context.Context, event *models.SeatUpdateEvent) error
	SendPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Orchestrator coordinates booking creation, payment callbacks and the
// periodic reconciliation ticks.
type Orchestrator struct {
	bookings    BookingStore
	engine      Inventory
	search      adapters.SearchFacade
	payments    adapters.Payments
	producer    Producer
	cfg         *config.InventoryConfig
	clock       scheduler.Clock
	log         *obslog.Logger
	metrics     *metrics.Metrics
	callbackURL string
	tracerName  string
}

// New creates a new orchestrator
func New(
	bookings BookingStore,
	engine Inventory,
	search adapters.SearchFacade,
	payments adapters.Payments,
	producer Producer,
	cfg *config.InventoryConfig,
	clock scheduler.Clock,
	log *obslog.Logger,
	m *metrics.Metrics,
	callbackURL string,
) *Orchestrator {
	return &Orchestrator{
		bookings:    bookings,
		engine:      engine,
		search:      search,
		payments:    payments,
		producer:    producer,
		cfg:         cfg,
		clock:       clock,
		log:         log,
		metrics:     m,
		callbackURL: callbackURL,
		tracerName:  "flightcore/orchestrator",
	}
}

// newBookingID generates a booking id distinguishable from flight ids.
func newBookingID() string {
	return "BK_" + uuid.New().String()
}

// CreateBooking validates the request, resolves the flight identifier
// into legs, holds inventory, persists the booking and fires the payment
// request. The returned bool is false on an idempotent replay.
func (o *Orchestrator) CreateBooking(ctx context.Context, req *models.BookingRequest, idempotencyKey string) (*models.BookingEntry, bool, error) {
	tr := otel.Tracer(o.tracerName)
	ctx, span := tr.Start(ctx, "Orchestrator.CreateBooking")
	defer span.End()

	if !req.IsValid(o.cfg.MinSeatsPerBooking, o.cfg.MaxSeatsPerBooking) {
		o.metrics.BookingsCreated.WithLabelValues("invalid").Inc()
		return nil, false, apperr.Validation(
			"user_id and flight_identifier must be set and seats must be between %d and %d",
			o.cfg.MinSeatsPerBooking, o.cfg.MaxSeatsPerBooking,
		)
	}

	if idempotencyKey != "" {
		existing, err := o.bookings.FindByIdempotencyKey(ctx, idempotencyKey)
		if err == nil {
			return o.entryFor(ctx, existing), false, nil
		}
		if !errors.Is(err, repositories.ErrBookingNotFound) {
			return nil, false, apperr.Internal(err)
		}
	}

	resolution, err := o.search.Resolve(ctx, req.FlightIdentifier)
	if err != nil {
		o.metrics.BookingsCreated.WithLabelValues("resolve_failed").Inc()
		return nil, false, err
	}

	flightType := models.FlightTypeDirect
	if models.IsComputedRoute(req.FlightIdentifier) {
		flightType = models.FlightTypeComputed
	}
	totalPrice := resolution.UnitPrice.Mul(decimal.NewFromInt(int64(req.Seats)))

	bookingID := newBookingID()

	result := o.engine.Reserve(ctx, bookingID, resolution.Legs, req.Seats, o.cfg.ReserveTTL)
	switch result.Outcome {
	case inventory.OutcomeSuccess:
	case inventory.OutcomeNoSeats:
		o.metrics.BookingsCreated.WithLabelValues("no_seats").Inc()
		return nil, false, apperr.NoSeatsAvailable(result.FailedFlightID)
	case inventory.OutcomeLockFailed:
		o.metrics.BookingsCreated.WithLabelValues("lock_failed").Inc()
		return nil, false, apperr.LockFailed(resolution.Legs)
	default:
		// ALREADY_RESERVED cannot happen for a fresh booking id; treat it
		// like any other engine fault.
		o.metrics.BookingsCreated.WithLabelValues("internal").Inc()
		if result.Err != nil {
			return nil, false, apperr.Internal(result.Err)
		}
		return nil, false, apperr.Internal(errors.New("unexpected reserve outcome " + string(result.Outcome)))
	}

	booking := &models.Booking{
		BookingID:        bookingID,
		UserID:           req.UserID,
		FlightType:       flightType,
		FlightIdentifier: req.FlightIdentifier,
		NoOfSeats:        req.Seats,
		TotalPrice:       totalPrice,
		Status:           models.BookingStatusPending,
		IdempotencyKey:   idempotencyKey,
	}

	created, err := o.bookings.CreateBooking(ctx, booking, resolution.Legs)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateIdempotencyKey) {
			// Lost the race on the idempotency key: hand the seats back
			// and return the winner's booking.
			if _, relErr := o.engine.Release(ctx, bookingID); relErr != nil {
				o.log.Warn("failed to release inventory after idempotency collision",
					zap.String("booking_id", bookingID), zap.Error(relErr))
			}
			winner, findErr := o.bookings.FindByIdempotencyKey(ctx, idempotencyKey)
			if findErr != nil {
				return nil, false, apperr.Internal(findErr)
			}
			return o.entryFor(ctx, winner), false, nil
		}
		// The reservation TTL reclaims the held seats if this insert
		// failed for any other reason.
		o.metrics.BookingsCreated.WithLabelValues("internal").Inc()
		return nil, false, apperr.Internal(err)
	}

	o.emitSeatEvents(ctx, resolution.Legs, bookingID, req.Seats, "reserved")

	paymentReq := &adapters.PaymentRequest{
		BookingID:   bookingID,
		UserID:      req.UserID,
		Amount:      totalPrice,
		CallbackURL: o.callbackURL,
	}
	if err := o.payments.Request(ctx, paymentReq); err != nil {
		// Not fatal: the reservation TTL guarantees cleanup and the
		// reconciler will time the booking out.
		o.log.Warn("payment request failed",
			zap.String("booking_id", bookingID), zap.Error(err))
	}

	o.metrics.BookingsCreated.WithLabelValues("created").Inc()
	return created.Entry(resolution.Legs), true, nil
}

// GetBooking returns the booking projection for an id.
func (o *Orchestrator) GetBooking(ctx context.Context, bookingID string) (*models.BookingEntry, error) {
	booking, err := o.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrBookingNotFound) {
			return nil, apperr.NotFound("booking", bookingID)
		}
		return nil, apperr.Internal(err)
	}
	return o.entryFor(ctx, booking), nil
}

// GetUserBookings returns the booking projections for a user.
func (o *Orchestrator) GetUserBookings(ctx context.Context, userID string) ([]models.BookingEntry, error) {
	bookings, err := o.bookings.GetBookingsByUserID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	entries := make([]models.BookingEntry, 0, len(bookings))
	for i := range bookings {
		entries = append(entries, *o.entryFor(ctx, &bookings[i]))
	}
	return entries, nil
}

// HandlePaymentCallback reconciles a booking with the payment processor's
// terminal report. Duplicate callbacks no-op: the first to move the
// booking out of PENDING wins.
func (o *Orchestrator) HandlePaymentCallback(ctx context.Context, cb *models.PaymentCallback) error {
	tr := otel.Tracer(o.tracerName)
	ctx, span := tr.Start(ctx, "Orchestrator.HandlePaymentCallback")
	defer span.End()

	o.metrics.PaymentCallbacks.WithLabelValues(cb.Status).Inc()

	booking, err := o.bookings.GetBookingByID(ctx, cb.BookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrBookingNotFound) {
			return apperr.NotFound("booking", cb.BookingID)
		}
		return apperr.Internal(err)
	}

	if booking.Status != models.BookingStatusPending {
		o.log.Info("ignoring payment callback for settled booking",
			zap.String("booking_id", cb.BookingID),
			zap.String("status", string(booking.Status)),
		)
		return nil
	}

	switch cb.Status {
	case models.PaymentStatusSuccess:
		confirmed, err := o.engine.Confirm(ctx, cb.BookingID)
		if err != nil {
			return apperr.Internal(err)
		}
		status := models.BookingStatusConfirmed
		if !confirmed {
			// The hold expired before payment settled; the user retries.
			status = models.BookingStatusFailed
		}
		if _, err := o.bookings.UpdateStatusFromPending(ctx, cb.BookingID, status); err != nil {
			return apperr.Internal(err)
		}

	case models.PaymentStatusFailure, models.PaymentStatusTimeout:
		if _, err := o.bookings.UpdateStatusFromPending(ctx, cb.BookingID, models.BookingStatusFailed); err != nil {
			return apperr.Internal(err)
		}
		released, err := o.engine.Release(ctx, cb.BookingID)
		if err != nil {
			// Best-effort: the sweeper reclaims the hold after TTL.
			o.log.Warn("release after failed payment did not complete",
				zap.String("booking_id", cb.BookingID), zap.Error(err))
		}
		if released {
			if legs, err := o.bookings.GetBookingLegs(ctx, cb.BookingID); err == nil {
				o.emitSeatEvents(ctx, legs, cb.BookingID, booking.NoOfSeats, "released")
			}
		}

	default:
		o.log.Warn("ignoring payment callback with unknown status",
			zap.String("booking_id", cb.BookingID),
			zap.String("status", cb.Status),
		)
		return nil
	}

	event := &models.PaymentEvent{
		BookingID: cb.BookingID,
		PaymentID: cb.PaymentID,
		Amount:    booking.TotalPrice,
		Status:    cb.Status,
		Timestamp: o.clock.Now(),
	}
	if err := o.producer.SendPaymentEvent(ctx, event); err != nil {
		o.log.Warn("failed to send payment event", zap.Error(err))
	}

	return nil
}

// RunInventorySweep releases expired reservations. Scheduler task.
func (o *Orchestrator) RunInventorySweep(ctx context.Context) {
	o.engine.SweepExpired(ctx, o.clock.Now())
}

// RunBookingReconcile times out PENDING bookings whose inventory is gone.
// Scheduler task.
func (o *Orchestrator) RunBookingReconcile(ctx context.Context) {
	cutoff := o.clock.Now().Add(-o.cfg.ReserveTTL)

	pending, err := o.bookings.FindPendingOlderThan(ctx, cutoff)
	if err != nil {
		o.log.Error("reconcile failed to list pending bookings", zap.Error(err))
		return
	}

	for i := range pending {
		bookingID := pending[i].BookingID

		held, err := o.engine.HasActiveReservation(ctx, bookingID)
		if err != nil {
			o.log.Warn("reconcile failed to check reservation",
				zap.String("booking_id", bookingID), zap.Error(err))
			continue
		}
		if held {
			// Inventory not yet swept; revisit next tick.
			continue
		}

		updated, err := o.bookings.UpdateStatusFromPending(ctx, bookingID, models.BookingStatusTimeout)
		if err != nil {
			o.log.Warn("reconcile failed to time out booking",
				zap.String("booking_id", bookingID), zap.Error(err))
			continue
		}
		if updated {
			o.log.Info("booking timed out", zap.String("booking_id", bookingID))
		}
	}
}

func (o *Orchestrator) entryFor(ctx context.Context, booking *models.Booking) *models.BookingEntry {
	legs, err := o.bookings.GetBookingLegs(ctx, booking.BookingID)
	if err != nil {
		o.log.Warn("failed to load booking legs",
			zap.String("booking_id", booking.BookingID), zap.Error(err))
	}
	return booking.Entry(legs)
}

func (o *Orchestrator) emitSeatEvents(ctx context.Context, legs []string, bookingID string, seats int, operation string) {
	for _, flightID := range legs {
		event := &models.SeatUpdateEvent{
			FlightID:  flightID,
			BookingID: bookingID,
			Seats:     seats,
			Operation: operation,
			Timestamp: o.clock.Now(),
		}
		if err := o.producer.SendSeatUpdateEvent(ctx, event); err != nil {
			o.log.Warn("failed to send seat update event",
				zap.String("flight_id", flightID), zap.Error(err))
		}
	}
}
