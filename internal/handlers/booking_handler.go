package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"flightcore/internal/apperr"
	"flightcore/internal/models"

	"github.com/gorilla/mux"
)

// BookingOrchestrator defines the booking operations the HTTP surface
// dispatches to. This allows the handlers to be unit tested with mocks.
type BookingOrchestrator interface {
	CreateBooking(ctx context.Context, req *models.BookingRequest, idempotencyKey string) (*models.BookingEntry, bool, error)
	GetBooking(ctx context.Context, bookingID string) (*models.BookingEntry, error)
	GetUserBookings(ctx context.Context, userID string) ([]models.BookingEntry, error)
	HandlePaymentCallback(ctx context.Context, cb *models.PaymentCallback) error
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	orchestrator BookingOrchestrator
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(orchestrator BookingOrchestrator) *BookingHandler {
	return &BookingHandler{
		orchestrator: orchestrator,
	}
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the shared error envelope for err.
func writeError(w http.ResponseWriter, err error) {
	envelope := apperr.ToEnvelope(err, time.Now().UTC())
	status := apperr.KindInternal.HTTPStatus()
	if ae, ok := err.(*apperr.Error); ok {
		status = ae.Kind.HTTPStatus()
	}
	writeJSON(w, status, envelope)
}

// CreateBooking handles booking creation requests. An idempotent replay
// under the same Idempotency-Key returns 200 instead of 201.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON payload"))
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	entry, created, err := h.orchestrator.CreateBooking(r.Context(), &req, idempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, entry)
}

// GetBooking handles getting a booking by ID
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["id"]

	entry, err := h.orchestrator.GetBooking(r.Context(), bookingID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// GetUserBookings handles getting bookings for a user
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	entries, err := h.orchestrator.GetUserBookings(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"bookings": entries,
		"count":    len(entries),
	}
	writeJSON(w, http.StatusOK, response)
}

// PaymentCallback handles the payment processor's asynchronous terminal
// report for a booking.
func (h *BookingHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb models.PaymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		writeError(w, apperr.Validation("invalid JSON payload"))
		return
	}
	if cb.BookingID == "" {
		writeError(w, apperr.Validation("booking_id is required"))
		return
	}

	if err := h.orchestrator.HandlePaymentCallback(r.Context(), &cb); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "PROCESSED"})
}
