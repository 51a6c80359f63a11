package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"flightcore/internal/apperr"
	"flightcore/internal/inventory"

	"github.com/gorilla/mux"
)

// InventoryEngine defines the engine operations the inventory HTTP
// surface dispatches to.
type InventoryEngine interface {
	Reserve(ctx context.Context, bookingID string, flightIDs []string, seats int, ttl time.Duration) inventory.ReserveResult
	Confirm(ctx context.Context, bookingID string) (bool, error)
	Release(ctx context.Context, bookingID string) (bool, error)
}

// InventoryHandler handles inventory-related HTTP requests
type InventoryHandler struct {
	engine     InventoryEngine
	defaultTTL time.Duration
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(engine InventoryEngine, defaultTTL time.Duration) *InventoryHandler {
	return &InventoryHandler{
		engine:     engine,
		defaultTTL: defaultTTL,
	}
}

// reserveRequest is the wire shape of a reserve call.
type reserveRequest struct {
	BookingID  string   `json:"booking_id"`
	FlightIDs  []string `json:"flight_ids"`
	Seats      int      `json:"seats"`
	TTLMinutes int      `json:"ttl_minutes"`
}

// confirmRequest is the wire shape of a confirm call.
type confirmRequest struct {
	BookingID string   `json:"booking_id"`
	FlightIDs []string `json:"flight_ids"`
	Seats     int      `json:"seats"`
}

// Reserve handles seat reservation requests
func (h *InventoryHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON payload"))
		return
	}

	if req.BookingID == "" || len(req.FlightIDs) == 0 || req.Seats < 1 {
		writeError(w, apperr.Validation("booking_id, flight_ids and a positive seats count are required"))
		return
	}

	ttl := h.defaultTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}

	result := h.engine.Reserve(r.Context(), req.BookingID, req.FlightIDs, req.Seats, ttl)
	switch result.Outcome {
	case inventory.OutcomeSuccess, inventory.OutcomeAlreadyReserved:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":         true,
			"reservation_ids": result.ReservationIDs,
			"expires_at":      result.ExpiresAt,
		})
	case inventory.OutcomeNoSeats:
		writeError(w, apperr.NoSeatsAvailable(result.FailedFlightID))
	case inventory.OutcomeLockFailed:
		writeError(w, apperr.LockFailed(req.FlightIDs))
	default:
		writeError(w, apperr.Internal(result.Err))
	}
}

// Confirm handles reservation confirmation after successful payment
func (h *InventoryHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid JSON payload"))
		return
	}
	if req.BookingID == "" {
		writeError(w, apperr.Validation("booking_id is required"))
		return
	}

	confirmed, err := h.engine.Confirm(r.Context(), req.BookingID)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	if !confirmed {
		writeJSON(w, http.StatusGone, map[string]string{"status": "expired"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

// Release handles returning a booking's held seats to availability
func (h *InventoryHandler) Release(w http.ResponseWriter, r *http.Request) {
	bookingID := mux.Vars(r)["bookingId"]
	if bookingID == "" {
		writeError(w, apperr.Validation("booking id is required"))
		return
	}

	// The flight_ids query parameter is accepted but not needed: the
	// engine derives the legs from the active reservation rows.
	released, err := h.engine.Release(r.Context(), bookingID)
	if err != nil {
		writeError(w, apperr.Internal(err))
		return
	}

	if !released {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}
