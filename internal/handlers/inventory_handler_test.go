package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flightcore/internal/inventory"

	"github.com/gorilla/mux"
)

// mockEngine is a test double for InventoryEngine.
type mockEngine struct {
	reserveResult inventory.ReserveResult
	lastTTL       time.Duration

	confirmOK  bool
	confirmErr error

	releaseOK  bool
	releaseErr error
}

func (m *mockEngine) Reserve(ctx context.Context, bookingID string, flightIDs []string, seats int, ttl time.Duration) inventory.ReserveResult {
	m.lastTTL = ttl
	return m.reserveResult
}

func (m *mockEngine) Confirm(ctx context.Context, bookingID string) (bool, error) {
	return m.confirmOK, m.confirmErr
}

func (m *mockEngine) Release(ctx context.Context, bookingID string) (bool, error) {
	return m.releaseOK, m.releaseErr
}

func TestReserve_Success(t *testing.T) {
	engine := &mockEngine{reserveResult: inventory.ReserveResult{
		Outcome:        inventory.OutcomeSuccess,
		ExpiresAt:      time.Now().Add(5 * time.Minute),
		ReservationIDs: []string{"RES_1"},
	}}
	handler := NewInventoryHandler(engine, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{
		"booking_id": "BK_1", "flight_ids": []string{"FL201"}, "seats": 2, "ttl_minutes": 2,
	})
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Reserve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if engine.lastTTL != 2*time.Minute {
		t.Fatalf("expected ttl override of 2m, got %v", engine.lastTTL)
	}

	var response struct {
		Success        bool     `json:"success"`
		ReservationIDs []string `json:"reservation_ids"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !response.Success || len(response.ReservationIDs) != 1 {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestReserve_DefaultTTL(t *testing.T) {
	engine := &mockEngine{reserveResult: inventory.ReserveResult{Outcome: inventory.OutcomeSuccess}}
	handler := NewInventoryHandler(engine, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{
		"booking_id": "BK_1", "flight_ids": []string{"FL201"}, "seats": 1,
	})
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Reserve(rr, req)

	if engine.lastTTL != 5*time.Minute {
		t.Fatalf("expected default ttl 5m, got %v", engine.lastTTL)
	}
}

func TestReserve_ValidationFailure(t *testing.T) {
	handler := NewInventoryHandler(&mockEngine{}, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{"booking_id": "", "seats": 0})
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Reserve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestReserve_NoSeatsMapsTo409(t *testing.T) {
	engine := &mockEngine{reserveResult: inventory.ReserveResult{
		Outcome:        inventory.OutcomeNoSeats,
		FailedFlightID: "FL201",
	}}
	handler := NewInventoryHandler(engine, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{
		"booking_id": "BK_1", "flight_ids": []string{"FL201"}, "seats": 2,
	})
	req := httptest.NewRequest(http.MethodPost, "/inventory/reserve", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Reserve(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rr.Code)
	}
}

func TestConfirm_Confirmed(t *testing.T) {
	handler := NewInventoryHandler(&mockEngine{confirmOK: true}, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{"booking_id": "BK_1"})
	req := httptest.NewRequest(http.MethodPost, "/inventory/confirm", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Confirm(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestConfirm_ExpiredMapsTo410(t *testing.T) {
	handler := NewInventoryHandler(&mockEngine{confirmOK: false}, 5*time.Minute)

	body, _ := json.Marshal(map[string]interface{}{"booking_id": "BK_1"})
	req := httptest.NewRequest(http.MethodPost, "/inventory/confirm", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	handler.Confirm(rr, req)

	if rr.Code != http.StatusGone {
		t.Fatalf("expected status %d, got %d", http.StatusGone, rr.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response["status"] != "expired" {
		t.Fatalf("expected expired, got %s", response["status"])
	}
}

func TestRelease_Released(t *testing.T) {
	handler := NewInventoryHandler(&mockEngine{releaseOK: true}, 5*time.Minute)

	req := httptest.NewRequest(http.MethodDelete, "/inventory/release/BK_1?flight_ids=FL201", nil)
	req = mux.SetURLVars(req, map[string]string{"bookingId": "BK_1"})
	rr := httptest.NewRecorder()

	handler.Release(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRelease_NothingToRelease(t *testing.T) {
	handler := NewInventoryHandler(&mockEngine{releaseOK: false}, 5*time.Minute)

	req := httptest.NewRequest(http.MethodDelete, "/inventory/release/BK_1", nil)
	req = mux.SetURLVars(req, map[string]string{"bookingId": "BK_1"})
	rr := httptest.NewRecorder()

	handler.Release(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}
