package adapters

import (
	"context"
	"sync"
	"testing"

	"flightcore/internal/apperr"
	"flightcore/internal/models"
	"flightcore/internal/repositories"

	"github.com/shopspring/decimal"
)

// mockFlightReader implements FlightReader for testing.
type mockFlightReader struct {
	mu      sync.Mutex
	flights map[string]*models.Flight
	calls   int
}

func (m *mockFlightReader) GetFlightByID(ctx context.Context, flightID string) (*models.Flight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if flight, ok := m.flights[flightID]; ok {
		return flight, nil
	}
	return nil, repositories.ErrFlightNotFound
}

func activeFlight(id string, price int64) *models.Flight {
	return &models.Flight{
		FlightID: id,
		Price:    decimal.NewFromInt(price),
		Status:   models.FlightStatusActive,
	}
}

func TestLocalSearchFacade_ResolveDirect(t *testing.T) {
	reader := &mockFlightReader{flights: map[string]*models.Flight{
		"FL201": activeFlight("FL201", 2500),
	}}
	facade := NewLocalSearchFacade(reader)

	resolution, err := facade.Resolve(context.Background(), "FL201")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(resolution.Legs) != 1 || resolution.Legs[0] != "FL201" {
		t.Fatalf("unexpected legs: %v", resolution.Legs)
	}
	if !resolution.UnitPrice.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected unit price: %s", resolution.UnitPrice)
	}
}

func TestLocalSearchFacade_ResolveComputedRouteSumsLegPrices(t *testing.T) {
	reader := &mockFlightReader{flights: map[string]*models.Flight{
		"FL201": activeFlight("FL201", 2500),
		"FL305": activeFlight("FL305", 1800),
	}}
	facade := NewLocalSearchFacade(reader)
	facade.RegisterComputedRoute("CF_DEL_GOA", []string{"FL201", "FL305"})

	resolution, err := facade.Resolve(context.Background(), "CF_DEL_GOA")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if len(resolution.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(resolution.Legs))
	}
	if !resolution.UnitPrice.Equal(decimal.NewFromInt(4300)) {
		t.Fatalf("expected summed unit price 4300, got %s", resolution.UnitPrice)
	}
}

func TestLocalSearchFacade_UnknownComputedRoute(t *testing.T) {
	facade := NewLocalSearchFacade(&mockFlightReader{})

	_, err := facade.Resolve(context.Background(), "CF_NOWHERE")
	if !apperr.As(err, apperr.KindInvalidFlight) {
		t.Fatalf("expected INVALID_FLIGHT, got %v", err)
	}
}

func TestLocalSearchFacade_UnknownDirectFlight(t *testing.T) {
	facade := NewLocalSearchFacade(&mockFlightReader{})

	_, err := facade.Resolve(context.Background(), "FL999")
	if !apperr.As(err, apperr.KindInvalidFlight) {
		t.Fatalf("expected INVALID_FLIGHT, got %v", err)
	}
}

func TestLocalSearchFacade_CancelledFlightIsInvalid(t *testing.T) {
	cancelled := activeFlight("FL201", 2500)
	cancelled.Status = models.FlightStatusCancelled
	reader := &mockFlightReader{flights: map[string]*models.Flight{"FL201": cancelled}}
	facade := NewLocalSearchFacade(reader)

	_, err := facade.Resolve(context.Background(), "FL201")
	if !apperr.As(err, apperr.KindInvalidFlight) {
		t.Fatalf("expected INVALID_FLIGHT, got %v", err)
	}
}
