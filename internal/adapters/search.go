// Package adapters holds the narrow interfaces the core consumes for
// route resolution and payment processing, plus their implementations.
package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"flightcore/internal/apperr"
	"flightcore/internal/models"
	"flightcore/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

// Resolution is the result of resolving a flight identifier: the ordered
// concrete legs and the per-seat price summed across them.
type Resolution struct {
	Legs      []string        `json:"legs"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SearchFacade resolves a flight identifier (direct flight id or CF_
// computed-route id) into legs and a unit price.
type SearchFacade interface {
	Resolve(ctx context.Context, identifier string) (*Resolution, error)
}

// FlightReader is the flight lookup LocalSearchFacade resolves direct
// identifiers against.
type FlightReader interface {
	GetFlightByID(ctx context.Context, flightID string) (*models.Flight, error)
}

// LocalSearchFacade resolves identifiers against the flight store and a
// registered computed-route table. Route search and graph precomputation
// live elsewhere; this facade only looks up what they produced.
type LocalSearchFacade struct {
	flights FlightReader

	mu     sync.RWMutex
	routes map[string][]string

	group singleflight.Group
}

// NewLocalSearchFacade creates a search facade over the flight store.
func NewLocalSearchFacade(flights FlightReader) *LocalSearchFacade {
	return &LocalSearchFacade{
		flights: flights,
		routes:  make(map[string][]string),
	}
}

// RegisterComputedRoute registers the ordered legs behind a CF_ id.
func (f *LocalSearchFacade) RegisterComputedRoute(routeID string, legs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[routeID] = append([]string(nil), legs...)
}

// Resolve resolves an identifier into legs and a unit price. Concurrent
// identical resolves collapse into one lookup.
func (f *LocalSearchFacade) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	v, err, _ := f.group.Do(identifier, func() (interface{}, error) {
		return f.resolve(ctx, identifier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resolution), nil
}

func (f *LocalSearchFacade) resolve(ctx context.Context, identifier string) (*Resolution, error) {
	var legs []string
	if models.IsComputedRoute(identifier) {
		f.mu.RLock()
		legs = f.routes[identifier]
		f.mu.RUnlock()
		if len(legs) == 0 {
			return nil, apperr.InvalidFlight(identifier)
		}
	} else {
		legs = []string{identifier}
	}

	unitPrice := decimal.Zero
	for _, flightID := range legs {
		flight, err := f.flights.GetFlightByID(ctx, flightID)
		if err != nil {
			if err == repositories.ErrFlightNotFound {
				return nil, apperr.InvalidFlight(identifier)
			}
			return nil, apperr.Unavailable("flight store", err)
		}
		if flight.Status != models.FlightStatusActive {
			return nil, apperr.InvalidFlight(identifier)
		}
		unitPrice = unitPrice.Add(flight.Price)
	}

	return &Resolution{Legs: legs, UnitPrice: unitPrice}, nil
}

// HTTPSearchFacade resolves identifiers against a remote search service,
// guarded by a circuit breaker so a flapping upstream trips open instead
// of stacking blocked requests.
type HTTPSearchFacade struct {
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	group      singleflight.Group
}

// NewHTTPSearchFacade creates a search facade client for endpoint.
func NewHTTPSearchFacade(endpoint string, timeout time.Duration) *HTTPSearchFacade {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search-facade",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &HTTPSearchFacade{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

// Resolve resolves an identifier via the remote search service.
func (f *HTTPSearchFacade) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	v, err, _ := f.group.Do(identifier, func() (interface{}, error) {
		return f.breaker.Execute(func() (interface{}, error) {
			return f.resolve(ctx, identifier)
		})
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperr.Unavailable("search service", err)
		}
		return nil, err
	}
	return v.(*Resolution), nil
}

func (f *HTTPSearchFacade) resolve(ctx context.Context, identifier string) (*Resolution, error) {
	payload, err := json.Marshal(map[string]string{"identifier": identifier})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resolve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint+"/v1/search/resolve", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build resolve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Unavailable("search service", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperr.InvalidFlight(identifier)
	default:
		return nil, apperr.Unavailable("search service", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var resolution Resolution
	if err := json.NewDecoder(resp.Body).Decode(&resolution); err != nil {
		return nil, fmt.Errorf("failed to decode resolve response: %w", err)
	}
	if len(resolution.Legs) == 0 {
		return nil, apperr.InvalidFlight(identifier)
	}

	return &resolution, nil
}
