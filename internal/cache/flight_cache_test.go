package cache

import (
	"context"
	"testing"
	"time"

	"flightcore/internal/config"
	"flightcore/pkg/redis"

	"github.com/alicebob/miniredis/v2"
)

func newTestCache(t *testing.T) (*FlightCacheService, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClientFromAddr(srv.Addr())
	t.Cleanup(func() { client.Close() })

	cfg := &config.AppConfig{CacheTTL: time.Hour}
	return NewFlightCacheService(client, cfg), srv
}

func TestFlightCacheService_SetAndGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetAvailableSeats(ctx, "FL201", 98); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}

	seats, err := cache.GetAvailableSeats(ctx, "FL201")
	if err != nil {
		t.Fatalf("GetAvailableSeats returned error: %v", err)
	}
	if seats != 98 {
		t.Fatalf("expected 98 seats, got %d", seats)
	}
}

func TestFlightCacheService_IncrementDecrement(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetAvailableSeats(ctx, "FL201", 10); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}
	if err := cache.DecrementAvailableSeats(ctx, "FL201", 4); err != nil {
		t.Fatalf("DecrementAvailableSeats returned error: %v", err)
	}
	if err := cache.IncrementAvailableSeats(ctx, "FL201", 1); err != nil {
		t.Fatalf("IncrementAvailableSeats returned error: %v", err)
	}

	seats, err := cache.GetAvailableSeats(ctx, "FL201")
	if err != nil {
		t.Fatalf("GetAvailableSeats returned error: %v", err)
	}
	if seats != 7 {
		t.Fatalf("expected 7 seats, got %d", seats)
	}
}

func TestFlightCacheService_DeleteCachedSeats(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetAvailableSeats(ctx, "FL201", 5); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}
	if err := cache.DeleteCachedSeats(ctx, "FL201"); err != nil {
		t.Fatalf("DeleteCachedSeats returned error: %v", err)
	}

	if _, err := cache.GetAvailableSeats(ctx, "FL201"); err == nil {
		t.Fatal("expected miss after delete")
	}
}

func TestFlightCacheService_MinAcross(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetAvailableSeats(ctx, "FL201", 12); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}
	if err := cache.SetAvailableSeats(ctx, "FL305", 3); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}

	min, err := cache.MinAcross(ctx, []string{"FL201", "FL305"})
	if err != nil {
		t.Fatalf("MinAcross returned error: %v", err)
	}
	if min != 3 {
		t.Fatalf("expected min 3, got %d", min)
	}
}

func TestFlightCacheService_MinAcross_MissingFlightYieldsZero(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	if err := cache.SetAvailableSeats(ctx, "FL201", 12); err != nil {
		t.Fatalf("SetAvailableSeats returned error: %v", err)
	}

	min, err := cache.MinAcross(ctx, []string{"FL201", "FL999"})
	if err != nil {
		t.Fatalf("MinAcross returned error: %v", err)
	}
	if min != 0 {
		t.Fatalf("expected 0 for uncached flight, got %d", min)
	}
}
