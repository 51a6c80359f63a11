package cache

import (
	"context"
	"strconv"

	"flightcore/internal/config"
	"flightcore/internal/models"
	"flightcore/pkg/redis"
)

// FlightCacheService maintains the denormalized seat-availability cache.
// It is a disposable projection of the flight store: the engine rewrites
// entries after every committed mutation, and consumers repopulate on a
// miss. Staleness of a few seconds is acceptable for search.
type FlightCacheService struct {
	redisClient *redis.Client
	config      *config.AppConfig
}

// NewFlightCacheService creates a new flight cache service
func NewFlightCacheService(redisClient *redis.Client, config *config.AppConfig) *FlightCacheService {
	return &FlightCacheService{
		redisClient: redisClient,
		config:      config,
	}
}

// GetAvailableSeats gets available seats for a flight from cache
func (s *FlightCacheService) GetAvailableSeats(ctx context.Context, flightID string) (int, error) {
	seats, err := s.redisClient.GetInt(ctx, models.SeatCacheKey(flightID))
	if err != nil {
		return 0, err
	}
	return int(seats), nil
}

// SetAvailableSeats sets available seats for a flight in cache
func (s *FlightCacheService) SetAvailableSeats(ctx context.Context, flightID string, seats int) error {
	return s.redisClient.SetJSON(ctx, models.SeatCacheKey(flightID), seats, s.config.CacheTTL)
}

// IncrementAvailableSeats increments the cached seat count for a flight
func (s *FlightCacheService) IncrementAvailableSeats(ctx context.Context, flightID string, increment int) error {
	_, err := s.redisClient.IncrBy(ctx, models.SeatCacheKey(flightID), int64(increment))
	return err
}

// DecrementAvailableSeats decrements the cached seat count for a flight
func (s *FlightCacheService) DecrementAvailableSeats(ctx context.Context, flightID string, decrement int) error {
	_, err := s.redisClient.IncrBy(ctx, models.SeatCacheKey(flightID), -int64(decrement))
	return err
}

// DeleteCachedSeats removes cached seat information
func (s *FlightCacheService) DeleteCachedSeats(ctx context.Context, flightID string) error {
	return s.redisClient.Delete(ctx, models.SeatCacheKey(flightID))
}

// MinAcross returns the minimum cached seat count across the given
// flights. Any flight without a cached value collapses the result to 0,
// signalling the caller to read through to the flight store.
func (s *FlightCacheService) MinAcross(ctx context.Context, flightIDs []string) (int, error) {
	if len(flightIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, len(flightIDs))
	for i, id := range flightIDs {
		keys[i] = models.SeatCacheKey(id)
	}

	values, err := s.redisClient.MGet(ctx, keys...)
	if err != nil {
		return 0, err
	}

	min := -1
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			return 0, nil
		}
		seats, err := strconv.Atoi(str)
		if err != nil {
			return 0, nil
		}
		if min < 0 || seats < min {
			min = seats
		}
	}

	if min < 0 {
		return 0, nil
	}
	return min, nil
}
