package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"flightcore/internal/models"
	"flightcore/pkg/database"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockReservationRepo(t *testing.T) (*ReservationRepository, sqlmock.Sqlmock, *database.DB, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	wrapped := &database.DB{DB: db}

	return NewReservationRepository(wrapped), mock, wrapped, func() { db.Close() }
}

func reservationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "booking_id", "flight_id", "seats", "expires_at", "created_at", "deleted_at",
	})
}

func TestReservationRepository_Insert(t *testing.T) {
	repo, mock, db, cleanup := newMockReservationRepo(t)
	defer cleanup()

	now := time.Now()
	res := &models.SeatReservation{
		ID:        "RES_1",
		BookingID: "BK_1",
		FlightID:  "FL201",
		Seats:     2,
		ExpiresAt: now.Add(5 * time.Minute),
		CreatedAt: now,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO seat_reservations")).
		WithArgs(res.ID, res.BookingID, res.FlightID, res.Seats, res.ExpiresAt, res.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Insert(context.Background(), db, res); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
}

func TestReservationRepository_FindActiveByBooking(t *testing.T) {
	repo, mock, _, cleanup := newMockReservationRepo(t)
	defer cleanup()

	now := time.Now()
	rows := reservationRows().
		AddRow("RES_1", "BK_1", "FL201", 2, now.Add(5*time.Minute), now, nil).
		AddRow("RES_2", "BK_1", "FL202", 2, now.Add(5*time.Minute), now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("deleted_at IS NULL")).
		WithArgs("BK_1").
		WillReturnRows(rows)

	reservations, err := repo.FindActiveByBooking(context.Background(), "BK_1")
	if err != nil {
		t.Fatalf("FindActiveByBooking returned error: %v", err)
	}
	if len(reservations) != 2 {
		t.Fatalf("expected 2 reservations, got %d", len(reservations))
	}
	if reservations[0].DeletedAt != nil {
		t.Fatal("expected active reservation to have nil deleted_at")
	}
}

func TestReservationRepository_ExistsActive(t *testing.T) {
	repo, mock, _, cleanup := newMockReservationRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("BK_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsActive(context.Background(), "BK_1")
	if err != nil {
		t.Fatalf("ExistsActive returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected active reservation to exist")
	}
}

func TestReservationRepository_SoftDeleteByBooking(t *testing.T) {
	repo, mock, db, cleanup := newMockReservationRepo(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("SET deleted_at = $1")).
		WithArgs(now, "BK_1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.SoftDeleteByBooking(context.Background(), db, "BK_1", now)
	if err != nil {
		t.Fatalf("SoftDeleteByBooking returned error: %v", err)
	}
	if affected != 2 {
		t.Fatalf("expected 2 rows affected, got %d", affected)
	}
}

func TestReservationRepository_FindExpired(t *testing.T) {
	repo, mock, _, cleanup := newMockReservationRepo(t)
	defer cleanup()

	now := time.Now()
	rows := reservationRows().
		AddRow("RES_1", "BK_1", "FL201", 2, now.Add(-time.Minute), now.Add(-6*time.Minute), nil)

	mock.ExpectQuery(regexp.QuoteMeta("expires_at <= $1")).
		WithArgs(now).
		WillReturnRows(rows)

	expired, err := repo.FindExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("FindExpired returned error: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired reservation, got %d", len(expired))
	}
	if !expired[0].IsExpired(now) {
		t.Fatal("expected reservation to report expired")
	}
}
