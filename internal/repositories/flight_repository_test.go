package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"flightcore/pkg/database"

	"github.com/DATA-DOG/go-sqlmock"
)

// helper to create a repository with sqlmock
func newMockFlightRepo(t *testing.T) (*FlightRepository, sqlmock.Sqlmock, *database.DB, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	wrapped := &database.DB{DB: db}

	cleanup := func() {
		db.Close()
	}

	return NewFlightRepository(wrapped), mock, wrapped, cleanup
}

func flightRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"flight_id", "source", "destination", "departure_time", "arrival_time",
		"total_seats", "available_seats", "price", "status", "version",
		"created_at", "updated_at",
	})
}

func TestFlightRepository_GetFlightByID_Success(t *testing.T) {
	repo, mock, _, cleanup := newMockFlightRepo(t)
	defer cleanup()

	now := time.Now()
	rows := flightRows().AddRow(
		"FL201", "Delhi", "Mumbai", now, now.Add(2*time.Hour),
		180, 100, "2500", "ACTIVE", 1, now, now,
	)

	mock.ExpectQuery(regexp.QuoteMeta("FROM flights")).
		WithArgs("FL201").
		WillReturnRows(rows)

	flight, err := repo.GetFlightByID(context.Background(), "FL201")
	if err != nil {
		t.Fatalf("GetFlightByID returned error: %v", err)
	}

	if flight.FlightID != "FL201" {
		t.Fatalf("expected flight FL201, got %s", flight.FlightID)
	}
	if flight.AvailableSeats != 100 {
		t.Fatalf("expected 100 available seats, got %d", flight.AvailableSeats)
	}
}

func TestFlightRepository_GetFlightByID_NotFound(t *testing.T) {
	repo, mock, _, cleanup := newMockFlightRepo(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM flights")).
		WithArgs("FL999").
		WillReturnError(sql.ErrNoRows)

	flight, err := repo.GetFlightByID(context.Background(), "FL999")
	if err != ErrFlightNotFound {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}

	if flight != nil {
		t.Fatalf("expected nil flight, got %+v", flight)
	}
}

func TestFlightRepository_ConditionalDecrement_Success(t *testing.T) {
	repo, mock, db, cleanup := newMockFlightRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("available_seats = available_seats - $1")).
		WithArgs(2, sqlmock.AnyArg(), "FL201").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.ConditionalDecrement(context.Background(), db, "FL201", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !updated {
		t.Fatal("expected decrement to report updated")
	}
}

func TestFlightRepository_ConditionalDecrement_Insufficient(t *testing.T) {
	repo, mock, db, cleanup := newMockFlightRepo(t)
	defer cleanup()

	// No matching row: available_seats < requested.
	mock.ExpectExec(regexp.QuoteMeta("available_seats = available_seats - $1")).
		WithArgs(5, sqlmock.AnyArg(), "FL201").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.ConditionalDecrement(context.Background(), db, "FL201", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated {
		t.Fatal("expected decrement to report not updated")
	}
}

func TestFlightRepository_Increment_ClampsAtTotal(t *testing.T) {
	repo, mock, db, cleanup := newMockFlightRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("LEAST(total_seats, available_seats + $1)")).
		WithArgs(3, sqlmock.AnyArg(), "FL201").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Increment(context.Background(), db, "FL201", 3); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestFlightRepository_Increment_UnknownFlight(t *testing.T) {
	repo, mock, db, cleanup := newMockFlightRepo(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("LEAST(total_seats, available_seats + $1)")).
		WithArgs(3, sqlmock.AnyArg(), "FL999").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Increment(context.Background(), db, "FL999", 3); err != ErrFlightNotFound {
		t.Fatalf("expected ErrFlightNotFound, got %v", err)
	}
}

func TestFlightRepository_ListActiveFlights(t *testing.T) {
	repo, mock, _, cleanup := newMockFlightRepo(t)
	defer cleanup()

	now := time.Now()
	rows := flightRows().
		AddRow("FL101", "Delhi", "Goa", now, now.Add(time.Hour), 180, 10, "4000", "ACTIVE", 1, now, now).
		AddRow("FL201", "Delhi", "Mumbai", now, now.Add(2*time.Hour), 180, 100, "2500", "ACTIVE", 1, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = 'ACTIVE'")).
		WillReturnRows(rows)

	flights, err := repo.ListActiveFlights(context.Background())
	if err != nil {
		t.Fatalf("ListActiveFlights returned error: %v", err)
	}
	if len(flights) != 2 {
		t.Fatalf("expected 2 flights, got %d", len(flights))
	}
}
