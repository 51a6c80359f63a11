package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"flightcore/internal/adapters"
	"flightcore/internal/cache"
	"flightcore/internal/config"
	"flightcore/internal/handlers"
	"flightcore/internal/inventory"
	"flightcore/internal/lock"
	"flightcore/internal/metrics"
	"flightcore/internal/obslog"
	"flightcore/internal/orchestrator"
	"flightcore/internal/repositories"
	"flightcore/internal/scheduler"
	"flightcore/pkg/database"
	"flightcore/pkg/kafka"
	"flightcore/pkg/redis"
	"flightcore/pkg/tracing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	// Load configuration
	cfg := config.Load()

	logger := obslog.New(obslog.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
	})
	defer logger.Sync()

	// Initialize tracing
	shutdownTracing, err := tracing.InitTracer(context.Background(), &cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	// Initialize database
	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize Redis
	redisClient := redis.NewClient(&cfg.Redis)
	defer redisClient.Close()

	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}

	// Initialize Kafka producer
	kafkaProducer := kafka.NewProducer(&cfg.Kafka)
	defer kafkaProducer.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	clock := scheduler.RealClock{}

	// Initialize repositories
	flightRepo := repositories.NewFlightRepository(db)
	reservationRepo := repositories.NewReservationRepository(db)
	bookingRepo := repositories.NewBookingRepository(db)

	// Initialize cache and flight mutex
	cacheService := cache.NewFlightCacheService(redisClient, &cfg.App)
	flightMutex := lock.NewFlightMutex(redisClient, clock, logger, m, lock.Options{
		LockTTL:    cfg.Inventory.LockTTL,
		WaitBudget: cfg.Inventory.LockWait,
		RetryDelay: cfg.Inventory.LockRetryDelay,
	})

	// Initialize inventory engine
	engine := inventory.NewEngine(flightRepo, reservationRepo, cacheService, flightMutex, db, clock, logger, m)

	// Initialize external adapters
	searchFacade := adapters.NewLocalSearchFacade(flightRepo)
	var payments adapters.Payments
	if cfg.Payments.Endpoint != "" {
		payments = adapters.NewHTTPPayments(cfg.Payments.Endpoint, cfg.Payments.RequestTimeout)
	} else {
		payments = adapters.NewSimulatedPayments(logger)
	}

	// Initialize orchestrator
	orch := orchestrator.New(
		bookingRepo, engine, searchFacade, payments, kafkaProducer,
		&cfg.Inventory, clock, logger, m, cfg.Payments.CallbackURL,
	)

	// Start background workers
	sched := scheduler.New(logger)
	sched.Every("inventory-sweep", cfg.Inventory.SweepInterval, orch.RunInventorySweep)
	sched.Every("booking-reconcile", cfg.Inventory.BookingReconcileInterval, orch.RunBookingReconcile)
	defer sched.Stop()

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(orch)
	inventoryHandler := handlers.NewInventoryHandler(engine, cfg.Inventory.ReserveTTL)

	// Setup routes
	router := setupRoutes(bookingHandler, inventoryHandler, registry)

	// Setup server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "flightcore-http"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func setupRoutes(bh *handlers.BookingHandler, ih *handlers.InventoryHandler, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()

	// API version prefix
	api := router.PathPrefix("/api/v1").Subrouter()

	// Booking routes
	api.HandleFunc("/bookings", bh.CreateBooking).Methods("POST")
	api.HandleFunc("/bookings/payment-callback", bh.PaymentCallback).Methods("POST")
	api.HandleFunc("/bookings/user/{userId}", bh.GetUserBookings).Methods("GET")
	api.HandleFunc("/bookings/{id}", bh.GetBooking).Methods("GET")

	// Inventory routes
	api.HandleFunc("/inventory/reserve", ih.Reserve).Methods("POST")
	api.HandleFunc("/inventory/confirm", ih.Confirm).Methods("POST")
	api.HandleFunc("/inventory/release/{bookingId}", ih.Release).Methods("DELETE")

	// Health check
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// Prometheus scrape endpoint
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	// Add middleware (order matters)
	router.Use(loggingMiddleware)
	router.Use(corsMiddleware)
	router.Use(rateLimitMiddleware)
	router.Use(throttleMiddleware)

	return router
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Simple per-IP rate limiter using golang.org/x/time/rate.
// Defaults: 10 requests/second with a burst of 20 per IP.
var (
	ipLimiters   = make(map[string]*rate.Limiter)
	ipLimitersMu sync.Mutex

	requestsPerSecond = rate.Limit(10)
	burstSize         = 20
)

func getIPLimiter(ip string) *rate.Limiter {
	ipLimitersMu.Lock()
	defer ipLimitersMu.Unlock()

	limiter, exists := ipLimiters[ip]
	if !exists {
		limiter = rate.NewLimiter(requestsPerSecond, burstSize)
		ipLimiters[ip] = limiter
	}
	return limiter
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if limiter := getIPLimiter(ip); !limiter.Allow() {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Too Many Requests"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// throttleMiddleware limits the total number of in-flight requests.
// Defaults: at most 100 concurrent requests across the server.
var (
	maxInFlight     = 100
	inFlightSem     = make(chan struct{}, maxInFlight)
	throttleTimeout = 0 * time.Second // can be made >0 to wait before rejecting
)

func throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if throttleTimeout <= 0 {
			select {
			case inFlightSem <- struct{}{}:
				defer func() { <-inFlightSem }()
				next.ServeHTTP(w, r)
			default:
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte("Server is busy, please try again later"))
			}
			return
		}

		select {
		case inFlightSem <- struct{}{}:
			defer func() { <-inFlightSem }()
			next.ServeHTTP(w, r)
		case <-time.After(throttleTimeout):
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("Server is busy, please try again later"))
		}
	})
}
