package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"flightcore/internal/apperr"
	"flightcore/internal/models"
	"flightcore/internal/obslog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// PaymentRequest is the fire-and-forget request handed to the payment
// processor. The processor reports its terminal outcome later by POSTing
// a PaymentCallback to CallbackURL.
type PaymentRequest struct {
	BookingID   string          `json:"booking_id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	CallbackURL string          `json:"callback_url"`
}

// Payments requests asynchronous payment processing.
type Payments interface {
	Request(ctx context.Context, req *PaymentRequest) error
}

// HTTPPayments submits payment requests to an external processor over
// HTTP, guarded by a circuit breaker.
type HTTPPayments struct {
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPPayments creates a payments client for endpoint.
func NewHTTPPayments(endpoint string, timeout time.Duration) *HTTPPayments {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payments",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &HTTPPayments{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
	}
}

// Request submits the payment request. The terminal outcome arrives
// asynchronously on the callback endpoint, never here.
func (p *HTTPPayments) Request(ctx context.Context, req *PaymentRequest) error {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		return nil, p.submit(ctx, req)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.Unavailable("payment service", err)
	}
	return err
}

func (p *HTTPPayments) submit(ctx context.Context, req *PaymentRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Unavailable("payment service", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return apperr.Unavailable("payment service", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return nil
}

// SimulatedPayments is an in-process payment processor for standalone
// runs and tests. It sleeps for a processing delay, rolls an outcome
// against configured failure and timeout rates, then POSTs the callback
// the way the real processor would.
type SimulatedPayments struct {
	failureRate    float64
	timeoutRate    float64
	processingTime time.Duration
	httpClient     *http.Client
	log            *obslog.Logger
}

// NewSimulatedPayments creates a simulated payment processor.
func NewSimulatedPayments(log *obslog.Logger) *SimulatedPayments {
	return &SimulatedPayments{
		failureRate:    0.15,
		timeoutRate:    0.05,
		processingTime: 2 * time.Second,
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		log:            log,
	}
}

// Request schedules a simulated payment and returns immediately.
func (p *SimulatedPayments) Request(ctx context.Context, req *PaymentRequest) error {
	go p.process(req)
	return nil
}

func (p *SimulatedPayments) process(req *PaymentRequest) {
	time.Sleep(p.processingTime)

	roll := rand.Float64()
	callback := models.PaymentCallback{
		BookingID: req.BookingID,
		PaymentID: uuid.New().String(),
	}
	switch {
	case roll < p.timeoutRate:
		callback.Status = models.PaymentStatusTimeout
		callback.Message = "payment gateway timeout"
	case roll < p.timeoutRate+p.failureRate:
		callback.Status = models.PaymentStatusFailure
		callback.Message = "payment declined"
	default:
		callback.Status = models.PaymentStatusSuccess
	}

	payload, err := json.Marshal(callback)
	if err != nil {
		p.log.Error("simulated payment marshal failed", zap.Error(err))
		return
	}

	resp, err := p.httpClient.Post(req.CallbackURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		p.log.Warn("simulated payment callback delivery failed",
			zap.String("booking_id", req.BookingID),
			zap.Error(err),
		)
		return
	}
	resp.Body.Close()
}
