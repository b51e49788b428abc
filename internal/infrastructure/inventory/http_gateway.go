package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/resilience"
	"github.com/wms-platform/pick-floor/pkg/tracing"
)

// HTTPConfig configures the remote inventory gateway
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreakerConfig
}

// DefaultHTTPConfig returns defaults for baseURL
func DefaultHTTPConfig(baseURL string) *HTTPConfig {
	return &HTTPConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
		Breaker: resilience.DefaultCircuitBreakerConfig("inventory-service"),
	}
}

// StatusError is a non-2xx answer from the inventory service
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory service returned %d: %s", e.StatusCode, e.Body)
}

// HTTPGateway is the remote inventory side, reached over HTTP through a
// circuit breaker. Server errors and transport failures are retried.
type HTTPGateway struct {
	config     *HTTPConfig
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	retry      *resilience.RetryConfig
	logger     *logging.Logger
}

// NewHTTPGateway creates a remote gateway
func NewHTTPGateway(config *HTTPConfig, logger *logging.Logger, m *metrics.Metrics) *HTTPGateway {
	retry := *config.Retry
	retry.Retryable = func(err error) bool {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return statusErr.StatusCode >= http.StatusInternalServerError
		}
		return !errors.Is(err, resilience.ErrCircuitOpen)
	}
	return &HTTPGateway{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker:    resilience.NewCircuitBreaker(config.Breaker, logger, m),
		retry:      &retry,
		logger:     logger.WithComponent("inventory-client"),
	}
}

type stockRequest struct {
	SKU        string `json:"sku"`
	LocationID string `json:"locationId"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
	ActorID    string `json:"actorId,omitempty"`
}

type countRequest struct {
	SKU            string `json:"sku"`
	LocationID     string `json:"locationId"`
	ActualQuantity int    `json:"actualQuantity"`
	CountedBy      string `json:"countedBy"`
}

func (g *HTTPGateway) Deduct(ctx context.Context, sku, locationID string, qty int, actorID string) (*domain.ReconciliationContext, error) {
	return g.stock(ctx, "/api/v1/inventory/deduct", stockRequest{SKU: sku, LocationID: locationID, Quantity: qty, ActorID: actorID})
}

func (g *HTTPGateway) Restore(ctx context.Context, sku, locationID string, qty int, actorID string) (*domain.ReconciliationContext, error) {
	return g.stock(ctx, "/api/v1/inventory/restore", stockRequest{SKU: sku, LocationID: locationID, Quantity: qty, ActorID: actorID})
}

func (g *HTTPGateway) ReportShort(ctx context.Context, sku, locationID string, picked int, reason domain.ShortReason, actorID string) (*domain.ReconciliationContext, error) {
	return g.stock(ctx, "/api/v1/inventory/shorts", stockRequest{SKU: sku, LocationID: locationID, Quantity: picked, Reason: string(reason), ActorID: actorID})
}

func (g *HTTPGateway) ConfirmCount(ctx context.Context, count domain.BinCount) (*domain.CountResult, error) {
	return g.count(ctx, "/api/v1/inventory/bin-counts/confirm", count)
}

func (g *HTTPGateway) SkipReplenishment(ctx context.Context, count domain.BinCount) (*domain.CountResult, error) {
	return g.count(ctx, "/api/v1/inventory/bin-counts/skip", count)
}

// stock posts a stock movement. The service answers 404 for a location it
// does not stock, which the floor treats as not deducted.
func (g *HTTPGateway) stock(ctx context.Context, path string, req stockRequest) (*domain.ReconciliationContext, error) {
	var rc domain.ReconciliationContext
	err := g.call(ctx, path, req, &rc)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return domain.NotDeducted(req.SKU, req.LocationID), nil
	}
	if err != nil {
		return nil, err
	}
	rc.SKU, rc.LocationID = req.SKU, req.LocationID
	return &rc, nil
}

func (g *HTTPGateway) count(ctx context.Context, path string, count domain.BinCount) (*domain.CountResult, error) {
	var result domain.CountResult
	err := g.call(ctx, path, countRequest{
		SKU:            count.SKU,
		LocationID:     count.LocationID,
		ActualQuantity: count.ActualQuantity,
		CountedBy:      count.CountedBy,
	}, &result)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, domain.ErrBinNotFound
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (g *HTTPGateway) call(ctx context.Context, path string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	err = resilience.Retry(ctx, g.retry, func() error {
		_, err := resilience.Call(ctx, g.breaker, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, g.doRequest(ctx, path, payload, result)
		})
		return err
	})
	if err != nil {
		g.logger.WithError(err).WithFields(map[string]any{"path": path}).Warn("Inventory call failed")
	}
	return err
}

func (g *HTTPGateway) doRequest(ctx context.Context, path string, payload []byte, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	tracing.InjectTraceContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
