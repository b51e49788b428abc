package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/resilience"
)

func newTestHTTPGateway(url string) *HTTPGateway {
	config := DefaultHTTPConfig(url)
	config.Retry.InitialDelay = time.Millisecond
	config.Retry.MaxDelay = 2 * time.Millisecond
	config.Breaker.FailureThreshold = 2
	config.Breaker.Timeout = time.Hour
	return NewHTTPGateway(config, logging.Discard(), nil)
}

func TestHTTPGateway_Deduct(t *testing.T) {
	var got stockRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inventory/deduct", r.URL.Path)
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(domain.ReconciliationContext{
			Deducted:         true,
			SystemQuantity:   domain.StockLevel(4),
			ExpectedQuantity: domain.StockLevel(20),
			Replen:           domain.ReplenInfo{Triggered: true, Quantity: 16},
		})
	}))
	defer server.Close()

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	rc, err := newTestHTTPGateway(server.URL).Deduct(ctx, "SKU-001", "A-01-01", 2, "picker-1")
	require.NoError(t, err)

	assert.Equal(t, stockRequest{SKU: "SKU-001", LocationID: "A-01-01", Quantity: 2, ActorID: "picker-1"}, got)
	assert.True(t, rc.Deducted)
	assert.Equal(t, "SKU-001", rc.SKU)
	require.NotNil(t, rc.ExpectedQuantity)
	assert.Equal(t, 20, *rc.ExpectedQuantity)
	assert.True(t, rc.Replen.Triggered)
}

func TestHTTPGateway_ReportShort(t *testing.T) {
	var got stockRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/inventory/shorts", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(domain.ReconciliationContext{
			SystemQuantity: domain.StockLevel(10),
			BinCountNeeded: true,
		})
	}))
	defer server.Close()

	rc, err := newTestHTTPGateway(server.URL).ReportShort(context.Background(), "SKU-001", "A-01-01", 0, domain.ShortReasonNotFound, "picker-1")
	require.NoError(t, err)

	assert.Equal(t, stockRequest{SKU: "SKU-001", LocationID: "A-01-01", Reason: "not_found", ActorID: "picker-1"}, got)
	assert.False(t, rc.Deducted)
	assert.True(t, rc.BinCountNeeded)
	require.NotNil(t, rc.SystemQuantity)
	assert.Equal(t, 10, *rc.SystemQuantity)
}

func TestHTTPGateway_UnknownLocationIsNotDeducted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	rc, err := newTestHTTPGateway(server.URL).Deduct(context.Background(), "SKU-404", "Z-99", 1, "picker-1")
	require.NoError(t, err)
	assert.False(t, rc.Deducted)
	assert.Equal(t, "SKU-404", rc.SKU)
	assert.Nil(t, rc.SystemQuantity)
}

func TestHTTPGateway_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(domain.CountResult{SKU: "SKU-001", LocationID: "A-01-01", Adjustment: -1, OnHand: 6})
	}))
	defer server.Close()

	result, err := newTestHTTPGateway(server.URL).ConfirmCount(context.Background(), domain.BinCount{
		SKU: "SKU-001", LocationID: "A-01-01", ActualQuantity: 6, CountedBy: "picker-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, -1, result.Adjustment)
}

func TestHTTPGateway_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":"VALIDATION_ERROR"}`))
	}))
	defer server.Close()

	_, err := newTestHTTPGateway(server.URL).SkipReplenishment(context.Background(), domain.BinCount{SKU: "SKU-001", LocationID: "A-01-01"})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPGateway_CountUnknownBin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestHTTPGateway(server.URL).ConfirmCount(context.Background(), domain.BinCount{SKU: "SKU-404", LocationID: "A-01-01"})
	assert.ErrorIs(t, err, domain.ErrBinNotFound)
}

func TestHTTPGateway_BreakerOpensOnRepeatedFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	gateway := newTestHTTPGateway(server.URL)
	_, err := gateway.Restore(context.Background(), "SKU-001", "A-01-01", 1, "picker-1")
	require.Error(t, err)

	_, err = gateway.Restore(context.Background(), "SKU-001", "A-01-01", 1, "picker-1")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "the open breaker stops calls reaching the service")
}
