package picker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/pick-floor/internal/application"
	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/middleware"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestClient_ClaimSendsPickerAndDecodesGroup(t *testing.T) {
	parent := claimedUnit(t, "WU-1", line("SKU-A", "A-01", 1))
	member := claimedUnit(t, "WU-2", line("SKU-B", "A-02", 1))

	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/units/WU-1/claim", r.URL.Path)
		assert.Equal(t, testPicker, r.Header.Get(middleware.HeaderPickerID))
		assert.Equal(t, "corr-7", r.Header.Get(middleware.HeaderCorrelationID))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		dto := application.ToUnitDTOWithMembers(parent, []*domain.WorkUnit{parent, member})
		writeJSON(w, http.StatusOK, dto)
	}))
	defer server.Close()

	client := NewClient(server.URL, testPicker)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-7")
	view, err := client.Claim(ctx, "WU-1")
	require.NoError(t, err)

	assert.Equal(t, testPicker, gotBody["pickerId"])
	assert.Equal(t, "WU-1", view.Unit.UnitID)
	assert.Equal(t, testPicker, view.Unit.ClaimedBy)
	require.Len(t, view.Members, 1)
	assert.Equal(t, "WU-2", view.Members[0].UnitID)
	assert.Equal(t, "SKU-B", view.Members[0].Items[0].SKU)
	assert.Len(t, view.All(), 2)
}

func TestClient_DecodesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, middleware.APIErrorResponse{
			Code:    errors.CodeClaimConflict,
			Message: "claimed by another picker",
			Details: map[string]string{"claimedBy": "picker-2"},
		})
	}))
	defer server.Close()

	_, err := NewClient(server.URL, testPicker).Claim(context.Background(), "WU-1")
	require.Error(t, err)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeClaimConflict, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Equal(t, "picker-2", appErr.Details["claimedBy"])
	assert.False(t, Retryable(err))
}

func TestClient_UpdateItemCarriesIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/units/WU-1/items/WU-1-01", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(2), body["pickedQuantity"])
		assert.Equal(t, "short", body["status"])
		assert.Equal(t, "damaged", body["reason"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"item": map[string]interface{}{"itemId": "WU-1-01", "sku": "SKU-A", "locationId": "A-01", "quantity": 3, "pickedQuantity": 2, "status": "short"},
			"reconciliation": domain.ReconciliationContext{
				Deducted: true, SKU: "SKU-A", LocationID: "A-01", BinCountNeeded: true,
				Replen: domain.ReplenInfo{Triggered: true, Quantity: 10},
			},
		})
	}))
	defer server.Close()

	result, err := NewClient(server.URL, testPicker).UpdateItem(context.Background(), "key-1", ItemUpdate{
		UnitID: "WU-1", ItemID: "WU-1-01", Picked: 2,
		Status: domain.ItemStatusShort, Method: domain.PickMethodShort, Reason: domain.ShortReasonDamaged,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusShort, result.Item.Status)
	assert.True(t, result.Reconciliation.BinCountNeeded)
	assert.Equal(t, 10, result.Reconciliation.Replen.Quantity)
	assert.Nil(t, result.Unit)
}

func TestClient_MissingReconciliationMeansNotDeducted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"item": map[string]interface{}{"itemId": "WU-1-01", "sku": "SKU-A", "locationId": "A-01"},
		})
	}))
	defer server.Close()

	result, err := NewClient(server.URL, testPicker).UpdateItem(context.Background(), "", ItemUpdate{UnitID: "WU-1", ItemID: "WU-1-01", Picked: 1})
	require.NoError(t, err)
	assert.False(t, result.Reconciliation.Deducted)
	assert.Equal(t, "SKU-A", result.Reconciliation.SKU)
}

func TestClient_QueueAndBinCount(t *testing.T) {
	unit := newUnit(t, "WU-1", line("SKU-A", "A-01", 1))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/queue":
			assert.Equal(t, testPicker, r.URL.Query().Get("pickerId"))
			assert.Equal(t, "all", r.URL.Query().Get("filter"))
			assert.Equal(t, "true", r.URL.Query().Get("includeCompleted"))
			writeJSON(w, http.StatusOK, application.ToUnitDTOs([]*domain.WorkUnit{unit}))
		case "/api/v1/bin-counts/confirm":
			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, testPicker, body["countedBy"])
			writeJSON(w, http.StatusOK, application.BinCountResultDTO{SKU: "SKU-A", LocationID: "A-01", Adjustment: -2, ReplenStatus: "triggered", ReplenTriggered: true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testPicker)
	units, err := client.FetchQueue(context.Background(), domain.QueueFilterAll, true)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, domain.UnitStatusReady, units[0].Status)

	result, err := client.ConfirmCount(context.Background(), "k", domain.BinCount{SKU: "SKU-A", LocationID: "A-01", ActualQuantity: 3})
	require.NoError(t, err)
	assert.Equal(t, -2, result.Adjustment)
	assert.Equal(t, domain.ReplenTriggered, result.ReplenStatus)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(errors.ErrServiceUnavailable("api")))
	assert.False(t, Retryable(errors.ErrValidation("bad")))
	assert.False(t, Retryable(errors.ErrClaimConflict("picker-2")))
}

func TestClient_TransportFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, testPicker).FetchQueue(context.Background(), "", false)
	require.Error(t, err)
	assert.True(t, Retryable(err))
}
