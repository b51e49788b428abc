package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/wms-platform/pick-floor/pkg/logging"
)

func newTestRouter(repo KeyRepository, calls *int, status *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware(&Config{ServiceName: "test", Repository: repo, Logger: logging.Discard()}))
	router.POST("/units/:unitId/claim", func(c *gin.Context) {
		*calls++
		c.JSON(*status, gin.H{"unitId": c.Param("unitId"), "call": *calls})
	})
	return router
}

func post(router *gin.Engine, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/units/WU-1/claim", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	calls, status := 0, http.StatusOK
	router := newTestRouter(NewMemoryKeyRepository(), &calls, &status)

	first := post(router, "claim-1", `{"pickerId":"p1"}`)
	second := post(router, "claim-1", `{"pickerId":"p1"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
}

func TestMiddleware_Cases(t *testing.T) {
	tests := []struct {
		name       string
		firstKey   string
		secondKey  string
		secondBody string
		wantStatus int
		wantCalls  int
	}{
		{name: "no key runs every time", secondBody: `{"pickerId":"p1"}`, wantStatus: http.StatusOK, wantCalls: 2},
		{name: "different keys run twice", firstKey: "a", secondKey: "b", secondBody: `{"pickerId":"p1"}`, wantStatus: http.StatusOK, wantCalls: 2},
		{name: "same key different body", firstKey: "a", secondKey: "a", secondBody: `{"pickerId":"p2"}`, wantStatus: http.StatusUnprocessableEntity, wantCalls: 1},
		{name: "invalid key", firstKey: "a", secondKey: "bad key!", secondBody: `{}`, wantStatus: http.StatusBadRequest, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, status := 0, http.StatusOK
			router := newTestRouter(NewMemoryKeyRepository(), &calls, &status)

			post(router, tt.firstKey, `{"pickerId":"p1"}`)
			w := post(router, tt.secondKey, tt.secondBody)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestMiddleware_ServerErrorIsNotCached(t *testing.T) {
	calls, status := 0, http.StatusInternalServerError
	router := newTestRouter(NewMemoryKeyRepository(), &calls, &status)

	post(router, "k", `{}`)
	status = http.StatusOK
	w := post(router, "k", `{}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, calls)
}

func TestMiddleware_InFlightKeyConflicts(t *testing.T) {
	repo := NewMemoryKeyRepository()
	now := time.Now()
	repo.records[RecordID("test", "busy")] = &Record{
		ID:                 RecordID("test", "busy"),
		RequestFingerprint: Fingerprint(http.MethodPost, "/units/WU-1/claim", []byte(`{}`)),
		LockedAt:           &now,
	}
	calls, status := 0, http.StatusOK
	router := newTestRouter(repo, &calls, &status)

	w := post(router, "busy", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, calls)
}
