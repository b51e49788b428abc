package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wms-platform/pick-floor/pkg/errors"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/middleware"
)

const (
	// HeaderIdempotencyKey carries the client key
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store
	HeaderReplayed = "Idempotent-Replayed"

	DefaultRetentionPeriod = 24 * time.Hour
	DefaultLockTimeout     = time.Minute
	maxKeyLength           = 255
	maxResponseSize        = 1 << 20
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Config holds configuration for the idempotency middleware
type Config struct {
	ServiceName     string
	Repository      KeyRepository
	Logger          *logging.Logger
	RetentionPeriod time.Duration
	LockTimeout     time.Duration
}

// ValidateKey checks the key's length and alphabet
func ValidateKey(key string) error {
	if key == "" || len(key) > maxKeyLength || !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// Fingerprint hashes the method, path and body of a request
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays the stored response for a repeated Idempotency-Key on
// POST, PUT and PATCH. Requests without the header pass through.
func Middleware(config *Config) gin.HandlerFunc {
	if config.RetentionPeriod == 0 {
		config.RetentionPeriod = DefaultRetentionPeriod
	}
	if config.LockTimeout == 0 {
		config.LockTimeout = DefaultLockTimeout
	}
	logger := config.Logger.WithComponent("idempotency")

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if err := ValidateKey(key); err != nil {
			middleware.AbortWithAppError(c, errors.ErrBadRequest(err.Error()))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		ctx := c.Request.Context()
		now := time.Now().UTC()
		rec := &Record{
			ID:                 RecordID(config.ServiceName, key),
			Key:                key,
			ServiceID:          config.ServiceName,
			RequestPath:        c.Request.URL.Path,
			RequestMethod:      c.Request.Method,
			RequestFingerprint: Fingerprint(c.Request.Method, c.Request.URL.Path, body),
			Token:              uuid.New().String(),
			CreatedAt:          now,
			ExpiresAt:          now.Add(config.RetentionPeriod),
		}

		stored, acquired, err := config.Repository.AcquireLock(ctx, rec, now.Add(-config.LockTimeout))
		if err != nil {
			logger.WithError(err).Error("Failed to acquire idempotency key", "key", key)
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store"))
			return
		}

		if stored.RequestFingerprint != rec.RequestFingerprint {
			logger.Warn("Idempotency key reused with a different request", "key", key, "path", rec.RequestPath)
			middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyMismatch())
			return
		}

		if stored.IsCompleted() {
			for k, v := range stored.ResponseHeaders {
				c.Header(k, v)
			}
			c.Header(HeaderReplayed, "true")
			c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
			c.Abort()
			return
		}

		if !acquired {
			middleware.AbortWithAppError(c, errors.ErrConflict("a request with this idempotency key is still in progress"))
			return
		}

		writer := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer
		c.Next()

		status := writer.Status()
		if status >= http.StatusInternalServerError || writer.body.Len() > maxResponseSize {
			// let the client retry for real
			if err := config.Repository.ReleaseLock(ctx, stored.ID); err != nil {
				logger.WithError(err).Error("Failed to release idempotency key", "key", key)
			}
			return
		}

		headers := map[string]string{}
		if loc := writer.Header().Get("Location"); loc != "" {
			headers["Location"] = loc
		}
		if err := config.Repository.StoreResponse(ctx, stored.ID, status, writer.body.Bytes(), headers); err != nil {
			logger.WithError(err).Error("Failed to store idempotent response", "key", key)
		}
	}
}
