// Package idempotency replays cached responses for repeated
// client-initiated mutations carrying the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poolcard/poolcard_service/internal/infrastructure/cache"
	"github.com/poolcard/poolcard_service/pkg/logger"
)

const (
	// HeaderIdempotencyKey is the HTTP header for idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// MaxBodySize is the maximum request body size considered (1MB)
	MaxBodySize = 1 << 20

	// DefaultTTL is how long a cached response stays replayable
	DefaultTTL = 24 * time.Hour

	maxKeyLength = 255
)

type cachedResponse struct {
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	RequestHash string `json:"request_hash"`
}

// responseWriter wraps gin.ResponseWriter to capture the response
type responseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func hashRequest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func cacheKey(method, path, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", method, path, key)
}

// Middleware replays cached responses for repeated keys. The header is
// optional; requests without it pass through untouched.
func Middleware(redis *cache.RedisClient, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch &&
			c.Request.Method != http.MethodDelete {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		if len(key) > maxKeyLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "idempotency key exceeds maximum length",
			})
			return
		}

		bodyBytes, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodySize))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "failed to read request body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		requestHash := hashRequest(bodyBytes)
		redisKey := cacheKey(c.Request.Method, c.Request.URL.Path, key)

		raw, found, err := redis.Get(c.Request.Context(), redisKey)
		if err != nil {
			// fail open: idempotency caching must not take the API down
			log.Error("idempotency cache lookup failed", "key", key, "error", err)
			c.Next()
			return
		}

		if found {
			var cached cachedResponse
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				if cached.RequestHash != requestHash {
					c.AbortWithStatusJSON(http.StatusConflict, gin.H{
						"error": "idempotency key reused with a different request body",
					})
					return
				}
				log.Info("replaying cached response", "key", key, "status", cached.Status)
				c.Data(cached.Status, "application/json", cached.Body)
				c.Abort()
				return
			}
		}

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer

		c.Next()

		// only successful outcomes are worth replaying
		if writer.status < 200 || writer.status >= 300 {
			return
		}

		entry, err := json.Marshal(cachedResponse{
			Status:      writer.status,
			Body:        writer.body.Bytes(),
			RequestHash: requestHash,
		})
		if err != nil {
			return
		}

		if err := redis.Set(c.Request.Context(), redisKey, string(entry), DefaultTTL); err != nil {
			log.Error("failed to store idempotent response", "key", key, "error", err)
		}
	}
}
