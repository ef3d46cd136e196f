package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poolcard/poolcard_service/internal/infrastructure/cache"
	"github.com/poolcard/poolcard_service/internal/infrastructure/database"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db    *database.DB
	redis *cache.RedisClient
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, redis *cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Live handles GET /health
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// Ready handles GET /health/ready: the service is ready when its
// dependencies answer
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := h.db.PingContext(c.Request.Context()); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": checks})
}
