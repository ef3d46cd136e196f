// Package handlers contains the gin HTTP handlers for the wallet card
// platform API.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poolcard/poolcard_service/internal/domain/entities"
)

// getUserID extracts and validates the authenticated user id from context
func getUserID(c *gin.Context) (uuid.UUID, error) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, fmt.Errorf("user ID not found in context")
	}

	switch v := userIDVal.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		return uuid.Parse(v)
	default:
		return uuid.Nil, fmt.Errorf("invalid user ID type in context")
	}
}

// pathUUID parses a UUID path parameter
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		SendBadRequest(c, ErrCodeInvalidID, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// pagination reads limit/offset query params with the shared defaults
func pagination(c *gin.Context) entities.Pagination {
	p := entities.Pagination{
		Limit:  parseIntParam(c, "limit", 0),
		Offset: parseIntParam(c, "offset", 0),
	}
	p.Normalize()
	return p
}

// parseIntParam parses a query parameter to int with a default value
func parseIntParam(c *gin.Context, param string, defaultVal int) int {
	if val := c.Query(param); val != "" {
		var i int
		if _, err := fmt.Sscanf(val, "%d", &i); err == nil {
			return i
		}
	}
	return defaultVal
}

// respondSuccess sends a 200 OK response with data
func respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// respondCreated sends a 201 Created response with data
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}
