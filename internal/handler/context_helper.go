package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/psychometric-api/internal/middleware"
	"github.com/noah-isme/psychometric-api/internal/models"
	"github.com/noah-isme/psychometric-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requestMeta carries client details into audit records.
func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

// respondCached writes a projection with cache_hit and processing_time_ms meta.
func respondCached(c *gin.Context, data interface{}, cacheHit bool) {
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ResponseMeta(c))
}
