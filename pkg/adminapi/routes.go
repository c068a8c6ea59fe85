package adminapi

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// RegisterRoutes wires h's endpoints and the Swagger UI onto r.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.GET("/health", h.Health)
	api.GET("/stats", h.Stats)
	api.GET("/arp", h.Arp)
}
