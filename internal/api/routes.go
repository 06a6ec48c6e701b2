package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter wires all routes onto a gin engine.
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/stats/dedup", handler.GetDedupStats)
		apiGroup.POST("/listings/:id/process", handler.ProcessListing)
		apiGroup.GET("/listings/:id/candidates", handler.GetListingCandidates)
		apiGroup.POST("/candidates/:id/resolve", handler.ResolveCandidate)
		apiGroup.POST("/candidates/:id/reject", handler.RejectCandidate)
		apiGroup.GET("/properties/:id", handler.GetProperty)
	}

	return router
}
