package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cardscope/gradepipe/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grade-estimate-api",
		})
	})

	estimateHandler := handler.NewEstimateHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		estimates := v1.Group("/estimates")
		{
			// POST /api/v1/estimates - Create a new estimate job
			estimates.POST("", estimateHandler.CreateEstimate)

			// GET /api/v1/estimates/:job_id - Poll job status and results
			estimates.GET("/:job_id", estimateHandler.GetEstimate)
		}
	}

	return r
}
