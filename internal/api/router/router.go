package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/docconv/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger, "/health"))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "healthy",
			"service": "docconv-api-service",
		}
		if deps.DBHealth != nil {
			body["database"] = deps.DBHealth.Stats()
			if err := deps.DBHealth.HealthCheck(c.Request.Context()); err != nil {
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
		}
		c.JSON(http.StatusOK, body)
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// POST /upload - Submit a document for conversion
	r.POST("/upload", jobHandler.Upload)

	// GET /download/:task_id - Status and converted document
	r.GET("/download/:task_id", jobHandler.Download)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs in submission order
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	return r
}
