package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kaiwen/pricewatch/internal/api/handler"
	"github.com/kaiwen/pricewatch/internal/api/middleware"
	"github.com/kaiwen/pricewatch/internal/repository"
	"github.com/kaiwen/pricewatch/internal/service"
)

// RouterDeps bundles the services the router wires into handlers. Scheduler
// may be nil; its routes are omitted then.
type RouterDeps struct {
	Jobs      *service.JobService
	Reporter  *service.ReportService
	Scheduler *service.Scheduler
	UPCRepo   *repository.UPCRepository
	CORS      middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler()
	upcHandler := handler.NewUPCHandler(deps.UPCRepo)
	jobHandler := handler.NewJobHandler(deps.Jobs, deps.Reporter, deps.UPCRepo)
	batchHandler := handler.NewBatchHandler(deps.Jobs)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// UPC store
		v1.POST("/upcs", upcHandler.AddUPCs)
		v1.GET("/upcs", upcHandler.ListUPCs)
		v1.DELETE("/upcs/:upc", upcHandler.DeleteUPC)

		// Jobs
		v1.POST("/jobs", jobHandler.CreateJob)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.GET("/jobs/:id", jobHandler.GetJob)
		v1.GET("/jobs/:id/status", jobHandler.GetJobStatus)
		v1.POST("/jobs/:id/trigger", jobHandler.TriggerJob)
		v1.GET("/jobs/:id/alerts", jobHandler.ListJobAlerts)
		v1.GET("/jobs/:id/report", jobHandler.DownloadJobReport)

		// Batches
		v1.GET("/batches/:id", batchHandler.GetBatch)
		v1.GET("/batches/:id/items", batchHandler.ListBatchItems)
		v1.POST("/batches/:id/stop", batchHandler.StopBatch)

		// Scheduler
		if deps.Scheduler != nil {
			schedulerHandler := handler.NewSchedulerHandler(deps.Scheduler)
			v1.GET("/scheduler", schedulerHandler.GetSchedule)
			v1.PUT("/scheduler", schedulerHandler.UpdateSchedule)
		}
	}

	return r
}
