// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/cursedboard/cursedboard-go/internal/application/container"
	"github.com/cursedboard/cursedboard-go/internal/presentation/http/handlers"
	"github.com/cursedboard/cursedboard-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	ritualHandlers := handlers.NewRitualHandlers(container.Engine, container.Logger)
	wsHandlers := handlers.NewWSHandlers(container.Engine, container.Logger)
	adminHandlers := handlers.NewAdminHandlers(container.Engine, container.Logger)
	healthHandlers := handlers.NewHealthHandlers(container.Store)

	r.GET("/health", healthHandlers.GetHealth)
	r.GET("/ready", healthHandlers.GetReady)

	// The anomaly channel; visitor identity resolves before upgrade.
	r.GET("/ws", middleware.VisitorMiddleware(container.Engine, container.Logger), wsHandlers.Connect)

	api := r.Group("/api/v1")
	{
		ritualAPI := api.Group("/ritual")
		ritualAPI.Use(middleware.VisitorMiddleware(container.Engine, container.Logger))
		{
			ritualAPI.GET("/state", ritualHandlers.GetState)
			ritualAPI.POST("/view/thread/:id", ritualHandlers.PostThreadView)
			ritualAPI.POST("/view/post/:id", ritualHandlers.PostPostView)
			ritualAPI.POST("/activity", ritualHandlers.PostActivity)
			ritualAPI.POST("/mutate/posts", ritualHandlers.PostMutatePosts)
			ritualAPI.POST("/mutate/thread", ritualHandlers.PostMutateThread)
			ritualAPI.GET("/ghost/:id", ritualHandlers.GetGhostPost)
		}

		adminAPI := api.Group("/admin")
		{
			adminAPI.POST("/login", adminHandlers.Login)

			adminAPI.Use(middleware.AdminMiddleware())
			{
				adminAPI.POST("/anomaly", adminHandlers.PostAnomaly)
				adminAPI.POST("/broadcast", adminHandlers.PostBroadcast)
				adminAPI.POST("/reset/:id", adminHandlers.PostReset)
				adminAPI.POST("/progress", adminHandlers.PostProgress)
				adminAPI.GET("/visitor/:id", adminHandlers.GetVisitor)
				adminAPI.GET("/connections", adminHandlers.GetConnections)
				adminAPI.GET("/queue/:id", adminHandlers.GetQueue)
				adminAPI.GET("/metrics", adminHandlers.GetMetrics)
			}
		}
	}

	return r
}
