package routes

import (
	"task-tracker/internal/controller"
	"task-tracker/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Router(tasks *controller.TaskController, health *controller.HealthController) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics(), middleware.AccessLog())

	// Health for load balancers and K8s probes
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// All task operations take their input from the JSON body
	api := router.Group("/api")
	{
		api.POST("/tasks", tasks.CreateTask)
		api.POST("/tasks/stage", tasks.UpdateTaskStage)
		api.POST("/tasks/filter", tasks.GetAllUserTasksByFilter)
		api.POST("/tasks/all", tasks.GetAllUserTasks)
		api.POST("/tasks/one", tasks.GetCurrentTask)
		api.POST("/tasks/delete", tasks.DeleteTask)
		api.POST("/tasks/graph/day", tasks.CreateGraphByFilterForDay)
		api.POST("/tasks/graph/week", tasks.CreateGraphByFilterForWeek)
		api.POST("/tasks/graph/month", tasks.CreateGraphByFilterForMonth)
	}

	return router
}
