package router

import (
	"signup-service/internal/api/handlers"
	"signup-service/internal/api/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups the HTTP handlers mounted by NewRouter.
type Handlers struct {
	SignUp *handlers.SignUpHandler
	User   *handlers.UserHandler
	Health *handlers.HealthHandler
}

func NewRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(cors.New(corsConfig()))
	r.Use(gin.Recovery())
	r.Use(middleware.Actor())

	r.GET("/health", h.Health.HealthCheck)
	r.GET("/ready", h.Health.ReadinessCheck)
	r.GET("/live", h.Health.LivenessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		events := v1.Group("/events")
		{
			events.GET("/:id", h.SignUp.GetEvent)
			events.GET("/:id/availability", h.SignUp.GetAvailability)

			authed := events.Group("", middleware.RequireActor())
			authed.POST("", h.SignUp.CreateEvent)
			authed.POST("/:id/sign-up", h.SignUp.SignUp)
			authed.POST("/:id/retract", h.SignUp.RetractSignUp)
			authed.GET("/:id/waitlist-position", h.SignUp.GetWaitlistPosition)
			authed.GET("/:id/sign-ups", h.SignUp.ListSignUps)
			authed.GET("/:id/stats", h.SignUp.GetStats)
		}

		signUps := v1.Group("/sign-ups", middleware.RequireActor())
		{
			signUps.DELETE("/:id", h.SignUp.RemoveSignUp)
		}

		users := v1.Group("/users")
		{
			users.POST("", h.User.CreateUser)
			users.GET("", h.User.ListUsers)
			users.GET("/:id", h.User.GetUser)
		}

		organizations := v1.Group("/organizations")
		{
			organizations.POST("/:id/members", h.User.AddMember)
		}
	}
	return r
}

func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowHeaders = append(cfg.AllowHeaders, middleware.ActorHeader, middleware.RequestIDHeader)
	cfg.ExposeHeaders = append(cfg.ExposeHeaders, middleware.RequestIDHeader)
	return cfg
}
