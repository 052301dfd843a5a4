package main

import (
	"context"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"crm-service/internal/blob"
	"crm-service/internal/handler"
	"crm-service/internal/middleware"
	"crm-service/internal/store"
	"crm-service/pkg/config"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting CRM service...", cfg.LogConfig()...)

	// Open the entity store
	st := store.NewStore(cfg.Store.Path).WithLogger(log).WithOpenTimeout(cfg.Store.OpenTimeout)
	if err := st.Open(context.Background()); err != nil {
		log.Fatal("Failed to open entity store", zap.Error(err))
	}
	defer st.Close()

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	h := &handler.Handler{
		Store:      st,
		Blob:       blob.NewMemoryStore(cfg.Blob.Bucket),
		Extractor:  blob.NopExtractor{},
		PresignTTL: cfg.Blob.PresignTTL,
	}

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes - no authentication required
	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", h.MetricsHandler)

	// Authentication routes
	auth := e.Group("/auth")
	auth.POST("/signup", h.Signup)
	auth.POST("/login", h.Login)

	// Public listing view - works for anonymous callers too
	public := e.Group("/public")
	public.Use(middleware.OptionalAuth(st))
	public.GET("/properties/:id", h.PublicProperty)

	// API routes - all require authentication and a company context
	api := e.Group("/api")
	api.Use(middleware.Auth(st))
	api.Use(middleware.RequireCompanyContext)

	api.POST("/auth/refresh", h.Refresh)
	api.POST("/auth/change-password", h.ChangePassword)

	// Company management
	api.GET("/company", h.GetCompany)
	api.PATCH("/company", h.PatchCompany)
	api.DELETE("/company", h.DeleteCompany)

	// User management
	users := api.Group("/users")
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.GET("/:id", h.GetUser)
	users.PATCH("/:id", h.PatchUser)
	users.DELETE("/:id", h.DeleteUser)

	// Leads
	leads := api.Group("/leads")
	leads.GET("", h.ListLeads)
	leads.POST("", h.CreateLead)
	leads.GET("/:id", h.GetLead)
	leads.PATCH("/:id", h.PatchLead)
	leads.DELETE("/:id", h.DeleteLead)
	leads.POST("/:id/files", h.AttachLeadFile)

	// Properties
	properties := api.Group("/properties")
	properties.GET("", h.ListProperties)
	properties.POST("", h.CreateProperty)
	properties.GET("/:id", h.GetProperty)
	properties.PATCH("/:id", h.PatchProperty)
	properties.DELETE("/:id", h.DeleteProperty)
	properties.POST("/:id/files", h.AttachPropertyFile)
	properties.GET("/:id/apartments", h.ListApartmentsByProperty)
	properties.GET("/:id/leads", h.ListLeadsByProperty)

	// Apartments
	apartments := api.Group("/apartments")
	apartments.GET("", h.ListApartments)
	apartments.POST("", h.CreateApartment)
	apartments.GET("/:id", h.GetApartment)
	apartments.PATCH("/:id", h.PatchApartment)
	apartments.DELETE("/:id", h.DeleteApartment)
	apartments.POST("/:id/documents", h.AttachApartmentDocument)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
