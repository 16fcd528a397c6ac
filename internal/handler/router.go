package handler

import (
	"time"

	"github.com/SergeiKhy/shortlink/internal/middleware"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	LandingURL    string
	DefaultExpiry time.Duration
}

func NewRouter(
	mappingService service.MappingService,
	cfg RouterConfig,
	health HealthChecker,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	mappingHandler := NewMappingHandler(mappingService, cfg.LandingURL, cfg.DefaultExpiry, logger)

	router.GET("/", mappingHandler.Landing)
	router.POST("/api/shorten", mappingHandler.CreateMapping)
	router.GET("/api/v1/health", HealthCheck(health))

	// Редирект по короткому идентификатору
	router.GET("/:shortId", mappingHandler.Redirect)
	router.HEAD("/:shortId", mappingHandler.Redirect)
	router.NoRoute(mappingHandler.NotFound)

	return router
}
