package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Верхняя граница expiry в секундах, чтобы не переполнить time.Duration
const maxExpirySeconds = int64(1<<63-1) / int64(time.Second)

type MappingHandler struct {
	service       service.MappingService
	landingURL    string
	defaultExpiry time.Duration
	logger        *zap.Logger
}

func NewMappingHandler(service service.MappingService, landingURL string, defaultExpiry time.Duration, logger *zap.Logger) *MappingHandler {
	return &MappingHandler{
		service:       service,
		landingURL:    landingURL,
		defaultExpiry: defaultExpiry,
		logger:        logger,
	}
}

type CreateMappingRequest struct {
	OriginalURL string `json:"originalUrl" binding:"required"`
	Expiry      *int64 `json:"expiry,omitempty"`
}

type CreateMappingResponse struct {
	ShortURL  string    `json:"shortUrl"`
	ShortID   string    `json:"shortId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CreateMapping godoc
// @Summary Create a short link
// @Description Create a new shortened URL that expires after `expiry` seconds (default 86400)
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateMappingRequest true "Link creation request"
// @Success 200 {object} CreateMappingResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /api/shorten [post]
func (h *MappingHandler) CreateMapping(c *gin.Context) {
	var req CreateMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	expiry := h.defaultExpiry
	if req.Expiry != nil && *req.Expiry != 0 {
		if *req.Expiry < 0 || *req.Expiry > maxExpirySeconds {
			h.respondCreateError(c, service.ErrInvalidExpiry)
			return
		}
		expiry = time.Duration(*req.Expiry) * time.Second
	}

	res, err := h.service.CreateMapping(c.Request.Context(), &models.CreateMappingInput{
		OriginalURL: req.OriginalURL,
		Expiry:      expiry,
	})
	if err != nil {
		h.respondCreateError(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateMappingResponse{
		ShortURL:  res.ShortURL,
		ShortID:   res.Mapping.ShortID,
		ExpiresAt: res.Mapping.ExpiresAt,
	})
}

func (h *MappingHandler) respondCreateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_url",
			Message: "Invalid URL",
		})
	case errors.Is(err, service.ErrInvalidExpiry):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_expiry",
			Message: "Expiry must be a positive number of seconds within the allowed range",
		})
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Error("Failed to create mapping", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "store_unavailable",
			Message: "Storage is temporarily unavailable",
		})
	default:
		h.logger.Error("Failed to create mapping", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to create link",
		})
	}
}

// Redirect godoc
// @Summary Redirect to original URL
// @Description Redirect to the original URL by short id, or to the landing page when it is unknown or expired
// @Tags links
// @Param shortId path string true "Short id"
// @Success 307
// @Success 302
// @Failure 503 {object} ErrorResponse
// @Router /{shortId} [get]
func (h *MappingHandler) Redirect(c *gin.Context) {
	shortID := c.Param("shortId")

	url, err := h.service.ResolveMapping(c.Request.Context(), shortID)
	if err != nil {
		if errors.Is(err, service.ErrStoreUnavailable) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "store_unavailable",
				Message: "Storage is temporarily unavailable",
			})
			return
		}

		h.logger.Debug("Short id not resolved, redirecting to landing", zap.String("short_id", shortID))
		c.Redirect(http.StatusFound, h.landingURL)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, url)
}

// Landing отдаёт стартовую страницу сервиса
func (h *MappingHandler) Landing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": serviceName,
		"shorten": "POST /api/shorten",
	})
}

// NotFound отправляет неизвестные GET пути на стартовую страницу
func (h *MappingHandler) NotFound(c *gin.Context) {
	if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		c.Redirect(http.StatusFound, h.landingURL)
		return
	}
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "Route not found",
	})
}
