package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const serviceName = "url-shortener"

// HealthChecker возвращает ошибки проверки зависимостей по имени
type HealthChecker func() map[string]error

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /api/v1/health [get]
func HealthCheck(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		failed := gin.H{}
		if checker != nil {
			for name, err := range checker() {
				if err != nil {
					failed[name] = err.Error()
				}
			}
		}

		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "degraded",
				"service": serviceName,
				"errors":  failed,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	}
}
