package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RouterConfig задаёт параметры HTTP-маршрутизатора.
type RouterConfig struct {
	// JWTSecret проверяет токены на эндпоинте intent. Пустое значение допустимо
	// только вместе с AllowAnonymous.
	JWTSecret      []byte
	AllowAnonymous bool
}

// NewRouter собирает gin-маршрутизатор платёжного API.
func NewRouter(h *PaymentsHandler, cfg RouterConfig, logger *log.Entry) *gin.Engine {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	payments := r.Group("/payments")
	payments.POST("/webhook", h.Webhook)

	if len(cfg.JWTSecret) == 0 && cfg.AllowAnonymous {
		logger.Warn("payment intent endpoint is not authenticated")
		payments.POST("/:basketId", h.CreateOrUpdateIntent)
	} else {
		payments.POST("/:basketId", AuthMiddleware(cfg.JWTSecret), h.CreateOrUpdateIntent)
	}

	return r
}

// RequestLogger пишет в logrus итог каждого запроса.
func RequestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"route":      c.FullPath(),
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("http request")
		case status >= 400:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}
