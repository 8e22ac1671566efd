package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scholar-assistant/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas de sesión.
func NewRouter(
	logger *zap.Logger,
	sessionH *SessionHandler,
	tokens *service.SessionTokenService,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", sessionH.Health)
	r.POST("/sessions", sessionH.OpenSession)

	session := r.Group("/sessions/:id", SessionAuthMiddleware(tokens))
	session.GET("", sessionH.GetSession)
	session.DELETE("", sessionH.CloseSession)
	session.POST("/messages", sessionH.SubmitText)
	session.PUT("/draft", sessionH.UpdateDraft)
	session.POST("/suggestions", sessionH.SelectSuggestion)
	session.POST("/quick-actions/:index", sessionH.SelectQuickAction)
	session.POST("/voice", sessionH.ToggleVoice)
	session.GET("/events", sessionH.Events)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
// El stream de eventos lo sobreescribe.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
