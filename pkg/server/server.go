package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/bantam-dev/bantam/pkg/usecase/session"
	"github.com/bantam-dev/bantam/pkg/utils/logging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const serviceName = "inbound-bant-agent"

// New builds the HTTP router. The webhook endpoint is the inbound
// message boundary; the session endpoints are the administrative
// surface.
func New(registry *session.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   serviceName,
			"status":    "running",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"active_sessions": registry.Count(),
		})
	})

	handleMessage := func(c *gin.Context) {
		var msg model.InboundMessage
		if err := c.ShouldBindJSON(&msg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message payload"})
			return
		}
		if msg.ContactID == "" || msg.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phone and message are required"})
			return
		}

		reply, err := registry.HandleMessage(c.Request.Context(), &msg)
		if err != nil {
			if errors.Is(err, model.ErrConfigNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown tenant"})
				return
			}
			logging.From(c.Request.Context()).Error("failed to handle message",
				"phone", msg.ContactID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
			return
		}

		c.JSON(http.StatusOK, reply)
	}

	r.POST("/webhook/whatsapp", handleMessage)
	// Same handler, kept separate so local testing needs no real
	// webhook delivery
	r.POST("/test/chat", handleMessage)

	r.GET("/sessions", func(c *gin.Context) {
		snapshots := registry.List()
		sessions := make([]gin.H, 0, len(snapshots))
		for key, snap := range snapshots {
			sessions = append(sessions, gin.H{
				"session_id": key,
				"status":     snap,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"active_sessions": len(snapshots),
			"sessions":        sessions,
		})
	})

	r.GET("/session/:key/status", func(c *gin.Context) {
		s, err := registry.Get(model.SessionKey(c.Param("key")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, s.Snapshot())
	})

	r.POST("/session/close/:key", func(c *gin.Context) {
		key := model.SessionKey(c.Param("key"))
		if err := registry.Close(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "session closed", "session_id": key})
	})

	return r
}

// requestID tags every request with an id and attaches a logger
// carrying it, so log lines from one webhook call correlate.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		logger := logging.From(c.Request.Context()).With("request_id", id)
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), logger))
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.From(c.Request.Context()).Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
