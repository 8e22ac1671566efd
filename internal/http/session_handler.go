package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scholar-assistant/internal/domain"
	"scholar-assistant/internal/service"
)

const (
	eventBuffer       = 16
	eventKeepAlive    = 15 * time.Second
	snapshotEventName = "snapshot"
)

// SessionHandler expone las sesiones del asistente sobre HTTP.
type SessionHandler struct {
	logger  *zap.Logger
	hub     *service.SessionHub
	tokens  *service.SessionTokenService
	limiter service.SessionOpenLimiter
}

// NewSessionHandler crea el handler. limiter puede ser nil (sin límite).
func NewSessionHandler(
	logger *zap.Logger,
	hub *service.SessionHub,
	tokens *service.SessionTokenService,
	limiter service.SessionOpenLimiter,
) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		logger:  logger,
		hub:     hub,
		tokens:  tokens,
		limiter: limiter,
	}
}

type textRequest struct {
	Text string `json:"text"`
}

// Health maneja GET /healthz.
func (h *SessionHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.hub.Len()})
}

// OpenSession maneja POST /sessions.
func (h *SessionHandler) OpenSession(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many sessions"})
		return
	}

	ctrl, err := h.hub.Open()
	if err != nil {
		if errors.Is(err, service.ErrSessionLimitReached) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session limit reached"})
			return
		}
		h.logger.Error("open session failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}

	token, err := h.tokens.Issue(ctrl.ID())
	if err != nil {
		h.logger.Error("issue session token failed", zap.Error(err), zap.String("session_id", ctrl.ID()))
		_ = h.hub.Close(ctrl.ID())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not open session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_token": token,
		"snapshot":      ctrl.Snapshot(),
	})
}

// GetSession maneja GET /sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
}

// CloseSession maneja DELETE /sessions/:id.
func (h *SessionHandler) CloseSession(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	if err := h.hub.Close(ctrl.ID()); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": ctrl.Snapshot()})
}

// SubmitText maneja POST /sessions/:id/messages. Un envío ignorado (vacío o
// con una respuesta en curso) responde 200 con accepted=false.
func (h *SessionHandler) SubmitText(c *gin.Context) {
	ctrl, req, ok := h.controllerWithText(c)
	if !ok {
		return
	}
	accepted := ctrl.SubmitText(req.Text)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "snapshot": ctrl.Snapshot()})
}

// UpdateDraft maneja PUT /sessions/:id/draft.
func (h *SessionHandler) UpdateDraft(c *gin.Context) {
	ctrl, req, ok := h.controllerWithText(c)
	if !ok {
		return
	}
	accepted := ctrl.UpdateDraft(req.Text)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "snapshot": ctrl.Snapshot()})
}

// SelectSuggestion maneja POST /sessions/:id/suggestions.
func (h *SessionHandler) SelectSuggestion(c *gin.Context) {
	ctrl, req, ok := h.controllerWithText(c)
	if !ok {
		return
	}
	accepted := ctrl.SelectSuggestion(req.Text)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "snapshot": ctrl.Snapshot()})
}

// SelectQuickAction maneja POST /sessions/:id/quick-actions/:index.
func (h *SessionHandler) SelectQuickAction(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quick action index"})
		return
	}
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	accepted := ctrl.SelectQuickAction(index)
	c.JSON(http.StatusOK, gin.H{"accepted": accepted, "snapshot": ctrl.Snapshot()})
}

// ToggleVoice maneja POST /sessions/:id/voice.
func (h *SessionHandler) ToggleVoice(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	listening := ctrl.ToggleVoice()
	c.JSON(http.StatusOK, gin.H{"listening": listening, "snapshot": ctrl.Snapshot()})
}

// Events maneja GET /sessions/:id/events: manda el snapshot actual y luego
// uno por cada mutación, hasta que la sesión se cierra o el cliente se va.
func (h *SessionHandler) Events(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}

	updates := make(chan domain.SessionSnapshot, eventBuffer)
	unsubscribe := ctrl.Subscribe(func(snap domain.SessionSnapshot) {
		select {
		case updates <- snap:
		default:
			h.logger.Debug("event stream lagging, snapshot dropped",
				zap.String("session_id", snap.SessionID),
				zap.Uint64("revision", snap.Revision),
			)
		}
	})
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	h.streamSnapshots(c, ctrl.Snapshot(), updates)
}

// streamSnapshots escribe current y luego cada snapshot más nuevo que llegue
// por updates. Lo que se encoló entre la suscripción y current ya está
// contenido en current y se descarta por revisión.
func (h *SessionHandler) streamSnapshots(c *gin.Context, current domain.SessionSnapshot, updates <-chan domain.SessionSnapshot) {
	h.writeSnapshot(c, current)
	if current.Closed {
		return
	}
	lastRevision := current.Revision

	keepAlive := time.NewTicker(eventKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			c.SSEvent("ping", "")
			c.Writer.Flush()
		case snap := <-updates:
			if snap.Revision <= lastRevision {
				continue
			}
			lastRevision = snap.Revision
			h.writeSnapshot(c, snap)
			if snap.Closed {
				return
			}
		}
	}
}

func (h *SessionHandler) writeSnapshot(c *gin.Context, snap domain.SessionSnapshot) {
	c.SSEvent(snapshotEventName, snap)
	c.Writer.Flush()
}

func (h *SessionHandler) controller(c *gin.Context) (*service.SessionController, bool) {
	ctrl, err := h.hub.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return ctrl, true
}

func (h *SessionHandler) controllerWithText(c *gin.Context) (*service.SessionController, textRequest, bool) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid session request", zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return nil, req, false
	}
	ctrl, ok := h.controller(c)
	return ctrl, req, ok
}
