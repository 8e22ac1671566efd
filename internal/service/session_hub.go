package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"scholar-assistant/internal/domain"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionLimitReached = errors.New("session limit reached")
	ErrHubNotConfigured    = errors.New("session hub not configured")
)

const (
	publishTimeout        = 2 * time.Second
	DefaultSessionIdleTTL = 30 * time.Minute
)

// EngineOptions agrupa los tiempos simulados de cada sesión.
type EngineOptions struct {
	TypingMinDelay  time.Duration
	TypingMaxDelay  time.Duration
	VoiceDelay      time.Duration
	VoiceTranscript string
	MaxSessions     int
	// IdleTTL cierra sesiones sin comandos del usuario por más de este tiempo.
	// Cero desactiva la expiración.
	IdleTTL time.Duration
}

// DefaultEngineOptions devuelve los tiempos por defecto: tipeo de 1s a 2s, voz de 2s.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		TypingMinDelay:  DefaultTypingMinDelay,
		TypingMaxDelay:  DefaultTypingMaxDelay,
		VoiceDelay:      DefaultVoiceCaptureDelay,
		VoiceTranscript: DefaultVoiceTranscript,
		IdleTTL:         DefaultSessionIdleTTL,
	}
}

// SessionHub mantiene los controladores vivos de un proceso. Cada sesión
// sigue siendo de un único usuario; el hub solo las indexa por ID.
// Catálogo, scheduler y fuente aleatoria se comparten en solo lectura.
type SessionHub struct {
	logger     *zap.Logger
	classifier *IntentClassifier
	scheduler  Scheduler
	rnd        RandomSource
	opts       EngineOptions
	publisher  SnapshotPublisher

	mu       sync.RWMutex
	sessions map[string]*SessionController
	relays   sync.WaitGroup
}

func NewSessionHub(
	logger *zap.Logger,
	classifier *IntentClassifier,
	scheduler Scheduler,
	rnd RandomSource,
	opts EngineOptions,
	publisher SnapshotPublisher,
) *SessionHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHub{
		logger:     logger,
		classifier: classifier,
		scheduler:  scheduler,
		rnd:        rnd,
		opts:       opts,
		publisher:  publisher,
		sessions:   make(map[string]*SessionController),
	}
}

// Open crea, abre y registra una sesión nueva.
func (h *SessionHub) Open() (*SessionController, error) {
	if h == nil || h.classifier == nil || h.scheduler == nil {
		return nil, ErrHubNotConfigured
	}

	h.mu.Lock()
	expired := h.removeIdleLocked()
	if h.opts.MaxSessions > 0 && len(h.sessions) >= h.opts.MaxSessions {
		h.mu.Unlock()
		h.closeExpired(expired)
		return nil, ErrSessionLimitReached
	}
	id := uuid.NewString()
	ctrl := NewSessionController(
		id,
		h.classifier,
		NewLatencySimulator(h.scheduler, h.rnd, h.opts.TypingMinDelay, h.opts.TypingMaxDelay),
		NewVoiceCapture(h.scheduler, h.opts.VoiceDelay, h.opts.VoiceTranscript),
		h.scheduler,
		h.logger,
	)
	h.sessions[id] = ctrl
	h.mu.Unlock()
	h.closeExpired(expired)

	if h.publisher != nil {
		relay := newSnapshotRelay(h.publish)
		h.relays.Add(1)
		go func() {
			defer h.relays.Done()
			relay.run()
		}()
		ctrl.Subscribe(relay.offer)
	}
	ctrl.OpenSession()
	return ctrl, nil
}

// SweepIdle cierra las sesiones que superaron IdleTTL y devuelve cuántas cerró.
func (h *SessionHub) SweepIdle() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	expired := h.removeIdleLocked()
	h.mu.Unlock()
	h.closeExpired(expired)
	return len(expired)
}

func (h *SessionHub) removeIdleLocked() []*SessionController {
	if h.opts.IdleTTL <= 0 {
		return nil
	}
	now := h.scheduler.Now()
	var expired []*SessionController
	for id, ctrl := range h.sessions {
		if ctrl.IdleFor(now) >= h.opts.IdleTTL {
			expired = append(expired, ctrl)
			delete(h.sessions, id)
		}
	}
	return expired
}

func (h *SessionHub) closeExpired(expired []*SessionController) {
	for _, ctrl := range expired {
		ctrl.CloseSession()
		h.logger.Info("idle session expired", zap.String("session_id", ctrl.ID()))
	}
}

// Get busca una sesión abierta.
func (h *SessionHub) Get(id string) (*SessionController, error) {
	if h == nil {
		return nil, ErrHubNotConfigured
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	ctrl, ok := h.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ctrl, nil
}

// Close cierra la sesión y la quita del hub.
func (h *SessionHub) Close(id string) error {
	if h == nil {
		return ErrHubNotConfigured
	}
	h.mu.Lock()
	ctrl, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	ctrl.CloseSession()
	return nil
}

// CloseAll cierra todas las sesiones y espera a que se publique el último
// snapshot de cada una; se usa al apagar el proceso.
func (h *SessionHub) CloseAll() {
	if h == nil {
		return
	}
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*SessionController)
	h.mu.Unlock()

	for _, ctrl := range sessions {
		ctrl.CloseSession()
	}
	h.relays.Wait()
	h.logger.Info("all sessions closed", zap.Int("count", len(sessions)))
}

func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *SessionHub) publish(snap domain.SessionSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, snap); err != nil {
		h.logger.Warn("snapshot publish failed",
			zap.Error(err),
			zap.String("session_id", snap.SessionID),
			zap.Uint64("revision", snap.Revision),
		)
	}
}
