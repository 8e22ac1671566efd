package service

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"scholar-assistant/internal/domain"
)

// SnapshotListener recibe el snapshot resultante de cada mutación.
type SnapshotListener func(domain.SessionSnapshot)

type listenerEntry struct {
	id uint64
	fn SnapshotListener
}

// SessionController es el dueño exclusivo del estado de una sesión. Cada
// comando y cada callback de timer corre completo bajo mu, así que nunca se
// intercala una mutación con otra.
type SessionController struct {
	id         string
	logger     *zap.Logger
	classifier *IntentClassifier
	latency    *LatencySimulator
	voice      *VoiceCapture
	clock      Clock

	mu             sync.Mutex
	opened         bool
	closed         bool
	messages       []domain.Message
	nextID         int64
	pendingInput   string
	isTyping       bool
	isListening    bool
	revision       uint64
	deliveryTicket uint64
	voiceTicket    uint64
	lastActivity   time.Time
	listeners      []listenerEntry
	listenerSeq    uint64
}

// NewSessionController arma un controlador sin abrir. Llamar OpenSession
// para sembrar el saludo.
func NewSessionController(
	id string,
	classifier *IntentClassifier,
	latency *LatencySimulator,
	voice *VoiceCapture,
	clock Clock,
	logger *zap.Logger,
) *SessionController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionController{
		id:           id,
		logger:       logger.With(zap.String("session_id", id)),
		classifier:   classifier,
		latency:      latency,
		voice:        voice,
		clock:        clock,
		nextID:       1,
		lastActivity: clock.Now(),
	}
}

func (c *SessionController) ID() string {
	return c.id
}

// Subscribe registra un listener y devuelve la función para darlo de baja.
// Los listeners se invocan fuera del lock, en la goroutine que produjo la mutación.
func (c *SessionController) Subscribe(fn SnapshotListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listenerSeq++
	id := c.listenerSeq
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// OpenSession siembra el saludo con sus sugerencias. Devuelve false si la
// sesión ya estaba abierta o fue cerrada.
func (c *SessionController) OpenSession() bool {
	c.mu.Lock()
	if c.opened || c.closed {
		c.mu.Unlock()
		return false
	}
	c.opened = true
	c.lastActivity = c.clock.Now()
	catalog := c.classifier.Catalog()
	c.appendLocked(domain.SenderAssistant, catalog.Greeting, catalog.GreetingSuggestions)
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	c.logger.Info("session opened")
	notify(snap, listeners)
	return true
}

// CloseSession cancela la entrega y la captura pendientes y descarta la sesión.
// Ningún callback posterior escribe en el log.
func (c *SessionController) CloseSession() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	cancelledDelivery := c.latency.Cancel()
	cancelledVoice := c.voice.Cancel()
	c.deliveryTicket++
	c.voiceTicket++
	c.closed = true
	c.isTyping = false
	c.isListening = false
	snap, listeners := c.commitLocked()
	c.listeners = nil
	c.mu.Unlock()

	c.logger.Info("session closed",
		zap.Int("messages", len(snap.Messages)),
		zap.Bool("cancelled_delivery", cancelledDelivery),
		zap.Bool("cancelled_voice", cancelledVoice),
	)
	notify(snap, listeners)
	return true
}

// SubmitText agrega el mensaje del usuario y programa la respuesta. Se ignora
// en silencio (devuelve false) si el texto queda vacío tras recortar, si ya hay
// una respuesta en curso o si la sesión no está activa.
func (c *SessionController) SubmitText(text string) bool {
	trimmed := strings.TrimSpace(text)

	c.mu.Lock()
	if !c.activeLocked() || trimmed == "" || c.isTyping {
		typing := c.isTyping
		c.mu.Unlock()
		c.logger.Debug("submission ignored",
			zap.Bool("empty", trimmed == ""),
			zap.Bool("typing", typing),
		)
		return false
	}

	result := c.classifier.Match(trimmed)
	c.deliveryTicket++
	ticket := c.deliveryTicket
	// Se programa antes de tocar el log: si falla, la sesión queda como estaba.
	// El callback no puede correr antes de soltar mu.
	delay, err := c.latency.Schedule(result.Text, func(response string) {
		c.deliver(ticket, response, result.Suggestions)
	})
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("schedule delivery failed", zap.Error(err))
		return false
	}

	c.appendLocked(domain.SenderUser, trimmed, nil)
	c.pendingInput = ""
	c.isTyping = true
	c.lastActivity = c.clock.Now()
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	c.logger.Info("submission accepted",
		zap.String("intent", result.Intent),
		zap.Bool("fallback", result.Fallback),
		zap.Duration("delay", delay),
	)
	notify(snap, listeners)
	return true
}

func (c *SessionController) deliver(ticket uint64, text string, suggestions []string) {
	c.mu.Lock()
	if c.closed || ticket != c.deliveryTicket || !c.isTyping {
		c.mu.Unlock()
		c.logger.Debug("stale delivery dropped")
		return
	}
	msg := c.appendLocked(domain.SenderAssistant, text, suggestions)
	c.isTyping = false
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	c.logger.Info("response delivered", zap.Int64("message_id", msg.ID))
	notify(snap, listeners)
}

// SelectSuggestion copia la sugerencia al borrador. No envía nada.
func (c *SessionController) SelectSuggestion(text string) bool {
	return c.setDraft(text)
}

// SelectQuickAction copia la acción rápida index al borrador. Solo está
// disponible mientras el log contiene únicamente el saludo.
func (c *SessionController) SelectQuickAction(index int) bool {
	c.mu.Lock()
	actions := c.quickActionsLocked()
	if !c.activeLocked() || index < 0 || index >= len(actions) {
		c.mu.Unlock()
		return false
	}
	c.pendingInput = actions[index].Label
	c.lastActivity = c.clock.Now()
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	notify(snap, listeners)
	return true
}

// UpdateDraft reemplaza el borrador tal cual; el recorte ocurre al enviar.
func (c *SessionController) UpdateDraft(text string) bool {
	return c.setDraft(text)
}

func (c *SessionController) setDraft(text string) bool {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return false
	}
	c.pendingInput = text
	c.lastActivity = c.clock.Now()
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	notify(snap, listeners)
	return true
}

// ToggleVoice abre la captura de voz o la cancela si ya estaba abierta (la
// cancelación manual gana al timer). Al completarse sola, la transcripción
// queda en el borrador sin enviarse. Devuelve el nuevo estado de escucha.
func (c *SessionController) ToggleVoice() bool {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return false
	}

	c.voiceTicket++
	ticket := c.voiceTicket
	listening := c.voice.Toggle(func(transcript string) {
		c.completeVoice(ticket, transcript)
	})
	c.isListening = listening
	c.lastActivity = c.clock.Now()
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	c.logger.Debug("voice capture toggled", zap.Bool("listening", listening))
	notify(snap, listeners)
	return listening
}

func (c *SessionController) completeVoice(ticket uint64, transcript string) {
	c.mu.Lock()
	if c.closed || ticket != c.voiceTicket || !c.isListening {
		c.mu.Unlock()
		return
	}
	c.isListening = false
	c.pendingInput = transcript
	snap, listeners := c.commitLocked()
	c.mu.Unlock()

	c.logger.Debug("voice transcript captured")
	notify(snap, listeners)
}

// IdleFor devuelve cuánto pasó desde el último comando del usuario. Las
// entregas y transcripciones no cuentan como actividad.
func (c *SessionController) IdleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivity)
}

// Snapshot devuelve una copia del estado actual.
func (c *SessionController) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SessionController) activeLocked() bool {
	return c.opened && !c.closed
}

func (c *SessionController) appendLocked(sender domain.Sender, text string, suggestions []string) domain.Message {
	msg := domain.Message{
		ID:        c.nextID,
		Sender:    sender,
		Text:      text,
		Timestamp: c.clock.Now(),
	}
	if len(suggestions) > 0 {
		msg.Suggestions = append([]string(nil), suggestions...)
	}
	c.nextID++
	c.messages = append(c.messages, msg)
	return msg
}

func (c *SessionController) quickActionsLocked() []domain.QuickAction {
	if len(c.messages) != 1 || c.closed {
		return nil
	}
	return c.classifier.Catalog().QuickActions
}

func (c *SessionController) commitLocked() (domain.SessionSnapshot, []SnapshotListener) {
	c.revision++
	listeners := make([]SnapshotListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l.fn)
	}
	return c.snapshotLocked(), listeners
}

func (c *SessionController) snapshotLocked() domain.SessionSnapshot {
	messages := make([]domain.Message, len(c.messages))
	for i, m := range c.messages {
		messages[i] = m.Clone()
	}
	return domain.SessionSnapshot{
		SessionID:    c.id,
		Revision:     c.revision,
		Messages:     messages,
		PendingInput: c.pendingInput,
		IsTyping:     c.isTyping,
		IsListening:  c.isListening,
		QuickActions: append([]domain.QuickAction(nil), c.quickActionsLocked()...),
		Closed:       c.closed,
	}
}

func notify(snap domain.SessionSnapshot, listeners []SnapshotListener) {
	for _, fn := range listeners {
		fn(snap)
	}
}
