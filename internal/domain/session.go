package domain

// QuickAction es un atajo que la capa de presentación ofrece mientras la
// conversación solo contiene el saludo inicial.
type QuickAction struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
}

// SessionSnapshot es la vista de solo lectura del estado de una sesión.
// Revision crece con cada mutación.
type SessionSnapshot struct {
	SessionID    string        `json:"session_id"`
	Revision     uint64        `json:"revision"`
	Messages     []Message     `json:"messages"`
	PendingInput string        `json:"pending_input"`
	IsTyping     bool          `json:"is_typing"`
	IsListening  bool          `json:"is_listening"`
	QuickActions []QuickAction `json:"quick_actions,omitempty"`
	Closed       bool          `json:"closed"`
}

// LastMessage devuelve el último mensaje del log, si existe.
func (s SessionSnapshot) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
