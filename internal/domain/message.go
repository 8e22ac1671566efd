package domain

import "time"

// Sender identifica al autor de un mensaje dentro de la sesión.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message es una entrada inmutable del log de la sesión.
type Message struct {
	ID          int64     `json:"id"`
	Sender      Sender    `json:"sender"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Clone devuelve una copia profunda del mensaje.
func (m Message) Clone() Message {
	if m.Suggestions != nil {
		m.Suggestions = append([]string(nil), m.Suggestions...)
	}
	return m
}
