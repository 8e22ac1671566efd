package service

import (
	"sync"
	"time"
)

const (
	DefaultVoiceCaptureDelay = 2 * time.Second
	DefaultVoiceTranscript   = "What scholarships are available for computer science students?"
)

// VoiceCapture simula un ciclo de micrófono: al activarse abre una ventana de
// escucha y, si nadie la cancela, entrega una transcripción fija al cerrarse.
type VoiceCapture struct {
	scheduler  Scheduler
	delay      time.Duration
	transcript string

	mu        sync.Mutex
	listening bool
	timer     Timer
	ticket    uint64
}

func NewVoiceCapture(scheduler Scheduler, delay time.Duration, transcript string) *VoiceCapture {
	if delay < 0 {
		delay = 0
	}
	if transcript == "" {
		transcript = DefaultVoiceTranscript
	}
	return &VoiceCapture{
		scheduler:  scheduler,
		delay:      delay,
		transcript: transcript,
	}
}

// Toggle abre la captura si está cerrada o la cancela si está abierta.
// Una segunda llamada nunca apila otro timer. Devuelve el nuevo estado.
func (v *VoiceCapture) Toggle(onTranscript func(string)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.listening {
		v.cancelLocked()
		return false
	}
	v.startLocked(onTranscript)
	return true
}

func (v *VoiceCapture) startLocked(onTranscript func(string)) {
	v.listening = true
	v.ticket++
	ticket := v.ticket
	transcript := v.transcript
	v.timer = v.scheduler.AfterFunc(v.delay, func() {
		v.mu.Lock()
		if !v.listening || v.ticket != ticket {
			v.mu.Unlock()
			return
		}
		v.listening = false
		v.timer = nil
		v.mu.Unlock()

		onTranscript(transcript)
	})
}

// Cancel cierra la ventana sin transcripción. Devuelve false si no estaba escuchando.
func (v *VoiceCapture) Cancel() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cancelLocked()
}

func (v *VoiceCapture) cancelLocked() bool {
	if !v.listening {
		return false
	}
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.listening = false
	v.ticket++
	return true
}
