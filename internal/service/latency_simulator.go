package service

import (
	"errors"
	"sync"
	"time"
)

const (
	DefaultTypingMinDelay = 1000 * time.Millisecond
	DefaultTypingMaxDelay = 2000 * time.Millisecond
)

var ErrDeliveryPending = errors.New("latency simulator: delivery already pending")

// LatencySimulator difiere la entrega de una respuesta para simular que el
// asistente está escribiendo. Admite una sola entrega pendiente a la vez.
type LatencySimulator struct {
	scheduler Scheduler
	rnd       RandomSource
	minDelay  time.Duration
	maxDelay  time.Duration

	mu     sync.Mutex
	timer  Timer
	ticket uint64
}

// NewLatencySimulator crea un simulador con retardo uniforme en [minDelay, maxDelay],
// con granularidad de milisegundos.
func NewLatencySimulator(scheduler Scheduler, rnd RandomSource, minDelay, maxDelay time.Duration) *LatencySimulator {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &LatencySimulator{
		scheduler: scheduler,
		rnd:       rnd,
		minDelay:  minDelay,
		maxDelay:  maxDelay,
	}
}

// Schedule programa onDeliver(text) una sola vez tras un retardo aleatorio y
// devuelve ese retardo. Si ya hay una entrega pendiente devuelve ErrDeliveryPending.
func (l *LatencySimulator) Schedule(text string, onDeliver func(string)) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		return 0, ErrDeliveryPending
	}

	l.ticket++
	ticket := l.ticket
	delay := l.nextDelay()
	l.timer = l.scheduler.AfterFunc(delay, func() {
		l.mu.Lock()
		if l.timer == nil || l.ticket != ticket {
			l.mu.Unlock()
			return
		}
		l.timer = nil
		l.mu.Unlock()

		onDeliver(text)
	})
	return delay, nil
}

// Cancel descarta la entrega pendiente. Devuelve false si no había ninguna.
func (l *LatencySimulator) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer == nil {
		return false
	}
	l.timer.Stop()
	l.timer = nil
	l.ticket++
	return true
}

// Pending indica si hay una entrega programada.
func (l *LatencySimulator) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timer != nil
}

func (l *LatencySimulator) nextDelay() time.Duration {
	span := int((l.maxDelay - l.minDelay) / time.Millisecond)
	if span <= 0 || l.rnd == nil {
		return l.minDelay
	}
	return l.minDelay + time.Duration(l.rnd.Intn(span+1))*time.Millisecond
}
