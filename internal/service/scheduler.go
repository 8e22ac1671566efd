package service

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Clock entrega la hora usada para sellar mensajes.
type Clock interface {
	Now() time.Time
}

// Timer es un callback programado que puede cancelarse.
// Stop devuelve false si el callback ya se ejecutó o ya fue cancelado.
type Timer interface {
	Stop() bool
}

// Scheduler es la única primitiva de temporización del motor: "ejecutar f
// después de d, cancelable". Tanto la latencia de respuesta como la captura
// de voz pasan por aquí.
type Scheduler interface {
	Clock
	AfterFunc(d time.Duration, f func()) Timer
}

type timeScheduler struct{}

// NewTimeScheduler devuelve un Scheduler sobre el reloj real (time.AfterFunc).
func NewTimeScheduler() Scheduler {
	return timeScheduler{}
}

func (timeScheduler) Now() time.Time {
	return time.Now().UTC()
}

func (timeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ManualScheduler es un reloj virtual: los callbacks solo corren cuando se
// llama a Advance, en la goroutine de quien avanza el reloj.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

type manualTimer struct {
	owner *ManualScheduler
	at    time.Time
	seq   uint64
	fn    func()
	done  bool
}

// NewManualScheduler crea un reloj virtual que arranca en start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start.UTC()}
}

func (s *ManualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{owner: s, at: s.now.Add(d), seq: s.seq, fn: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance mueve el reloj d hacia adelante y ejecuta, en orden de vencimiento,
// cada callback que vence dentro de la ventana (incluidos los que se programen
// durante la propia ejecución). Devuelve cuántos callbacks corrieron.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	fired := 0
	for {
		s.mu.Lock()
		next := s.popDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return fired
		}
		s.now = next.at
		s.mu.Unlock()

		next.fn()
		fired++
	}
}

// Pending devuelve la cantidad de callbacks programados sin ejecutar.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *ManualScheduler) popDueLocked(target time.Time) *manualTimer {
	if len(s.timers) == 0 {
		return nil
	}
	sort.SliceStable(s.timers, func(i, j int) bool {
		if s.timers[i].at.Equal(s.timers[j].at) {
			return s.timers[i].seq < s.timers[j].seq
		}
		return s.timers[i].at.Before(s.timers[j].at)
	})
	first := s.timers[0]
	if first.at.After(target) {
		return nil
	}
	s.timers = s.timers[1:]
	first.done = true
	return first
}

func (t *manualTimer) Stop() bool {
	s := t.owner
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, candidate := range s.timers {
		if candidate == t {
			s.timers = append(s.timers[:i], s.timers[i+1:]...)
			break
		}
	}
	return true
}

// RandomSource es la única fuente de no determinismo del motor: el retardo
// de tipeo y la elección de fallback. *rand.Rand la satisface.
type RandomSource interface {
	Intn(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandomSource crea una fuente segura para compartir entre sesiones.
// Con seed 0 se usa la hora actual.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
