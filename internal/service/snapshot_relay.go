package service

import (
	"sync"

	"scholar-assistant/internal/domain"
)

// snapshotRelay desacopla la publicación de la goroutine que mutó la sesión.
// Guarda solo el snapshot más nuevo pendiente: si el publisher es lento se
// saltean revisiones intermedias, pero nunca se publica una revisión menor a
// otra ya publicada. Termina después de publicar el snapshot de cierre.
type snapshotRelay struct {
	publish func(domain.SessionSnapshot)

	mu        sync.Mutex
	pending   *domain.SessionSnapshot
	published uint64
	wake      chan struct{}
}

func newSnapshotRelay(publish func(domain.SessionSnapshot)) *snapshotRelay {
	return &snapshotRelay{
		publish: publish,
		wake:    make(chan struct{}, 1),
	}
}

// offer nunca bloquea.
func (r *snapshotRelay) offer(snap domain.SessionSnapshot) {
	r.mu.Lock()
	if snap.Revision <= r.published || (r.pending != nil && snap.Revision <= r.pending.Revision) {
		r.mu.Unlock()
		return
	}
	r.pending = &snap
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *snapshotRelay) run() {
	for range r.wake {
		r.mu.Lock()
		snap := r.pending
		r.pending = nil
		if snap != nil {
			r.published = snap.Revision
		}
		r.mu.Unlock()

		if snap == nil {
			continue
		}
		r.publish(*snap)
		if snap.Closed {
			return
		}
	}
}
