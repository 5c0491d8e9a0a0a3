package session

import (
	"sync"

	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

// observable valor "caliente": cada suscriptor recibe el valor actual al
// suscribirse y luego cada cambio. Los canales tienen buffer 1 y conservan solo
// el último valor, así un suscriptor lento nunca bloquea a quien publica.
type observable struct {
	mu      sync.Mutex
	current entity.Session
	subs    map[uint64]chan entity.Session
	nextID  uint64
}

func newObservable() *observable {
	return &observable{subs: make(map[uint64]chan entity.Session)}
}

func (o *observable) get() entity.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *observable) subscribe() (<-chan entity.Session, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan entity.Session, 1)
	ch <- o.current
	id := o.nextID
	o.nextID++
	o.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// publish devuelve false si el valor no cambió (no se notifica nada).
func (o *observable) publish(s entity.Session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s == o.current {
		return false
	}
	o.current = s
	for _, ch := range o.subs {
		select {
		case <-ch: // descartar el valor viejo no leído
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
	return true
}
