package identity

import (
	"sync"

	"github.com/naveenspark/mylibrary/pkg/domain"
)

type event struct {
	target  uint64 // 0 means every listener
	user    *domain.Principal
	current bool // resolve user at delivery time
}

// dispatcher delivers identity changes to listeners in order from one
// goroutine. Events queue up until start is called.
type dispatcher struct {
	current func() *domain.Principal

	mu        sync.Mutex
	queue     []event
	listeners map[uint64]func(*domain.Principal)
	next      uint64

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	startOne sync.Once
	stopOne  sync.Once
}

func newDispatcher(current func() *domain.Principal) *dispatcher {
	return &dispatcher{
		current:   current,
		listeners: map[uint64]func(*domain.Principal){},
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (d *dispatcher) subscribe(fn func(*domain.Principal)) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.listeners[id] = fn
	d.queue = append(d.queue, event{target: id, current: true})
	d.mu.Unlock()
	d.signal()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

func (d *dispatcher) publish(u *domain.Principal) {
	d.mu.Lock()
	d.queue = append(d.queue, event{user: clonePrincipal(u)})
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) start() {
	d.startOne.Do(func() { go d.run() })
}

// close stops delivery and waits for an in-flight callback to return.
func (d *dispatcher) close() {
	d.stopOne.Do(func() { close(d.stop) })
	// Never started: nothing runs, and start becomes a no-op.
	d.startOne.Do(func() { close(d.done) })
	<-d.done
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			select {
			case <-d.wake:
				continue
			case <-d.stop:
				return
			}
		}
		ev := d.queue[0]
		d.queue = d.queue[1:]
		var fns []func(*domain.Principal)
		if ev.target != 0 {
			if fn, ok := d.listeners[ev.target]; ok {
				fns = append(fns, fn)
			}
		} else {
			for id := uint64(1); id <= d.next; id++ {
				if fn, ok := d.listeners[id]; ok {
					fns = append(fns, fn)
				}
			}
		}
		d.mu.Unlock()

		select {
		case <-d.stop:
			return
		default:
		}
		user := ev.user
		if ev.current {
			user = d.current()
		}
		for _, fn := range fns {
			fn(clonePrincipal(user))
		}
	}
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
