// Package router implements spec.md §5's cross-Program message routing: a
// mutex-guarded name→channel map, the only piece of state in the system
// touched from more than one goroutine. Everything else — a Program's
// indexes, frame, block registry — is owned exclusively by that Program's
// own transaction-loop goroutine.
package router

import (
	"fmt"
	"sync"
)

// Message is deliberately opaque: the router only ever moves envelopes
// between named programs, it never inspects or constructs them. Each
// Program casts back to its own RunLoopMessage type on receipt.
type Message interface{}

// Router is the shared directory every Program goroutine registers with at
// start and looks other programs up through to deliver a RemoteTransaction.
type Router struct {
	mu    sync.Mutex
	boxes map[string]chan<- Message
}

func New() *Router {
	return &Router{boxes: map[string]chan<- Message{}}
}

// Register associates name with a Program's inbox channel, replacing any
// previous registration under that name (a restarted Program re-registers).
func (r *Router) Register(name string, inbox chan<- Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boxes[name] = inbox
}

// Unregister removes name's registration, e.g. when a Program stops.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boxes, name)
}

// Send routes msg to the program registered as to. It returns an error
// without blocking indefinitely if that program's inbox is full or the name
// is unknown — a wedged remote program must not stall the sender's own
// transaction loop.
func (r *Router) Send(to string, msg Message) error {
	r.mu.Lock()
	inbox, ok := r.boxes[to]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("router: no program registered as %q", to)
	}
	select {
	case inbox <- msg:
		return nil
	default:
		return fmt.Errorf("router: program %q inbox is full", to)
	}
}

// Names returns every currently registered program name, in no particular
// order.
func (r *Router) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.boxes))
	for name := range r.boxes {
		out = append(out, name)
	}
	return out
}
