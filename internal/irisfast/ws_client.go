package irisfast

import "context"

type MessageCallback func(message *Message)

type StateCallback func(state WebSocketState)

// WSClient is the ingress side of iris: pushed chat events plus state changes.
type WSClient interface {
	Connect(ctx context.Context) error
	State() WebSocketState
	OnMessage(cb MessageCallback) int
	OnStateChange(cb StateCallback) int
	RemoveStateCallback(id int)
	WriteJSON(ctx context.Context, v any) error
	Close(ctx context.Context) error
}

// registry holds callbacks in registration order.
type registry[F any] struct {
	next  int
	items []registered[F]
}

type registered[F any] struct {
	id int
	fn F
}

func (r *registry[F]) add(fn F) int {
	r.next++
	r.items = append(r.items, registered[F]{id: r.next, fn: fn})
	return r.next
}

func (r *registry[F]) remove(id int) {
	for i, it := range r.items {
		if it.id == id {
			r.items = append(r.items[:i:i], r.items[i+1:]...)
			return
		}
	}
}

func (r *registry[F]) snapshot() []F {
	out := make([]F, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it.fn)
	}
	return out
}
