package eventbus

import (
	"context"
	"reflect"
	"sync"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

// Collector processes events of type T and contributes a value of type R
// back to the publisher.
type Collector[T, R any] func(context.Context, T) R

// entry is one subscription. Each subscription gets its own entry value, so
// unsubscribe can remove exactly the right listener by pointer identity even
// when many listeners of one event type share the same wrapper code.
type entry struct {
	notify func(context.Context, any)
	gather func(context.Context, any) any
}

// Bus is a simple in-process event dispatcher. It is passed around as an
// explicit dependency; there is no global bus. Delivery is synchronous and
// follows listener registration order.
type Bus struct {
	mu     sync.RWMutex
	notify map[reflect.Type][]*entry
	gather map[reflect.Type][]*entry
}

// New creates a new Bus.
func New() *Bus {
	return &Bus{
		notify: make(map[reflect.Type][]*entry),
		gather: make(map[reflect.Type][]*entry),
	}
}

func subscribe(m map[reflect.Type][]*entry, mu *sync.RWMutex, t reflect.Type, e *entry) (unsubscribe func()) {
	mu.Lock()
	m[t] = append(m[t], e)
	mu.Unlock()
	return func() {
		mu.Lock()
		defer mu.Unlock()
		hs := m[t]
		for i, cur := range hs {
			if cur == e {
				hs = append(hs[:i], hs[i+1:]...)
				break
			}
		}
		if len(hs) == 0 {
			delete(m, t)
		} else {
			m[t] = hs
		}
	}
}

// Subscribe registers h for events of type T.
func Subscribe[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := &entry{notify: func(ctx context.Context, v any) { h(ctx, v.(T)) }}
	return subscribe(b.notify, &b.mu, t, e)
}

// SubscribeGather registers h for gathering dispatches of type T. The value
// it returns is collected by Gather along with the results of all other
// listeners, in registration order.
func SubscribeGather[T, R any](b *Bus, h Collector[T, R]) (unsubscribe func()) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	e := &entry{gather: func(ctx context.Context, v any) any { return h(ctx, v.(T)) }}
	return subscribe(b.gather, &b.mu, t, e)
}

// Publish dispatches e synchronously to all handlers of its type.
func Publish[T any](ctx context.Context, b *Bus, e T) {
	if b == nil {
		return
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	copied := append([]*entry(nil), b.notify[t]...)
	b.mu.RUnlock()
	for _, en := range copied {
		en.notify(ctx, e)
	}
}

// Gather dispatches e synchronously to all collecting listeners of its type
// and returns their results in registration order.
func Gather[T, R any](ctx context.Context, b *Bus, e T) []R {
	if b == nil {
		return nil
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.RLock()
	copied := append([]*entry(nil), b.gather[t]...)
	b.mu.RUnlock()
	out := make([]R, 0, len(copied))
	for _, en := range copied {
		out = append(out, en.gather(ctx, e).(R))
	}
	return out
}
