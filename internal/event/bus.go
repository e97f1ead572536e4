package event

import (
	"log/slog"
	"sync"
)

type HandlerFunc func(raw any)

type subscription struct {
	id      uint64
	handler HandlerFunc
}

// Bus 同步分发事件。handler 在 Publish 的调用者 goroutine 上按订阅顺序执行，
// 所以同一个 session 的事件顺序与产生顺序一致。
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers handler for eventName and returns a func removing it.
func (b *Bus) Subscribe(eventName string, handler HandlerFunc) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[eventName] = append(b.handlers[eventName], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(eventName, id) })
	}
}

// Once registers a handler that runs for the next event only.
func (b *Bus) Once(eventName string, handler HandlerFunc) (unsubscribe func()) {
	var fired sync.Once
	var unsub func()
	var mu sync.Mutex
	mu.Lock()
	unsub = b.Subscribe(eventName, func(evt any) {
		fired.Do(func() {
			mu.Lock()
			u := unsub
			mu.Unlock()
			u()
			handler(evt)
		})
	})
	mu.Unlock()
	return unsub
}

func (b *Bus) remove(eventName string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[eventName]
	for i, s := range subs {
		if s.id == id {
			// 复制一份，正在分发的快照不受影响
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.handlers, eventName)
			} else {
				b.handlers[eventName] = next
			}
			return
		}
	}
}

// HasSubscribers reports whether anything listens on eventName.
func (b *Bus) HasSubscribers(eventName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventName]) > 0
}

func (b *Bus) Publish(eventName string, evt any) {
	b.mu.RLock()
	handlers := b.handlers[eventName]
	b.mu.RUnlock()

	for _, s := range handlers {
		b.call(eventName, s.handler, evt)
	}
}

func (b *Bus) call(eventName string, h HandlerFunc, evt any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event handler panicked", "event", eventName, "panic", r)
		}
	}()
	h(evt)
}
