package session

import (
	"errors"

	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
)

// On subscribes to a session event or a packet name. Packet handlers get a
// *protocol.Packet; see package event for the other payloads. Handlers run
// on the read goroutine, one at a time, in the order events happen.
func (s *Session) On(name string, handler event.HandlerFunc) (unsubscribe func()) {
	return s.bus.Subscribe(name, handler)
}

// Once subscribes for the next occurrence of name only.
func (s *Session) Once(name string, handler event.HandlerFunc) (unsubscribe func()) {
	return s.bus.Once(name, handler)
}

// OnPacket is On for a packet name with the payload already asserted.
func (s *Session) OnPacket(name string, handler func(pkt *protocol.Packet)) (unsubscribe func()) {
	return s.bus.Subscribe(name, func(raw any) {
		if pkt, ok := raw.(*protocol.Packet); ok {
			handler(pkt)
		}
	})
}

// Emit publishes err as an error event without ending the session.
func (s *Session) Emit(err error) { s.emitError(err) }

func (s *Session) emitError(err error) {
	s.noteError(err)
	s.bus.Publish(event.EventError, event.ErrorEvent{Err: err})
}

// noteError records err with the observer and the log.
func (s *Session) noteError(err error) {
	s.observer.Error(err)
	var unknown *protocol.UnknownPacketError
	switch {
	case protocol.Fatal(err):
		s.log.Error("Session error", "error", err)
	case errors.As(err, &unknown):
		// codecs commonly cover a subset of play packets
		s.log.Debug("Session error", "error", err)
	case !s.hideErrors:
		s.log.Warn("Session error", "error", err)
	}
}

type pendingEvent struct {
	name    string
	payload any
}

// post publishes a teardown event. While the read goroutine runs the event
// is queued for it, so it never overlaps a packet handler.
func (s *Session) post(name string, payload any) {
	s.mu.Lock()
	if s.reading {
		s.pending = append(s.pending, pendingEvent{name, payload})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.deliver(pendingEvent{name, payload})
}

// stopReading runs as the read goroutine exits and delivers what was
// queued. reading is cleared only once the queue is empty.
func (s *Session) stopReading() {
	for {
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		if len(pending) == 0 {
			s.reading = false
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		for _, e := range pending {
			s.deliver(e)
		}
	}
}

// deliver publishes e. The end event is the last one; done closes after it.
func (s *Session) deliver(e pendingEvent) {
	s.bus.Publish(e.name, e.payload)
	if e.name == event.EventEnd {
		close(s.done)
	}
}

func (s *Session) dispatch(pkt *protocol.Packet) {
	s.log.Debug("read packet "+pkt.Meta.State.String()+"."+pkt.Name, "size", pkt.Meta.Size)
	s.observer.PacketRead(pkt.Meta)

	if s.hook != nil {
		if pkt = s.hook.OnPacket(pkt, true); pkt == nil {
			return
		}
	}
	s.bus.Publish(pkt.Name, pkt)
	s.bus.Publish(event.EventPacket, pkt)

	raw := event.RawEvent{Data: pkt.Raw, Meta: pkt.Meta}
	s.bus.Publish(event.RawPrefix+pkt.Name, raw)
	s.bus.Publish(event.EventRaw, raw)
}
