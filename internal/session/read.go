package session

import (
	"errors"
	"io"
	"net"

	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/transport"
)

const readBufferSize = 32 * 1024

func (s *Session) readLoop(conn transport.Conn) {
	defer s.stopReading()
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.observer.BytesRead(n)
			s.mu.Lock()
			s.pipe.feed(buf[:n])
			s.mu.Unlock()
			if !s.drain() {
				return
			}
		}
		if err != nil {
			if s.closed.Load() || closedByPeer(err) || s.isEnding() {
				s.closeSocket()
			} else {
				s.fail(&protocol.TransportError{Op: "read", Err: err})
			}
			return
		}
	}
}

func closedByPeer(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func (s *Session) isEnding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// drain decodes and dispatches every complete frame buffered so far. Each
// frame is taken and decoded under s.mu with the binding active at that
// moment; handlers run after the lock is released, so a handler changing
// state or encryption affects the very next frame. It returns false when
// the session is gone.
func (s *Session) drain() bool {
	for {
		if s.closed.Load() {
			return false
		}

		s.mu.Lock()
		frame, ok, err := s.pipe.splitter.Next()
		if err != nil || !ok {
			s.mu.Unlock()
			if err != nil {
				s.fail(err)
				return false
			}
			return true
		}
		if frame.Legacy {
			s.mu.Unlock()
			s.log.Debug("Legacy server list ping received", "size", len(frame.Payload))
			s.bus.Publish(event.EventLegacyPing, event.LegacyPingEvent{Data: frame.Payload})
			continue
		}

		payload, openErr := s.pipe.open(frame.Payload)
		var mismatch *protocol.SizeMismatchError
		var pkt *protocol.Packet
		var decodeErr error
		if openErr == nil || errors.As(openErr, &mismatch) {
			pkt, decodeErr = s.pipe.binding.Decode(payload)
		}
		s.mu.Unlock()

		switch {
		case mismatch != nil:
			if !s.hideErrors {
				s.log.Warn("Compressed packet size mismatch", "declared", mismatch.Declared, "actual", mismatch.Actual)
			}
		case openErr != nil:
			s.observer.FrameDropped(openErr)
			s.emitError(openErr)
			continue
		}
		if decodeErr != nil {
			s.emitError(decodeErr)
			continue
		}
		s.dispatch(pkt)
	}
}
