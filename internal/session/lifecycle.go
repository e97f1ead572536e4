package session

import (
	"context"
	"errors"
	"time"

	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/transport"
)

var ErrSessionClosed = errors.New("session closed")

// Connect dials host:port and attaches the resulting stream.
func (s *Session) Connect(ctx context.Context, dialer transport.Dialer, host string, port int) error {
	conn, err := dialer.Dial(ctx, host, port)
	if err != nil {
		return err
	}
	if err := s.Attach(conn); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// Attach starts the session over conn. The connect event is published
// before the read loop starts, so handlers writing on connect go first.
func (s *Session) Attach(conn transport.Conn) error {
	s.mu.Lock()
	if s.ended || s.conn != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.conn = conn
	s.reading = true
	s.mu.Unlock()

	s.log.Info("Session connected")
	s.observer.SessionStarted()
	s.bus.Publish(event.EventConnect, nil)

	go s.writeLoop(conn)
	go s.readLoop(conn)
	return nil
}

// End stops accepting writes, flushes what is queued, half-closes the
// transport and arms the force-close timer. The end event follows once the
// transport is closed. Calls after the first are no-ops.
func (s *Session) End(reason string) {
	s.mu.Lock()
	if s.ended || s.closed.Load() {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.writable = false
	if reason != "" {
		s.endReason = reason
	}
	conn := s.conn
	if conn != nil {
		s.closeTimer = time.AfterFunc(s.closeTimeout, s.forceClose)
	}
	s.mu.Unlock()

	s.log.Info("Ending session", "reason", reason)
	s.queue.close()
	if conn == nil {
		s.closeSocket()
	}
}

// Close destroys the transport right away.
func (s *Session) Close() {
	s.closeSocket()
}

func (s *Session) forceClose() {
	if !s.closed.Load() {
		s.log.Warn("Graceful close timed out, destroying transport", "timeout", s.closeTimeout)
	}
	s.closeSocket()
}

// fail reports a fatal error and destroys the session. The error event is
// delivered right before end.
func (s *Session) fail(err error) {
	s.noteError(err)
	s.post(event.EventError, event.ErrorEvent{Err: err})
	s.mu.Lock()
	if s.endReason == "" {
		s.endReason = err.Error()
	}
	s.mu.Unlock()
	s.closeSocket()
}

// closeSocket is the single teardown path. It runs once, on any goroutine;
// the end event itself is left to the read goroutine when one is running.
func (s *Session) closeSocket() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.writable = false
	s.ended = true
	timer := s.closeTimer
	conn := s.conn
	reason := s.endReason
	if reason == "" {
		reason = event.ReasonSocketClosed
		s.endReason = reason
	}
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	s.queue.close()
	if conn != nil {
		_ = conn.Close()
	}

	s.log.Info("Session ended", "reason", reason)
	s.observer.SessionEnded(reason)
	s.post(event.EventEnd, event.EndEvent{Reason: reason})
}

// Wait blocks until the session ends or ctx is done, and returns the end
// reason.
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		return s.EndReason(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
