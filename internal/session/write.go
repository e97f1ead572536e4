package session

import (
	"sync"

	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/transport"
)

// writeQueue is an unbounded FIFO of wire-ready chunks.
type writeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  [][]byte
	closed bool
}

func newWriteQueue() *writeQueue {
	q := &writeQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *writeQueue) push(b []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, b)
	q.cond.Signal()
	return true
}

// pop blocks until a chunk is available. It returns false once the queue
// is closed and drained.
func (q *writeQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	b := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return b, true
}

func (q *writeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Write encodes a named packet with the codec of the current state and
// queues it. After End it does nothing and returns nil.
func (s *Session) Write(name string, params any) error {
	pkt := &protocol.Packet{Name: name, Params: params}
	if s.hook != nil {
		if pkt = s.hook.OnPacket(pkt, false); pkt == nil {
			return nil
		}
	}

	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return nil
	}
	data, err := s.pipe.binding.Encode(pkt.Name, pkt.Params)
	if err != nil {
		s.mu.Unlock()
		s.emitError(err)
		return err
	}
	meta := protocol.Metadata{
		Name:      pkt.Name,
		State:     s.state,
		Direction: protocol.Outbound(s.isServer),
		Size:      len(data),
	}
	err = s.enqueueLocked(data)
	s.mu.Unlock()
	if err != nil {
		s.emitError(err)
		return err
	}

	s.log.Debug("writing packet "+meta.State.String()+"."+meta.Name, "size", meta.Size)
	s.observer.PacketWritten(meta)
	return nil
}

// WriteRaw queues an already serialised packet (id and fields) through
// compression, framing and encryption.
func (s *Session) WriteRaw(payload []byte) error {
	s.mu.Lock()
	if !s.writable {
		s.mu.Unlock()
		return nil
	}
	err := s.enqueueLocked(payload)
	s.mu.Unlock()
	if err != nil {
		s.emitError(err)
	}
	return err
}

// enqueueLocked seals and queues under s.mu so the cipher stream sees
// chunks in queue order.
func (s *Session) enqueueLocked(payload []byte) error {
	out, err := s.pipe.seal(payload)
	if err != nil {
		return err
	}
	s.queue.push(out)
	return nil
}

func (s *Session) writeLoop(conn transport.Conn) {
	for {
		b, ok := s.queue.pop()
		if !ok {
			break
		}
		n, err := conn.Write(b)
		s.observer.BytesWritten(n)
		if err != nil {
			if !s.closed.Load() {
				s.fail(&protocol.TransportError{Op: "write", Err: err})
			}
			return
		}
	}
	if s.closed.Load() {
		return
	}
	// 队列已关闭并写完，半关闭发送方向
	if hc, ok := conn.(transport.HalfCloser); ok {
		if err := hc.CloseWrite(); err == nil {
			return
		}
	}
	_ = conn.Close()
}
