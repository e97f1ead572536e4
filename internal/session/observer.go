package session

import "github.com/Versifine/mcclient/internal/protocol"

// Observer receives accounting callbacks from a session. Calls happen on
// the session's read and write goroutines and must not block.
type Observer interface {
	SessionStarted()
	SessionEnded(reason string)
	BytesRead(n int)
	BytesWritten(n int)
	PacketRead(meta protocol.Metadata)
	PacketWritten(meta protocol.Metadata)
	StateChanged(old, new protocol.State)
	FrameDropped(err error)
	Error(err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) SessionStarted() {}
func (NopObserver) SessionEnded(string) {}
func (NopObserver) BytesRead(int) {}
func (NopObserver) BytesWritten(int) {}
func (NopObserver) PacketRead(protocol.Metadata) {}
func (NopObserver) PacketWritten(protocol.Metadata) {}
func (NopObserver) StateChanged(_, _ protocol.State) {}
func (NopObserver) FrameDropped(error) {}
func (NopObserver) Error(error) {}
