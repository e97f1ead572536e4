package client

import (
	"time"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/session"
)

// onKeepAlive echoes the keep-alive id and re-arms the liveness check. The
// check starts with the first keep-alive, not at login.
func (c *Client) onKeepAlive(s *session.Session, pkt *protocol.Packet) {
	p, ok := pkt.Params.(*codec.KeepAlive)
	if !ok {
		return
	}
	_ = s.Write(codec.NameKeepAlive, &codec.KeepAlive{KeepAliveID: p.KeepAliveID})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAlive != nil {
		c.keepAlive.Reset(c.cfg.CheckTimeout)
		return
	}
	timeout := c.cfg.CheckTimeout
	c.keepAlive = time.AfterFunc(timeout, func() {
		s.Logger().Warn("No keep-alive from server", "timeout", timeout)
		s.End(event.ReasonKeepAliveTimeout)
	})
}

func (c *Client) stopKeepAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
}
