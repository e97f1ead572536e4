package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/session"
)

// VersionMismatchError is published when the server kicks the client
// for speaking the wrong protocol version.
type VersionMismatchError struct {
	Required string
	Current  int
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("this server is version %s, you are using protocol %d, please configure the correct version", e.Required, e.Current)
}

func (c *Client) onConnect(s *session.Session) {
	// 发送握手包和登录开始包
	s.Logger().Debug("Starting handshake", "version", s.Version())
	_ = s.Write(codec.NameSetProtocol, &codec.Handshake{
		ProtocolVersion: int32(s.Version()),
		ServerHost:      c.cfg.Host,
		ServerPort:      uint16(c.cfg.Port),
		NextState:       codec.NextStateLogin,
	})
	if err := s.SetState(protocol.Login); err != nil {
		s.End(err.Error())
		return
	}
	_ = s.Write(codec.NameLoginStart, &codec.LoginStart{Username: c.cfg.Username})
}

func (c *Client) onCompress(s *session.Session, pkt *protocol.Packet) {
	p, ok := pkt.Params.(*codec.SetCompression)
	if !ok {
		return
	}
	s.Logger().Info("Setting compression", "threshold", p.Threshold)
	_ = s.SetCompressionThreshold(int(p.Threshold))
}

func (c *Client) onLoginSuccess(s *session.Session, pkt *protocol.Packet) {
	p, ok := pkt.Params.(*codec.LoginSuccess)
	if !ok {
		return
	}
	c.mu.Lock()
	c.uuid = p.UUID
	c.username = p.Username
	c.mu.Unlock()
	if err := s.SetState(protocol.Play); err != nil {
		s.End(err.Error())
		return
	}
	s.Logger().Info("Login successful", "username", p.Username, "uuid", p.UUID.String())
}

// 和原版客户端一样回复不理解该插件请求
func (c *Client) onPluginRequest(s *session.Session, pkt *protocol.Packet) {
	p, ok := pkt.Params.(*codec.LoginPluginRequest)
	if !ok {
		return
	}
	s.Logger().Debug("Refusing login plugin request", "channel", p.Channel, "message_id", p.MessageID)
	_ = s.Write(codec.NameLoginPluginResponse, &codec.LoginPluginResponse{MessageID: p.MessageID})
}

func (c *Client) onDisconnect(s *session.Session, pkt *protocol.Packet) {
	p, ok := pkt.Params.(*codec.Disconnect)
	if !ok {
		return
	}
	text := chatText(p.Reason)
	s.Logger().Info("Disconnected by server", "state", pkt.Meta.State.String(), "reason", text)
	if required := requiredVersion(p.Reason); required != "" {
		s.Emit(&VersionMismatchError{Required: required, Current: s.Version()})
	}
	s.End(text)
}

func (c *Client) onError(raw any) {
	evt, ok := raw.(event.ErrorEvent)
	if !ok {
		return
	}
	var ce *protocol.CodecError
	var unknown *protocol.UnknownPacketError
	if !errors.As(evt.Err, &ce) || ce.State != protocol.Play || !errors.As(evt.Err, &unknown) {
		return
	}
	c.logUnhandledPlayPacket(unknown.ID)
}

func (c *Client) logUnhandledPlayPacket(packetID int32) {
	c.mu.Lock()
	c.unhandled[packetID]++
	count := c.unhandled[packetID]
	c.mu.Unlock()

	// Log first sighting of packet ID and then every 100 repeats.
	if count == 1 || count%100 == 0 {
		c.log.Debug("Unhandled packet in Play state", "packet_id", fmt.Sprintf("0x%02x", packetID), "count", count)
	}
}

type chatComponent struct {
	Text      string            `json:"text"`
	Translate string            `json:"translate"`
	With      []json.RawMessage `json:"with"`
	Extra     []json.RawMessage `json:"extra"`
}

// chatText flattens a JSON chat component into plain text. Reasons that are
// not JSON are returned as is.
func chatText(reason string) string {
	var s string
	if json.Unmarshal([]byte(reason), &s) == nil {
		return s
	}
	var comp chatComponent
	if json.Unmarshal([]byte(reason), &comp) != nil {
		return reason
	}
	var b strings.Builder
	b.WriteString(comp.Text)
	if comp.Text == "" && comp.Translate != "" {
		b.WriteString(comp.Translate)
		for _, w := range comp.With {
			b.WriteString(" ")
			b.WriteString(chatText(string(w)))
		}
	}
	for _, e := range comp.Extra {
		b.WriteString(chatText(string(e)))
	}
	return b.String()
}

var outdatedPattern = regexp.MustCompile(`(?:Outdated client! Please use|Outdated server! I'm still on) (.+)`)

// requiredVersion extracts the version named in an "outdated" kick.
func requiredVersion(reason string) string {
	var comp chatComponent
	if json.Unmarshal([]byte(reason), &comp) == nil &&
		strings.HasPrefix(comp.Translate, "multiplayer.disconnect.outdated_") && len(comp.With) > 0 {
		return chatText(string(comp.With[0]))
	}
	if m := outdatedPattern.FindStringSubmatch(chatText(reason)); m != nil {
		return m[1]
	}
	return ""
}
