package codec

import (
	"bytes"
	"fmt"

	"github.com/Versifine/mcclient/internal/protocol"
)

// DefaultVersion is the protocol version spoken when none is configured (1.16.5).
const DefaultVersion = 754

type encodeFunc func(w *bytes.Buffer, params any) error
type decodeFunc func(r *bytes.Reader) (any, error)

type packetDef struct {
	id     int32
	name   string
	encode encodeFunc
	decode decodeFunc
}

// tableCodec is a codec over a fixed packet table. It carries no mutable
// state and is safe for concurrent use.
type tableCodec struct {
	byID   map[int32]*packetDef
	byName map[string]*packetDef
}

func newTableCodec(defs []packetDef) *tableCodec {
	c := &tableCodec{
		byID:   make(map[int32]*packetDef, len(defs)),
		byName: make(map[string]*packetDef, len(defs)),
	}
	for i := range defs {
		d := &defs[i]
		c.byID[d.id] = d
		c.byName[d.name] = d
	}
	return c
}

func (c *tableCodec) Encode(name string, params any) ([]byte, error) {
	def, ok := c.byName[name]
	if !ok {
		return nil, &protocol.UnknownPacketError{Name: name}
	}
	var buf bytes.Buffer
	_ = protocol.WriteVarint(&buf, def.id)
	if err := def.encode(&buf, params); err != nil {
		return nil, prefixField(def.name, err)
	}
	return buf.Bytes(), nil
}

func (c *tableCodec) Decode(data []byte) (Decoded, error) {
	r := bytes.NewReader(data)
	id, err := protocol.ReadVarint(r)
	if err != nil {
		return Decoded{}, &protocol.FieldError{Field: "packetId", Err: err}
	}
	def, ok := c.byID[id]
	if !ok {
		return Decoded{}, &protocol.UnknownPacketError{ID: id}
	}
	params, err := def.decode(r)
	if err != nil {
		return Decoded{}, prefixField(def.name, err)
	}
	return Decoded{Name: def.name, Params: params, Size: len(data)}, nil
}

func prefixField(packet string, err error) error {
	if fe, ok := err.(*protocol.FieldError); ok {
		return &protocol.FieldError{Field: packet + "." + fe.Field, Err: fe.Err}
	}
	return &protocol.FieldError{Field: packet, Err: err}
}

// Builtin provides the handshake, status and login tables plus the few play
// packets the client itself reacts to. Login and play tables exist only for
// the versions in playLayouts; other versions fail with
// ErrUnsupportedVersion.
type Builtin struct{}

func (Builtin) Codec(key Key) (Codec, error) {
	defs, err := builtinDefs(key)
	if err != nil {
		return nil, err
	}
	return newTableCodec(defs), nil
}

func builtinDefs(key Key) ([]packetDef, error) {
	toServer := key.Direction == protocol.ToServer
	switch key.State {
	case protocol.Handshaking:
		if toServer {
			return []packetDef{{0x00, NameSetProtocol, encodeHandshake, decodeHandshake}}, nil
		}
		return nil, nil
	case protocol.Status:
		if toServer {
			return []packetDef{
				{0x00, NamePingStart, encodeEmpty, decodePingStart},
				{0x01, NamePing, encodePing, decodePing},
			}, nil
		}
		return []packetDef{
			{0x00, NameServerInfo, encodeServerInfo, decodeServerInfo},
			{0x01, NamePing, encodePing, decodePing},
		}, nil
	case protocol.Login, protocol.Play:
		layout, ok := findLayout(key.Version)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, key)
		}
		if key.State == protocol.Login {
			return loginDefs(key.Version, toServer), nil
		}
		return layout.defs(toServer), nil
	}
	return nil, fmt.Errorf("no builtin codec for %s", key)
}

func loginDefs(version int, toServer bool) []packetDef {
	plugin := version >= 385 //1.13
	if toServer {
		defs := []packetDef{
			{0x00, NameLoginStart, encodeLoginStart, decodeLoginStart},
			{0x01, NameEncryptionBegin, encodeEncryptionResponse, decodeEncryptionResponse},
		}
		if plugin {
			defs = append(defs, packetDef{0x02, NameLoginPluginResponse, encodeLoginPluginResponse, decodeLoginPluginResponse})
		}
		return defs
	}
	binaryUUID := version >= 735 //1.16
	defs := []packetDef{
		{0x00, NameDisconnect, encodeDisconnect, decodeDisconnect},
		{0x01, NameEncryptionBegin, encodeEncryptionRequest, decodeEncryptionRequest},
		{0x02, NameSuccess, encodeLoginSuccess(binaryUUID), decodeLoginSuccess(binaryUUID)},
		{0x03, NameCompress, encodeSetCompression, decodeSetCompression},
	}
	if plugin {
		defs = append(defs, packetDef{0x04, NameLoginPluginRequest, encodeLoginPluginRequest, decodeLoginPluginRequest})
	}
	return defs
}

// playLayout holds the play packet ids of a run of protocol versions.
type playLayout struct {
	minVersion, maxVersion int
	kick                   int32
	keepAliveToClient      int32
	keepAliveToServer      int32
	longKeepAlive          bool // 1.12.2 on; older versions send a VarInt id
}

var playLayouts = []playLayout{
	{47, 47, 0x40, 0x00, 0x00, false},   // 1.8
	{107, 316, 0x1A, 0x1F, 0x0B, false}, // 1.9 - 1.11.2
	{340, 340, 0x1A, 0x1F, 0x0B, true},  // 1.12.2
	{393, 404, 0x1B, 0x21, 0x0E, true},  // 1.13 - 1.13.2
	{477, 498, 0x1A, 0x20, 0x0F, true},  // 1.14 - 1.14.4
	{573, 578, 0x1B, 0x21, 0x0F, true},  // 1.15 - 1.15.2
	{735, 736, 0x1A, 0x20, 0x10, true},  // 1.16 - 1.16.1
	{751, 754, 0x19, 0x1F, 0x10, true},  // 1.16.2 - 1.16.5
}

func findLayout(version int) (playLayout, bool) {
	for _, l := range playLayouts {
		if version >= l.minVersion && version <= l.maxVersion {
			return l, true
		}
	}
	return playLayout{}, false
}

func (l playLayout) defs(toServer bool) []packetDef {
	encode, decode := encodeKeepAlive, decodeKeepAlive
	if !l.longKeepAlive {
		encode, decode = encodeKeepAliveVarint, decodeKeepAliveVarint
	}
	if toServer {
		return []packetDef{{l.keepAliveToServer, NameKeepAlive, encode, decode}}
	}
	return []packetDef{
		{l.kick, NameKickDisconnect, encodeDisconnect, decodeDisconnect},
		{l.keepAliveToClient, NameKeepAlive, encode, decode},
	}
}
