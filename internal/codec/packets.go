package codec

import (
	"bytes"
	"io"

	"github.com/google/uuid"

	"github.com/Versifine/mcclient/internal/protocol"
)

// Packet names understood by the client. External codecs must use the same
// names and params types for these packets.
const (
	NameSetProtocol         = "set_protocol"
	NamePingStart           = "ping_start"
	NamePing                = "ping"
	NameServerInfo          = "server_info"
	NameLoginStart          = "login_start"
	NameEncryptionBegin     = "encryption_begin"
	NameSuccess             = "success"
	NameCompress            = "compress"
	NameDisconnect          = "disconnect"
	NameLoginPluginRequest  = "login_plugin_request"
	NameLoginPluginResponse = "login_plugin_response"
	NameKeepAlive           = "keep_alive"
	NameKickDisconnect      = "kick_disconnect"
)

// Handshake next states.
const (
	NextStateStatus = 1
	NextStateLogin  = 2
)

type Handshake struct {
	ProtocolVersion int32
	ServerHost      string
	ServerPort      uint16
	NextState       int32
}

type PingStart struct{}

type Ping struct {
	Time int64
}

type ServerInfo struct {
	Response string
}

type LoginStart struct {
	Username string
}

// EncryptionRequest is the clientbound encryption_begin.
type EncryptionRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

// EncryptionResponse is the serverbound encryption_begin.
type EncryptionResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

type LoginSuccess struct {
	UUID     uuid.UUID
	Username string
}

type SetCompression struct {
	Threshold int32
}

type Disconnect struct {
	Reason string
}

type LoginPluginRequest struct {
	MessageID int32
	Channel   string
	Data      []byte
}

// LoginPluginResponse with nil Data answers "not understood".
type LoginPluginResponse struct {
	MessageID int32
	Data      []byte
}

type KeepAlive struct {
	KeepAliveID int64
}

func encodeHandshake(w *bytes.Buffer, params any) error {
	h, err := paramsAs[Handshake](params)
	if err != nil {
		return err
	}
	_ = protocol.WriteVarint(w, h.ProtocolVersion)
	_ = protocol.WriteString(w, h.ServerHost)
	_ = protocol.WriteUnsignedShort(w, h.ServerPort)
	return protocol.WriteVarint(w, h.NextState)
}

func decodeHandshake(r *bytes.Reader) (any, error) {
	var h Handshake
	var err error
	if h.ProtocolVersion, err = protocol.ReadVarint(r); err != nil {
		return nil, field("protocolVersion", err)
	}
	if h.ServerHost, err = protocol.ReadString(r); err != nil {
		return nil, field("serverHost", err)
	}
	if h.ServerPort, err = protocol.ReadUnsignedShort(r); err != nil {
		return nil, field("serverPort", err)
	}
	if h.NextState, err = protocol.ReadVarint(r); err != nil {
		return nil, field("nextState", err)
	}
	return &h, nil
}

func encodeEmpty(_ *bytes.Buffer, _ any) error { return nil }

func decodePingStart(_ *bytes.Reader) (any, error) { return &PingStart{}, nil }

func encodePing(w *bytes.Buffer, params any) error {
	p, err := paramsAs[Ping](params)
	if err != nil {
		return err
	}
	return protocol.WriteInt64(w, p.Time)
}

func decodePing(r *bytes.Reader) (any, error) {
	t, err := protocol.ReadInt64(r)
	if err != nil {
		return nil, field("time", err)
	}
	return &Ping{Time: t}, nil
}

func encodeServerInfo(w *bytes.Buffer, params any) error {
	p, err := paramsAs[ServerInfo](params)
	if err != nil {
		return err
	}
	return protocol.WriteString(w, p.Response)
}

func decodeServerInfo(r *bytes.Reader) (any, error) {
	s, err := protocol.ReadString(r)
	if err != nil {
		return nil, field("response", err)
	}
	return &ServerInfo{Response: s}, nil
}

func encodeLoginStart(w *bytes.Buffer, params any) error {
	p, err := paramsAs[LoginStart](params)
	if err != nil {
		return err
	}
	return protocol.WriteString(w, p.Username)
}

func decodeLoginStart(r *bytes.Reader) (any, error) {
	s, err := protocol.ReadString(r)
	if err != nil {
		return nil, field("username", err)
	}
	return &LoginStart{Username: s}, nil
}

func encodeEncryptionRequest(w *bytes.Buffer, params any) error {
	p, err := paramsAs[EncryptionRequest](params)
	if err != nil {
		return err
	}
	_ = protocol.WriteString(w, p.ServerID)
	_ = protocol.WriteByteArray(w, p.PublicKey)
	return protocol.WriteByteArray(w, p.VerifyToken)
}

func decodeEncryptionRequest(r *bytes.Reader) (any, error) {
	var p EncryptionRequest
	var err error
	if p.ServerID, err = protocol.ReadString(r); err != nil {
		return nil, field("serverId", err)
	}
	if p.PublicKey, err = protocol.ReadByteArray(r); err != nil {
		return nil, field("publicKey", err)
	}
	if p.VerifyToken, err = protocol.ReadByteArray(r); err != nil {
		return nil, field("verifyToken", err)
	}
	return &p, nil
}

func encodeEncryptionResponse(w *bytes.Buffer, params any) error {
	p, err := paramsAs[EncryptionResponse](params)
	if err != nil {
		return err
	}
	_ = protocol.WriteByteArray(w, p.SharedSecret)
	return protocol.WriteByteArray(w, p.VerifyToken)
}

func decodeEncryptionResponse(r *bytes.Reader) (any, error) {
	var p EncryptionResponse
	var err error
	if p.SharedSecret, err = protocol.ReadByteArray(r); err != nil {
		return nil, field("sharedSecret", err)
	}
	if p.VerifyToken, err = protocol.ReadByteArray(r); err != nil {
		return nil, field("verifyToken", err)
	}
	return &p, nil
}

// login success carries a binary UUID since 1.16 and a hyphenated string before.
func encodeLoginSuccess(binaryUUID bool) encodeFunc {
	return func(w *bytes.Buffer, params any) error {
		p, err := paramsAs[LoginSuccess](params)
		if err != nil {
			return err
		}
		if binaryUUID {
			_ = protocol.WriteUUID(w, p.UUID)
		} else {
			_ = protocol.WriteString(w, p.UUID.String())
		}
		return protocol.WriteString(w, p.Username)
	}
}

func decodeLoginSuccess(binaryUUID bool) decodeFunc {
	return func(r *bytes.Reader) (any, error) {
		var p LoginSuccess
		var err error
		if binaryUUID {
			p.UUID, err = protocol.ReadUUID(r)
		} else {
			var s string
			if s, err = protocol.ReadString(r); err == nil {
				p.UUID, err = uuid.Parse(s)
			}
		}
		if err != nil {
			return nil, field("uuid", err)
		}
		if p.Username, err = protocol.ReadString(r); err != nil {
			return nil, field("username", err)
		}
		return &p, nil
	}
}

func encodeSetCompression(w *bytes.Buffer, params any) error {
	p, err := paramsAs[SetCompression](params)
	if err != nil {
		return err
	}
	return protocol.WriteVarint(w, p.Threshold)
}

func decodeSetCompression(r *bytes.Reader) (any, error) {
	t, err := protocol.ReadVarint(r)
	if err != nil {
		return nil, field("threshold", err)
	}
	return &SetCompression{Threshold: t}, nil
}

func encodeDisconnect(w *bytes.Buffer, params any) error {
	p, err := paramsAs[Disconnect](params)
	if err != nil {
		return err
	}
	return protocol.WriteString(w, p.Reason)
}

func decodeDisconnect(r *bytes.Reader) (any, error) {
	s, err := protocol.ReadString(r)
	if err != nil {
		return nil, field("reason", err)
	}
	return &Disconnect{Reason: s}, nil
}

func encodeLoginPluginRequest(w *bytes.Buffer, params any) error {
	p, err := paramsAs[LoginPluginRequest](params)
	if err != nil {
		return err
	}
	_ = protocol.WriteVarint(w, p.MessageID)
	_ = protocol.WriteString(w, p.Channel)
	_, err = w.Write(p.Data)
	return err
}

func decodeLoginPluginRequest(r *bytes.Reader) (any, error) {
	var p LoginPluginRequest
	var err error
	if p.MessageID, err = protocol.ReadVarint(r); err != nil {
		return nil, field("messageId", err)
	}
	if p.Channel, err = protocol.ReadString(r); err != nil {
		return nil, field("channel", err)
	}
	if p.Data, err = io.ReadAll(r); err != nil {
		return nil, field("data", err)
	}
	return &p, nil
}

func encodeLoginPluginResponse(w *bytes.Buffer, params any) error {
	p, err := paramsAs[LoginPluginResponse](params)
	if err != nil {
		return err
	}
	_ = protocol.WriteVarint(w, p.MessageID)
	_ = protocol.WriteBool(w, p.Data != nil)
	_, err = w.Write(p.Data)
	return err
}

func decodeLoginPluginResponse(r *bytes.Reader) (any, error) {
	var p LoginPluginResponse
	var err error
	if p.MessageID, err = protocol.ReadVarint(r); err != nil {
		return nil, field("messageId", err)
	}
	ok, err := protocol.ReadBool(r)
	if err != nil {
		return nil, field("successful", err)
	}
	if ok {
		if p.Data, err = io.ReadAll(r); err != nil {
			return nil, field("data", err)
		}
	}
	return &p, nil
}

func encodeKeepAlive(w *bytes.Buffer, params any) error {
	p, err := paramsAs[KeepAlive](params)
	if err != nil {
		return err
	}
	return protocol.WriteInt64(w, p.KeepAliveID)
}

func decodeKeepAlive(r *bytes.Reader) (any, error) {
	id, err := protocol.ReadInt64(r)
	if err != nil {
		return nil, field("keepAliveId", err)
	}
	return &KeepAlive{KeepAliveID: id}, nil
}

// encodeKeepAliveVarint is the keep_alive layout before 1.12.2.
func encodeKeepAliveVarint(w *bytes.Buffer, params any) error {
	p, err := paramsAs[KeepAlive](params)
	if err != nil {
		return err
	}
	return protocol.WriteVarint(w, int32(p.KeepAliveID))
}

func decodeKeepAliveVarint(r *bytes.Reader) (any, error) {
	id, err := protocol.ReadVarint(r)
	if err != nil {
		return nil, field("keepAliveId", err)
	}
	return &KeepAlive{KeepAliveID: int64(id)}, nil
}

func field(name string, err error) error {
	return &protocol.FieldError{Field: name, Err: err}
}
