package session

import (
	"crypto/cipher"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/protocol"
)

const waitTimeout = 2 * time.Second

// peer is the server end of a net.Pipe speaking the wire format by hand.
type peer struct {
	t         *testing.T
	conn      net.Conn
	split     *protocol.Splitter
	threshold int
	enc       cipher.Stream
	dec       cipher.Stream
	buf       []byte
}

func newPair(t *testing.T, opts Options) (*Session, *peer) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("创建 session 失败: %v", err)
	}
	client, server := net.Pipe()
	p := &peer{
		t:         t,
		conn:      server,
		split:     protocol.NewSplitter(),
		threshold: protocol.CompressionDisabled,
		buf:       make([]byte, 4096),
	}
	t.Cleanup(func() {
		s.Close()
		_ = server.Close()
	})
	if err := s.Attach(client); err != nil {
		t.Fatalf("Attach 失败: %v", err)
	}
	return s, p
}

func (p *peer) encryptWith(secret []byte) {
	enc, dec, err := protocol.NewCipherPair(secret)
	if err != nil {
		p.t.Fatalf("创建密码器失败: %v", err)
	}
	p.enc, p.dec = enc, dec
}

// wire turns packet payloads into the bytes the peer would send.
func (p *peer) wire(payloads ...[]byte) []byte {
	var out []byte
	for _, payload := range payloads {
		if p.threshold != protocol.CompressionDisabled {
			var err error
			if payload, err = protocol.Compress(payload, p.threshold); err != nil {
				p.t.Fatalf("压缩失败: %v", err)
			}
		}
		out = protocol.AppendFrame(out, payload)
	}
	if p.enc != nil {
		p.enc.XORKeyStream(out, out)
	}
	return out
}

func (p *peer) sendRaw(b []byte) {
	p.t.Helper()
	_ = p.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	if _, err := p.conn.Write(b); err != nil {
		p.t.Fatalf("peer 写入失败: %v", err)
	}
}

func (p *peer) send(payloads ...[]byte) { p.sendRaw(p.wire(payloads...)) }

// recv returns the next packet payload written by the session.
func (p *peer) recv() []byte {
	p.t.Helper()
	for {
		frame, ok, err := p.split.Next()
		if err != nil {
			p.t.Fatalf("peer 分帧失败: %v", err)
		}
		if ok {
			if p.threshold == protocol.CompressionDisabled {
				return frame.Payload
			}
			payload, err := protocol.Decompress(frame.Payload)
			if err != nil {
				p.t.Fatalf("peer 解压失败: %v", err)
			}
			return payload
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(waitTimeout))
		n, err := p.conn.Read(p.buf)
		if err != nil {
			p.t.Fatalf("peer 读取失败: %v", err)
		}
		chunk := p.buf[:n]
		if p.dec != nil {
			p.dec.XORKeyStream(chunk, chunk)
		}
		p.split.Write(chunk)
	}
}

// serverPacket encodes a packet the way a server would for state.
func serverPacket(t *testing.T, state protocol.State, name string, params any) []byte {
	t.Helper()
	b, err := codec.Bind(codec.Builtin{}, codec.DefaultVersion, true, state)
	if err != nil {
		t.Fatalf("绑定服务端编解码器失败: %v", err)
	}
	data, err := b.Encode(name, params)
	if err != nil {
		t.Fatalf("编码 %s 失败: %v", name, err)
	}
	return data
}

// clientPacket decodes what the session wrote in state.
func clientPacket(t *testing.T, state protocol.State, payload []byte) *protocol.Packet {
	t.Helper()
	b, _ := codec.Bind(codec.Builtin{}, codec.DefaultVersion, true, state)
	pkt, err := b.Decode(payload)
	if err != nil {
		t.Fatalf("解码客户端包失败: %v", err)
	}
	return pkt
}

func record(s *Session, name string) chan any {
	ch := make(chan any, 64)
	s.On(name, func(evt any) { ch <- evt })
	return ch
}

func await(t *testing.T, ch chan any, what string) any {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(waitTimeout):
		t.Fatalf("等待 %s 超时", what)
		return nil
	}
}

func awaitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatal("等待 session 结束超时")
	}
}
