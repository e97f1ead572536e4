// Package ping queries a server's status the way the multiplayer server
// list does.
package ping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/session"
	"github.com/Versifine/mcclient/internal/transport"
)

const (
	DefaultNoPongTimeout = 5 * time.Second
	DefaultCloseTimeout  = 120 * time.Second
)

var (
	ErrTimeout    = errors.New("ping timed out")
	ErrNoResponse = errors.New("connection ended without a status response")
)

type Options struct {
	Host    string
	Port    int
	Version int
	Dialer  transport.Dialer
	// Provider defaults to codec.Builtin.
	Provider codec.Provider
	// NoPongTimeout bounds the wait for the pong after the status response.
	NoPongTimeout time.Duration
	// CloseTimeout bounds the whole exchange.
	CloseTimeout time.Duration
	Logger       *slog.Logger
}

type Version struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type Player struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type Players struct {
	Max    int      `json:"max"`
	Online int      `json:"online"`
	Sample []Player `json:"sample,omitempty"`
}

// Response is the status JSON sent by the server. Latency is zero when no
// pong arrived in time.
type Response struct {
	Version     Version         `json:"version"`
	Players     Players         `json:"players"`
	Description json.RawMessage `json:"description,omitempty"`
	Favicon     string          `json:"favicon,omitempty"`
	Latency     time.Duration   `json:"-"`
	Raw         json.RawMessage `json:"-"`
}

// Ping performs handshake(next state status), status request and ping.
func Ping(ctx context.Context, opts Options) (*Response, error) {
	if opts.Port == 0 {
		opts.Port = transport.DefaultPort
	}
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{SRV: true}
	}
	if opts.NoPongTimeout <= 0 {
		opts.NoPongTimeout = DefaultNoPongTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sess, err := session.New(session.Options{
		Version:    opts.Version,
		Provider:   opts.Provider,
		Logger:     opts.Logger,
		HideErrors: true,
	})
	if err != nil {
		return nil, err
	}
	p := &pinger{sess: sess, opts: opts}
	p.install()

	if err := sess.Connect(ctx, opts.Dialer, opts.Host, opts.Port); err != nil {
		return nil, err
	}
	return p.wait(ctx)
}

type pinger struct {
	sess *session.Session
	opts Options

	mu       sync.Mutex
	resp     *Response
	err      error
	pongWait *time.Timer
}

func (p *pinger) install() {
	s := p.sess
	s.On(event.EventConnect, func(any) {
		_ = s.Write(codec.NameSetProtocol, &codec.Handshake{
			ProtocolVersion: int32(s.Version()),
			ServerHost:      p.opts.Host,
			ServerPort:      uint16(p.opts.Port),
			NextState:       codec.NextStateStatus,
		})
		_ = s.SetState(protocol.Status)
	})
	s.On(event.EventState, func(raw any) {
		if change, ok := raw.(event.StateChange); ok && change.New == protocol.Status {
			_ = s.Write(codec.NamePingStart, &codec.PingStart{})
		}
	})
	s.Once(codec.NameServerInfo, func(raw any) { p.onServerInfo(raw.(*protocol.Packet)) })
	s.On(event.EventError, func(raw any) {
		evt, ok := raw.(event.ErrorEvent)
		if !ok || !protocol.Fatal(evt.Err) {
			return
		}
		p.mu.Lock()
		if p.err == nil {
			p.err = evt.Err
		}
		p.mu.Unlock()
	})
}

func (p *pinger) onServerInfo(pkt *protocol.Packet) {
	info, ok := pkt.Params.(*codec.ServerInfo)
	if !ok {
		p.fail(fmt.Errorf("unexpected server_info params %T", pkt.Params))
		return
	}
	resp := &Response{Raw: json.RawMessage(info.Response)}
	if err := json.Unmarshal([]byte(info.Response), resp); err != nil {
		p.fail(fmt.Errorf("parse status response: %w", err))
		return
	}

	start := time.Now()
	p.mu.Lock()
	p.resp = resp
	p.pongWait = time.AfterFunc(p.opts.NoPongTimeout, func() {
		p.sess.Logger().Debug("No pong received", "timeout", p.opts.NoPongTimeout)
		p.sess.End("NoPong")
	})
	p.mu.Unlock()

	p.sess.Once(codec.NamePing, func(any) {
		p.mu.Lock()
		p.resp.Latency = time.Since(start)
		p.pongWait.Stop()
		p.mu.Unlock()
		p.sess.End("PingComplete")
	})
	_ = p.sess.Write(codec.NamePing, &codec.Ping{Time: start.UnixMilli()})
}

func (p *pinger) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	p.sess.End("PingFailed")
}

func (p *pinger) wait(ctx context.Context) (*Response, error) {
	timeout := time.NewTimer(p.opts.CloseTimeout)
	defer timeout.Stop()

	select {
	case <-p.sess.Done():
	case <-timeout.C:
		p.sess.Close()
		p.setErr(fmt.Errorf("%w: no response in %s", ErrTimeout, p.opts.CloseTimeout))
	case <-ctx.Done():
		p.sess.Close()
		p.setErr(ctx.Err())
	}
	<-p.sess.Done()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pongWait != nil {
		p.pongWait.Stop()
	}
	if p.resp != nil {
		return p.resp, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	return nil, ErrNoResponse
}

func (p *pinger) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}
