// Package client drives a session through handshake and login into play.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/hook"
	"github.com/Versifine/mcclient/internal/ping"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/session"
	"github.com/Versifine/mcclient/internal/transport"
)

const (
	DefaultCheckTimeout = 30 * time.Second
	ReasonShutdown      = "ClientShutdown"
)

type Config struct {
	Host string
	Port int
	// Version 0 asks the server for its protocol version first.
	Version  int
	Username string

	AccessToken string
	ProfileID   uuid.UUID

	KeepAlive    bool
	CheckTimeout time.Duration
	CloseTimeout time.Duration
	HideErrors   bool
}

// HaveCredentials reports whether an online-mode join can be attempted.
func (c Config) HaveCredentials() bool {
	return c.AccessToken != "" && c.ProfileID != uuid.Nil
}

// Joiner performs the session-server join of an online-mode login.
type Joiner interface {
	Join(ctx context.Context, accessToken string, profileID uuid.UUID, serverID string, secret, publicKey []byte) error
}

type Client struct {
	cfg      Config
	dialer   transport.Dialer
	joiner   Joiner
	provider codec.Provider
	observer session.Observer
	hook     hook.Hook
	log      *slog.Logger

	sess *session.Session

	mu        sync.Mutex
	uuid      uuid.UUID
	username  string
	keepAlive *time.Timer
	unhandled map[int32]int
}

type Option func(*Client)

func WithDialer(d transport.Dialer) Option { return func(c *Client) { c.dialer = d } }
func WithJoiner(j Joiner) Option { return func(c *Client) { c.joiner = j } }
func WithProvider(p codec.Provider) Option { return func(c *Client) { c.provider = p } }
func WithObserver(o session.Observer) Option { return func(c *Client) { c.observer = o } }
func WithHook(h hook.Hook) Option { return func(c *Client) { c.hook = h } }
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func New(cfg Config, opts ...Option) *Client {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = transport.DefaultPort
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	c := &Client{
		cfg:       cfg,
		dialer:    &transport.TCPDialer{SRV: true},
		provider:  codec.NewCache(codec.Builtin{}),
		log:       slog.Default(),
		username:  cfg.Username,
		unhandled: make(map[int32]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the session and starts the login. It returns once the
// transport is attached; the login proceeds on the session's goroutines.
func (c *Client) Connect(ctx context.Context) (*session.Session, error) {
	if c.sess != nil {
		return nil, errors.New("client already connected")
	}
	version := c.cfg.Version
	if version == 0 {
		v, err := c.detectVersion(ctx)
		if err != nil {
			return nil, err
		}
		version = v
	}
	for _, state := range []protocol.State{protocol.Login, protocol.Play} {
		if _, err := codec.Bind(c.provider, version, false, state); err != nil {
			return nil, fmt.Errorf("protocol version %d: %w", version, err)
		}
	}

	sess, err := session.New(session.Options{
		Version:      version,
		Provider:     c.provider,
		Hook:         c.hook,
		Observer:     c.observer,
		Logger:       c.log.With("server", fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)),
		CloseTimeout: c.cfg.CloseTimeout,
		HideErrors:   c.cfg.HideErrors,
	})
	if err != nil {
		return nil, err
	}
	c.sess = sess
	c.install(sess)

	if err := sess.Connect(ctx, c.dialer, c.cfg.Host, c.cfg.Port); err != nil {
		return nil, fmt.Errorf("connect %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}
	return sess, nil
}

// Run connects and blocks until the session ends. Cancelling ctx ends the
// session gracefully.
func (c *Client) Run(ctx context.Context) (string, error) {
	sess, err := c.Connect(ctx)
	if err != nil {
		return "", err
	}
	select {
	case <-sess.Done():
	case <-ctx.Done():
		sess.End(ReasonShutdown)
		<-sess.Done()
	}
	return sess.EndReason(), nil
}

func (c *Client) Session() *session.Session { return c.sess }

// Profile returns the uuid and username confirmed by login success.
func (c *Client) Profile() (uuid.UUID, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uuid, c.username
}

func (c *Client) install(s *session.Session) {
	s.On(event.EventConnect, func(any) { c.onConnect(s) })
	s.OnPacket(codec.NameCompress, func(pkt *protocol.Packet) { c.onCompress(s, pkt) })
	s.OnPacket(codec.NameSuccess, func(pkt *protocol.Packet) { c.onLoginSuccess(s, pkt) })
	s.OnPacket(codec.NameLoginPluginRequest, func(pkt *protocol.Packet) { c.onPluginRequest(s, pkt) })
	s.OnPacket(codec.NameDisconnect, func(pkt *protocol.Packet) { c.onDisconnect(s, pkt) })
	s.OnPacket(codec.NameKickDisconnect, func(pkt *protocol.Packet) { c.onDisconnect(s, pkt) })
	s.On(event.EventError, func(raw any) { c.onError(raw) })

	h := &encryptionHandler{client: c, sess: s}
	s.Once(codec.NameEncryptionBegin, func(raw any) {
		if pkt, ok := raw.(*protocol.Packet); ok {
			h.handle(pkt)
		}
	})

	if c.cfg.KeepAlive {
		s.OnPacket(codec.NameKeepAlive, func(pkt *protocol.Packet) { c.onKeepAlive(s, pkt) })
		s.On(event.EventEnd, func(any) { c.stopKeepAlive() })
	}
}

func (c *Client) detectVersion(ctx context.Context) (int, error) {
	c.log.Debug("Pinging server to detect version", "host", c.cfg.Host)
	resp, err := ping.Ping(ctx, ping.Options{
		Host:         c.cfg.Host,
		Port:         c.cfg.Port,
		Dialer:       c.dialer,
		Provider:     c.provider,
		CloseTimeout: c.cfg.CloseTimeout,
		Logger:       c.log,
	})
	if err != nil {
		return 0, fmt.Errorf("detect version: %w", err)
	}
	if resp.Version.Protocol <= 0 {
		return 0, fmt.Errorf("detect version: unsupported protocol version %d", resp.Version.Protocol)
	}
	c.log.Info("Server version detected", "name", resp.Version.Name, "protocol", resp.Version.Protocol)
	return resp.Version.Protocol, nil
}
