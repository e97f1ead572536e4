// Package session owns the transform chain of one protocol connection:
// framing, compression, encryption and the codec binding of the current
// protocol state.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/event"
	"github.com/Versifine/mcclient/internal/hook"
	"github.com/Versifine/mcclient/internal/protocol"
	"github.com/Versifine/mcclient/internal/transport"
)

const DefaultCloseTimeout = 30 * time.Second

type Options struct {
	Version  int
	IsServer bool
	// Provider defaults to a cache over codec.Builtin.
	Provider codec.Provider
	Hook     hook.Hook
	Observer Observer
	Logger   *slog.Logger
	// CloseTimeout bounds a graceful End before the transport is destroyed.
	CloseTimeout time.Duration
	// HideErrors keeps recoverable errors out of the log; they are still published.
	HideErrors bool
}

type Session struct {
	id           uuid.UUID
	version      int
	isServer     bool
	provider     codec.Provider
	hook         hook.Hook
	observer     Observer
	log          *slog.Logger
	closeTimeout time.Duration
	hideErrors   bool
	bus          *event.Bus

	mu         sync.Mutex
	state      protocol.State
	pipe       *pipeline
	conn       transport.Conn
	writable   bool
	ended      bool
	endReason  string
	closeTimer *time.Timer
	// reading is set while the read goroutine runs; teardown events are
	// queued in pending for it to deliver on exit.
	reading bool
	pending []pendingEvent

	queue  *writeQueue
	closed atomic.Bool
	done   chan struct{}
}

// New builds a session in the Handshaking state. Writes are queued until a
// transport is attached.
func New(opts Options) (*Session, error) {
	if opts.Version == 0 {
		opts.Version = codec.DefaultVersion
	}
	if opts.Provider == nil {
		opts.Provider = codec.NewCache(codec.Builtin{})
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = DefaultCloseTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	binding, err := codec.Bind(opts.Provider, opts.Version, opts.IsServer, protocol.Handshaking)
	if err != nil {
		return nil, fmt.Errorf("bind handshaking codec: %w", err)
	}

	id := uuid.New()
	return &Session{
		id:           id,
		version:      opts.Version,
		isServer:     opts.IsServer,
		provider:     opts.Provider,
		hook:         opts.Hook,
		observer:     opts.Observer,
		log:          opts.Logger.With("session", id.String()),
		closeTimeout: opts.CloseTimeout,
		hideErrors:   opts.HideErrors,
		bus:          event.NewBus(),
		state:        protocol.Handshaking,
		pipe:         newPipeline(binding),
		writable:     true,
		queue:        newWriteQueue(),
		done:         make(chan struct{}),
	}, nil
}

func (s *Session) ID() uuid.UUID        { return s.id }
func (s *Session) Version() int         { return s.version }
func (s *Session) Logger() *slog.Logger { return s.log }

func (s *Session) State() protocol.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CompressionThreshold returns protocol.CompressionDisabled until a
// compression stage is installed.
func (s *Session) CompressionThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.threshold
}

func (s *Session) EncryptionEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.encrypt != nil
}

// Writable reports whether Write still queues packets.
func (s *Session) Writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable
}

func (s *Session) EndReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endReason
}

// SetState rebinds the codecs to state. The new binding is built first; if
// that fails the current state stays active.
func (s *Session) SetState(state protocol.State) error {
	binding, err := codec.Bind(s.provider, s.version, s.isServer, state)
	if err != nil {
		err = fmt.Errorf("set state %s: %w", state, err)
		s.emitError(err)
		return err
	}

	s.mu.Lock()
	old := s.state
	s.state = state
	s.pipe.rebind(binding)
	s.mu.Unlock()

	s.log.Debug("State changed", "old", old.String(), "new", state.String())
	s.observer.StateChanged(old, state)
	s.bus.Publish(event.EventState, event.StateChange{Old: old, New: state})
	return nil
}

// SetCompressionThreshold installs the compression stage on first use and
// updates the threshold afterwards. -1 and 0 both compress every non-empty
// packet.
func (s *Session) SetCompressionThreshold(threshold int) error {
	if threshold < -1 {
		err := fmt.Errorf("%w: %d", protocol.ErrInvalidThreshold, threshold)
		s.emitError(err)
		return err
	}
	s.mu.Lock()
	s.pipe.threshold = threshold
	s.mu.Unlock()
	s.log.Debug("Compression threshold set", "threshold", threshold)
	return nil
}

// SetEncryption installs the cipher pair built from secret for both
// directions. Only the first call has an effect; later calls return and
// publish an *protocol.EncryptionSetupError. A secret the cipher rejects
// ends the session.
func (s *Session) SetEncryption(secret []byte) error {
	s.mu.Lock()
	err := s.pipe.installEncryption(secret)
	s.mu.Unlock()

	if err != nil {
		if protocol.Fatal(err) {
			s.fail(err)
		} else {
			s.emitError(err)
		}
		return err
	}
	s.log.Debug("Encryption enabled")
	return nil
}

// Done is closed once the transport is gone and the end event was delivered.
func (s *Session) Done() <-chan struct{} { return s.done }
