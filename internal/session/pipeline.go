package session

import (
	"crypto/cipher"

	"github.com/Versifine/mcclient/internal/codec"
	"github.com/Versifine/mcclient/internal/protocol"
)

// pipeline holds the transform slots of a session. Every field is guarded
// by Session.mu; a state change replaces binding as a whole.
//
// inbound:  decrypt -> splitter -> decompress -> binding.Decode
// outbound: binding.Encode -> compress -> frame -> encrypt
type pipeline struct {
	binding   *codec.Binding
	splitter  *protocol.Splitter
	threshold int
	encrypt   cipher.Stream
	decrypt   cipher.Stream
}

func newPipeline(binding *codec.Binding) *pipeline {
	p := &pipeline{
		binding:   binding,
		splitter:  protocol.NewSplitter(),
		threshold: protocol.CompressionDisabled,
	}
	p.splitter.RecognizeLegacyPing(binding.State() == protocol.Handshaking)
	return p
}

func (p *pipeline) rebind(b *codec.Binding) {
	p.binding = b
	p.splitter.RecognizeLegacyPing(b.State() == protocol.Handshaking)
}

func (p *pipeline) compressed() bool { return p.threshold != protocol.CompressionDisabled }

// feed decrypts chunk in place and buffers it for splitting.
func (p *pipeline) feed(chunk []byte) {
	if p.decrypt != nil {
		p.decrypt.XORKeyStream(chunk, chunk)
	}
	p.splitter.Write(chunk)
}

// open unwraps the compression envelope of a frame payload, if a stage is installed.
func (p *pipeline) open(frame []byte) ([]byte, error) {
	if !p.compressed() {
		return frame, nil
	}
	return protocol.Decompress(frame)
}

// seal turns a serialised packet into the bytes to put on the wire.
func (p *pipeline) seal(payload []byte) ([]byte, error) {
	if p.compressed() {
		var err error
		if payload, err = protocol.Compress(payload, p.threshold); err != nil {
			return nil, err
		}
	}
	out := protocol.AppendFrame(make([]byte, 0, protocol.MaxVarIntLen+len(payload)), payload)
	if p.encrypt != nil {
		p.encrypt.XORKeyStream(out, out)
	}
	return out, nil
}

func (p *pipeline) installEncryption(secret []byte) error {
	if p.encrypt != nil {
		return &protocol.EncryptionSetupError{Err: protocol.ErrEncryptionInstalled}
	}
	enc, dec, err := protocol.NewCipherPair(secret)
	if err != nil {
		return err
	}
	p.encrypt, p.decrypt = enc, dec
	// bytes already read past the last frame arrived encrypted
	p.splitter.XORBuffered(dec)
	return nil
}
