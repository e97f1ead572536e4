package protocol

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sync"
)

const (
	// CompressionDisabled is the threshold reported while no compression
	// stage is installed. Frames then carry no envelope at all.
	CompressionDisabled = -2

	// MaxUncompressedSize bounds the declared size of a compressed packet.
	MaxUncompressedSize = 8388608
)

var zlibWriters = sync.Pool{
	New: func() any { return zlib.NewWriter(io.Discard) },
}

// Compress wraps payload in a compression envelope:
// [uncompressed length VarInt][body]. Payloads shorter than threshold are
// stored raw with length 0, so a negative threshold compresses everything.
// An empty payload is always raw since length 0 marks an uncompressed body.
func Compress(payload []byte, threshold int) ([]byte, error) {
	if len(payload) < threshold || len(payload) == 0 {
		out := make([]byte, 0, 1+len(payload))
		out = AppendVarint(out, 0)
		return append(out, payload...), nil
	}

	var buf bytes.Buffer
	buf.Grow(MaxVarIntLen + len(payload)/2)
	var prefix [MaxVarIntLen]byte
	buf.Write(prefix[:PutVarint(prefix[:], int32(len(payload)))])

	z := zlibWriters.Get().(*zlib.Writer)
	defer zlibWriters.Put(z)
	z.Reset(&buf)
	if _, err := z.Write(payload); err != nil {
		return nil, err
	}
	if err := z.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress unwraps a compression envelope. Inflate failures return a
// *DecompressionError. When the inflated size differs from the declared one
// the payload is still returned, together with a *SizeMismatchError.
func Decompress(envelope []byte) ([]byte, error) {
	declared, n, err := DecodeVarint(envelope)
	if err == nil && n == 0 {
		err = ErrInvalidPacket
	}
	if err != nil {
		return nil, &DecompressionError{CompressedLen: len(envelope), Err: err}
	}
	body := envelope[n:]
	if declared == 0 {
		return body, nil
	}
	if declared < 0 || declared > MaxUncompressedSize {
		return nil, &DecompressionError{
			DeclaredLen:   int(declared),
			CompressedLen: len(envelope),
			Err:           fmt.Errorf("%w: %d", ErrPacketTooLarge, declared),
		}
	}

	z, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, &DecompressionError{DeclaredLen: int(declared), CompressedLen: len(envelope), Err: err}
	}
	defer z.Close()

	out := bytes.NewBuffer(make([]byte, 0, declared))
	if _, err := io.Copy(out, io.LimitReader(z, MaxUncompressedSize+1)); err != nil {
		return nil, &DecompressionError{DeclaredLen: int(declared), CompressedLen: len(envelope), Err: err}
	}
	payload := out.Bytes()
	if len(payload) > MaxUncompressedSize {
		return nil, &DecompressionError{DeclaredLen: int(declared), CompressedLen: len(envelope), Err: ErrPacketTooLarge}
	}
	if len(payload) != int(declared) {
		return payload, &SizeMismatchError{Declared: int(declared), Actual: len(payload)}
	}
	return payload, nil
}
