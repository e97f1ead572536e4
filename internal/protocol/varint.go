package protocol

import (
	"io"
)

const (
	SEGMENT_BITS = 0x7F
	CONTINUE_BIT = 0x80

	// MaxVarIntLen is the longest encoding of a 32-bit VarInt.
	MaxVarIntLen = 5
)

func ReadVarint(r io.Reader) (value int32, err error) {
	value = 0
	position := 0
	var currentByte [1]byte
	for {
		if _, err = io.ReadFull(r, currentByte[:]); err != nil {
			return
		}
		b := currentByte[0]
		value |= int32(b&SEGMENT_BITS) << position
		if (b & CONTINUE_BIT) == 0 {
			break
		}
		position += 7
		if position >= 32 {
			err = ErrVarIntTooLong
			return
		}
	}
	return
}

func WriteVarint(w io.Writer, value int32) (err error) {
	var buf [MaxVarIntLen]byte
	n := PutVarint(buf[:], value)
	_, err = w.Write(buf[:n])
	return
}

// PutVarint encodes value into buf and returns the number of bytes written.
// buf must hold at least MaxVarIntLen bytes.
func PutVarint(buf []byte, value int32) int {
	uvalue := uint32(value)
	i := 0
	for {
		temp := byte(uvalue & SEGMENT_BITS)
		uvalue >>= 7
		if uvalue != 0 {
			temp |= CONTINUE_BIT
		}
		buf[i] = temp
		i++
		if uvalue == 0 {
			return i
		}
	}
}

// AppendVarint appends the VarInt encoding of value to dst.
func AppendVarint(dst []byte, value int32) []byte {
	var buf [MaxVarIntLen]byte
	n := PutVarint(buf[:], value)
	return append(dst, buf[:n]...)
}

// DecodeVarint reads a VarInt from the front of b.
// n == 0 with a nil error means b ends before the VarInt does.
func DecodeVarint(b []byte) (value int32, n int, err error) {
	var position uint
	for i, c := range b {
		if i >= MaxVarIntLen {
			return 0, 0, ErrVarIntTooLong
		}
		value |= int32(c&SEGMENT_BITS) << position
		if c&CONTINUE_BIT == 0 {
			return value, i + 1, nil
		}
		position += 7
	}
	if len(b) >= MaxVarIntLen {
		return 0, 0, ErrVarIntTooLong
	}
	return 0, 0, nil
}

// VarIntLen returns the number of bytes WriteVarint uses for value.
func VarIntLen(value int32) int {
	uvalue := uint32(value)
	count := 1
	for uvalue >= CONTINUE_BIT {
		uvalue >>= 7
		count++
	}
	return count
}
