package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

var varintCases = []struct {
	name    string
	value   int32
	encoded []byte
}{
	{"零值", 0, []byte{0x00}},
	{"单字节最大值", 127, []byte{0x7F}},
	{"128 需要两字节", 128, []byte{0x80, 0x01}},
	{"300", 300, []byte{0xAC, 0x02}},
	{"三字节最大值", 2097151, []byte{0xFF, 0xFF, 0x7F}},
	{"int32 最大值", 2147483647, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x07}},
	{"-1", -1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
}

// TestWriteVarint 测试 WriteVarint 与 AppendVarint 的输出
func TestWriteVarint(t *testing.T) {
	for _, tt := range varintCases {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			if err := WriteVarint(buf, tt.value); err != nil {
				t.Fatalf("WriteVarint() 返回错误: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.encoded) {
				t.Errorf("WriteVarint(%d) = %v, 期望 %v", tt.value, buf.Bytes(), tt.encoded)
			}
			if got := AppendVarint([]byte{0xAA}, tt.value); !bytes.Equal(got[1:], tt.encoded) || got[0] != 0xAA {
				t.Errorf("AppendVarint(%d) = %v", tt.value, got)
			}
			if got := VarIntLen(tt.value); got != len(tt.encoded) {
				t.Errorf("VarIntLen(%d) = %d, 期望 %d", tt.value, got, len(tt.encoded))
			}
		})
	}
}

// TestReadVarint 测试从 reader 读取
func TestReadVarint(t *testing.T) {
	for _, tt := range varintCases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadVarint(bytes.NewReader(tt.encoded))
			if err != nil {
				t.Fatalf("ReadVarint() 返回错误: %v", err)
			}
			if got != tt.value {
				t.Errorf("ReadVarint() = %d, 期望 %d", got, tt.value)
			}
		})
	}
}

func TestReadVarintErrors(t *testing.T) {
	if _, err := ReadVarint(bytes.NewReader([]byte{0x80})); err != io.EOF {
		t.Errorf("ReadVarint() 应该返回 EOF，实际返回: %v", err)
	}
	if _, err := ReadVarint(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})); !errors.Is(err, ErrVarIntTooLong) {
		t.Errorf("ReadVarint() 应该返回 ErrVarIntTooLong，实际返回: %v", err)
	}
}

// TestDecodeVarint 测试从字节切片解码，包括不完整输入
func TestDecodeVarint(t *testing.T) {
	for _, tt := range varintCases {
		t.Run(tt.name, func(t *testing.T) {
			input := append(append([]byte{}, tt.encoded...), 0x55)
			got, n, err := DecodeVarint(input)
			if err != nil {
				t.Fatalf("DecodeVarint() 返回错误: %v", err)
			}
			if got != tt.value || n != len(tt.encoded) {
				t.Errorf("DecodeVarint() = (%d, %d), 期望 (%d, %d)", got, n, tt.value, len(tt.encoded))
			}
		})
	}

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"空输入", nil, nil},
		{"只有继续位", []byte{0x80}, nil},
		{"四字节未结束", []byte{0x80, 0x80, 0x80, 0x80}, nil},
		{"五字节都有继续位", []byte{0x80, 0x80, 0x80, 0x80, 0x80}, ErrVarIntTooLong},
		{"超过五字节", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, ErrVarIntTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, n, err := DecodeVarint(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DecodeVarint() error = %v, 期望 %v", err, tt.wantErr)
			}
			if n != 0 {
				t.Errorf("DecodeVarint() n = %d, 期望 0", n)
			}
		})
	}
}
