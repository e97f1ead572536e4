package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// SharedSecretLen is the size of the AES-128 key negotiated at login.
const SharedSecretLen = 16

// cfb8 is cipher feedback mode with 8-bit segments. crypto/cipher only
// provides full-block CFB.
type cfb8 struct {
	block   cipher.Block
	blockSz int
	// register holds the last blockSz ciphertext bytes, starting at pos.
	register []byte
	pos      int
	out      []byte
	decrypt  bool
}

func newCFB8(block cipher.Block, iv []byte, decrypt bool) cipher.Stream {
	bs := block.BlockSize()
	if len(iv) != bs {
		panic("protocol: cfb8 IV length must equal block size")
	}
	x := &cfb8{
		block:    block,
		blockSz:  bs,
		register: make([]byte, 2*bs),
		out:      make([]byte, bs),
		decrypt:  decrypt,
	}
	copy(x.register, iv)
	return x
}

// NewCFB8Encrypter returns a stream encrypting with CFB-8.
func NewCFB8Encrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, false)
}

// NewCFB8Decrypter returns a stream decrypting with CFB-8.
func NewCFB8Decrypter(block cipher.Block, iv []byte) cipher.Stream {
	return newCFB8(block, iv, true)
}

func (x *cfb8) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("protocol: cfb8 output smaller than input")
	}
	for i, in := range src {
		x.block.Encrypt(x.out, x.register[x.pos:x.pos+x.blockSz])
		c := in ^ x.out[0]
		dst[i] = c
		if x.decrypt {
			c = in
		}
		x.shift(c)
	}
}

// shift appends c to the register, sliding the window instead of copying
// on every byte.
func (x *cfb8) shift(c byte) {
	if x.pos+x.blockSz == len(x.register) {
		copy(x.register, x.register[x.pos+1:])
		x.pos = 0
		x.register[x.blockSz-1] = c
		return
	}
	x.register[x.pos+x.blockSz] = c
	x.pos++
}

// NewCipherPair builds the two independent streams of an encrypted
// connection from the shared secret, which serves as both key and IV.
func NewCipherPair(secret []byte) (encrypt, decrypt cipher.Stream, err error) {
	if len(secret) != SharedSecretLen {
		return nil, nil, &EncryptionSetupError{Err: fmt.Errorf("shared secret must be %d bytes, got %d", SharedSecretLen, len(secret))}
	}
	encBlock, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, &EncryptionSetupError{Err: err}
	}
	decBlock, err := aes.NewCipher(secret)
	if err != nil {
		return nil, nil, &EncryptionSetupError{Err: err}
	}
	return NewCFB8Encrypter(encBlock, secret), NewCFB8Decrypter(decBlock, secret), nil
}
