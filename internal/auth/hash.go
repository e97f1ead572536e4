// Package auth talks to the session server on behalf of an online-mode login.
package auth

import (
	"crypto/sha1"
	"math/big"
)

// ServerHash is the digest a client submits when joining: the SHA-1 of
// serverID, the shared secret and the server's DER public key, printed as a
// signed two's-complement hex number without leading zeros.
func ServerHash(serverID string, secret, publicKey []byte) string {
	h := sha1.New()
	h.Write([]byte(serverID))
	h.Write(secret)
	h.Write(publicKey)
	sum := h.Sum(nil)

	n := new(big.Int).SetBytes(sum)
	if sum[0]&0x80 != 0 {
		// 负数: 取补码后加负号
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(len(sum)*8)))
	}
	return n.Text(16)
}
