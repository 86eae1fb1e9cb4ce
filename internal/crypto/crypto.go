// Package crypto is the reference decryption capability of the bundle cache.
// Encrypted bundles are stored as nonce | AES-256-CTR ciphertext |
// Poly1305-AES MAC. Keys are derived from a password with scrypt.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/poly1305"
)

// Key holds the encryption and message authentication keys.
type Key struct {
	MACKey        `json:"mac"`
	EncryptionKey `json:"encrypt"`
}

// EncryptionKey is the AES-256 key.
type EncryptionKey [32]byte

// MACKey authenticates ciphertexts.
type MACKey struct {
	K [16]byte // for AES-128
	R [16]byte // for Poly1305
}

const (
	aesKeySize  = 32                        // for AES-256
	macKeySizeK = 16                        // for AES-128
	macKeySizeR = 16                        // for Poly1305
	macKeySize  = macKeySizeK + macKeySizeR // for Poly1305-AES128
	ivSize      = aes.BlockSize

	macSize = poly1305.TagSize

	// Extension is the number of bytes a plaintext is enlarged by encrypting it.
	Extension = ivSize + macSize
)

// ErrUnauthenticated is returned when ciphertext verification has failed.
var ErrUnauthenticated = errors.New("ciphertext verification failed")

func randomBytes(buf []byte, what string) {
	n, err := rand.Read(buf)
	if n != len(buf) || err != nil {
		panic("unable to read enough random bytes for " + what)
	}
}

// NewRandomKey returns new encryption and message authentication keys.
func NewRandomKey() *Key {
	k := &Key{}
	randomBytes(k.EncryptionKey[:], "encryption key")
	randomBytes(k.MACKey.K[:], "MAC encryption key")
	randomBytes(k.MACKey.R[:], "MAC key")
	return k
}

// NewRandomNonce returns a new random nonce. It panics on error so that the
// program is safely terminated.
func NewRandomNonce() []byte {
	iv := make([]byte, ivSize)
	randomBytes(iv, "iv")
	return iv
}

func nonZero(b []byte) bool {
	var sum byte
	for _, x := range b {
		sum |= x
	}
	return sum > 0
}

// Valid tests whether the key k is valid (i.e. not zero).
func (k *EncryptionKey) Valid() bool {
	return nonZero(k[:])
}

// Valid tests whether the key m is valid (i.e. both halves not zero).
func (m *MACKey) Valid() bool {
	return nonZero(m.K[:]) && nonZero(m.R[:])
}

// Valid tests if the key is valid.
func (k *Key) Valid() bool {
	return k.EncryptionKey.Valid() && k.MACKey.Valid()
}

func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}

// Overhead returns the size of the MAC appended by Seal.
func (k *Key) Overhead() int {
	return macSize
}

// NonceSize returns the size of the nonce that must be passed to Seal
// and Open.
func (k *Key) NonceSize() int {
	return ivSize
}

// Seal encrypts and authenticates plaintext and appends the result to dst.
func (k *Key) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if !k.Valid() {
		panic("key is invalid")
	}
	if len(additionalData) > 0 {
		panic("additional data is not supported")
	}
	if len(nonce) != ivSize {
		panic("incorrect nonce length")
	}
	if !nonZero(nonce) {
		panic("nonce is invalid")
	}

	ret, out := sliceForAppend(dst, len(plaintext)+k.Overhead())

	c, err := aes.NewCipher(k.EncryptionKey[:])
	if err != nil {
		panic(fmt.Sprintf("unable to create cipher: %v", err))
	}
	cipher.NewCTR(c, nonce).XORKeyStream(out, plaintext)

	mac := poly1305MAC(out[:len(plaintext)], nonce, &k.MACKey)
	copy(out[len(plaintext):], mac)

	return ret
}

// Open authenticates and decrypts ciphertext and appends the result to dst.
func (k *Key) Open(dst, nonce, ciphertext, _ []byte) ([]byte, error) {
	if !k.Valid() {
		return nil, errors.New("invalid key")
	}
	if len(nonce) != ivSize {
		return nil, errors.Errorf("incorrect nonce length %d", len(nonce))
	}
	if !nonZero(nonce) {
		return nil, errors.New("nonce is invalid")
	}
	if len(ciphertext) < k.Overhead() {
		return nil, errors.New("trying to decrypt invalid data: ciphertext too short")
	}

	l := len(ciphertext) - macSize
	ct, mac := ciphertext[:l], ciphertext[l:]

	if !poly1305Verify(ct, nonce, &k.MACKey, mac) {
		return nil, ErrUnauthenticated
	}

	ret, out := sliceForAppend(dst, len(ct))

	c, err := aes.NewCipher(k.EncryptionKey[:])
	if err != nil {
		panic(fmt.Sprintf("unable to create cipher: %v", err))
	}
	cipher.NewCTR(c, nonce).XORKeyStream(out, ct)

	return ret, nil
}

// Encrypt returns nonce | ciphertext | mac for plaintext.
func (k *Key) Encrypt(plaintext []byte) []byte {
	nonce := NewRandomNonce()
	buf := make([]byte, 0, CiphertextLength(len(plaintext)))
	buf = append(buf, nonce...)
	return k.Seal(buf, nonce, plaintext, nil)
}

// Decrypt reverses Encrypt.
func (k *Key) Decrypt(data []byte) ([]byte, error) {
	if len(data) < Extension {
		return nil, errors.Errorf("encrypted data too short: %d bytes", len(data))
	}
	nonce, ciphertext := data[:ivSize], data[ivSize:]
	return k.Open(NewBlobBuffer(0)[:0], nonce, ciphertext, nil)
}

func poly1305MAC(msg []byte, nonce []byte, key *MACKey) []byte {
	k := poly1305PrepareKey(nonce, key)

	var out [16]byte
	poly1305.Sum(&out, msg, &k)

	return out[:]
}

func poly1305PrepareKey(nonce []byte, key *MACKey) [32]byte {
	var k [32]byte

	c, err := aes.NewCipher(key.K[:])
	if err != nil {
		panic(err)
	}
	c.Encrypt(k[16:], nonce[:])

	copy(k[:16], key.R[:])

	return k
}

func poly1305Verify(msg []byte, nonce []byte, key *MACKey, mac []byte) bool {
	k := poly1305PrepareKey(nonce, key)

	var m [16]byte
	copy(m[:], mac)

	return poly1305.Verify(&m, msg, &k)
}

func macKeyFromSlice(mk *MACKey, data []byte) {
	copy(mk.K[:], data[:16])
	copy(mk.R[:], data[16:32])
}
