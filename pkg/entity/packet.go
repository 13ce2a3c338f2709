package entity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// ContentTypePacket marks a response body that is a secure packet.
	ContentTypePacket = "application/octet-stream"

	packetNonceSize = chacha20poly1305.NonceSizeX // 24
	packetTagSize   = chacha20poly1305.Overhead   // 16
)

// PacketCodec opens (and, for servers and tests, seals) secure packets:
//
//	[magic: magicLen bytes][nonce: 24 bytes][ciphertext || tag: 16 bytes]
//
// The XChaCha20-Poly1305 key is sha256(secret) and the additional data is empty.
type PacketCodec struct {
	key      [32]byte
	magicLen int
	magic    []byte
}

// NewPacketCodec returns a codec for the given secret. When expectedMagic is
// non-empty, Open rejects packets whose prefix differs and magicLen is taken
// from it.
func NewPacketCodec(secret string, magicLen int, expectedMagic []byte) (*PacketCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: packet key needs the HMAC secret", ErrSignatureContext)
	}
	if len(expectedMagic) > 0 {
		magicLen = len(expectedMagic)
	}
	if magicLen < 0 {
		return nil, fmt.Errorf("entity: magic length must not be negative, got %d", magicLen)
	}
	return &PacketCodec{
		key:      DerivePacketKey(secret),
		magicLen: magicLen,
		magic:    append([]byte(nil), expectedMagic...),
	}, nil
}

// DerivePacketKey returns sha256 of the UTF-8 secret.
func DerivePacketKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// IsPacketContentType reports whether a Content-Type header announces a
// secure packet.
func IsPacketContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), ContentTypePacket)
}

// Open authenticates and decrypts a packet. All failures wrap
// ErrDecryptionFailed and never carry key or plaintext bytes.
func (c *PacketCodec) Open(raw []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil codec", ErrDecryptionFailed)
	}
	minLen := c.magicLen + packetNonceSize + packetTagSize
	if len(raw) < minLen {
		return nil, fmt.Errorf("%w: packet too short (%d bytes, need at least %d)", ErrDecryptionFailed, len(raw), minLen)
	}
	if len(c.magic) > 0 && subtle.ConstantTimeCompare(raw[:c.magicLen], c.magic) != 1 {
		return nil, fmt.Errorf("%w: magic prefix mismatch", ErrDecryptionFailed)
	}
	nonce := raw[c.magicLen : c.magicLen+packetNonceSize]
	ciphertext := raw[c.magicLen+packetNonceSize:]

	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: init cipher: %v", ErrDecryptionFailed, err)
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return pt, nil
}

// Seal encrypts plaintext into a packet with a fresh random nonce. The prefix
// is the expected magic when configured, otherwise magicLen random bytes.
func (c *PacketCodec) Seal(plaintext []byte) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("entity: nil codec")
	}
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("entity: init cipher: %w", err)
	}
	out := make([]byte, c.magicLen+packetNonceSize, c.magicLen+packetNonceSize+len(plaintext)+packetTagSize)
	if len(c.magic) > 0 {
		copy(out, c.magic)
	} else if _, err := rand.Read(out[:c.magicLen]); err != nil {
		return nil, fmt.Errorf("entity: rand magic: %w", err)
	}
	nonce := out[c.magicLen:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("entity: rand nonce: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, nil), nil
}
