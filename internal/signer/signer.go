package signer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SignatureLen is the number of hex characters of the MD5 digest kept in a payload
	SignatureLen = 16

	// signatureOffset is where the kept characters start inside the 32-char digest
	signatureOffset = 8
)

// Cipher is the per-device block cipher context.
//
// Encryption uses the device key directly as the AES key with no IV and no
// chaining between blocks (ECB). This is what the device firmware expects; it is
// deterministic and leaks equal plaintext blocks, and cannot be changed without
// breaking interoperability.
type Cipher struct {
	block cipher.Block
}

// NewCipher creates the cipher context for a device key.
// The key must be a valid AES key length (devices use 16 bytes).
func NewCipher(key string) (*Cipher, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("invalid device key: %w", err)
	}
	return &Cipher{block: block}, nil
}

// Encrypt pads plain with PKCS#7 and encrypts each block independently
func (c *Cipher) Encrypt(plain []byte) []byte {
	bs := c.block.BlockSize()
	padded := pkcs7Pad(plain, bs)

	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += bs {
		c.block.Encrypt(out[i:i+bs], padded[i:i+bs])
	}
	return out
}

// Decrypt reverses Encrypt
func (c *Cipher) Decrypt(ct []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ct) == 0 || len(ct)%bs != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of block size %d", len(ct), bs)
	}

	out := make([]byte, len(ct))
	for i := 0; i < len(ct); i += bs {
		c.block.Decrypt(out[i:i+bs], ct[i:i+bs])
	}
	return pkcs7Unpad(out, bs)
}

// Signature computes the 16-character payload signature:
// lowercase hex of MD5("data=" + data + "||lpv=" + version + "||" + key), characters 8..23.
func Signature(data, version, key string) string {
	sum := md5.Sum([]byte("data=" + data + "||lpv=" + version + "||" + key))
	digest := hex.EncodeToString(sum[:])
	return digest[signatureOffset : signatureOffset+SignatureLen]
}

// EncryptAndSign builds the signed payload carried by set frames:
//
//	version ‖ signature ‖ base64(ciphertext)
//
// The result is raw ASCII, not hex. Identical inputs always give identical output.
func EncryptAndSign(c *Cipher, key, version string, payload []byte) []byte {
	data := base64.StdEncoding.EncodeToString(c.Encrypt(payload))
	sig := Signature(data, version, key)

	var buf bytes.Buffer
	buf.Grow(len(version) + SignatureLen + len(data))
	buf.WriteString(version)
	buf.WriteString(sig)
	buf.WriteString(data)
	return buf.Bytes()
}

// Verify checks a payload produced by EncryptAndSign for the given version and
// key, and returns the decrypted plaintext.
func Verify(c *Cipher, key string, signed []byte, version string) ([]byte, error) {
	s := string(signed)
	if !strings.HasPrefix(s, version) {
		return nil, fmt.Errorf("payload does not start with version %q", version)
	}
	s = s[len(version):]

	if len(s) <= SignatureLen {
		return nil, fmt.Errorf("payload too short: %d bytes after version", len(s))
	}
	sig, data := s[:SignatureLen], s[SignatureLen:]

	if want := Signature(data, version, key); sig != want {
		return nil, fmt.Errorf("signature mismatch: got %s, want %s", sig, want)
	}

	ct, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	return c.Decrypt(ct)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, fmt.Errorf("invalid padding byte 0x%02x", p)
		}
	}
	return b[:len(b)-n], nil
}
