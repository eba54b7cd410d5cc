package signer

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef"

func TestNewCipherRejectsBadKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "16 byte key", key: testKey, wantErr: false},
		{name: "empty key", key: "", wantErr: true},
		{name: "short key", key: "abc", wantErr: true},
		{name: "17 byte key", key: testKey + "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCipher() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// FIPS-197 appendix C.1 vector. Each block is encrypted on its own, so the first
// ciphertext block must match the reference exactly.
func TestEncryptKnownVector(t *testing.T) {
	key, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	plain, _ := hex.DecodeString("00112233445566778899aabbccddeeff")
	want, _ := hex.DecodeString("69c4e0d86a7b0430d8cdb78070b4c55a")

	c, err := NewCipher(string(key))
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}

	ct := c.Encrypt(plain)
	if len(ct) != 32 {
		t.Fatalf("ciphertext length = %d, want 32 (one data block + one padding block)", len(ct))
	}
	if !bytes.Equal(ct[:16], want) {
		t.Errorf("first block = %x, want %x", ct[:16], want)
	}
}

func TestEncryptNoChaining(t *testing.T) {
	c, _ := NewCipher(testKey)
	block := []byte("ABCDEFGHIJKLMNOP")

	ct := c.Encrypt(append(append([]byte{}, block...), block...))
	if !bytes.Equal(ct[:16], ct[16:32]) {
		t.Error("identical plaintext blocks should give identical ciphertext blocks")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, _ := NewCipher(testKey)

	for _, size := range []int{0, 1, 15, 16, 17, 100} {
		plain := bytes.Repeat([]byte{'x'}, size)
		ct := c.Encrypt(plain)

		if len(ct)%16 != 0 || len(ct) <= size {
			t.Errorf("size %d: ciphertext length %d not padded", size, len(ct))
		}

		got, err := c.Decrypt(ct)
		if err != nil {
			t.Fatalf("size %d: Decrypt() error = %v", size, err)
		}
		if !bytes.Equal(got, plain) {
			t.Errorf("size %d: round trip = %q, want %q", size, got, plain)
		}
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c, _ := NewCipher(testKey)

	if _, err := c.Decrypt([]byte("short")); err == nil {
		t.Error("Decrypt() should reject partial blocks")
	}
	if _, err := c.Decrypt(nil); err == nil {
		t.Error("Decrypt() should reject empty input")
	}
}

func TestSignature(t *testing.T) {
	// md5("data=abc||lpv=3.1||0123456789abcdef") = cd99cd199b2bb089b147e8dac3cae5ea
	got := Signature("abc", "3.1", testKey)
	if got != "9b2bb089b147e8da" {
		t.Errorf("Signature() = %s, want 9b2bb089b147e8da", got)
	}
	if len(got) != SignatureLen {
		t.Errorf("Signature() length = %d, want %d", len(got), SignatureLen)
	}
}

func TestEncryptAndSignLayout(t *testing.T) {
	c, _ := NewCipher(testKey)
	payload := []byte(`{"devId":"dev1","dps":{"1":true}}`)

	signed := string(EncryptAndSign(c, testKey, "3.1", payload))

	if !strings.HasPrefix(signed, "3.1") {
		t.Fatalf("payload should start with version, got %q", signed)
	}
	sig := signed[3 : 3+SignatureLen]
	data := signed[3+SignatureLen:]

	if sig != Signature(data, "3.1", testKey) {
		t.Errorf("embedded signature %s does not match data", sig)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		t.Errorf("data is not base64: %v", err)
	}
}

func TestEncryptAndSignDeterministic(t *testing.T) {
	c, _ := NewCipher(testKey)
	payload := []byte(`{"dps":{"1":false}}`)

	a := EncryptAndSign(c, testKey, "3.1", payload)
	b := EncryptAndSign(c, testKey, "3.1", payload)
	if !bytes.Equal(a, b) {
		t.Error("EncryptAndSign() should be deterministic for identical inputs")
	}

	otherKey := "fedcba9876543210"
	c2, _ := NewCipher(otherKey)
	if bytes.Equal(a, EncryptAndSign(c2, otherKey, "3.1", payload)) {
		t.Error("different keys should give different payloads")
	}
	if bytes.Equal(a, EncryptAndSign(c, testKey, "3.1", []byte(`{"dps":{"1":true}}`))) {
		t.Error("different plaintexts should give different payloads")
	}
}

func TestVerify(t *testing.T) {
	c, _ := NewCipher(testKey)
	payload := []byte(`{"devId":"dev1","dps":{"1":true}}`)
	signed := EncryptAndSign(c, testKey, "3.1", payload)

	got, err := Verify(c, testKey, signed, "3.1")
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Verify() = %q, want %q", got, payload)
	}

	tampered := append([]byte{}, signed...)
	tampered[len(tampered)-3] ^= 0x01
	if _, err := Verify(c, testKey, tampered, "3.1"); err == nil {
		t.Error("Verify() should reject a tampered payload")
	}

	if _, err := Verify(c, testKey, signed, "3.3"); err == nil {
		t.Error("Verify() should reject a payload with a different version")
	}
}
