package adaptive

import (
	"bytes"
	"testing"
)

func testKey(n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestNewSelectsKnownCipher(t *testing.T) {
	c, err := New(testKey(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.Type() != CipherAESGCM && c.Type() != CipherChaCha20 {
		t.Errorf("New() type = %q, want a known cipher", c.Type())
	}
}

func TestNewWithType(t *testing.T) {
	for _, want := range []CipherType{CipherAESGCM, CipherChaCha20} {
		c, err := NewWithType(testKey(32), want)
		if err != nil {
			t.Fatalf("NewWithType(%s) error = %v", want, err)
		}
		if c.Type() != want {
			t.Errorf("Type() = %s, want %s", c.Type(), want)
		}
	}

	if _, err := NewWithType(testKey(32), "rot13"); err == nil {
		t.Error("NewWithType(rot13) should fail")
	}
}

func TestKeySizes(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		if _, err := NewAESGCM(testKey(n)); err != nil {
			t.Errorf("NewAESGCM(%d bytes) error = %v", n, err)
		}
	}
	for _, n := range []int{0, 15, 31, 33} {
		if _, err := NewAESGCM(testKey(n)); err == nil {
			t.Errorf("NewAESGCM(%d bytes) should fail", n)
		}
	}

	if _, err := NewChaCha20(testKey(32)); err != nil {
		t.Errorf("NewChaCha20(32 bytes) error = %v", err)
	}
	for _, n := range []int{16, 24, 31} {
		if _, err := NewChaCha20(testKey(n)); err == nil {
			t.Errorf("NewChaCha20(%d bytes) should fail", n)
		}
	}
}

func TestEncryptDecrypt(t *testing.T) {
	ciphers := map[string]Cipher{}
	aes, err := NewAESGCM(testKey(32))
	if err != nil {
		t.Fatalf("NewAESGCM() error = %v", err)
	}
	ciphers["aes-gcm"] = aes
	cha, err := NewChaCha20(testKey(32))
	if err != nil {
		t.Fatalf("NewChaCha20() error = %v", err)
	}
	ciphers["chacha20"] = cha

	cases := []struct {
		name      string
		plaintext []byte
		aad       []byte
	}{
		{"empty", []byte{}, nil},
		{"simple", []byte("hello world"), nil},
		{"with aad", []byte("checkpoint payload"), []byte("cp:42")},
		{"large", bytes.Repeat([]byte("A"), 4096), nil},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}, []byte{0x01}},
	}

	for name, c := range ciphers {
		for _, tt := range cases {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				sealed, err := c.Encrypt(tt.plaintext, tt.aad)
				if err != nil {
					t.Fatalf("Encrypt() error = %v", err)
				}
				want := len(tt.plaintext) + c.NonceSize() + c.Overhead()
				if len(sealed) < want {
					t.Errorf("Encrypt() length = %d, want >= %d", len(sealed), want)
				}

				got, err := c.Decrypt(sealed, tt.aad)
				if err != nil {
					t.Fatalf("Decrypt() error = %v", err)
				}
				if !bytes.Equal(got, tt.plaintext) {
					t.Errorf("Decrypt() = %v, want %v", got, tt.plaintext)
				}
			})
		}
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c, err := New(testKey(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	sealed, err := c.Encrypt([]byte("secret message"), []byte("aad"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := c.Decrypt(tampered, []byte("aad")); err == nil {
		t.Error("Decrypt() should fail for tampered ciphertext")
	}

	if _, err := c.Decrypt(sealed, []byte("wrong aad")); err == nil {
		t.Error("Decrypt() should fail for wrong additional data")
	}

	short := make([]byte, c.NonceSize()-1)
	if _, err := c.Decrypt(short, nil); err == nil {
		t.Error("Decrypt() should fail for input shorter than the nonce")
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	c, err := New(testKey(32))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	seen := make(map[string]bool)
	plaintext := []byte("same plaintext")
	for i := 0; i < 16; i++ {
		sealed, err := c.Encrypt(plaintext, nil)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if seen[string(sealed)] {
			t.Fatal("Encrypt() produced duplicate ciphertext for same plaintext")
		}
		seen[string(sealed)] = true
	}
}
