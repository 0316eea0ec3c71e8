// Package obscure provides a reversible, NOT-secure encoding for
// passwords stored in the config file on disk: just enough to stop
// them being read by a casual shoulder-surf of the file, the same
// level of protection the teacher's own config store offers its
// fields.
package obscure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// cryptKey is a fixed AES-256 key. Obscuring is explicitly not meant to
// defend against anyone with read access to this source.
var cryptKey = []byte{
	0x3b, 0x71, 0x9a, 0x44, 0xd0, 0x62, 0x5c, 0x19,
	0x8e, 0xfa, 0x27, 0x6d, 0x11, 0x93, 0x4f, 0xb6,
	0x52, 0x0d, 0xc8, 0xe1, 0x7a, 0x3f, 0x09, 0x84,
	0xb1, 0x2e, 0x56, 0xaf, 0xd9, 0x40, 0x67, 0xc3,
}

// cryptRand is the source of the random IV prepended to every obscured
// value.
var cryptRand = rand.Reader

func crypt(out, in, iv []byte) error {
	block, err := aes.NewCipher(cryptKey)
	if err != nil {
		return err
	}
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return nil
}

// Obscure encodes x as iv||AES-CTR(x), base64 raw-url-encoded.
func Obscure(x string) (string, error) {
	plaintext := []byte(x)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(cryptRand, iv); err != nil {
		return "", errors.New("obscure: failed to read random source")
	}
	ciphertext := make([]byte, len(plaintext))
	if err := crypt(ciphertext, plaintext, iv); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

// MustObscure is Obscure, panicking on failure.
func MustObscure(x string) string {
	out, err := Obscure(x)
	if err != nil {
		panic(fmt.Sprintf("obscure: %v", err))
	}
	return out
}

// Reveal decodes a string produced by Obscure.
func Reveal(x string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return "", fmt.Errorf("obscure: base64 decode failed when revealing password - is it obscured?: %w", err)
	}
	if len(data) < aes.BlockSize {
		return "", errors.New("obscure: input too short when revealing password - is it obscured?")
	}
	iv, buf := data[:aes.BlockSize], data[aes.BlockSize:]
	if err := crypt(buf, buf, iv); err != nil {
		return "", err
	}
	return string(buf), nil
}

// MustReveal is Reveal, panicking on failure.
func MustReveal(x string) string {
	out, err := Reveal(x)
	if err != nil {
		panic(fmt.Sprintf("obscure: %v", err))
	}
	return out
}
