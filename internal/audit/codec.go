package audit

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
)

// Codec transforms audit detail payloads between their plain and stored
// forms. Swapping the codec never touches the recorder or the stores.
type Codec interface {
	Encode(plain []byte) (string, error)
	Decode(stored string) ([]byte, error)
}

// PlainCodec stores details as-is. Used when no encryption keys are
// configured.
type PlainCodec struct{}

func (PlainCodec) Encode(plain []byte) (string, error) {
	return string(plain), nil
}

func (PlainCodec) Decode(stored string) ([]byte, error) {
	return []byte(stored), nil
}

// AESCodec encrypts details with AES-256-CBC and stores the ciphertext as
// hex. Key is 32 bytes and IV 16 bytes, both supplied hex-encoded.
type AESCodec struct {
	key []byte
	iv  []byte
}

func NewAESCodec(keyHex string, ivHex string) (*AESCodec, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, fmt.Errorf("decode encryption iv: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("encryption iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	return &AESCodec{key: key, iv: iv}, nil
}

func (c *AESCodec) Encode(plain []byte) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv).CryptBlocks(out, padded)
	return hex.EncodeToString(out), nil
}

// Decode returns the input unchanged when it is not hex: entries written
// before encryption was enabled are stored as plain text and must still
// render.
func (c *AESCodec) Decode(stored string) ([]byte, error) {
	raw, err := hex.DecodeString(stored)
	if err != nil {
		return []byte(stored), nil
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(raw))
	cipher.NewCBCDecrypter(block, c.iv).CryptBlocks(out, raw)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padding := int(data[len(data)-1])
	if padding < 1 || padding > blockSize {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
