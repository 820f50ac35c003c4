package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// 加密凭据文件格式：blobMagic + base64(salt | nonce | AES-256-GCM密文)
// 明文为JSON {"credential": "..."}
const blobMagic = "CGSEC1:"

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	// OWASP对PBKDF2-SHA-256的推荐迭代次数
	pbkdf2Iterations = 600000
)

var (
	// ErrDecryptionFailed 口令错误或密文损坏
	ErrDecryptionFailed = errors.New("credstore: decryption failed")
	// ErrInvalidPayload 解密成功但明文结构不符
	ErrInvalidPayload = errors.New("credstore: decrypted payload missing credential")
	// ErrEmptyArgument 凭据或口令为空
	ErrEmptyArgument = errors.New("credstore: credential and passphrase must not be empty")
)

type blobPayload struct {
	Credential string `json:"credential"`
}

func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keySize, sha256.New)
}

// encryptCredential 把凭据封装为可下载的加密blob
func encryptCredential(credential, passphrase string) ([]byte, error) {
	if credential == "" || passphrase == "" {
		return nil, ErrEmptyArgument
	}

	plaintext, err := json.Marshal(blobPayload{Credential: credential})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	raw := make([]byte, 0, saltSize+nonceSize+len(sealed))
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = append(raw, sealed...)

	return []byte(blobMagic + base64.StdEncoding.EncodeToString(raw)), nil
}

// decryptCredential 解析并解密blob。口令错误或密文损坏返回ErrDecryptionFailed，
// 明文结构不符返回ErrInvalidPayload
func decryptCredential(blob []byte, passphrase string) (string, error) {
	if len(blob) == 0 || passphrase == "" {
		return "", ErrEmptyArgument
	}

	s := strings.TrimSpace(string(blob))
	if !strings.HasPrefix(s, blobMagic) {
		return "", ErrDecryptionFailed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, blobMagic))
	if err != nil || len(raw) < saltSize+nonceSize+1 {
		return "", ErrDecryptionFailed
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	sealed := raw[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		// GCM认证失败，无法区分口令错误和密文被篡改
		return "", ErrDecryptionFailed
	}

	var payload blobPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return "", ErrInvalidPayload
	}
	if payload.Credential == "" {
		return "", ErrInvalidPayload
	}
	return payload.Credential, nil
}
