package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SealedPrefix marks a string produced by Seal.
const SealedPrefix = "sealed:v1:"

var ErrNoKeys = errors.New("sealed value found but no master key is configured")

type Envelope struct {
	KeyID      string `json:"kid"`
	Nonce      string `json:"n"`
	Ciphertext string `json:"ct"`
}

// Manager seals secrets with AES-256-GCM. It keeps every known key so values sealed
// under a rotated-out key still open; new values use the current key.
type Manager struct {
	currentKeyID string
	keys         map[string][]byte
}

func NewManager(currentKeyID string, keys map[string][]byte) (*Manager, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("keys map is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	cp := make(map[string][]byte, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		cp[id] = append([]byte(nil), key...)
	}
	return &Manager{currentKeyID: currentKeyID, keys: cp}, nil
}

func (m *Manager) aead(keyID string) (cipher.AEAD, error) {
	key, ok := m.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", keyID)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext bound to label; the same label must be given to Decrypt.
func (m *Manager) Encrypt(plaintext []byte, label string) (Envelope, error) {
	aead, err := m.aead(m.currentKeyID)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, []byte(label))

	return Envelope{
		KeyID:      m.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (m *Manager) Decrypt(env Envelope, label string) ([]byte, error) {
	aead, err := m.aead(env.KeyID)
	if err != nil {
		return nil, err
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Seal returns value as a single printable string safe to embed in JSON. Empty values
// stay empty.
func (m *Manager) Seal(value, label string) (string, error) {
	if value == "" {
		return "", nil
	}
	env, err := m.Encrypt([]byte(value), label)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return SealedPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (m *Manager) Open(raw, label string) (string, error) {
	if !IsSealed(raw) {
		return raw, nil
	}
	if m == nil {
		return "", ErrNoKeys
	}
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(raw, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	pt, err := m.Decrypt(env, label)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Reseal opens raw and seals it again under the current key.
func (m *Manager) Reseal(raw, label string) (string, error) {
	plain, err := m.Open(raw, label)
	if err != nil {
		return "", err
	}
	return m.Seal(plain, label)
}

func IsSealed(raw string) bool {
	return strings.HasPrefix(raw, SealedPrefix)
}
