package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"reins/internal/api"
)

const (
	// saltTag is the fixed process-wide salt for the key derivation.
	// Changing it invalidates every credential encrypted under it.
	saltTag = "reins-byok-v1"

	// kdfIterations is the PBKDF2 iteration count.
	kdfIterations = 100_000

	// keyLength is the derived AES key length in bytes (AES-256).
	keyLength = 32

	// nonceLength is the GCM nonce length in bytes (96 bits).
	nonceLength = 12
)

// Encrypted is the output of one Encrypt call: base64-encoded ciphertext
// (which includes the GCM authentication tag) and the per-call IV.
type Encrypted struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// KeyEncryption performs authenticated symmetric encryption of short byte
// strings under a key derived from a master secret. The derived key is
// computed lazily and memoized for the life of the object.
type KeyEncryption struct {
	masterSecret []byte

	deriveOnce sync.Once
	derivedKey []byte
	deriveErr  error
}

// NewKeyEncryption creates a KeyEncryption over the given master secret.
func NewKeyEncryption(masterSecret string) (*KeyEncryption, error) {
	if masterSecret == "" {
		return nil, api.NewAuthError("master secret must not be empty", nil)
	}
	return &KeyEncryption{masterSecret: []byte(masterSecret)}, nil
}

// NewKeyEncryptionWithKey wraps an already-derived 256-bit key, skipping
// the KDF. The credential store uses this with per-record salted keys.
func NewKeyEncryptionWithKey(key []byte) (*KeyEncryption, error) {
	if len(key) != keyLength {
		return nil, api.NewAuthError("derived key must be 32 bytes", nil)
	}
	ke := &KeyEncryption{derivedKey: key}
	ke.deriveOnce.Do(func() {})
	return ke, nil
}

func (k *KeyEncryption) key() ([]byte, error) {
	k.deriveOnce.Do(func() {
		k.derivedKey = pbkdf2.Key(k.masterSecret, []byte(saltTag), kdfIterations, keyLength, sha256.New)
	})
	return k.derivedKey, k.deriveErr
}

func (k *KeyEncryption) aead() (cipher.AEAD, error) {
	key, err := k.key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, api.NewAuthError("cipher initialization failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, api.NewAuthError("AEAD initialization failed", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext with a fresh random 96-bit IV. Re-encrypting
// identical plaintext yields distinct ciphertext and IV.
func (k *KeyEncryption) Encrypt(plaintext []byte) (*Encrypted, error) {
	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, api.NewAuthError("IV generation failed", err)
	}

	ciphertext := gcm.Seal(nil, iv, plaintext, nil)

	return &Encrypted{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt reverses Encrypt. It fails when the authentication tag does not
// validate, which includes the wrong-master-secret case; garbage is never
// returned.
func (k *KeyEncryption) Decrypt(ciphertext, iv string) ([]byte, error) {
	gcm, err := k.aead()
	if err != nil {
		return nil, err
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, api.NewAuthError("ciphertext is not valid base64", err)
	}
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, api.NewAuthError("IV is not valid base64", err)
	}
	if len(rawIV) != nonceLength {
		return nil, api.NewAuthError("IV has wrong length", nil)
	}

	plaintext, err := gcm.Open(nil, rawIV, rawCiphertext, nil)
	if err != nil {
		return nil, api.NewAuthError("decryption failed: authentication tag mismatch", err)
	}
	return plaintext, nil
}

// DeriveKey derives a standalone AES-256 key from a secret and salt using
// the same KDF parameters. Used by the credential store's outer envelope,
// which salts per record.
func DeriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, kdfIterations, keyLength, sha256.New)
}
