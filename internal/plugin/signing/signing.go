// Package signing signs plugin binaries and verifies them before they are
// loaded.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateKeyPair creates an ed25519 key pair for signing plugin binaries.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return pub, priv, nil
}

// SignBinary signs the SHA-256 digest of a plugin binary and writes the
// hex-encoded signature to sigPath.
func SignBinary(binaryPath, sigPath string, key ed25519.PrivateKey) error {
	sum, err := digest(binaryPath)
	if err != nil {
		return err
	}
	sig := hex.EncodeToString(ed25519.Sign(key, sum))
	if err := os.WriteFile(sigPath, []byte(sig+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}
	return nil
}

// ErrNoTrustedKey is returned when a signature matches none of the trusted keys.
var ErrNoTrustedKey = errors.New("signature verification failed: no matching trusted key")

// VerifyBinary checks a plugin binary against the signature in sigPath.
// It succeeds when any trusted key verifies the signature.
func VerifyBinary(binaryPath, sigPath string, trusted []ed25519.PublicKey) error {
	sum, err := digest(binaryPath)
	if err != nil {
		return err
	}
	sig, err := readSignature(sigPath)
	if err != nil {
		return err
	}
	for _, key := range trusted {
		if ed25519.Verify(key, sum, sig) {
			return nil
		}
	}
	return ErrNoTrustedKey
}

func digest(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func readSignature(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}
	sig, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid signature format: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(sig))
	}
	return sig, nil
}

// DefaultSignaturePath is where the host looks for a binary's signature:
// "plugins/Greeter.so" is signed by "plugins/Greeter.so.sig".
func DefaultSignaturePath(binaryPath string) string {
	return binaryPath + ".sig"
}

// Verifier checks plugin binaries against <path>.sig files. It implements
// module.Verifier.
type Verifier struct {
	keys []ed25519.PublicKey
}

// NewVerifier creates a verifier trusting keys. With no keys every binary
// is rejected.
func NewVerifier(keys ...ed25519.PublicKey) *Verifier {
	return &Verifier{keys: keys}
}

// LoadVerifier reads hex-encoded public keys, one per file.
func LoadVerifier(keyFiles ...string) (*Verifier, error) {
	keys := make([]ed25519.PublicKey, 0, len(keyFiles))
	for _, path := range keyFiles {
		key, err := ReadPublicKey(path)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return NewVerifier(keys...), nil
}

// Verify implements module.Verifier.
func (v *Verifier) Verify(path string) error {
	if len(v.keys) == 0 {
		return fmt.Errorf("%s: %w", filepath.Base(path), ErrNoTrustedKey)
	}
	return VerifyBinary(path, DefaultSignaturePath(path), v.keys)
}

// WritePublicKey stores a public key hex-encoded.
func WritePublicKey(path string, key ed25519.PublicKey) error {
	return writeHex(path, key, 0644)
}

// WritePrivateKey stores a private key hex-encoded, readable by the owner only.
func WritePrivateKey(path string, key ed25519.PrivateKey) error {
	return writeHex(path, key, 0600)
}

// ReadPublicKey reads a key written by WritePublicKey.
func ReadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := readHex(path, ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PublicKey(raw), nil
}

// ReadPrivateKey reads a key written by WritePrivateKey.
func ReadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := readHex(path, ed25519.PrivateKeySize)
	if err != nil {
		return nil, err
	}
	return ed25519.PrivateKey(raw), nil
}

func writeHex(path string, key []byte, perm os.FileMode) error {
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), perm); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

func readHex(path string, size int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid key format in %s: %w", path, err)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("invalid key length in %s: expected %d, got %d", path, size, len(raw))
	}
	return raw, nil
}
