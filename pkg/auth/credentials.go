package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tendant/simple-accounts/pkg/domain"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// HashAlgorithm selects the adaptive hash used for new digests.
type HashAlgorithm string

const (
	AlgorithmArgon2id HashAlgorithm = "argon2id"
	AlgorithmBcrypt   HashAlgorithm = "bcrypt"
)

// Argon2 parameters (OWASP recommended)
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16

	// Floors below which a configuration is rejected.
	minArgon2Memory = 19 * 1024
	MinBcryptCost   = 12

	// DefaultMaxInputLen bounds plaintext size so hashing cannot be used to
	// burn CPU with huge inputs. bcrypt has its own 72 byte limit.
	DefaultMaxInputLen = 1024
	bcryptMaxInputLen  = 72
)

// CredentialConfig holds hashing parameters.
type CredentialConfig struct {
	Algorithm     HashAlgorithm
	Argon2Time    uint32
	Argon2Memory  uint32
	Argon2Threads uint8
	BcryptCost    int
	MaxInputLen   int
}

// DefaultCredentialConfig returns Argon2id with the OWASP parameters.
func DefaultCredentialConfig() CredentialConfig {
	return CredentialConfig{
		Algorithm:     AlgorithmArgon2id,
		Argon2Time:    argon2Time,
		Argon2Memory:  argon2Memory,
		Argon2Threads: argon2Threads,
		BcryptCost:    MinBcryptCost,
		MaxInputLen:   DefaultMaxInputLen,
	}
}

// CredentialManager performs one-way password hashing and verification.
// It holds no mutable state and is safe for concurrent use.
type CredentialManager struct {
	cfg  CredentialConfig
	rand io.Reader
}

// NewCredentialManager validates cfg and returns a manager.
func NewCredentialManager(cfg CredentialConfig) (*CredentialManager, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmArgon2id
	}
	if cfg.MaxInputLen <= 0 {
		cfg.MaxInputLen = DefaultMaxInputLen
	}
	switch cfg.Algorithm {
	case AlgorithmArgon2id:
		if cfg.Argon2Time < 1 || cfg.Argon2Memory < minArgon2Memory || cfg.Argon2Threads < 1 {
			return nil, fmt.Errorf("argon2id parameters below minimum (t>=1, m>=%d KiB, p>=1)", minArgon2Memory)
		}
	case AlgorithmBcrypt:
		if cfg.BcryptCost < MinBcryptCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("bcrypt cost must be between %d and %d", MinBcryptCost, bcrypt.MaxCost)
		}
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", cfg.Algorithm)
	}
	return &CredentialManager{cfg: cfg, rand: rand.Reader}, nil
}

// Hash returns a salted adaptive digest of plaintext. Each call draws a
// fresh salt, so equal inputs never produce equal digests.
func (m *CredentialManager) Hash(plaintext string) (string, error) {
	if len(plaintext) > m.maxInputLen() {
		return "", fmt.Errorf("%w: input exceeds %d bytes", domain.ErrCrypto, m.maxInputLen())
	}

	if m.cfg.Algorithm == AlgorithmBcrypt {
		digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), m.cfg.BcryptCost)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCrypto, err)
		}
		return string(digest), nil
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(m.rand, salt); err != nil {
		return "", fmt.Errorf("%w: read salt: %v", domain.ErrCrypto, err)
	}

	hash := argon2.IDKey([]byte(plaintext), salt, m.cfg.Argon2Time, m.cfg.Argon2Memory, m.cfg.Argon2Threads, argon2KeyLen)

	// Encode as: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return encodeArgon2Hash(hash, salt, m.cfg.Argon2Time, m.cfg.Argon2Memory, m.cfg.Argon2Threads), nil
}

// Verify checks plaintext against digest. A mismatch is (false, nil); only
// a malformed digest yields ErrCrypto.
func (m *CredentialManager) Verify(plaintext, digest string) (bool, error) {
	if len(plaintext) > m.maxInputLen() {
		// Cannot have been produced by Hash.
		return false, nil
	}

	if isBcryptDigest(digest) {
		err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", domain.ErrCrypto, err)
	}

	p, err := decodeArgon2Hash(digest)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.threads, uint32(len(p.hash)))
	return subtle.ConstantTimeCompare(p.hash, computed) == 1, nil
}

// NeedsRehash reports whether digest was produced with a different
// algorithm or weaker parameters than the current configuration.
func (m *CredentialManager) NeedsRehash(digest string) bool {
	if isBcryptDigest(digest) {
		if m.cfg.Algorithm != AlgorithmBcrypt {
			return true
		}
		cost, err := bcrypt.Cost([]byte(digest))
		return err != nil || cost < m.cfg.BcryptCost
	}
	if m.cfg.Algorithm != AlgorithmArgon2id {
		return true
	}
	p, err := decodeArgon2Hash(digest)
	if err != nil {
		return true
	}
	return p.time < m.cfg.Argon2Time || p.memory < m.cfg.Argon2Memory || p.threads < m.cfg.Argon2Threads
}

func (m *CredentialManager) maxInputLen() int {
	if m.cfg.Algorithm == AlgorithmBcrypt && m.cfg.MaxInputLen > bcryptMaxInputLen {
		return bcryptMaxInputLen
	}
	return m.cfg.MaxInputLen
}

func isBcryptDigest(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") || strings.HasPrefix(digest, "$2b$") || strings.HasPrefix(digest, "$2y$")
}

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	hash    []byte
}

func encodeArgon2Hash(hash, salt []byte, time, memory uint32, threads uint8) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, memory, time, threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
}

func decodeArgon2Hash(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, fmt.Errorf("%w: malformed argon2id digest", domain.ErrCrypto)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version", domain.ErrCrypto)
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("%w: malformed argon2 parameters", domain.ErrCrypto)
	}
	if p.time == 0 || p.memory == 0 || p.threads == 0 {
		return nil, fmt.Errorf("%w: malformed argon2 parameters", domain.ErrCrypto)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) == 0 {
		return nil, fmt.Errorf("%w: malformed argon2 salt", domain.ErrCrypto)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.hash) == 0 {
		return nil, fmt.Errorf("%w: malformed argon2 hash", domain.ErrCrypto)
	}
	return p, nil
}
