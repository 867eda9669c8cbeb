package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// Hashes are encoded as argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>.
const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidHashFormat = errors.New("password hash: unrecognised encoding")
	errInvalidParams     = errors.New("argon2: invalid parameters")
)

// DefaultArgon2Params is used when no parameters are configured.
func DefaultArgon2Params() port.Argon2Params {
	return port.Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func checkArgon2Params(p port.Argon2Params) error {
	switch {
	case p.Memory < 8*1024:
		return fmt.Errorf("%w: memory must be at least 8192 KiB", errInvalidParams)
	case p.Iterations == 0:
		return fmt.Errorf("%w: iterations must be greater than zero", errInvalidParams)
	case p.Parallelism == 0:
		return fmt.Errorf("%w: parallelism must be greater than zero", errInvalidParams)
	case p.SaltLength < 8:
		return fmt.Errorf("%w: salt length must be at least 8 bytes", errInvalidParams)
	case p.KeyLength < 16:
		return fmt.Errorf("%w: key length must be at least 16 bytes", errInvalidParams)
	}
	return nil
}

// Argon2Hasher hashes new passwords with argon2id. Verification reads the
// parameters from the stored hash, so changing them never invalidates old hashes.
type Argon2Hasher struct {
	params port.Argon2Params
}

// NewArgon2Hasher validates params. The zero value selects DefaultArgon2Params.
func NewArgon2Hasher(params port.Argon2Params) (*Argon2Hasher, error) {
	if params == (port.Argon2Params{}) {
		params = DefaultArgon2Params()
	}
	if err := checkArgon2Params(params); err != nil {
		return nil, err
	}
	return &Argon2Hasher{params: params}, nil
}

// Hash returns the encoded argon2id hash of password with a fresh salt.
func (h *Argon2Hasher) Hash(password string) (string, error) {
	p := h.params
	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)

	return fmt.Sprintf("%s$%s$m=%d,t=%d,p=%d$%s$%s",
		argon2Variant, argon2Version,
		p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id hash or a bcrypt hash ($2a$, $2b$, $2y$)
// left by the previous deployment.
func (h *Argon2Hasher) Verify(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	if IsLegacyHash(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("bcrypt: %w", err)
		}
	}

	params, salt, expected, err := decodeArgon2Hash(encoded)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// IsLegacyHash reports whether encoded is a bcrypt hash.
func IsLegacyHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func decodeArgon2Hash(encoded string) (port.Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != argon2Variant {
		return port.Argon2Params{}, nil, nil, errInvalidHashFormat
	}
	if parts[1] != argon2Version {
		return port.Argon2Params{}, nil, nil, fmt.Errorf("argon2: unsupported version %q", parts[1])
	}

	var params port.Argon2Params
	if _, err := fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return port.Argon2Params{}, nil, nil, fmt.Errorf("%w: %v", errInvalidHashFormat, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return port.Argon2Params{}, nil, nil, fmt.Errorf("argon2: decode salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return port.Argon2Params{}, nil, nil, fmt.Errorf("argon2: decode key: %w", err)
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	if err := checkArgon2Params(params); err != nil {
		return port.Argon2Params{}, nil, nil, err
	}
	return params, salt, key, nil
}

var _ port.PasswordHasher = (*Argon2Hasher)(nil)
