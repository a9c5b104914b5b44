package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var ErrInvalidDigest = errors.New("invalid password digest")

// Params controls argon2id cost. MemoryKiB is in KiB as required by
// argon2.IDKey. The values are fixed process-wide at construction.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024,
		Iterations:  2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher hashes and verifies passwords with argon2id. The dummy digest is
// precomputed so that login can always perform exactly one verification,
// whether or not the account exists.
type Hasher struct {
	params      Params
	dummyDigest string
}

func NewHasher(params Params) (*Hasher, error) {
	if params.MemoryKiB == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2id params must be positive")
	}
	if params.SaltLength < 8 || params.KeyLength < 16 {
		return nil, fmt.Errorf("argon2id salt/key lengths too small")
	}

	h := &Hasher{params: params}

	dummy, err := h.Hash("decoy-credential-placeholder")
	if err != nil {
		return nil, fmt.Errorf("precompute dummy digest: %w", err)
	}
	h.dummyDigest = dummy

	return h, nil
}

// DummyDigest returns a digest that matches no real password. Verifying
// against it costs the same as verifying against a real digest.
func (h *Hasher) DummyDigest() string {
	return h.dummyDigest
}

// Hash returns an encoded digest in the form
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>.
func (h *Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(secret), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	digest := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key))

	return digest, nil
}

// Verify reports whether secret matches the encoded digest. The comparison
// is constant-time. Malformed digests return ErrInvalidDigest.
func (h *Hasher) Verify(digest string, secret string) (bool, error) {
	params, salt, expected, err := decode(digest)
	if err != nil {
		return false, err
	}

	// Refuse attacker-controlled digests with pathological cost settings.
	if params.MemoryKiB > h.params.MemoryKiB*2 ||
		params.Iterations > h.params.Iterations*2 ||
		params.Parallelism > h.params.Parallelism*2 {
		return false, ErrInvalidDigest
	}

	key := argon2.IDKey([]byte(secret), salt,
		params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decode(digest string) (Params, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, ErrInvalidDigest
	}

	var mem, iter uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return Params{}, nil, nil, ErrInvalidDigest
	}
	if mem == 0 || iter == 0 || par == 0 {
		return Params{}, nil, nil, ErrInvalidDigest
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 || len(salt) > 64 {
		return Params{}, nil, nil, ErrInvalidDigest
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Params{}, nil, nil, ErrInvalidDigest
	}

	params := Params{
		MemoryKiB:   mem,
		Iterations:  iter,
		Parallelism: par,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}

	return params, salt, key, nil
}
