package swap

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashFunction is the closed set of hash functions the protocol
// supports. Only Sha256 exists today; it is carried as an explicit
// parameter (rather than hard-coded) to keep the protocol extensible,
// per spec.md §3.
type HashFunction string

const Sha256 HashFunction = "SHA-256"

func (h HashFunction) Supported() bool {
	return h == Sha256
}

// SecretHash is the 32-byte digest H(secret) carried in a Request and
// observed on-chain in both ledgers' redeem transactions.
type SecretHash [32]byte

func (h SecretHash) String() string {
	return hex.EncodeToString(h[:])
}

func (h SecretHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *SecretHash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("swap: invalid secret hash %q: %w", s, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("swap: secret hash must be 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// Secret is the 32 random bytes held by the initiator until on-chain
// reveal; only the initiator knows the preimage beforehand.
type Secret [32]byte

// NewSecret draws a fresh random secret.
func NewSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("swap: generating secret: %w", err)
	}
	return s, nil
}

// Hash computes H(secret) under the given hash function.
func (s Secret) Hash(fn HashFunction) (SecretHash, error) {
	if !fn.Supported() {
		return SecretHash{}, fmt.Errorf("swap: unsupported hash function %q", fn)
	}
	sum := sha256.Sum256(s[:])
	return SecretHash(sum), nil
}

func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}
