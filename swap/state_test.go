package swap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedStatus(t *testing.T) {
	s := State{Communication: Communication{Phase: Accepted}}
	assert.Equal(t, StatusInProgress, s.DerivedStatus())

	s.Alpha.Phase = Redeemed
	s.Beta.Phase = Redeemed
	assert.Equal(t, StatusSwapped, s.DerivedStatus())

	s2 := State{Communication: Communication{Phase: Declined}}
	assert.Equal(t, StatusNotSwapped, s2.DerivedStatus())

	s3 := State{Communication: Communication{Phase: Accepted}}
	s3.Alpha.Phase = Refunded
	s3.Beta.Phase = Refunded
	assert.Equal(t, StatusNotSwapped, s3.DerivedStatus())

	s4 := State{Communication: Communication{Phase: Accepted}}
	s4.Err = errors.New("boom")
	assert.Equal(t, StatusInternalFailure, s4.DerivedStatus())
}

func TestID_RoundTrip(t *testing.T) {
	id := NewID()
	data, err := id.MarshalJSON()
	require.NoError(t, err)

	var got ID
	require.NoError(t, got.UnmarshalJSON(data))
	assert.Equal(t, id, got)
}

func TestSecretHash_RoundTrip(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)
	hash, err := secret.Hash(Sha256)
	require.NoError(t, err)

	data, err := hash.MarshalJSON()
	require.NoError(t, err)

	var got SecretHash
	require.NoError(t, got.UnmarshalJSON(data))
	assert.Equal(t, hash, got)
}

// TestSecret_Preimage checks that hashing the literal secret from
// boundary scenario S1 is deterministic, which spec.md §8 invariant 3's
// comparison of the observed secret_hash against H(secret) relies on.
func TestSecret_Preimage(t *testing.T) {
	var s Secret
	copy(s[:], []byte("hello world, you are beautiful!!"))

	hash, err := s.Hash(Sha256)
	require.NoError(t, err)

	hash2, err := s.Hash(Sha256)
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)
}
