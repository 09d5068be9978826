package hash_test

import (
	stdsha256 "crypto/sha256"
	"encoding/hex"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

func TestHash(t *testing.T) {
	r := time.Now().UnixNano()
	rand.Seed(r)
	t.Logf("math rand seed is %d", r)

	t.Run("lengthSanity", func(t *testing.T) {
		assert.Equal(t, 32, hash.HashLen)
	})

	t.Run("Sum", func(t *testing.T) {
		// FIPS 180-2 test vector
		assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
			hash.Sum([]byte("abc")).String())
		assert.Equal(t, hash.Sum([]byte("abc")), hash.Sum([]byte("a"), []byte("bc")))
		assert.False(t, hash.Sum().IsEmpty())
		assert.True(t, hash.EmptyHash.IsEmpty())
	})

	t.Run("HashLeaf", func(t *testing.T) {
		var value [32]byte

		for i := 0; i < 5000; i++ {
			rand.Read(value[:])
			h := hash.HashLeaf(value)

			hasher := stdsha256.New()
			_, _ = hasher.Write([]byte{0x00})
			_, _ = hasher.Write(value[:])
			expected := hasher.Sum(nil)
			assert.Equal(t, expected, h[:])
		}
	})

	t.Run("HashInterNode", func(t *testing.T) {
		var h1, h2 hash.Hash

		for i := 0; i < 5000; i++ {
			rand.Read(h1[:])
			rand.Read(h2[:])
			h := hash.HashInterNode(h1, h2)

			hasher := stdsha256.New()
			_, _ = hasher.Write([]byte{0x01})
			_, _ = hasher.Write(h1[:])
			_, _ = hasher.Write(h2[:])
			expected := hasher.Sum(nil)
			assert.Equal(t, expected, h[:])
		}
	})

	t.Run("HashPair", func(t *testing.T) {
		var h1, h2 hash.Hash
		rand.Read(h1[:])
		rand.Read(h2[:])

		expected := stdsha256.Sum256([]byte(hex.EncodeToString(h1[:]) + hex.EncodeToString(h2[:])))
		assert.Equal(t, hash.Hash(expected), hash.HashPair(h1, h2))
		assert.Equal(t, hash.SumHex(h1, h2), hash.HashPair(h1, h2))
		// raw byte concatenation is a different rule
		assert.NotEqual(t, hash.Sum(h1[:], h2[:]), hash.HashPair(h1, h2))
		// order matters
		assert.NotEqual(t, hash.HashPair(h1, h2), hash.HashPair(h2, h1))
	})
}

func TestHexRoundTrip(t *testing.T) {
	var h hash.Hash
	rand.Read(h[:])

	parsed, err := hash.FromHex(h.Hex())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	parsed, err = hash.FromHex(h.String())
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = hash.FromHex("0xabcd")
	assert.Error(t, err)

	_, err = hash.ToHash(make([]byte, 31))
	assert.Error(t, err)
}

func BenchmarkHash(b *testing.B) {

	var h1, h2 hash.Hash
	rand.Read(h1[:])
	rand.Read(h2[:])

	b.Run("InterNode", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = hash.HashInterNode(h1, h2)
		}
		b.StopTimer()
	})

	b.Run("Pair", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = hash.HashPair(h1, h2)
		}
		b.StopTimer()
	})
}
