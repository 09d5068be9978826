package registry_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/merkle"
	"github.com/h2registry/h2-registry/ledger/smt"
	"github.com/h2registry/h2-registry/model/registry"
)

func TestBinaryStateProofView(t *testing.T) {
	accounts := map[string]ledger.Balance{"A": 1000, "B": 500}
	leaf, proof, root := smt.ProveAccount(accounts, "A")
	full := registry.NewStateProofView("A", 1000, leaf, proof, root)

	for _, compact := range []bool{false, true} {
		v, err := registry.NewBinaryStateProofView(full, compact)
		require.NoError(t, err)
		assert.Equal(t, "A", v.AccountID)
		assert.Equal(t, root.Hex(), v.StateRoot)
		assert.True(t, strings.HasPrefix(v.Encoded, "0x"))

		out, err := json.Marshal(v)
		require.NoError(t, err)
		var parsed registry.BinaryStateProofView
		require.NoError(t, json.Unmarshal(out, &parsed))
		ok, err := parsed.Verify()
		require.NoError(t, err)
		assert.True(t, ok)

		decoded, err := parsed.Decode()
		require.NoError(t, err)
		assert.Equal(t, compact, decoded.Compressed)
		assert.Equal(t, ledger.Balance(1000), decoded.Balance)
	}

	t.Run("compact encoding is smaller", func(t *testing.T) {
		fullBin, err := registry.NewBinaryStateProofView(full, false)
		require.NoError(t, err)
		compactBin, err := registry.NewBinaryStateProofView(full, true)
		require.NoError(t, err)
		assert.Less(t, len(compactBin.Encoded), len(fullBin.Encoded))
	})

	t.Run("outer fields must match the encoded proof", func(t *testing.T) {
		v, err := registry.NewBinaryStateProofView(full, true)
		require.NoError(t, err)

		renamed := *v
		renamed.AccountID = "B"
		_, err = renamed.Verify()
		assert.True(t, ledger.IsValidationError(err))

		rerooted := *v
		rerooted.StateRoot = smt.EmptyRoot().Hex()
		_, err = rerooted.Verify()
		assert.True(t, ledger.IsValidationError(err))
	})

	t.Run("malformed hex", func(t *testing.T) {
		v, err := registry.NewBinaryStateProofView(full, false)
		require.NoError(t, err)

		for _, encoded := range []string{"", "0x", "deadbeef", "0xzz", v.Encoded[:len(v.Encoded)-2]} {
			broken := *v
			broken.Encoded = encoded
			_, err = broken.Verify()
			assert.True(t, ledger.IsValidationError(err), encoded)
		}
	})
}

func TestBinaryTxProofView(t *testing.T) {
	leaves := []hash.Hash{hash.Sum([]byte("1")), hash.Sum([]byte("2")), hash.Sum([]byte("3"))}
	root, err := merkle.Root(leaves)
	require.NoError(t, err)
	block := &registry.Block{ID: "b0", MerkleRoot: root, ChainHash: registry.ChainHash(nil, root), TxCount: 3, AnchorTx: "0xabc"}

	proof, err := merkle.Prove(leaves, 1)
	require.NoError(t, err)
	v, err := registry.NewBinaryTxProofView(registry.NewTxProofView(block, leaves[1], proof))
	require.NoError(t, err)
	assert.Equal(t, "b0", v.BlockID)
	require.NotNil(t, v.AnchorTx)
	assert.Equal(t, "0xabc", *v.AnchorTx)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	var parsed registry.BinaryTxProofView
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.NoError(t, parsed.Verify())

	t.Run("other transaction", func(t *testing.T) {
		other := parsed
		other.TxHash = leaves[0].String()
		assert.True(t, merkle.IsInvalidProofError(other.Verify()))
	})

	t.Run("malformed", func(t *testing.T) {
		broken := parsed
		broken.Encoded = "0x0000"
		assert.True(t, ledger.IsValidationError(broken.Verify()))

		broken.Encoded = "not hex"
		assert.True(t, ledger.IsValidationError(broken.Verify()))
	})
}
