package smt_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/bitutils"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/common/utils"
	"github.com/h2registry/h2-registry/ledger/smt"
)

// referenceRoot computes the root top-down by splitting the key set on every
// bit. It shares no code with the bottom-up fold of the package.
func referenceRoot(t *testing.T, balances map[ledger.Key]ledger.Balance) ledger.State {
	keys := make([]ledger.Key, 0, len(balances))
	for k, b := range balances {
		if b != 0 {
			keys = append(keys, k)
		}
	}

	var defaults [smt.Depth + 1][32]byte
	var zero [32]byte
	defaults[smt.Depth] = sha256.Sum256(append([]byte{0x00}, zero[:]...))
	for d := smt.Depth - 1; d >= 0; d-- {
		defaults[d] = sha256.Sum256(append(append([]byte{0x01}, defaults[d+1][:]...), defaults[d+1][:]...))
	}

	var node func(keys []ledger.Key, depth int) [32]byte
	node = func(keys []ledger.Key, depth int) [32]byte {
		if len(keys) == 0 {
			return defaults[depth]
		}
		if depth == smt.Depth {
			require.Len(t, keys, 1)
			var v [32]byte
			binary.BigEndian.PutUint64(v[24:], uint64(balances[keys[0]]))
			return sha256.Sum256(append([]byte{0x00}, v[:]...))
		}
		var left, right []ledger.Key
		for _, k := range keys {
			if bitutils.ReadBit(k[:], depth) == 0 {
				left = append(left, k)
			} else {
				right = append(right, k)
			}
		}
		l := node(left, depth+1)
		r := node(right, depth+1)
		return sha256.Sum256(append(append([]byte{0x01}, l[:]...), r[:]...))
	}
	return ledger.State(node(keys, 0))
}

func TestDefaultHashes(t *testing.T) {
	var zero [32]byte
	expectedLeaf := sha256.Sum256(append([]byte{0x00}, zero[:]...))
	require.Equal(t, hash.Hash(expectedLeaf), smt.DefaultHash(smt.Depth))

	for d := smt.Depth - 1; d >= 0; d-- {
		child := smt.DefaultHash(d + 1)
		require.Equal(t, hash.HashInterNode(child, child), smt.DefaultHash(d), "depth %d", d)
	}

	assert.Equal(t, ledger.State(smt.DefaultHash(0)), smt.EmptyRoot())
	// known vector for the empty tree
	assert.Equal(t, "0x4e120ae8f46638110e1c293f1809b508433ae3de83c4977a567998a19a33c906", smt.EmptyRoot().Hex())
	assert.Equal(t, smt.EmptyRoot(), smt.BuildRoot(nil))
	assert.Equal(t, smt.EmptyRoot(), smt.NewTree(map[ledger.Key]ledger.Balance{}).Root())
}

func TestBuildRoot(t *testing.T) {
	seed := time.Now().UnixNano()
	t.Logf("rand seed is %d", seed)
	rand.Seed(seed)

	t.Run("single left-most key", func(t *testing.T) {
		var k ledger.Key
		balances := map[ledger.Key]ledger.Balance{k: 11}
		assert.Equal(t, referenceRoot(t, balances), smt.BuildRoot(balances))
	})

	t.Run("single right-most key", func(t *testing.T) {
		var k ledger.Key
		for i := range k {
			k[i] = 0xff
		}
		balances := map[ledger.Key]ledger.Balance{k: 54321}
		assert.Equal(t, referenceRoot(t, balances), smt.BuildRoot(balances))
	})

	t.Run("neighbouring keys", func(t *testing.T) {
		k1 := utils.KeyByUint16LeftPadded(0)
		k2 := utils.KeyByUint16LeftPadded(1)
		balances := map[ledger.Key]ledger.Balance{k1: 1, k2: 2}
		assert.Equal(t, referenceRoot(t, balances), smt.BuildRoot(balances))
	})

	t.Run("keys split at the root", func(t *testing.T) {
		k1 := utils.KeyByUint16(0x0001)
		k2 := utils.KeyByUint16(0x8001)
		balances := map[ledger.Key]ledger.Balance{k1: 3, k2: 4}
		assert.Equal(t, referenceRoot(t, balances), smt.BuildRoot(balances))
	})

	t.Run("many random keys", func(t *testing.T) {
		balances := utils.RandomBalances(500, 1_000_000)
		root := smt.BuildRoot(balances)
		assert.Equal(t, referenceRoot(t, balances), root)
		assert.Equal(t, root, smt.NewTree(balances).Root())
	})

	t.Run("zero balances are ignored", func(t *testing.T) {
		balances := utils.RandomBalances(20, 1_000_000)
		withZeros := make(map[ledger.Key]ledger.Balance, len(balances)+10)
		for k, b := range balances {
			withZeros[k] = b
		}
		for k := range utils.RandomBalances(10, 1_000_000) {
			withZeros[k] = 0
		}
		assert.Equal(t, smt.BuildRoot(balances), smt.BuildRoot(withZeros))
		assert.Equal(t, len(balances), smt.NewTree(withZeros).Size())
	})
}

// TestScenario walks through the account based flow: proofs of presence and
// absence against one root, and a new root after a balance changes.
func TestScenario(t *testing.T) {
	accounts := map[string]ledger.Balance{"A": 1000, "B": 0}
	tree := smt.NewAccountTree(accounts)
	r1 := tree.Root()
	// values from the reference implementation
	require.Equal(t, "0xfd69171cec83f7f4a749c01cb6fa929f8dbebb2a6c8c58ab4fc71a779aadcd7a", r1.Hex())

	leaf, proof, root := smt.ProveAccount(accounts, "A")
	require.Equal(t, r1, root)
	require.Len(t, proof, smt.Depth)
	assert.True(t, smt.VerifyAccount("A", 1000, leaf, proof, r1))
	assert.False(t, smt.VerifyAccount("A", 999, leaf, proof, r1))

	leaf, proof, root = smt.ProveAccount(accounts, "B")
	require.Equal(t, r1, root)
	assert.Equal(t, ledger.Balance(0).LeafHash(), leaf)
	assert.True(t, smt.VerifyAccount("B", 0, leaf, proof, r1))

	accounts["B"] = 500
	r2 := smt.NewAccountTree(accounts).Root()
	assert.NotEqual(t, r1, r2)
	assert.Equal(t, "0x5a006e2615b73adf113202787a58b90e3f4599b22e0e120800a1c7fd68b3da70", r2.Hex())

	// the old proof of B no longer verifies
	assert.False(t, smt.VerifyAccount("B", 0, leaf, proof, r2))
}

func TestVerify(t *testing.T) {
	balances := utils.RandomBalances(50, 1_000_000)
	tree := smt.NewTree(balances)
	var key ledger.Key
	for k := range balances {
		key = k
		break
	}
	balance := balances[key]
	leaf, proof := tree.Prove(key)
	root := tree.Root()
	require.True(t, smt.Verify(key, balance, leaf, proof, root))

	t.Run("wrong length", func(t *testing.T) {
		assert.False(t, smt.Verify(key, balance, leaf, proof[:smt.Depth-1], root))
		assert.False(t, smt.Verify(key, balance, leaf, append(proof, smt.Step{}), root))
		assert.False(t, smt.Verify(key, balance, leaf, nil, root))
	})

	t.Run("wrong leaf", func(t *testing.T) {
		assert.False(t, smt.Verify(key, balance, hash.DummyHash, proof, root))
	})

	t.Run("tampered sibling", func(t *testing.T) {
		tampered := append(smt.Proof(nil), proof...)
		tampered[100].Sibling[0] ^= 0x01
		assert.False(t, smt.Verify(key, balance, leaf, tampered, root))
	})

	t.Run("flipped direction", func(t *testing.T) {
		tampered := append(smt.Proof(nil), proof...)
		tampered[7].IsLeft = !tampered[7].IsLeft
		assert.False(t, smt.Verify(key, balance, leaf, tampered, root))
	})

	t.Run("other key", func(t *testing.T) {
		other := key
		bitutils.FlipBit(other[:], smt.Depth-1)
		assert.False(t, smt.Verify(other, balance, leaf, proof, root))
	})

	t.Run("other root", func(t *testing.T) {
		assert.False(t, smt.Verify(key, balance, leaf, proof, smt.EmptyRoot()))
	})
}

func TestCompress(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		var key ledger.Key
		rand.Read(key[:])
		leaf, proof, root := smt.Prove(nil, key)
		compact := smt.Compress(proof)
		assert.Empty(t, compact)
		assert.Equal(t, smt.Depth, compact.SkippedDefaults())

		expanded, err := smt.Expand(key, compact)
		require.NoError(t, err)
		assert.Equal(t, proof, expanded)
		assert.True(t, smt.Verify(key, 0, leaf, expanded, root))
	})

	t.Run("depth labels", func(t *testing.T) {
		var k1, k2 ledger.Key
		k2[ledger.KeyLen-1] = 0x01
		balances := map[ledger.Key]ledger.Balance{k1: 1, k2: 2}
		_, proof, _ := smt.Prove(balances, k1)
		compact := smt.Compress(proof)
		// the only non-default sibling of k1 is its neighbouring leaf
		require.Len(t, compact, 1)
		assert.Equal(t, 1, compact[0].Depth)
		assert.Equal(t, ledger.Balance(2).LeafHash(), compact[0].Sibling)
		assert.True(t, compact[0].IsLeft)
		assert.Equal(t, smt.Depth-1, compact.SkippedDefaults())
	})

	t.Run("invalid depth", func(t *testing.T) {
		var key ledger.Key
		_, err := smt.Expand(key, smt.CompactProof{{Depth: 0}})
		require.Error(t, err)
		assert.True(t, ledger.IsValidationError(err))

		_, err = smt.Expand(key, smt.CompactProof{{Depth: smt.Depth + 1}})
		assert.True(t, ledger.IsValidationError(err))
	})

	t.Run("invalid order", func(t *testing.T) {
		var key ledger.Key
		_, err := smt.Expand(key, smt.CompactProof{{Depth: 20}, {Depth: 10}})
		assert.True(t, ledger.IsValidationError(err))

		_, err = smt.Expand(key, smt.CompactProof{{Depth: 10}, {Depth: 10}})
		assert.True(t, ledger.IsValidationError(err))

		_, err = smt.Expand(key, smt.CompactProof{{Depth: 10}, {Depth: 20}})
		assert.NoError(t, err)
	})

	// labels count from the leaf: the sibling of A next to the root is B's subtree
	t.Run("reference vector", func(t *testing.T) {
		balances := map[string]ledger.Balance{"A": 1000, "B": 500}
		leaf, proof, root := smt.ProveAccount(balances, "A")
		assert.Equal(t, "0x5a006e2615b73adf113202787a58b90e3f4599b22e0e120800a1c7fd68b3da70", root.Hex())
		assert.Equal(t, "0xa56a34812c41bbe592ea5fc610b23342545f585f1213ac88306fa0f8803a3a65", leaf.Hex())

		sibling, err := hash.FromHex("0xb5575c032cf585b88298680ba9d1f3602dab57575fc17e8c522b3b87eea9960b")
		require.NoError(t, err)
		compact := smt.Compress(proof)
		assert.Equal(t, smt.CompactProof{{Depth: 256, Sibling: sibling, IsLeft: true}}, compact)

		expanded, err := smt.Expand(ledger.KeyOf("A"), compact)
		require.NoError(t, err)
		assert.Equal(t, proof, expanded)
		assert.True(t, smt.VerifyAccount("A", 1000, leaf, expanded, root))
	})
}

func TestProveBatch(t *testing.T) {
	balances := utils.RandomBalances(100, 1_000_000)
	tree := smt.NewTree(balances)

	keys := make([]ledger.Key, 0, len(balances)+5)
	for k := range balances {
		keys = append(keys, k)
	}
	for k := range utils.RandomBalances(5, 1_000_000) {
		keys = append(keys, k)
	}

	proofs, err := tree.ProveBatch(context.Background(), keys)
	require.NoError(t, err)
	require.Len(t, proofs, len(keys))
	for i, p := range proofs {
		require.Equal(t, keys[i], p.Key)
		require.Equal(t, balances[keys[i]], p.Balance)
		require.True(t, smt.Verify(p.Key, p.Balance, p.Leaf, p.Proof, tree.Root()))
	}

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := tree.ProveBatch(ctx, keys)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func accountsGen() *rapid.Generator[map[string]ledger.Balance] {
	return rapid.Custom(func(t *rapid.T) map[string]ledger.Balance {
		raw := rapid.MapOfN(rapid.StringN(1, 12, -1), rapid.Uint64Range(0, 1_000_000), 0, 16).Draw(t, "accounts")
		accounts := make(map[string]ledger.Balance, len(raw))
		for id, b := range raw {
			accounts[id] = ledger.Balance(b)
		}
		return accounts
	})
}

func TestProperties(t *testing.T) {
	t.Run("determinism", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			accounts := accountsGen().Draw(t, "balances")
			extra := rapid.SliceOfN(rapid.StringN(1, 12, -1), 0, 8).Draw(t, "zero-accounts")

			withZeros := make(map[string]ledger.Balance, len(accounts)+len(extra))
			for _, id := range extra {
				withZeros[id] = 0
			}
			for id, b := range accounts {
				withZeros[id] = b
			}
			if smt.NewAccountTree(accounts).Root() != smt.NewAccountTree(withZeros).Root() {
				t.Fatalf("zero entries changed the root")
			}
		})
	})

	t.Run("absence", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			accounts := accountsGen().Draw(t, "balances")
			absent := rapid.StringN(13, 20, -1).Draw(t, "absent")

			leaf, proof, root := smt.ProveAccount(accounts, absent)
			if root != smt.BuildRoot(smt.KeyedBalances(accounts)) {
				t.Fatalf("proof root differs from built root")
			}
			if !smt.VerifyAccount(absent, 0, leaf, proof, root) {
				t.Fatalf("absence proof does not verify")
			}
		})
	})

	t.Run("sensitivity", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			accounts := accountsGen().Draw(t, "balances")
			id := rapid.StringN(1, 12, -1).Draw(t, "account")
			delta := rapid.Uint64Range(1, 1000).Draw(t, "delta")

			before := smt.NewAccountTree(accounts).Root()
			accounts[id] += ledger.Balance(delta)
			if before == smt.NewAccountTree(accounts).Root() {
				t.Fatalf("changing the balance of %q did not change the root", id)
			}
		})
	})

	t.Run("compression round trip", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			accounts := accountsGen().Draw(t, "balances")
			id := rapid.StringN(1, 12, -1).Draw(t, "account")
			key := ledger.KeyOf(id)

			leaf, proof, root := smt.ProveAccount(accounts, id)
			expanded, err := smt.Expand(key, smt.Compress(proof))
			if err != nil {
				t.Fatalf("expand failed: %v", err)
			}
			balance := accounts[id]
			if smt.Verify(key, balance, leaf, proof, root) != smt.Verify(key, balance, leaf, expanded, root) {
				t.Fatalf("compression changed the verification outcome")
			}
			for i := range proof {
				if proof[i] != expanded[i] {
					t.Fatalf("step %d differs after round trip", i)
				}
			}
		})
	})
}

func BenchmarkBuildRoot(b *testing.B) {
	balances := utils.RandomBalances(1000, 1_000_000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = smt.BuildRoot(balances)
	}
	b.StopTimer()
}
