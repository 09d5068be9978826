package smt

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// KeyProof is the proof of one key against a tree.
type KeyProof struct {
	Key     ledger.Key
	Balance ledger.Balance
	Leaf    hash.Hash
	Proof   Proof
}

// ProveBatch proves every key against the tree. Proofs are computed
// concurrently and returned in the order of keys. The only error is the
// cancellation of ctx.
func (t *Tree) ProveBatch(ctx context.Context, keys []ledger.Key) ([]KeyProof, error) {
	proofs := make([]KeyProof, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			leaf, proof := t.Prove(key)
			proofs[i] = KeyProof{
				Key:     key,
				Balance: t.Balance(key),
				Leaf:    leaf,
				Proof:   proof,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}

// KeyedBalances maps account balances to the keys of the state tree.
func KeyedBalances(accounts map[string]ledger.Balance) map[ledger.Key]ledger.Balance {
	balances := make(map[ledger.Key]ledger.Balance, len(accounts))
	for id, b := range accounts {
		balances[ledger.KeyOf(id)] = b
	}
	return balances
}

// NewAccountTree builds the tree of account balances.
func NewAccountTree(accounts map[string]ledger.Balance) *Tree {
	return NewTree(KeyedBalances(accounts))
}

// ProveAccount proves the balance of accountID, which may be absent.
func ProveAccount(accounts map[string]ledger.Balance, accountID string) (hash.Hash, Proof, ledger.State) {
	return Prove(KeyedBalances(accounts), ledger.KeyOf(accountID))
}

// VerifyAccount verifies a proof of the balance of accountID.
func VerifyAccount(accountID string, balance ledger.Balance, leaf hash.Hash, proof Proof, root ledger.State) bool {
	return Verify(ledger.KeyOf(accountID), balance, leaf, proof, root)
}
