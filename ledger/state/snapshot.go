package state

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/smt"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module"
	"github.com/h2registry/h2-registry/utils/logging"
)

// Snapshot is the state tree of one balance snapshot. All proofs of a
// snapshot are read from a single tree build.
type Snapshot struct {
	log       zerolog.Logger
	metrics   module.LedgerMetrics
	accounts  map[string]ledger.Balance
	tree      *smt.Tree
	createdAt time.Time
}

// NewSnapshot builds the state tree of the given account balances.
func NewSnapshot(log zerolog.Logger, collector module.LedgerMetrics, accounts map[string]ledger.Balance) *Snapshot {
	start := time.Now()
	tree := smt.NewAccountTree(accounts)
	collector.StateRootComputed(len(accounts), time.Since(start))

	s := &Snapshot{
		log:       log.With().Str("module", "state_snapshot").Logger(),
		metrics:   collector,
		accounts:  accounts,
		tree:      tree,
		createdAt: time.Now().UTC(),
	}
	s.log.Debug().
		Int("accounts", len(accounts)).
		Str("state_root", logging.Hash(hash.Hash(tree.Root()))).
		Dur("duration", time.Since(start)).
		Msg("state root computed")
	return s
}

// Root returns the state root.
func (s *Snapshot) Root() ledger.State {
	return s.tree.Root()
}

// Accounts returns the ids of every account of the snapshot, sorted.
func (s *Snapshot) Accounts() []string {
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RootView returns the published form of the state root.
func (s *Snapshot) RootView() registry.StateRootView {
	return registry.NewStateRootView(s.Root(), len(s.accounts), s.createdAt)
}

// Prove returns the balance proof of an account. Accounts missing from the
// snapshot are proven with a zero balance.
func (s *Snapshot) Prove(accountID string) *registry.StateProofView {
	key := ledger.KeyOf(accountID)
	leaf, proof := s.tree.Prove(key)
	return registry.NewStateProofView(accountID, s.tree.Balance(key), leaf, proof, s.Root())
}

// ProveCompact returns the balance proof of an account without the default
// siblings.
func (s *Snapshot) ProveCompact(accountID string) *registry.CompactStateProofView {
	key := ledger.KeyOf(accountID)
	leaf, proof := s.tree.Prove(key)
	return registry.NewCompactStateProofView(accountID, s.tree.Balance(key), leaf, proof, s.Root())
}

// ProveAll proves every account of the snapshot, in account id order.
// progress is called once per finished proof and may be nil.
func (s *Snapshot) ProveAll(ctx context.Context, progress func()) ([]*registry.StateProofView, error) {
	start := time.Now()

	ids := s.Accounts()
	keys := make([]ledger.Key, len(ids))
	for i, id := range ids {
		keys[i] = ledger.KeyOf(id)
	}
	proofs, err := s.tree.ProveBatch(ctx, keys)
	if err != nil {
		return nil, err
	}

	root := s.Root()
	views := make([]*registry.StateProofView, len(proofs))
	for i, p := range proofs {
		views[i] = registry.NewStateProofView(ids[i], p.Balance, p.Leaf, p.Proof, root)
		if progress != nil {
			progress()
		}
	}

	s.metrics.StateProofsGenerated(len(views), time.Since(start))
	s.log.Info().
		Int("proofs", len(views)).
		Dur("duration", time.Since(start)).
		Msg("state proofs generated")
	return views, nil
}
