package unittest

import (
	crand "crypto/rand"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/model/registry"
)

func HashFixture() hash.Hash {
	var h hash.Hash
	_, _ = crand.Read(h[:])
	return h
}

func HashesFixture(n int) []hash.Hash {
	hashes := make([]hash.Hash, n)
	for i := range hashes {
		hashes[i] = HashFixture()
	}
	return hashes
}

func StateFixture() ledger.State {
	return ledger.State(HashFixture())
}

// AccountIDFixture returns a random account id.
func AccountIDFixture() string {
	return "acc-" + uuid.NewString()
}

// BalancesFixture returns n accounts with balances in [1, 1_000_000].
func BalancesFixture(n int) map[string]ledger.Balance {
	balances := make(map[string]ledger.Balance, n)
	for len(balances) < n {
		balances[AccountIDFixture()] = ledger.Balance(1 + rand.Int63n(1_000_000))
	}
	return balances
}

func MintFixture(opts ...func(*registry.Mint)) registry.Mint {
	m := registry.Mint{
		CreditID:       uuid.NewString(),
		EventID:        uuid.NewString(),
		AmountG:        uint64(1 + rand.Int63n(100_000)),
		OwnerAccountID: AccountIDFixture(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// TransactionFixture returns a pending mint transaction with a unique hash.
func TransactionFixture(opts ...func(*registry.Transaction)) *registry.Transaction {
	tx, err := registry.NewTransaction(MintFixture(), time.Now().UTC())
	if err != nil {
		panic(fmt.Sprintf("could not create transaction fixture: %s", err))
	}
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}

// TransactionsFixture returns n pending transactions created one
// millisecond apart, in creation order.
func TransactionsFixture(n int) []*registry.Transaction {
	start := time.Now().UTC().Add(-time.Duration(n) * time.Millisecond)
	txs := make([]*registry.Transaction, n)
	for i := range txs {
		createdAt := start.Add(time.Duration(i) * time.Millisecond)
		txs[i] = TransactionFixture(WithCreatedAt(createdAt))
	}
	return txs
}

func WithCreatedAt(createdAt time.Time) func(*registry.Transaction) {
	return func(tx *registry.Transaction) {
		tx.CreatedAt = createdAt
	}
}

func BlockFixture(opts ...func(*registry.Block)) *registry.Block {
	root := HashFixture()
	block := &registry.Block{
		ID:         uuid.NewString(),
		Height:     0,
		MerkleRoot: root,
		ChainHash:  registry.ChainHash(nil, root),
		TxCount:    0,
		CreatedAt:  time.Now().UTC(),
		ExternalID: fmt.Sprintf("%d", rand.Uint64()),
	}
	for _, opt := range opts {
		opt(block)
	}
	return block
}

// WithParent links the block to its parent.
func WithParent(parent *registry.Block) func(*registry.Block) {
	return func(block *registry.Block) {
		prev := parent.MerkleRoot
		block.Height = parent.Height + 1
		block.PrevHash = prev
		block.ChainHash = registry.ChainHash(&prev, block.MerkleRoot)
	}
}

// WithTransactions commits the block to the transactions.
func WithTransactions(txs []*registry.Transaction) func(*registry.Block) {
	return func(block *registry.Block) {
		block.TxCount = uint64(len(txs))
	}
}

func AnchorRecordFixture(opts ...func(*registry.AnchorRecord)) *registry.AnchorRecord {
	record := &registry.AnchorRecord{
		Kind:       registry.AnchorKindBlock,
		InternalID: uuid.NewString(),
		ExternalID: fmt.Sprintf("%d", rand.Uint64()),
		Root:       HashFixture(),
		TxHash:     HashFixture().Hex(),
		Confirmed:  true,
		Chain:      "31337",
		CreatedAt:  time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(record)
	}
	return record
}
