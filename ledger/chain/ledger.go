package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/merkle"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/utils/logging"
)

// DefaultLeafCacheSize is the number of blocks whose leaf lists are cached.
const DefaultLeafCacheSize = 256

// Ledger batches append-only transactions into Merkle rooted blocks, each
// linked to its predecessor by a chain hash.
//
// Append, CloseBlock and AttachAnchor are serialised per instance. Reads are
// safe for concurrent use.
type Ledger struct {
	log     zerolog.Logger
	metrics module.LedgerMetrics
	txs     storage.Transactions
	blocks  storage.Blocks
	leaves  *lru.Cache[string, []hash.Hash]
	size    int
	pending *atomic.Uint64
	now     func() time.Time
	mu      sync.Mutex
}

type Option func(*Ledger)

// WithClock sets the clock stamping new transactions and blocks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLeafCacheSize sets the number of blocks whose leaf lists are cached.
func WithLeafCacheSize(size int) Option {
	return func(l *Ledger) {
		l.size = size
	}
}

// NewLedger creates a ledger on top of the given stores.
func NewLedger(
	log zerolog.Logger,
	collector module.LedgerMetrics,
	txs storage.Transactions,
	blocks storage.Blocks,
	options ...Option,
) (*Ledger, error) {
	l := &Ledger{
		log:     log.With().Str("module", "chain").Logger(),
		metrics: collector,
		txs:     txs,
		blocks:  blocks,
		size:    DefaultLeafCacheSize,
		now:     time.Now,
	}
	for _, option := range options {
		option(l)
	}

	leaves, err := lru.New[string, []hash.Hash](l.size)
	if err != nil {
		return nil, fmt.Errorf("could not create leaf cache: %w", err)
	}
	l.leaves = leaves

	count, err := txs.PendingCount()
	if err != nil {
		return nil, fmt.Errorf("could not count pending transactions: %w", err)
	}
	l.pending = atomic.NewUint64(count)
	l.metrics.PendingTransactions(count)

	return l, nil
}

// NewTransaction stamps a payload with the ledger clock. The transaction is
// not appended.
func (l *Ledger) NewTransaction(p registry.Payload) (*registry.Transaction, error) {
	return registry.NewTransaction(p, l.now())
}

// Append stores tx as pending and returns its hash.
//
// The hash is recomputed from the type and the canonical body. A transaction
// carrying a different hash, or already sealed, is rejected with a
// ValidationError.
func (l *Ledger) Append(ctx context.Context, tx *registry.Transaction) (hash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return hash.DummyHash, err
	}
	if !tx.Pending() {
		return hash.DummyHash, ledger.NewValidationErrorf("transaction %s is already sealed in block %s", tx.ID, tx.BlockID)
	}
	h, err := tx.ComputeHash()
	if err != nil {
		return hash.DummyHash, ledger.NewValidationErrorf("invalid transaction %s: %w", tx.ID, err)
	}
	if tx.Hash != (hash.Hash{}) && tx.Hash != h {
		return hash.DummyHash, ledger.NewValidationErrorf("transaction %s carries hash %s, computed %s", tx.ID, tx.Hash, h)
	}
	tx.Hash = h
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err = l.txs.Append(tx)
	if err != nil {
		return hash.DummyHash, fmt.Errorf("could not append transaction: %w", err)
	}
	l.metrics.TransactionAppended(tx.Type.String())
	l.metrics.PendingTransactions(l.pending.Inc())

	l.log.Debug().
		Uint64("seq", tx.Seq).
		Str("type", tx.Type.String()).
		Hex("tx_hash", tx.Hash[:]).
		Msg("transaction appended")

	return h, nil
}

// AppendPayload builds a transaction for p and appends it.
func (l *Ledger) AppendPayload(ctx context.Context, p registry.Payload) (*registry.Transaction, error) {
	tx, err := l.NewTransaction(p)
	if err != nil {
		return nil, ledger.NewValidationErrorf("invalid %s payload: %w", p.Type(), err)
	}
	_, err = l.Append(ctx, tx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CloseBlock seals every pending transaction into a new block.
//
// Transactions are ordered by creation time, then by log sequence. The block
// links to the merkle root of the latest block, the genesis block links to
// nothing. Returns ErrNothingToClose when no transaction is pending.
func (l *Ledger) CloseBlock(ctx context.Context, note string) (*registry.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	pending, err := l.txs.Pending()
	if err != nil {
		return nil, fmt.Errorf("could not retrieve pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil, ErrNothingToClose
	}

	leaves := registry.Hashes(pending)
	root, err := merkle.Root(leaves)
	if err != nil {
		return nil, fmt.Errorf("could not compute merkle root: %w", err)
	}

	var (
		height uint64
		prev   *hash.Hash
	)
	latest, err := l.blocks.Latest()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// genesis
	case err != nil:
		return nil, fmt.Errorf("could not retrieve latest block: %w", err)
	default:
		height = latest.Height + 1
		prev = &latest.MerkleRoot
	}

	blockID := uuid.NewString()
	block := &registry.Block{
		ID:         blockID,
		Height:     height,
		MerkleRoot: root,
		ChainHash:  registry.ChainHash(prev, root),
		TxCount:    uint64(len(pending)),
		Note:       note,
		CreatedAt:  l.now().UTC(),
		ExternalID: anchor.DeriveBlockID(blockID).String(),
	}
	if prev != nil {
		block.PrevHash = *prev
	}

	err = l.blocks.Seal(block, pending)
	if err != nil {
		return nil, fmt.Errorf("could not seal block: %w", err)
	}
	l.leaves.Add(block.ID, leaves)

	l.metrics.PendingTransactions(l.pending.Sub(uint64(len(pending))))
	l.metrics.BlockClosed(len(pending), time.Since(start))

	l.log.Info().
		Str("block_id", block.ID).
		Uint64("height", block.Height).
		Uint64("tx_count", block.TxCount).
		Str("merkle_root", logging.Hash(block.MerkleRoot)).
		Str("chain_hash", logging.Hash(block.ChainHash)).
		Msg("block closed")

	return block, nil
}

// ProveInclusion proves that the transaction with the given hash is a leaf
// of the block. Returns storage.ErrNotFound if the block is unknown or does
// not contain the transaction.
func (l *Ledger) ProveInclusion(ctx context.Context, blockID string, txHash hash.Hash) (*registry.TxProofView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	block, err := l.blocks.ByID(blockID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve block %s: %w", blockID, err)
	}
	leaves, err := l.blockLeaves(blockID)
	if err != nil {
		return nil, err
	}
	proof, err := merkle.ProveLeaf(leaves, txHash)
	if errors.Is(err, merkle.ErrLeafNotFound) {
		return nil, fmt.Errorf("transaction %s is not in block %s: %w", txHash, blockID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not prove transaction %s: %w", txHash, err)
	}

	l.metrics.InclusionProofGenerated(time.Since(start))
	return registry.NewTxProofView(block, txHash, proof), nil
}

// ProveTransaction looks up the block sealing the transaction and proves its
// inclusion. Returns ErrPending if the transaction is not sealed yet, and
// storage.ErrNotFound if it is unknown.
func (l *Ledger) ProveTransaction(ctx context.Context, txHash hash.Hash) (*registry.TxProofView, error) {
	tx, err := l.txs.ByHash(txHash)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve transaction %s: %w", txHash, err)
	}
	if tx.Pending() {
		return nil, fmt.Errorf("transaction %s: %w", txHash, ErrPending)
	}
	return l.ProveInclusion(ctx, tx.BlockID, txHash)
}

func (l *Ledger) blockLeaves(blockID string) ([]hash.Hash, error) {
	if leaves, ok := l.leaves.Get(blockID); ok {
		return leaves, nil
	}
	txs, err := l.blocks.Transactions(blockID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve transactions of block %s: %w", blockID, err)
	}
	leaves := registry.Hashes(txs)
	l.leaves.Add(blockID, leaves)
	return leaves, nil
}

// AttachAnchor records the external reference of the anchored block root,
// and appends an anchor transaction to the pending log. A block is anchored
// at most once, a second attachment returns storage.ErrAlreadyExists.
func (l *Ledger) AttachAnchor(ctx context.Context, blockID string, anchorTx string) (*registry.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if anchorTx == "" {
		return nil, ledger.NewValidationErrorf("empty anchor reference")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	block, err := l.blocks.ByID(blockID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve block %s: %w", blockID, err)
	}
	if block.Anchored() {
		return nil, fmt.Errorf("block %s is anchored by %s: %w", blockID, block.AnchorTx, storage.ErrAlreadyExists)
	}

	tx, err := l.NewTransaction(registry.Anchor{
		BlockID:  blockID,
		Root:     block.MerkleRoot.String(),
		AnchorTx: anchorTx,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create anchor transaction: %w", err)
	}

	err = l.blocks.AttachAnchor(blockID, anchorTx, tx)
	if err != nil {
		return nil, fmt.Errorf("could not attach anchor to block %s: %w", blockID, err)
	}
	l.metrics.TransactionAppended(tx.Type.String())
	l.metrics.PendingTransactions(l.pending.Inc())

	l.log.Info().
		Str("block_id", blockID).
		Str("anchor_tx", anchorTx).
		Msg("block anchor attached")

	return tx, nil
}

// Block returns the block with the given id.
func (l *Ledger) Block(_ context.Context, blockID string) (*registry.Block, error) {
	return l.blocks.ByID(blockID)
}

// BlockByHeight returns the block at the given height.
func (l *Ledger) BlockByHeight(_ context.Context, height uint64) (*registry.Block, error) {
	return l.blocks.ByHeight(height)
}

// LatestBlock returns the most recent block, or storage.ErrNotFound before
// the first block is closed.
func (l *Ledger) LatestBlock(_ context.Context) (*registry.Block, error) {
	return l.blocks.Latest()
}

// BlockTransactions returns the transactions of a block in leaf order.
func (l *Ledger) BlockTransactions(_ context.Context, blockID string) ([]*registry.Transaction, error) {
	return l.blocks.Transactions(blockID)
}

// Transaction returns the first appended transaction with the given hash.
func (l *Ledger) Transaction(_ context.Context, txHash hash.Hash) (*registry.Transaction, error) {
	return l.txs.ByHash(txHash)
}

// Pending returns the pending transactions in the order they would be sealed.
func (l *Ledger) Pending(_ context.Context) ([]*registry.Transaction, error) {
	return l.txs.Pending()
}

// PendingCount returns the number of pending transactions.
func (l *Ledger) PendingCount() uint64 {
	return l.pending.Load()
}
