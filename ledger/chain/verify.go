package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/merkle"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/utils/logging"
)

// VerifyChain walks every block from genesis and checks:
//   - heights are contiguous and prev_hash is the merkle root of the previous block
//   - chain_hash = H(prev_hash || merkle_root), with an empty prev for genesis
//   - every transaction hash matches its type and body
//   - the merkle root is recomputed from the transactions in leaf order
//   - the external id is derived from the block id
//
// It returns the number of verified blocks, and an IntegrityError for the
// first inconsistency found.
func (l *Ledger) VerifyChain(ctx context.Context) (uint64, error) {
	latest, err := l.blocks.Latest()
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("could not retrieve latest block: %w", err)
	}

	var prev *registry.Block
	for height := uint64(0); height <= latest.Height; height++ {
		if err := ctx.Err(); err != nil {
			return height, err
		}

		block, err := l.blocks.ByHeight(height)
		if errors.Is(err, storage.ErrNotFound) {
			return height, newIntegrityErrorf(height, "", "missing block")
		}
		if err != nil {
			return height, fmt.Errorf("could not retrieve block at height %d: %w", height, err)
		}
		txs, err := l.blocks.Transactions(block.ID)
		if err != nil {
			return height, fmt.Errorf("could not retrieve transactions of block %s: %w", block.ID, err)
		}

		err = verifyBlock(prev, block, txs)
		if err != nil {
			return height, err
		}

		l.log.Debug().
			Uint64("height", height).
			Str("merkle_root", logging.Short(block.MerkleRoot)).
			Msg("block verified")
		prev = block
	}

	return latest.Height + 1, nil
}

func verifyBlock(prev *registry.Block, block *registry.Block, txs []*registry.Transaction) error {
	if block.Height != 0 && prev == nil {
		return newIntegrityErrorf(block.Height, block.ID, "first block has non-zero height")
	}

	var prevRoot *hash.Hash
	if prev != nil {
		if block.Height != prev.Height+1 {
			return newIntegrityErrorf(block.Height, block.ID, "height does not follow %d", prev.Height)
		}
		if block.PrevHash != prev.MerkleRoot {
			return newIntegrityErrorf(block.Height, block.ID, "prev_hash %s does not match merkle root %s of block %s",
				block.PrevHash, prev.MerkleRoot, prev.ID)
		}
		prevRoot = &prev.MerkleRoot
	}

	if uint64(len(txs)) != block.TxCount {
		return newIntegrityErrorf(block.Height, block.ID, "block counts %d transactions, found %d", block.TxCount, len(txs))
	}
	for _, tx := range txs {
		if tx.BlockID != block.ID {
			return newIntegrityErrorf(block.Height, block.ID, "transaction %d is sealed in block %q", tx.Seq, tx.BlockID)
		}
		h, err := tx.ComputeHash()
		if err != nil {
			return newIntegrityErrorf(block.Height, block.ID, "transaction %d is not decodable: %w", tx.Seq, err)
		}
		if h != tx.Hash {
			return newIntegrityErrorf(block.Height, block.ID, "transaction %d hash %s does not match its body %s", tx.Seq, tx.Hash, h)
		}
	}

	root, err := merkle.Root(registry.Hashes(txs))
	if err != nil {
		return newIntegrityErrorf(block.Height, block.ID, "could not compute merkle root: %w", err)
	}
	if root != block.MerkleRoot {
		return newIntegrityErrorf(block.Height, block.ID, "merkle root %s does not match transactions %s", block.MerkleRoot, root)
	}
	if chainHash := registry.ChainHash(prevRoot, root); chainHash != block.ChainHash {
		return newIntegrityErrorf(block.Height, block.ID, "chain hash %s, expected %s", block.ChainHash, chainHash)
	}
	if id := anchor.DeriveBlockID(block.ID).String(); block.ExternalID != id {
		return newIntegrityErrorf(block.Height, block.ID, "external id %s, expected %s", block.ExternalID, id)
	}
	return nil
}
