package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/smt"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/storage"
	"github.com/h2registry/h2-registry/utils/logging"
)

// ErrRootMismatch is returned when the external id of a root already holds
// another root.
var ErrRootMismatch = errors.New("external id holds a different root")

// BlockLedger is the part of the block ledger the anchorer reads and updates.
type BlockLedger interface {
	Block(ctx context.Context, blockID string) (*registry.Block, error)
	AttachAnchor(ctx context.Context, blockID string, anchorTx string) (*registry.Transaction, error)
}

// Anchorer commits state roots and block roots to the external ledger and
// keeps a record of every anchored root.
type Anchorer struct {
	log       zerolog.Logger
	submitter *anchor.Submitter
	external  anchor.ExternalLedger
	blocks    BlockLedger
	records   storage.AnchorRecords
	now       func() time.Time
}

// NewAnchorer returns an anchorer submitting through submitter. external is
// the ledger the submitter sends to, used to read anchored roots back.
func NewAnchorer(
	log zerolog.Logger,
	submitter *anchor.Submitter,
	external anchor.ExternalLedger,
	blocks BlockLedger,
	records storage.AnchorRecords,
) *Anchorer {
	return &Anchorer{
		log:       log.With().Str("module", "anchorer").Logger(),
		submitter: submitter,
		external:  external,
		blocks:    blocks,
		records:   records,
		now:       time.Now,
	}
}

// AnchorState anchors the state root of the given balances under the
// external id derived from the root. A root anchored before is returned
// from the record store without contacting the external ledger.
func (a *Anchorer) AnchorState(ctx context.Context, balances map[string]ledger.Balance) (*registry.AnchorRecord, error) {
	root := smt.BuildRoot(smt.KeyedBalances(balances))
	id := anchor.DeriveStateID(root)

	return a.anchor(ctx, registry.AnchorKindState, root.Hex(), hash.Hash(root), id)
}

// AnchorBlock anchors the merkle root of a block under the block's external
// id, and attaches the external transaction reference to the block.
// Returns storage.ErrNotFound if the block is unknown.
func (a *Anchorer) AnchorBlock(ctx context.Context, blockID string) (*registry.AnchorRecord, error) {
	block, err := a.blocks.Block(ctx, blockID)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve block %s: %w", blockID, err)
	}
	id, err := anchor.ParseExternalID(block.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("block %s has an invalid external id: %w", blockID, err)
	}

	record, err := a.anchor(ctx, registry.AnchorKindBlock, block.ID, block.MerkleRoot, id)
	if err != nil {
		return nil, err
	}

	if record.TxHash == "" || block.Anchored() {
		return record, nil
	}
	_, err = a.blocks.AttachAnchor(ctx, block.ID, record.TxHash)
	if errors.Is(err, storage.ErrAlreadyExists) {
		a.log.Debug().Str("block_id", block.ID).Msg("block anchor attached concurrently")
		return record, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not attach anchor to block %s: %w", block.ID, err)
	}
	return record, nil
}

func (a *Anchorer) anchor(
	ctx context.Context,
	kind registry.AnchorKind,
	internalID string,
	root hash.Hash,
	id anchor.ExternalID,
) (*registry.AnchorRecord, error) {
	log := a.log.With().
		Str("kind", string(kind)).
		Str("internal_id", internalID).
		Str("external_id", id.String()).
		Str("root", logging.Short(root)).
		Logger()

	record, err := a.records.ByExternalID(kind, id.String())
	switch {
	case err == nil:
		if record.Root != root {
			return nil, fmt.Errorf("%s anchor %s holds %s: %w", kind, id, record.Root, ErrRootMismatch)
		}
		log.Debug().Msg("root already recorded")
		return record, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("could not check anchor record: %w", err)
	}

	receipt, err := a.submitter.Submit(ctx, root, id)
	if err != nil {
		return nil, fmt.Errorf("could not anchor %s root %s: %w", kind, internalID, err)
	}
	if receipt.Root != root {
		return nil, fmt.Errorf("%s anchor %s holds %s: %w", kind, id, receipt.Root, ErrRootMismatch)
	}

	record = &registry.AnchorRecord{
		Kind:            kind,
		InternalID:      internalID,
		ExternalID:      id.String(),
		Root:            root,
		TxHash:          receipt.TxRef,
		AlreadyAnchored: receipt.AlreadyAnchored,
		Confirmed:       receipt.Confirmed,
		CreatedAt:       a.now().UTC(),
	}
	if identity, ok := a.external.(anchor.Identity); ok {
		record.Chain = identity.Chain()
		record.Contract = identity.Contract()
	}

	err = a.records.Store(record)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// stored by a concurrent anchoring of the same root
		return a.records.ByExternalID(kind, id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("could not store anchor record: %w", err)
	}

	log.Info().
		Str("tx", record.TxHash).
		Bool("already_anchored", record.AlreadyAnchored).
		Msg("anchor recorded")

	return record, nil
}

// Verification is the result of comparing an anchored root with an expected
// root.
type Verification struct {
	ExternalID string `json:"onchain_block_id"`
	Expected   string `json:"expected"`
	Onchain    string `json:"onchain_root"`
	Anchored   bool   `json:"anchored"`
	Match      bool   `json:"match"`
}

// VerifyAnchor reads the root anchored under id and compares it with
// expected. An unset slot is reported as not anchored, not as an error.
func (a *Anchorer) VerifyAnchor(ctx context.Context, id anchor.ExternalID, expected hash.Hash) (*Verification, error) {
	onchain, err := a.external.ReadRoot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not read anchored root %s: %w", id, err)
	}
	return &Verification{
		ExternalID: id.String(),
		Expected:   expected.Hex(),
		Onchain:    onchain.Hex(),
		Anchored:   !onchain.IsEmpty(),
		Match:      onchain == expected,
	}, nil
}

// Records returns every stored anchor record.
func (a *Anchorer) Records() ([]*registry.AnchorRecord, error) {
	return a.records.All()
}
