package registry

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/encoding"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/smt"
)

// Binary views wrap the versioned byte encodings of proofs as 0x hex, next to
// the plain fields a reader needs to tell which proof it is holding.

// BinaryStateProofView carries an encoded account proof.
type BinaryStateProofView struct {
	AccountID string `json:"account_id"`
	StateRoot string `json:"state_root"`
	Compact   bool   `json:"compact"`
	Encoded   string `json:"encoded"`
}

// NewBinaryStateProofView encodes a full state proof view, compressing it
// first if compact is set.
func NewBinaryStateProofView(v *StateProofView, compact bool) (*BinaryStateProofView, error) {
	leaf, proof, root, err := v.Decode()
	if err != nil {
		return nil, err
	}
	p := &encoding.AccountProof{
		AccountID:  v.AccountID,
		Balance:    ledger.Balance(v.BalanceG),
		Leaf:       leaf,
		Root:       root,
		Compressed: compact,
	}
	if compact {
		p.Compact = smt.Compress(proof)
	} else {
		p.Proof = proof
	}
	encoded, err := encoding.EncodeAccountProof(p)
	if err != nil {
		return nil, err
	}
	return &BinaryStateProofView{
		AccountID: v.AccountID,
		StateRoot: root.Hex(),
		Compact:   compact,
		Encoded:   hexutil.Encode(encoded),
	}, nil
}

// Decode parses the encoded proof and checks it describes the account and
// root named by the view.
func (v *BinaryStateProofView) Decode() (*encoding.AccountProof, error) {
	raw, err := hexutil.Decode(v.Encoded)
	if err != nil {
		return nil, ledger.NewValidationErrorf("invalid encoded proof: %w", err)
	}
	p, err := encoding.DecodeAccountProof(raw)
	if err != nil {
		return nil, err
	}
	root, err := ledger.StateFromHex(v.StateRoot)
	if err != nil {
		return nil, err
	}
	if p.AccountID != v.AccountID {
		return nil, ledger.NewValidationErrorf("encoded proof is for account %q, not %q", p.AccountID, v.AccountID)
	}
	if !p.Root.Equals(root) {
		return nil, ledger.NewValidationErrorf("encoded proof is against root %s, not %s", p.Root.Hex(), root.Hex())
	}
	return p, nil
}

// Verify decodes the proof and checks it against its state root.
func (v *BinaryStateProofView) Verify() (bool, error) {
	p, err := v.Decode()
	if err != nil {
		return false, err
	}
	return p.Verify()
}

// BinaryTxProofView carries an encoded block inclusion proof.
type BinaryTxProofView struct {
	BlockID    string  `json:"block_id"`
	TxHash     string  `json:"tx_hash"`
	MerkleRoot string  `json:"merkle_root"`
	AnchorTx   *string `json:"anchor_tx"`
	Encoded    string  `json:"encoded"`
}

func NewBinaryTxProofView(v *TxProofView) (*BinaryTxProofView, error) {
	_, proof, _, err := v.InclusionProof()
	if err != nil {
		return nil, err
	}
	return &BinaryTxProofView{
		BlockID:    v.BlockID,
		TxHash:     v.TxHash,
		MerkleRoot: v.MerkleRoot,
		AnchorTx:   v.AnchorTx,
		Encoded:    hexutil.Encode(encoding.EncodeInclusionProof(proof)),
	}, nil
}

// Verify decodes the inclusion proof and checks it against the merkle root
// of the view.
func (v *BinaryTxProofView) Verify() error {
	leaf, err := hash.FromHex(v.TxHash)
	if err != nil {
		return ledger.NewValidationErrorf("invalid tx hash: %w", err)
	}
	root, err := hash.FromHex(v.MerkleRoot)
	if err != nil {
		return ledger.NewValidationErrorf("invalid merkle root: %w", err)
	}
	raw, err := hexutil.Decode(v.Encoded)
	if err != nil {
		return ledger.NewValidationErrorf("invalid encoded proof: %w", err)
	}
	proof, err := encoding.DecodeInclusionProof(raw)
	if err != nil {
		return err
	}
	return proof.Check(leaf, root)
}
