package registry

import (
	"fmt"
	"time"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/merkle"
	"github.com/h2registry/h2-registry/ledger/smt"
)

// Response shapes consumed by external verifiers. State tree hashes are
// "0x" prefixed, block and transaction hashes are bare lower-case hex.

const (
	// BlockOrder is the order of the leaves of a block tree
	BlockOrder = "creation_asc"
)

// StateRootView publishes a state root with the rules needed to recompute it.
type StateRootView struct {
	StateRoot string `json:"state_root"`
	HashAlgo  string `json:"hash_algo"`
	Tree      string `json:"tree"`
	LeafRule  string `json:"leaf_rule"`
	NodeRule  string `json:"node_rule"`
	KeyRule   string `json:"key_rule"`
	Accounts  int    `json:"accounts"`
	CreatedAt string `json:"created_at,omitempty"`
}

func NewStateRootView(root ledger.State, accounts int, createdAt time.Time) StateRootView {
	return StateRootView{
		StateRoot: root.Hex(),
		HashAlgo:  hash.Algorithm,
		Tree:      ledger.TreeKind,
		LeafRule:  ledger.LeafRule,
		NodeRule:  ledger.NodeRule,
		KeyRule:   ledger.KeyRule,
		Accounts:  accounts,
		CreatedAt: formatTime(createdAt),
	}
}

type ProofStepView struct {
	Sibling string `json:"sibling"`
	IsLeft  bool   `json:"is_left"`
}

// StateProofView is the full 256 step proof of an account balance.
type StateProofView struct {
	AccountID     string          `json:"account_id"`
	BalanceG      uint64          `json:"balance_g"`
	Leaf          string          `json:"leaf"`
	Proof         []ProofStepView `json:"proof"`
	StateRoot     string          `json:"state_root"`
	LocalVerifyOK bool            `json:"local_verify_ok"`
}

func NewStateProofView(accountID string, balance ledger.Balance, leaf hash.Hash, proof smt.Proof, root ledger.State) *StateProofView {
	steps := make([]ProofStepView, len(proof))
	for i, s := range proof {
		steps[i] = ProofStepView{Sibling: s.Sibling.Hex(), IsLeft: s.IsLeft}
	}
	return &StateProofView{
		AccountID:     accountID,
		BalanceG:      uint64(balance),
		Leaf:          leaf.Hex(),
		Proof:         steps,
		StateRoot:     root.Hex(),
		LocalVerifyOK: smt.VerifyAccount(accountID, balance, leaf, proof, root),
	}
}

// Decode parses the hex fields of the view.
func (v *StateProofView) Decode() (hash.Hash, smt.Proof, ledger.State, error) {
	leaf, err := hash.FromHex(v.Leaf)
	if err != nil {
		return hash.DummyHash, nil, ledger.DummyState, ledger.NewValidationErrorf("invalid leaf: %w", err)
	}
	root, err := ledger.StateFromHex(v.StateRoot)
	if err != nil {
		return hash.DummyHash, nil, ledger.DummyState, err
	}
	proof := make(smt.Proof, len(v.Proof))
	for i, s := range v.Proof {
		sibling, err := hash.FromHex(s.Sibling)
		if err != nil {
			return hash.DummyHash, nil, ledger.DummyState, ledger.NewValidationErrorf("invalid sibling of step %d: %w", i, err)
		}
		proof[i] = smt.Step{Sibling: sibling, IsLeft: s.IsLeft}
	}
	return leaf, proof, root, nil
}

// Verify checks the proof against the state root of the view. Malformed
// hex fields are returned as a ValidationError.
func (v *StateProofView) Verify() (bool, error) {
	leaf, proof, root, err := v.Decode()
	if err != nil {
		return false, err
	}
	return smt.VerifyAccount(v.AccountID, ledger.Balance(v.BalanceG), leaf, proof, root), nil
}

type CompactStepView struct {
	Depth   int    `json:"depth"`
	Sibling string `json:"sibling"`
	IsLeft  bool   `json:"is_left"`
}

type CompactMetaView struct {
	SkippedDefaults int `json:"skipped_defaults"`
}

// CompactStateProofView is the proof of an account balance without the
// default siblings.
type CompactStateProofView struct {
	AccountID       string            `json:"account_id"`
	BalanceG        uint64            `json:"balance_g"`
	Leaf            string            `json:"leaf"`
	StateRoot       string            `json:"state_root"`
	ProofCompressed []CompactStepView `json:"proof_compressed"`
	Meta            CompactMetaView   `json:"meta"`
}

func NewCompactStateProofView(accountID string, balance ledger.Balance, leaf hash.Hash, proof smt.Proof, root ledger.State) *CompactStateProofView {
	compact := smt.Compress(proof)
	steps := make([]CompactStepView, len(compact))
	for i, s := range compact {
		steps[i] = CompactStepView{Depth: s.Depth, Sibling: s.Sibling.Hex(), IsLeft: s.IsLeft}
	}
	return &CompactStateProofView{
		AccountID:       accountID,
		BalanceG:        uint64(balance),
		Leaf:            leaf.Hex(),
		StateRoot:       root.Hex(),
		ProofCompressed: steps,
		Meta:            CompactMetaView{SkippedDefaults: compact.SkippedDefaults()},
	}
}

// Verify expands the compact proof and checks it against the state root.
func (v *CompactStateProofView) Verify() (bool, error) {
	leaf, err := hash.FromHex(v.Leaf)
	if err != nil {
		return false, ledger.NewValidationErrorf("invalid leaf: %w", err)
	}
	root, err := ledger.StateFromHex(v.StateRoot)
	if err != nil {
		return false, err
	}
	compact := make(smt.CompactProof, len(v.ProofCompressed))
	for i, s := range v.ProofCompressed {
		sibling, err := hash.FromHex(s.Sibling)
		if err != nil {
			return false, ledger.NewValidationErrorf("invalid sibling of step %d: %w", i, err)
		}
		compact[i] = smt.CompactStep{Depth: s.Depth, Sibling: sibling, IsLeft: s.IsLeft}
	}
	proof, err := smt.Expand(ledger.KeyOf(v.AccountID), compact)
	if err != nil {
		return false, err
	}
	return smt.VerifyAccount(v.AccountID, ledger.Balance(v.BalanceG), leaf, proof, root), nil
}

// BlockView is the published header of a block.
type BlockView struct {
	BlockID        string  `json:"block_id"`
	Height         uint64  `json:"height"`
	PrevHash       *string `json:"prev_hash"`
	MerkleRoot     string  `json:"merkle_root"`
	ChainHash      string  `json:"chain_hash"`
	TxCount        uint64  `json:"tx_count"`
	Note           string  `json:"note,omitempty"`
	CreatedAt      string  `json:"created_at"`
	OnchainBlockID string  `json:"onchain_block_id"`
	AnchorTx       *string `json:"anchor_tx"`
	Order          string  `json:"order"`
	HashAlgo       string  `json:"hash_algo"`
	MerkleConcat   string  `json:"merkle_concat"`
}

func NewBlockView(b *Block) *BlockView {
	v := &BlockView{
		BlockID:        b.ID,
		Height:         b.Height,
		MerkleRoot:     b.MerkleRoot.String(),
		ChainHash:      b.ChainHash.String(),
		TxCount:        b.TxCount,
		Note:           b.Note,
		CreatedAt:      formatTime(b.CreatedAt),
		OnchainBlockID: b.ExternalID,
		Order:          BlockOrder,
		HashAlgo:       hash.Algorithm,
		MerkleConcat:   merkle.ConcatRule,
	}
	if prev := b.Prev(); prev != nil {
		s := prev.String()
		v.PrevHash = &s
	}
	if b.Anchored() {
		s := b.AnchorTx
		v.AnchorTx = &s
	}
	return v
}

type TxRefView struct {
	TxHash string `json:"tx_hash"`
	Type   string `json:"type"`
}

// BlockTxsView lists the transactions of a block in leaf order.
type BlockTxsView struct {
	BlockID      string      `json:"block_id"`
	Order        string      `json:"order"`
	HashAlgo     string      `json:"hash_algo"`
	MerkleConcat string      `json:"merkle_concat"`
	Txs          []TxRefView `json:"txs"`
}

func NewBlockTxsView(blockID string, txs []*Transaction) *BlockTxsView {
	refs := make([]TxRefView, len(txs))
	for i, tx := range txs {
		refs[i] = TxRefView{TxHash: tx.Hash.String(), Type: tx.Type.String()}
	}
	return &BlockTxsView{
		BlockID:      blockID,
		Order:        BlockOrder,
		HashAlgo:     hash.Algorithm,
		MerkleConcat: merkle.ConcatRule,
		Txs:          refs,
	}
}

type InclusionStepView struct {
	Sibling string `json:"sibling"`
	IsRight bool   `json:"is_right"`
}

// TxProofView is the inclusion proof of a transaction in its block.
type TxProofView struct {
	BlockID        string              `json:"block_id"`
	OnchainBlockID string              `json:"onchain_block_id"`
	TxHash         string              `json:"tx_hash"`
	Index          int                 `json:"index"`
	HashesCount    int                 `json:"hashes_count"`
	Proof          []InclusionStepView `json:"proof"`
	MerkleRoot     string              `json:"merkle_root"`
	AnchorTx       *string             `json:"anchor_tx"`
}

func NewTxProofView(b *Block, txHash hash.Hash, proof *merkle.InclusionProof) *TxProofView {
	steps := make([]InclusionStepView, len(proof.Steps))
	for i, s := range proof.Steps {
		steps[i] = InclusionStepView{Sibling: s.Sibling.String(), IsRight: s.IsRight}
	}
	v := &TxProofView{
		BlockID:        b.ID,
		OnchainBlockID: b.ExternalID,
		TxHash:         txHash.String(),
		Index:          proof.Index,
		HashesCount:    proof.LeafCount,
		Proof:          steps,
		MerkleRoot:     b.MerkleRoot.String(),
	}
	if b.Anchored() {
		s := b.AnchorTx
		v.AnchorTx = &s
	}
	return v
}

// InclusionProof parses the hex fields of the view.
func (v *TxProofView) InclusionProof() (hash.Hash, *merkle.InclusionProof, hash.Hash, error) {
	leaf, err := hash.FromHex(v.TxHash)
	if err != nil {
		return hash.DummyHash, nil, hash.DummyHash, ledger.NewValidationErrorf("invalid tx hash: %w", err)
	}
	root, err := hash.FromHex(v.MerkleRoot)
	if err != nil {
		return hash.DummyHash, nil, hash.DummyHash, ledger.NewValidationErrorf("invalid merkle root: %w", err)
	}
	proof := &merkle.InclusionProof{
		Index:     v.Index,
		LeafCount: v.HashesCount,
		Steps:     make([]merkle.Step, len(v.Proof)),
	}
	for i, s := range v.Proof {
		sibling, err := hash.FromHex(s.Sibling)
		if err != nil {
			return hash.DummyHash, nil, hash.DummyHash, ledger.NewValidationErrorf("invalid sibling of step %d: %w", i, err)
		}
		proof.Steps[i] = merkle.Step{Sibling: sibling, IsRight: s.IsRight}
	}
	return leaf, proof, root, nil
}

// Verify checks the inclusion proof against the merkle root of the view.
func (v *TxProofView) Verify() error {
	leaf, proof, root, err := v.InclusionProof()
	if err != nil {
		return err
	}
	return proof.Check(leaf, root)
}

// AnchorReceiptView is the published receipt of an anchored root.
type AnchorReceiptView struct {
	Type            string `json:"type"`
	Chain           string `json:"chain,omitempty"`
	Contract        string `json:"contract,omitempty"`
	InternalID      string `json:"internal_id"`
	OnchainBlockID  string `json:"onchain_block_id"`
	Root            string `json:"root"`
	Tx              string `json:"tx,omitempty"`
	AlreadyAnchored bool   `json:"already_anchored"`
	Confirmed       bool   `json:"confirmed"`
	CreatedAt       string `json:"created_at"`
}

func NewAnchorReceiptView(r *AnchorRecord) *AnchorReceiptView {
	return &AnchorReceiptView{
		Type:            fmt.Sprintf("%s_anchor", r.Kind),
		Chain:           r.Chain,
		Contract:        r.Contract,
		InternalID:      r.InternalID,
		OnchainBlockID:  r.ExternalID,
		Root:            r.Root.Hex(),
		Tx:              r.TxHash,
		AlreadyAnchored: r.AlreadyAnchored,
		Confirmed:       r.Confirmed,
		CreatedAt:       formatTime(r.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
