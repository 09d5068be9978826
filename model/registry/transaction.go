package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Transaction is a record of the append-only ledger log.
//
// A transaction is immutable once its hash is computed, except BlockID which
// transitions exactly once from empty (pending) to the id of the sealing block.
type Transaction struct {
	// ID is a random identifier of the record
	ID string
	// Seq is the position of the record in the log, assigned on append.
	// It orders transactions created within the same clock tick.
	Seq  uint64
	Type TxType
	// Body is the canonical JSON encoding of the payload fields
	Body      []byte
	Hash      hash.Hash
	BlockID   string
	CreatedAt time.Time
}

// NewTransaction creates a pending transaction for the payload.
func NewTransaction(p Payload, createdAt time.Time) (*Transaction, error) {
	fields := p.Fields()
	body, err := CanonicalJSON(fields)
	if err != nil {
		return nil, fmt.Errorf("could not canonicalize %s payload: %w", p.Type(), err)
	}
	h, err := TxHash(p.Type(), fields)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ID:        uuid.NewString(),
		Type:      p.Type(),
		Body:      body,
		Hash:      h,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// TxHash computes H(canonical({"type": kind, ...fields})).
// A payload carrying its own "type" field is rejected.
func TxHash(kind TxType, fields map[string]interface{}) (hash.Hash, error) {
	if _, ok := fields[typeField]; ok {
		return hash.DummyHash, fmt.Errorf("payload of kind %s must not contain a %q field", kind, typeField)
	}
	tagged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		tagged[k] = v
	}
	tagged[typeField] = string(kind)

	canonical, err := CanonicalJSON(tagged)
	if err != nil {
		return hash.DummyHash, fmt.Errorf("could not canonicalize %s payload: %w", kind, err)
	}
	return hash.Sum(canonical), nil
}

// Pending returns true if the transaction is not sealed in a block yet.
func (tx *Transaction) Pending() bool {
	return tx.BlockID == ""
}

// Payload decodes the body of the transaction.
func (tx *Transaction) Payload() (Payload, error) {
	return DecodePayload(tx.Type, tx.Body)
}

// ComputeHash recomputes the transaction hash from its type and body.
func (tx *Transaction) ComputeHash() (hash.Hash, error) {
	fields, err := decodeObject(tx.Body)
	if err != nil {
		return hash.DummyHash, fmt.Errorf("could not decode body of transaction %s: %w", tx.ID, err)
	}
	return TxHash(tx.Type, fields)
}

// Hashes returns the hashes of the transactions, in order.
func Hashes(txs []*Transaction) []hash.Hash {
	hashes := make([]hash.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash
	}
	return hashes
}
