package registry

import (
	"encoding/json"
	"fmt"
)

// TxType tags the kind of a ledger transaction.
type TxType string

const (
	TxAccountCreate  TxType = "account_create"
	TxSensorRegister TxType = "sensor_register"
	TxEvidence       TxType = "evidence"
	TxEvent          TxType = "event"
	TxMint           TxType = "mint"
	TxTransfer       TxType = "transfer"
	TxRetire         TxType = "retire"
	TxAnchor         TxType = "anchor"
)

// KnownTxTypes lists the transaction kinds with a typed payload.
var KnownTxTypes = []TxType{
	TxAccountCreate,
	TxSensorRegister,
	TxEvidence,
	TxEvent,
	TxMint,
	TxTransfer,
	TxRetire,
	TxAnchor,
}

func (t TxType) String() string {
	return string(t)
}

// IsKnown returns true if t has a typed payload.
func (t TxType) IsKnown() bool {
	for _, k := range KnownTxTypes {
		if k == t {
			return true
		}
	}
	return false
}

// typeField is the key under which the transaction kind is added to the
// payload fields before hashing.
const typeField = "type"

// Payload is the body of a ledger transaction. Fields returns the payload as
// a JSON-like object, which is the input of the canonical encoding.
type Payload interface {
	Type() TxType
	Fields() map[string]interface{}
}

// AccountCreate records the creation of a registry account.
type AccountCreate struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

func (p AccountCreate) Type() TxType { return TxAccountCreate }

func (p AccountCreate) Fields() map[string]interface{} {
	return map[string]interface{}{
		"account_id": p.AccountID,
		"role":       p.Role,
	}
}

// SensorRegister records the registration of a sensor on an electrolyzer.
type SensorRegister struct {
	SensorID       string `json:"sensor_id"`
	ElectrolyzerID string `json:"electrolyzer_id"`
}

func (p SensorRegister) Type() TxType { return TxSensorRegister }

func (p SensorRegister) Fields() map[string]interface{} {
	return map[string]interface{}{
		"sensor_id":       p.SensorID,
		"electrolyzer_id": p.ElectrolyzerID,
	}
}

// Evidence records the digest of an uploaded evidence document.
type Evidence struct {
	EvidenceID string `json:"evidence_id"`
	SHA256Hex  string `json:"sha256_hex"`
}

func (p Evidence) Type() TxType { return TxEvidence }

func (p Evidence) Fields() map[string]interface{} {
	return map[string]interface{}{
		"evidence_id": p.EvidenceID,
		"sha256_hex":  p.SHA256Hex,
	}
}

// Event records a production event. Times are kept as submitted.
type Event struct {
	EventID        string  `json:"event_id"`
	ElectrolyzerID string  `json:"electrolyzer_id"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	HydrogenKg     float64 `json:"hydrogen_kg"`
}

func (p Event) Type() TxType { return TxEvent }

func (p Event) Fields() map[string]interface{} {
	return map[string]interface{}{
		"event_id":        p.EventID,
		"electrolyzer_id": p.ElectrolyzerID,
		"start_time":      p.StartTime,
		"end_time":        p.EndTime,
		"hydrogen_kg":     p.HydrogenKg,
	}
}

// Mint records the issuance of a credit for a production event.
type Mint struct {
	CreditID       string `json:"credit_id"`
	EventID        string `json:"event_id"`
	AmountG        uint64 `json:"amount_g"`
	OwnerAccountID string `json:"owner_account_id"`
}

func (p Mint) Type() TxType { return TxMint }

func (p Mint) Fields() map[string]interface{} {
	return map[string]interface{}{
		"credit_id":        p.CreditID,
		"event_id":         p.EventID,
		"amount_g":         p.AmountG,
		"owner_account_id": p.OwnerAccountID,
	}
}

// Transfer records a full or partial credit transfer. NewCreditID equals
// CreditID when the whole credit moved.
type Transfer struct {
	CreditID      string `json:"credit_id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	AmountG       uint64 `json:"amount_g"`
	NewCreditID   string `json:"new_credit_id"`
}

func (p Transfer) Type() TxType { return TxTransfer }

func (p Transfer) Fields() map[string]interface{} {
	return map[string]interface{}{
		"credit_id":       p.CreditID,
		"from_account_id": p.FromAccountID,
		"to_account_id":   p.ToAccountID,
		"amount_g":        p.AmountG,
		"new_credit_id":   p.NewCreditID,
	}
}

// Retire records a full or partial credit retirement.
type Retire struct {
	CreditID       string `json:"credit_id"`
	OwnerAccountID string `json:"owner_account_id"`
	AmountG        uint64 `json:"amount_g"`
	Reason         string `json:"reason"`
}

func (p Retire) Type() TxType { return TxRetire }

func (p Retire) Fields() map[string]interface{} {
	return map[string]interface{}{
		"credit_id":        p.CreditID,
		"owner_account_id": p.OwnerAccountID,
		"amount_g":         p.AmountG,
		"reason":           p.Reason,
	}
}

// Anchor records the external anchoring of a block root.
type Anchor struct {
	BlockID  string `json:"block_id"`
	Root     string `json:"root"`
	AnchorTx string `json:"anchor_tx"`
}

func (p Anchor) Type() TxType { return TxAnchor }

func (p Anchor) Fields() map[string]interface{} {
	return map[string]interface{}{
		"block_id":  p.BlockID,
		"root":      p.Root,
		"anchor_tx": p.AnchorTx,
	}
}

// Opaque is a payload of a kind without a typed representation. Its body is
// kept in canonical JSON form.
type Opaque struct {
	kind   TxType
	body   []byte
	fields map[string]interface{}
}

var _ Payload = (*Opaque)(nil)

// NewOpaque parses a JSON object body of the given kind.
func NewOpaque(kind TxType, body []byte) (*Opaque, error) {
	if kind == "" {
		return nil, fmt.Errorf("opaque payload requires a kind")
	}
	fields, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("invalid opaque payload of kind %s: %w", kind, err)
	}
	canonical, err := CanonicalJSON(fields)
	if err != nil {
		return nil, fmt.Errorf("invalid opaque payload of kind %s: %w", kind, err)
	}
	return &Opaque{kind: kind, body: canonical, fields: fields}, nil
}

func (p *Opaque) Type() TxType { return p.kind }

func (p *Opaque) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(p.fields))
	for k, v := range p.fields {
		fields[k] = v
	}
	return fields
}

// Body returns the canonical JSON encoding of the payload.
func (p *Opaque) Body() []byte {
	return p.body
}

// DecodePayload reconstructs a payload from its kind and JSON body.
// Known kinds decode into their typed payload, all others into an Opaque.
func DecodePayload(kind TxType, body []byte) (Payload, error) {
	var p Payload
	switch kind {
	case TxAccountCreate:
		p = &AccountCreate{}
	case TxSensorRegister:
		p = &SensorRegister{}
	case TxEvidence:
		p = &Evidence{}
	case TxEvent:
		p = &Event{}
	case TxMint:
		p = &Mint{}
	case TxTransfer:
		p = &Transfer{}
	case TxRetire:
		p = &Retire{}
	case TxAnchor:
		p = &Anchor{}
	default:
		return NewOpaque(kind, body)
	}
	if err := json.Unmarshal(body, p); err != nil {
		return nil, fmt.Errorf("could not decode %s payload: %w", kind, err)
	}
	return p, nil
}
