// Package encoding provides byte serialization and deserialization of state
// roots and proofs.
package encoding

import (
	"fmt"

	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/common/bitutils"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/common/utils"
	"github.com/h2registry/h2-registry/ledger/merkle"
	"github.com/h2registry/h2-registry/ledger/smt"
)

// Versions capture the maximum version of encoding this code supports.
// I.e. this code encodes data with the latest version and only decodes
// data with version smaller or equal to these versions.
// Bumping a version number prevents older versions of code from handling
// the newer version of data. New code handling new data version
// should be updated to also support backward compatibility if needed.
const (
	StateVersion          = uint16(0)
	ProofVersion          = uint16(0)
	CompactProofVersion   = uint16(0)
	InclusionProofVersion = uint16(0)
	AccountProofVersion   = uint16(0)
)

// Type capture the type of encoded entity (e.g. State, Proof)
type Type uint8

const (
	// TypeUnknown - unknown type
	TypeUnknown = iota
	// TypeState - type for state roots
	TypeState
	// TypeProof - type for full 256 step state proofs
	TypeProof
	// TypeCompactProof - type for state proofs without default siblings
	TypeCompactProof
	// TypeInclusionProof - type for block inclusion proofs
	TypeInclusionProof
	// TypeAccountProof - type for self-contained account balance proofs
	TypeAccountProof
	// this is used to flag types from the future
	typeUnsuported
)

func (e Type) String() string {
	return [...]string{"Unknown", "State", "Proof", "CompactProof", "InclusionProof", "AccountProof"}[e]
}

// CheckVersion extracts encoding bytes from a raw encoded message
// checks it against the supported versions and returns the rest of rawInput (excluding encDecVersion bytes)
func CheckVersion(rawInput []byte, maxVersion uint16) (rest []byte, version uint16, err error) {
	version, rest, err = utils.ReadUint16(rawInput)
	if err != nil {
		return rest, version, fmt.Errorf("error checking the encoding decoding version: %w", err)
	}
	// error on versions coming from future till a time-machine is invented
	if version > maxVersion {
		return rest, version, fmt.Errorf("incompatible encoding decoding version (%d > %d)", version, maxVersion)
	}
	// return the rest of bytes
	return rest, version, nil
}

// CheckType extracts encoding byte from a raw encoded message
// checks it against expected type and returns the rest of rawInput (excluding type byte)
func CheckType(rawInput []byte, expectedType uint8) (rest []byte, err error) {
	t, r, err := utils.ReadUint8(rawInput)
	if err != nil {
		return r, fmt.Errorf("error checking type of the encoded entity: %w", err)
	}

	// error if type is known for this code
	if t >= typeUnsuported {
		return r, fmt.Errorf("unknown entity type in the encoded data (%d > %d)", t, typeUnsuported)
	}

	// error if type is known for this code
	if t != expectedType {
		return r, fmt.Errorf("unexpected entity type, got (%v) but (%v) was expected", Type(t), Type(expectedType))
	}

	// return the rest of bytes
	return r, nil
}

func checkHeader(rawInput []byte, maxVersion uint16, expectedType uint8) ([]byte, uint16, error) {
	rest, version, err := CheckVersion(rawInput, maxVersion)
	if err != nil {
		return nil, version, err
	}
	rest, err = CheckType(rest, expectedType)
	if err != nil {
		return nil, version, err
	}
	return rest, version, nil
}

func appendHeader(buffer []byte, version uint16, t uint8) []byte {
	buffer = utils.AppendUint16(buffer, version)
	return utils.AppendUint8(buffer, t)
}

// EncodeState encodes a state root into a byte slice
func EncodeState(s ledger.State) []byte {
	buffer := make([]byte, 0, 3+hash.HashLen)
	buffer = appendHeader(buffer, StateVersion, TypeState)
	return append(buffer, s[:]...)
}

// DecodeState constructs a state root from an encoded state root
func DecodeState(encodedState []byte) (ledger.State, error) {
	rest, _, err := checkHeader(encodedState, StateVersion, TypeState)
	if err != nil {
		return ledger.DummyState, ledger.NewValidationErrorf("error decoding state: %w", err)
	}
	return ledger.ToState(rest)
}

// isLeftFlags packs the IsLeft flag of n steps into a bit vector.
func isLeftFlags(n int, isLeft func(i int) bool) []byte {
	flags := bitutils.MakeBitVector(n)
	for i := 0; i < n; i++ {
		v := 0
		if isLeft(i) {
			v = 1
		}
		bitutils.WriteBit(flags, i, v)
	}
	return flags
}

// EncodeProof encodes a full state proof into a byte slice.
//
// Layout: step count (2 bytes), is_left bit vector, siblings (32 bytes each).
func EncodeProof(p smt.Proof) []byte {
	flags := isLeftFlags(len(p), func(i int) bool { return p[i].IsLeft })

	buffer := make([]byte, 0, 3+2+len(flags)+len(p)*hash.HashLen)
	buffer = appendHeader(buffer, ProofVersion, TypeProof)
	buffer = utils.AppendUint16(buffer, uint16(len(p)))
	buffer = append(buffer, flags...)
	for _, step := range p {
		buffer = append(buffer, step.Sibling[:]...)
	}
	return buffer
}

// DecodeProof constructs a full state proof from an encoded proof
func DecodeProof(encodedProof []byte) (smt.Proof, error) {
	rest, _, err := checkHeader(encodedProof, ProofVersion, TypeProof)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding proof: %w", err)
	}

	steps, rest, err := utils.ReadUint16(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding proof: %w", err)
	}
	flags, rest, err := utils.ReadSlice(rest, len(bitutils.MakeBitVector(int(steps))))
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding proof: %w", err)
	}

	proof := make(smt.Proof, steps)
	var sibling []byte
	for i := range proof {
		sibling, rest, err = utils.ReadSlice(rest, hash.HashLen)
		if err != nil {
			return nil, ledger.NewValidationErrorf("error decoding proof step %d: %w", i, err)
		}
		copy(proof[i].Sibling[:], sibling)
		proof[i].IsLeft = bitutils.ReadBit(flags, i) == 1
	}
	if len(rest) != 0 {
		return nil, ledger.NewValidationErrorf("error decoding proof: %d trailing bytes", len(rest))
	}
	return proof, nil
}

// EncodeCompactProof encodes a compact state proof into a byte slice.
//
// Layout: step count (2 bytes), is_left bit vector, then per step the depth
// (2 bytes) and the sibling (32 bytes).
func EncodeCompactProof(p smt.CompactProof) []byte {
	flags := isLeftFlags(len(p), func(i int) bool { return p[i].IsLeft })

	buffer := make([]byte, 0, 3+2+len(flags)+len(p)*(2+hash.HashLen))
	buffer = appendHeader(buffer, CompactProofVersion, TypeCompactProof)
	buffer = utils.AppendUint16(buffer, uint16(len(p)))
	buffer = append(buffer, flags...)
	for _, step := range p {
		buffer = utils.AppendUint16(buffer, uint16(step.Depth))
		buffer = append(buffer, step.Sibling[:]...)
	}
	return buffer
}

// DecodeCompactProof constructs a compact state proof from an encoded proof.
// Depths are not validated here, Expand does.
func DecodeCompactProof(encodedProof []byte) (smt.CompactProof, error) {
	rest, _, err := checkHeader(encodedProof, CompactProofVersion, TypeCompactProof)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding compact proof: %w", err)
	}

	steps, rest, err := utils.ReadUint16(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding compact proof: %w", err)
	}
	if int(steps) > smt.Depth {
		return nil, ledger.NewValidationErrorf("error decoding compact proof: %d steps exceed tree depth", steps)
	}
	flags, rest, err := utils.ReadSlice(rest, len(bitutils.MakeBitVector(int(steps))))
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding compact proof: %w", err)
	}

	proof := make(smt.CompactProof, steps)
	var depth uint16
	var sibling []byte
	for i := range proof {
		depth, rest, err = utils.ReadUint16(rest)
		if err != nil {
			return nil, ledger.NewValidationErrorf("error decoding compact proof step %d: %w", i, err)
		}
		sibling, rest, err = utils.ReadSlice(rest, hash.HashLen)
		if err != nil {
			return nil, ledger.NewValidationErrorf("error decoding compact proof step %d: %w", i, err)
		}
		proof[i].Depth = int(depth)
		copy(proof[i].Sibling[:], sibling)
		proof[i].IsLeft = bitutils.ReadBit(flags, i) == 1
	}
	if len(rest) != 0 {
		return nil, ledger.NewValidationErrorf("error decoding compact proof: %d trailing bytes", len(rest))
	}
	return proof, nil
}

// EncodeInclusionProof encodes a block inclusion proof into a byte slice.
//
// Layout: index (4 bytes), leaf count (4 bytes), step count (1 byte),
// is_right bit vector, siblings (32 bytes each).
func EncodeInclusionProof(p *merkle.InclusionProof) []byte {
	if p == nil {
		return []byte{}
	}
	flags := bitutils.MakeBitVector(len(p.Steps))
	for i, step := range p.Steps {
		if step.IsRight {
			bitutils.SetBit(flags, i)
		}
	}

	buffer := make([]byte, 0, 3+4+4+1+len(flags)+len(p.Steps)*hash.HashLen)
	buffer = appendHeader(buffer, InclusionProofVersion, TypeInclusionProof)
	buffer = utils.AppendUint32(buffer, uint32(p.Index))
	buffer = utils.AppendUint32(buffer, uint32(p.LeafCount))
	buffer = utils.AppendUint8(buffer, uint8(len(p.Steps)))
	buffer = append(buffer, flags...)
	for _, step := range p.Steps {
		buffer = append(buffer, step.Sibling[:]...)
	}
	return buffer
}

// DecodeInclusionProof constructs a block inclusion proof from an encoded proof
func DecodeInclusionProof(encodedProof []byte) (*merkle.InclusionProof, error) {
	rest, _, err := checkHeader(encodedProof, InclusionProofVersion, TypeInclusionProof)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %w", err)
	}

	index, rest, err := utils.ReadUint32(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %w", err)
	}
	leafCount, rest, err := utils.ReadUint32(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %w", err)
	}
	steps, rest, err := utils.ReadUint8(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %w", err)
	}
	flags, rest, err := utils.ReadSlice(rest, len(bitutils.MakeBitVector(int(steps))))
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %w", err)
	}

	p := &merkle.InclusionProof{
		Index:     int(index),
		LeafCount: int(leafCount),
		Steps:     make([]merkle.Step, steps),
	}
	var sibling []byte
	for i := range p.Steps {
		sibling, rest, err = utils.ReadSlice(rest, hash.HashLen)
		if err != nil {
			return nil, ledger.NewValidationErrorf("error decoding inclusion proof step %d: %w", i, err)
		}
		copy(p.Steps[i].Sibling[:], sibling)
		p.Steps[i].IsRight = bitutils.ReadBit(flags, i) == 1
	}
	if len(rest) != 0 {
		return nil, ledger.NewValidationErrorf("error decoding inclusion proof: %d trailing bytes", len(rest))
	}
	return p, nil
}

// AccountProof is a balance proof that carries everything a verifier needs:
// the account, its balance and leaf, the state root and either a full or a
// compact proof.
type AccountProof struct {
	AccountID string
	Balance   ledger.Balance
	Leaf      hash.Hash
	Root      ledger.State
	// Compact is set instead of Proof when Compressed.
	Proof      smt.Proof
	Compact    smt.CompactProof
	Compressed bool
}

// Verify checks the proof against its own root.
func (p *AccountProof) Verify() (bool, error) {
	proof := p.Proof
	if p.Compressed {
		var err error
		proof, err = smt.Expand(ledger.KeyOf(p.AccountID), p.Compact)
		if err != nil {
			return false, err
		}
	}
	return smt.VerifyAccount(p.AccountID, p.Balance, p.Leaf, proof, p.Root), nil
}

// EncodeAccountProof encodes an account proof into a byte slice.
//
// Layout: account id (short data), balance (8 bytes), leaf (32 bytes), the
// encoded state root (short data), then the encoded full or compact proof
// (short data). The nested proof's type byte tells the two apart.
func EncodeAccountProof(p *AccountProof) ([]byte, error) {
	if len(p.AccountID) > 65535 {
		return nil, ledger.NewValidationErrorf("account id of %d bytes is too long to encode", len(p.AccountID))
	}
	var proof []byte
	if p.Compressed {
		proof = EncodeCompactProof(p.Compact)
	} else {
		proof = EncodeProof(p.Proof)
	}
	state := EncodeState(p.Root)

	buffer := make([]byte, 0, 3+2+len(p.AccountID)+8+hash.HashLen+2+len(state)+2+len(proof))
	buffer = appendHeader(buffer, AccountProofVersion, TypeAccountProof)
	buffer = utils.AppendShortData(buffer, []byte(p.AccountID))
	buffer = utils.AppendUint64(buffer, uint64(p.Balance))
	buffer = append(buffer, p.Leaf[:]...)
	buffer = utils.AppendShortData(buffer, state)
	buffer = utils.AppendShortData(buffer, proof)
	return buffer, nil
}

// DecodeAccountProof constructs an account proof from an encoded proof
func DecodeAccountProof(encodedProof []byte) (*AccountProof, error) {
	rest, _, err := checkHeader(encodedProof, AccountProofVersion, TypeAccountProof)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}

	id, rest, err := utils.ReadShortData(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}
	balance, rest, err := utils.ReadUint64(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}
	leaf, rest, err := utils.ReadSlice(rest, hash.HashLen)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}
	state, rest, err := utils.ReadShortData(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}
	proof, rest, err := utils.ReadShortData(rest)
	if err != nil {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %w", err)
	}
	if len(rest) != 0 {
		return nil, ledger.NewValidationErrorf("error decoding account proof: %d trailing bytes", len(rest))
	}

	p := &AccountProof{
		AccountID: string(id),
		Balance:   ledger.Balance(balance),
	}
	copy(p.Leaf[:], leaf)
	p.Root, err = DecodeState(state)
	if err != nil {
		return nil, err
	}

	// the nested proof starts with its own version and type
	if len(proof) > 2 && proof[2] == TypeCompactProof {
		p.Compressed = true
		p.Compact, err = DecodeCompactProof(proof)
	} else {
		p.Proof, err = DecodeProof(proof)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
