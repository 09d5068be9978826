package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// CreditAnchorABI is the interface of the anchor contract:
//
//	event Anchored(uint256 indexed blockId, bytes32 indexed root, address indexed caller);
//	mapping(uint256 => bytes32) public roots;
//	function anchor(uint256 blockId, bytes32 root) external returns (bool);
//
// anchor reverts with "already anchored" if roots[blockId] is set.
const CreditAnchorABI = `[
	{
		"type": "function",
		"name": "anchor",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "blockId", "type": "uint256"},
			{"name": "root", "type": "bytes32"}
		],
		"outputs": [
			{"name": "", "type": "bool"}
		]
	},
	{
		"type": "function",
		"name": "roots",
		"stateMutability": "view",
		"inputs": [
			{"name": "", "type": "uint256"}
		],
		"outputs": [
			{"name": "", "type": "bytes32"}
		]
	},
	{
		"type": "event",
		"name": "Anchored",
		"anonymous": false,
		"inputs": [
			{"name": "blockId", "type": "uint256", "indexed": true},
			{"name": "root", "type": "bytes32", "indexed": true},
			{"name": "caller", "type": "address", "indexed": true}
		]
	}
]`

const (
	methodAnchor = "anchor"
	methodRoots  = "roots"
	eventAnchor  = "Anchored"
)

var creditAnchor abi.ABI

func init() {
	var err error
	creditAnchor, err = abi.JSON(strings.NewReader(CreditAnchorABI))
	if err != nil {
		panic(fmt.Sprintf("could not parse anchor contract abi: %s", err))
	}
}

// AnchoredEvent is a decoded Anchored log.
type AnchoredEvent struct {
	BlockID *big.Int
	Root    hash.Hash
	Caller  common.Address
}

// ParseAnchored decodes an Anchored log emitted by the contract at address.
// It returns false for any other log.
func ParseAnchored(contract common.Address, log *types.Log) (*AnchoredEvent, bool) {
	if log.Address != contract || len(log.Topics) != 4 {
		return nil, false
	}
	if log.Topics[0] != creditAnchor.Events[eventAnchor].ID {
		return nil, false
	}
	return &AnchoredEvent{
		BlockID: new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Root:    hash.Hash(log.Topics[2]),
		Caller:  common.BytesToAddress(log.Topics[3].Bytes()),
	}, true
}

func packAnchor(id *big.Int, root hash.Hash) ([]byte, error) {
	data, err := creditAnchor.Pack(methodAnchor, id, [32]byte(root))
	if err != nil {
		return nil, fmt.Errorf("could not pack anchor call: %w", err)
	}
	return data, nil
}

func packRoots(id *big.Int) ([]byte, error) {
	data, err := creditAnchor.Pack(methodRoots, id)
	if err != nil {
		return nil, fmt.Errorf("could not pack roots call: %w", err)
	}
	return data, nil
}

func unpackRoots(data []byte) (hash.Hash, error) {
	values, err := creditAnchor.Unpack(methodRoots, data)
	if err != nil {
		return hash.DummyHash, fmt.Errorf("could not unpack roots result: %w", err)
	}
	if len(values) != 1 {
		return hash.DummyHash, fmt.Errorf("unexpected number of roots results: %d", len(values))
	}
	root, ok := values[0].([32]byte)
	if !ok {
		return hash.DummyHash, fmt.Errorf("unexpected roots result type %T", values[0])
	}
	return hash.Hash(root), nil
}
