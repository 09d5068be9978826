package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/h2registry/h2-registry/ledger/common/hash"
)

const (

	// codes for special database markers
	codeLatestSeq    = 10 // last assigned transaction sequence number
	codeLatestHeight = 11 // height of the latest block

	// codes for entities
	codeTransaction = 20 // seq -> transaction
	codeBlock       = 21 // block id -> block

	// codes for indexes
	codeTxHashIndex       = 30 // tx hash, seq -> seq
	codePendingIndex      = 31 // created at, seq -> seq
	codeHeightIndex       = 32 // height -> block id
	codeBlockTransactions = 33 // block id -> seqs in leaf order
)

func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := make([]byte, 1)
	prefix[0] = code
	for _, key := range keys {
		prefix = append(prefix, b(key)...)
	}
	return prefix
}

func b(v interface{}) []byte {
	switch i := v.(type) {
	case uint8:
		return []byte{i}
	case uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, i)
		return b
	case uint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, i)
		return b
	case string:
		return []byte(i)
	case hash.Hash:
		return i[:]
	case []byte:
		return i
	default:
		panic(fmt.Sprintf("unsupported type to convert (%T)", v))
	}
}
