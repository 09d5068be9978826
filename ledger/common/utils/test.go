package utils

import (
	"encoding/binary"
	"math/rand"

	"github.com/h2registry/h2-registry/ledger"
)

// KeyByUint16 returns a key (32 bytes) given a uint16 (big endian)
func KeyByUint16(inp uint16) ledger.Key {
	var k ledger.Key
	binary.BigEndian.PutUint16(k[:], inp)
	return k
}

// KeyByUint16LeftPadded returns a key (32 bytes) given a uint16 (left padded big endian)
func KeyByUint16LeftPadded(inp uint16) ledger.Key {
	var k ledger.Key
	binary.BigEndian.PutUint16(k[ledger.KeyLen-2:], inp)
	return k
}

// RandomKeys returns n random keys. Keys are not guaranteed to be unique.
func RandomKeys(n int) []ledger.Key {
	keys := make([]ledger.Key, n)
	for i := range keys {
		_, err := rand.Read(keys[i][:])
		if err != nil {
			panic("randomness failed")
		}
	}
	return keys
}

// RandomBalances returns n random keys holding a balance in [1, max]
func RandomBalances(n int, max uint64) map[ledger.Key]ledger.Balance {
	balances := make(map[ledger.Key]ledger.Balance, n)
	for _, k := range RandomKeys(n) {
		balances[k] = ledger.Balance(rand.Uint64()%max + 1)
	}
	return balances
}
