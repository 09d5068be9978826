package logging

import (
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Hash returns the lower-case hex encoding of h, without prefix.
func Hash(h hash.Hash) string {
	return h.String()
}

// Hashes returns the hex encodings of hs.
func Hashes(hs []hash.Hash) []string {
	ss := make([]string, 0, len(hs))
	for _, h := range hs {
		ss = append(ss, h.String())
	}
	return ss
}

// Short returns the first 8 hex characters of h, for log lines listing many
// hashes.
func Short(h hash.Hash) string {
	return h.String()[:8]
}
