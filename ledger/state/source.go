package state

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/h2registry/h2-registry/ledger"
)

// BalanceSource provides the account balances of one snapshot.
type BalanceSource interface {
	Balances(ctx context.Context) (map[string]ledger.Balance, error)
}

// FileSource reads a balance snapshot from a YAML or JSON file mapping
// account ids to balances in grams.
type FileSource struct {
	Path string
}

var _ BalanceSource = (*FileSource)(nil)

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (f *FileSource) Balances(_ context.Context) (map[string]ledger.Balance, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read balance snapshot: %w", err)
	}
	balances, err := ParseBalances(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse balance snapshot %s: %w", f.Path, err)
	}
	return balances, nil
}

// ParseBalances decodes a YAML or JSON balance mapping. Negative, fractional,
// non numeric and out of range balances are rejected with a ValidationError.
// Balances are bounded by ledger.MaxBalance.
func ParseBalances(data []byte) (map[string]ledger.Balance, error) {
	// scalars are kept as text, yaml truncates floats into unsigned fields
	var raw map[string]string
	err := yaml.UnmarshalStrict(data, &raw)
	if err != nil {
		return nil, ledger.NewValidationErrorf("invalid balance snapshot: %w", err)
	}
	balances := make(map[string]ledger.Balance, len(raw))
	for id, text := range raw {
		if id == "" {
			return nil, ledger.NewValidationErrorf("empty account id")
		}
		b, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return nil, ledger.NewValidationErrorf("invalid balance %q of account %s (want an integer in [0, %d]): %w", text, id, uint64(ledger.MaxBalance), err)
		}
		balances[id] = ledger.Balance(b)
	}
	return balances, nil
}

// StaticSource serves a fixed set of balances.
type StaticSource map[string]ledger.Balance

func (s StaticSource) Balances(_ context.Context) (map[string]ledger.Balance, error) {
	return s, nil
}
