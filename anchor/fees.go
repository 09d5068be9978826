package anchor

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Gwei is the number of wei in one gwei.
const Gwei = 1_000_000_000

// Fees are the EIP-1559 fee parameters of an anchor transaction, in wei.
type Fees struct {
	MaxFee uint256.Int
	TipCap uint256.Int
}

// GweiFees builds fees from gwei amounts.
func GweiFees(maxFeeGwei, tipCapGwei uint64) Fees {
	var f Fees
	f.MaxFee.Mul(uint256.NewInt(maxFeeGwei), uint256.NewInt(Gwei))
	f.TipCap.Mul(uint256.NewInt(tipCapGwei), uint256.NewInt(Gwei))
	return f
}

// NewFees builds fees from wei amounts. Amounts above 2^256 are rejected.
func NewFees(maxFee, tipCap *big.Int) (Fees, error) {
	var f Fees
	if maxFee == nil || tipCap == nil || maxFee.Sign() < 0 || tipCap.Sign() < 0 {
		return f, fmt.Errorf("fees must be non-negative")
	}
	m, overflow := uint256.FromBig(maxFee)
	if overflow {
		return f, fmt.Errorf("max fee overflows 256 bits")
	}
	t, overflow := uint256.FromBig(tipCap)
	if overflow {
		return f, fmt.Errorf("tip cap overflows 256 bits")
	}
	f.MaxFee = *m
	f.TipCap = *t
	return f, nil
}

// Bump raises both fees by the factor num/den, rounding up. Every fee grows by
// at least one wei, so a replacement is always strictly more expensive.
func (f Fees) Bump(num, den uint64) Fees {
	return Fees{
		MaxFee: bump(f.MaxFee, num, den),
		TipCap: bump(f.TipCap, num, den),
	}
}

func bump(v uint256.Int, num, den uint64) uint256.Int {
	var out, rem uint256.Int
	n := uint256.NewInt(num)
	d := uint256.NewInt(den)
	out.Mul(&v, n)
	rem.Mod(&out, d)
	out.Div(&out, d)
	if !rem.IsZero() {
		out.AddUint64(&out, 1)
	}
	if out.Cmp(&v) <= 0 {
		out.AddUint64(&v, 1)
	}
	return out
}

// Cover returns fees at least as high as both f and other, field by field.
func (f Fees) Cover(other Fees) Fees {
	out := f
	if other.MaxFee.Gt(&out.MaxFee) {
		out.MaxFee = other.MaxFee
	}
	if other.TipCap.Gt(&out.TipCap) {
		out.TipCap = other.TipCap
	}
	return out
}

// BigMaxFee returns the max fee per gas as big.Int.
func (f Fees) BigMaxFee() *big.Int {
	return f.MaxFee.ToBig()
}

// BigTipCap returns the priority fee per gas as big.Int.
func (f Fees) BigTipCap() *big.Int {
	return f.TipCap.ToBig()
}

func (f Fees) String() string {
	return fmt.Sprintf("max_fee=%s tip=%s", f.MaxFee.ToBig().String(), f.TipCap.ToBig().String())
}
