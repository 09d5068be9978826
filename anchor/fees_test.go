package anchor_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/h2registry/h2-registry/anchor"
)

func TestFeesBump(t *testing.T) {
	fees := anchor.GweiFees(20, 1)
	assert.Equal(t, "20000000000", fees.BigMaxFee().String())
	assert.Equal(t, "1000000000", fees.BigTipCap().String())

	bumped := fees.Bump(anchor.DefaultFeeBumpNumerator, anchor.DefaultFeeBumpDenominator)
	assert.Equal(t, "22500000000", bumped.BigMaxFee().String())
	assert.Equal(t, "1125000000", bumped.BigTipCap().String())

	// rounds up, and always grows
	small, err := anchor.NewFees(big.NewInt(9), big.NewInt(0))
	require.NoError(t, err)
	bumped = small.Bump(9, 8)
	assert.Equal(t, "11", bumped.BigMaxFee().String())
	assert.Equal(t, "1", bumped.BigTipCap().String())
}

func TestFeesBumpProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxFee := rapid.Uint64().Draw(t, "maxFee")
		tip := rapid.Uint64Max(maxFee).Draw(t, "tip")
		fees, err := anchor.NewFees(new(big.Int).SetUint64(maxFee), new(big.Int).SetUint64(tip))
		require.NoError(t, err)

		bumped := fees.Bump(9, 8)

		// bumped*8 >= original*9 and bumped > original
		for _, pair := range [][2]*big.Int{
			{fees.BigMaxFee(), bumped.BigMaxFee()},
			{fees.BigTipCap(), bumped.BigTipCap()},
		} {
			before, after := pair[0], pair[1]
			require.Equal(t, 1, after.Cmp(before))
			lhs := new(big.Int).Mul(after, big.NewInt(8))
			rhs := new(big.Int).Mul(before, big.NewInt(9))
			require.True(t, lhs.Cmp(rhs) >= 0)
		}
	})
}

func TestFeesCover(t *testing.T) {
	configured := anchor.GweiFees(20, 1)
	suggested := anchor.GweiFees(10, 2)

	covered := configured.Cover(suggested)
	assert.Equal(t, configured.BigMaxFee(), covered.BigMaxFee())
	assert.Equal(t, suggested.BigTipCap(), covered.BigTipCap())
}

func TestNewFeesInvalid(t *testing.T) {
	_, err := anchor.NewFees(big.NewInt(-1), big.NewInt(0))
	assert.Error(t, err)

	_, err = anchor.NewFees(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(0))
	assert.Error(t, err)

	_, err = anchor.NewFees(nil, big.NewInt(0))
	assert.Error(t, err)
}
