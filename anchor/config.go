package anchor

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultMaxAttempts bounds the number of sends of one submission.
	DefaultMaxAttempts = 4

	// DefaultMaxFeeGwei and DefaultTipCapGwei are the initial fees offered.
	DefaultMaxFeeGwei = 20
	DefaultTipCapGwei = 1

	// fees are bumped by 9/8, i.e. 12.5%, which is the minimum replacement
	// bump accepted by the external ledger's mempool.
	DefaultFeeBumpNumerator   = 9
	DefaultFeeBumpDenominator = 8

	DefaultBackoffBase   = 500 * time.Millisecond
	DefaultBackoffMax    = 10 * time.Second
	DefaultBackoffJitter = 25 // percent

	DefaultReceiptTimeout = 2 * time.Minute
)

// Config configures the anchor submitter.
type Config struct {
	MaxAttempts        uint64        `mapstructure:"max-attempts" validate:"gte=1,lte=64"`
	MaxFeeGwei         uint64        `mapstructure:"max-fee-gwei" validate:"gte=1"`
	TipCapGwei         uint64        `mapstructure:"tip-cap-gwei" validate:"ltefield=MaxFeeGwei"`
	FeeBumpNumerator   uint64        `mapstructure:"fee-bump-numerator" validate:"gtefield=FeeBumpDenominator"`
	FeeBumpDenominator uint64        `mapstructure:"fee-bump-denominator" validate:"gte=1"`
	BackoffBase        time.Duration `mapstructure:"backoff-base" validate:"gt=0"`
	BackoffMax         time.Duration `mapstructure:"backoff-max" validate:"gtefield=BackoffBase"`
	BackoffJitter      uint64        `mapstructure:"backoff-jitter" validate:"lte=100"`
	// UseSuggestedFees raises the initial fees to the ledger's suggestion
	// when the suggestion is higher than the configured fees.
	UseSuggestedFees bool          `mapstructure:"use-suggested-fees"`
	WaitForReceipt   bool          `mapstructure:"wait-for-receipt"`
	ReceiptTimeout   time.Duration `mapstructure:"receipt-timeout" validate:"required_if=WaitForReceipt true"`
}

// DefaultConfig returns the default submitter configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        DefaultMaxAttempts,
		MaxFeeGwei:         DefaultMaxFeeGwei,
		TipCapGwei:         DefaultTipCapGwei,
		FeeBumpNumerator:   DefaultFeeBumpNumerator,
		FeeBumpDenominator: DefaultFeeBumpDenominator,
		BackoffBase:        DefaultBackoffBase,
		BackoffMax:         DefaultBackoffMax,
		BackoffJitter:      DefaultBackoffJitter,
		UseSuggestedFees:   true,
		WaitForReceipt:     false,
		ReceiptTimeout:     DefaultReceiptTimeout,
	}
}

// Validate checks the configuration. The fee bump must be at least 12.5%.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid anchor config: %w", err)
	}
	if c.FeeBumpNumerator*8 < c.FeeBumpDenominator*9 {
		return fmt.Errorf("invalid anchor config: fee bump %d/%d is below 12.5%%", c.FeeBumpNumerator, c.FeeBumpDenominator)
	}
	return nil
}

// InitialFees returns the configured initial fees.
func (c Config) InitialFees() Fees {
	return GweiFees(c.MaxFeeGwei, c.TipCapGwei)
}
