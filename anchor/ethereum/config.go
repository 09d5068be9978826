package ethereum

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultGasLimit covers one anchor call writing a fresh storage slot.
	DefaultGasLimit = 200_000

	DefaultPollInterval    = 2 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// Config configures the connection to the anchor contract.
type Config struct {
	RPCURL string `mapstructure:"rpc-url" validate:"required,url"`
	// Contract is the hex address of the anchor contract
	Contract string `mapstructure:"contract" validate:"required,eth_addr"`
	// PrivateKey is the hex secp256k1 key of the sending identity
	PrivateKey string `mapstructure:"private-key" validate:"required"`
	// ChainID is requested from the node when zero
	ChainID         uint64        `mapstructure:"chain-id"`
	GasLimit        uint64        `mapstructure:"gas-limit" validate:"gte=21000"`
	PollInterval    time.Duration `mapstructure:"poll-interval" validate:"gt=0"`
	BreakerFailures uint32        `mapstructure:"breaker-failures" validate:"gte=1"`
	BreakerTimeout  time.Duration `mapstructure:"breaker-timeout" validate:"gt=0"`
}

// DefaultConfig returns a configuration with default tuning. Connection
// fields are left empty.
func DefaultConfig() Config {
	return Config{
		GasLimit:        DefaultGasLimit,
		PollInterval:    DefaultPollInterval,
		BreakerFailures: DefaultBreakerFailures,
		BreakerTimeout:  DefaultBreakerTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return fmt.Errorf("invalid ethereum config: %w", err)
	}
	return nil
}
