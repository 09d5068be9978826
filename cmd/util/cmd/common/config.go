package common

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/anchor/ethereum"
)

// EnvPrefix prefixes the environment variables read by the registry tool.
const EnvPrefix = "H2REG"

// Config is the configuration of the registry tool. Every key can be set
// with a flag, a H2REG_ prefixed environment variable or the config file,
// e.g. ethereum.rpc-url is read from H2REG_ETHEREUM_RPC_URL.
type Config struct {
	DataDir   string          `mapstructure:"data-dir"`
	AnchorDir string          `mapstructure:"anchor-dir"`
	LogLevel  string          `mapstructure:"log-level"`
	Anchor    anchor.Config   `mapstructure:"anchor"`
	Ethereum  ethereum.Config `mapstructure:"ethereum"`
}

// SetDefaults registers every configuration key with its default value.
// Keys unknown to viper are not read from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data-dir", "")
	v.SetDefault("anchor-dir", "")
	v.SetDefault("log-level", "info")

	a := anchor.DefaultConfig()
	v.SetDefault("anchor.max-attempts", a.MaxAttempts)
	v.SetDefault("anchor.max-fee-gwei", a.MaxFeeGwei)
	v.SetDefault("anchor.tip-cap-gwei", a.TipCapGwei)
	v.SetDefault("anchor.fee-bump-numerator", a.FeeBumpNumerator)
	v.SetDefault("anchor.fee-bump-denominator", a.FeeBumpDenominator)
	v.SetDefault("anchor.backoff-base", a.BackoffBase)
	v.SetDefault("anchor.backoff-max", a.BackoffMax)
	v.SetDefault("anchor.backoff-jitter", a.BackoffJitter)
	v.SetDefault("anchor.use-suggested-fees", a.UseSuggestedFees)
	v.SetDefault("anchor.wait-for-receipt", a.WaitForReceipt)
	v.SetDefault("anchor.receipt-timeout", a.ReceiptTimeout)

	e := ethereum.DefaultConfig()
	v.SetDefault("ethereum.rpc-url", e.RPCURL)
	v.SetDefault("ethereum.contract", e.Contract)
	v.SetDefault("ethereum.private-key", e.PrivateKey)
	v.SetDefault("ethereum.chain-id", e.ChainID)
	v.SetDefault("ethereum.gas-limit", e.GasLimit)
	v.SetDefault("ethereum.poll-interval", e.PollInterval)
	v.SetDefault("ethereum.breaker-failures", e.BreakerFailures)
	v.SetDefault("ethereum.breaker-timeout", e.BreakerTimeout)
}

// BindEnv reads every configuration key from EnvPrefix_ environment
// variables, with dots and dashes replaced by underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// BindFlags binds the named flags of the set to the configuration keys of the
// same name. A flag only overrides the key when it is set.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		err := v.BindPFlag(name, flag)
		if err != nil {
			return fmt.Errorf("could not bind flag %q: %w", name, err)
		}
	}
	return nil
}

// LoadConfig decodes the merged flag, environment and file configuration.
func LoadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Config{}, fmt.Errorf("could not decode configuration: %w", err)
	}
	return cfg, nil
}
