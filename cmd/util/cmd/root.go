package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/h2registry/h2-registry/cmd/util/cmd/common"
)

var (
	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "h2reg",
	Short: "inspect, prove and anchor the hydrogen credit registry",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

var RootCmd = rootCmd

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a yaml configuration file")
	rootCmd.PersistentFlags().String("data-dir", "", "directory of the ledger database")
	rootCmd.PersistentFlags().String("anchor-dir", "", "directory of the anchor record database")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	err := common.BindFlags(viper.GetViper(), rootCmd.PersistentFlags(), "data-dir", "anchor-dir", "log-level")
	if err != nil {
		log.Fatal().Err(err).Msg("could not bind flags")
	}

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	common.SetDefaults(viper.GetViper())

	common.BindEnv(viper.GetViper())

	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
		if err := viper.ReadInConfig(); err != nil {
			log.Fatal().Err(err).Str("config", flagConfig).Msg("could not read config file")
		}
	}
}

func initLogger() {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// readConfig decodes the merged flag, environment and file configuration.
func readConfig() common.Config {
	cfg, err := common.LoadConfig(viper.GetViper())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return cfg
}
