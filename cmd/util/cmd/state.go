package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/h2registry/h2-registry/cmd/util/cmd/common"
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/state"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module/metrics"
)

var (
	flagBalances string
	flagAccount  string
	flagCompact  bool
	flagProof    string
	flagOutput   string
	flagFormat   string
)

func init() {
	rootCmd.AddCommand(stateRootCmd)
	addBalancesFlag(stateRootCmd)

	rootCmd.AddCommand(proveCmd)
	addBalancesFlag(proveCmd)
	proveCmd.Flags().StringVar(&flagAccount, "account", "", "the account id to prove")
	_ = proveCmd.MarkFlagRequired("account")
	proveCmd.Flags().BoolVar(&flagCompact, "compact", false, "omit the default siblings of the proof")
	addFormatFlag(proveCmd)

	rootCmd.AddCommand(verifyStateProofCmd)
	verifyStateProofCmd.Flags().StringVar(&flagProof, "proof", "", "path to a proof produced by the prove command")
	_ = verifyStateProofCmd.MarkFlagRequired("proof")
	verifyStateProofCmd.Flags().BoolVar(&flagCompact, "compact", false, "the proof is compact, ignored for binary proofs")
	addFormatFlag(verifyStateProofCmd)

	rootCmd.AddCommand(exportProofsCmd)
	addBalancesFlag(exportProofsCmd)
	exportProofsCmd.Flags().StringVar(&flagOutput, "output", "proofs.json", "path of the exported proofs")
}

func addBalancesFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBalances, "balances", "", "path to a yaml or json balance snapshot")
	_ = cmd.MarkFlagRequired("balances")
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagFormat, "format", common.FormatJSON, "proof format, json or binary")
}

func checkFormatFlag() {
	if err := common.CheckFormat(flagFormat); err != nil {
		log.Fatal().Err(err).Msg("invalid --format")
	}
}

func loadSnapshot(ctx context.Context) *state.Snapshot {
	balances, err := state.NewFileSource(flagBalances).Balances(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("could not load balances")
	}
	return state.NewSnapshot(log.Logger, metrics.NewNoopCollector(), balances)
}

var stateRootCmd = &cobra.Command{
	Use:   "state-root",
	Short: "compute the state root of a balance snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		common.PrettyPrint(loadSnapshot(cmd.Context()).RootView())
	},
}

var proveCmd = &cobra.Command{
	Use:   "prove",
	Short: "prove the balance of --account against the state root of --balances",
	Run: func(cmd *cobra.Command, args []string) {
		checkFormatFlag()
		snapshot := loadSnapshot(cmd.Context())
		if flagFormat == common.FormatBinary {
			view, err := registry.NewBinaryStateProofView(snapshot.Prove(flagAccount), flagCompact)
			if err != nil {
				log.Fatal().Err(err).Msg("could not encode proof")
			}
			common.PrettyPrint(view)
			return
		}
		if flagCompact {
			common.PrettyPrint(snapshot.ProveCompact(flagAccount))
			return
		}
		common.PrettyPrint(snapshot.Prove(flagAccount))
	},
}

type verifyResult struct {
	AccountID string `json:"account_id"`
	StateRoot string `json:"state_root"`
	Valid     bool   `json:"valid"`
}

var verifyStateProofCmd = &cobra.Command{
	Use:   "verify-state-proof",
	Short: "verify a balance proof against its state root",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			result verifyResult
			err    error
		)
		checkFormatFlag()
		switch {
		case flagFormat == common.FormatBinary:
			var proof registry.BinaryStateProofView
			if err := common.ReadJSON(flagProof, &proof); err != nil {
				log.Fatal().Err(err).Msg("could not read proof")
			}
			result = verifyResult{AccountID: proof.AccountID, StateRoot: proof.StateRoot}
			result.Valid, err = proof.Verify()
		case flagCompact:
			var proof registry.CompactStateProofView
			if err := common.ReadJSON(flagProof, &proof); err != nil {
				log.Fatal().Err(err).Msg("could not read proof")
			}
			result = verifyResult{AccountID: proof.AccountID, StateRoot: proof.StateRoot}
			result.Valid, err = proof.Verify()
		default:
			var proof registry.StateProofView
			if err := common.ReadJSON(flagProof, &proof); err != nil {
				log.Fatal().Err(err).Msg("could not read proof")
			}
			result = verifyResult{AccountID: proof.AccountID, StateRoot: proof.StateRoot}
			result.Valid, err = proof.Verify()
		}
		if ledger.IsValidationError(err) {
			log.Fatal().Err(err).Msg("malformed proof")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not verify proof")
		}

		common.PrettyPrint(result)
		if !result.Valid {
			log.Fatal().Msg("proof does not verify")
		}
	},
}

type proofExport struct {
	Root   registry.StateRootView     `json:"root"`
	Proofs []*registry.StateProofView `json:"proofs"`
}

var exportProofsCmd = &cobra.Command{
	Use:   "export-proofs",
	Short: "prove every account of a balance snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		snapshot := loadSnapshot(cmd.Context())

		bar := progressbar.Default(int64(len(snapshot.Accounts())), "proving")
		proofs, err := snapshot.ProveAll(cmd.Context(), func() {
			_ = bar.Add(1)
		})
		if err != nil {
			log.Fatal().Err(err).Msg("could not prove accounts")
		}
		_ = bar.Finish()

		err = common.WriteJSON(flagOutput, proofExport{
			Root:   snapshot.RootView(),
			Proofs: proofs,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("could not export proofs")
		}
		log.Info().
			Int("proofs", len(proofs)).
			Str("output", flagOutput).
			Msg("proofs exported")
	},
}
