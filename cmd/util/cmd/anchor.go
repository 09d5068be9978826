package cmd

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/anchor/ethereum"
	"github.com/h2registry/h2-registry/anchor/service"
	"github.com/h2registry/h2-registry/cmd/util/cmd/common"
	"github.com/h2registry/h2-registry/ledger/chain"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/ledger/state"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module/metrics"
	"github.com/h2registry/h2-registry/storage"
)

var (
	flagExternalID string
	flagRoot       string
)

func init() {
	rootCmd.AddCommand(anchorStateCmd)
	addBalancesFlag(anchorStateCmd)

	rootCmd.AddCommand(anchorBlockCmd)
	anchorBlockCmd.Flags().StringVar(&flagBlockID, "block-id", "", "the id of the block, defaults to the latest block")

	rootCmd.AddCommand(verifyAnchorCmd)
	verifyAnchorCmd.Flags().StringVar(&flagExternalID, "external-id", "", "the decimal external id the root is anchored under")
	verifyAnchorCmd.Flags().StringVar(&flagBlockID, "block-id", "", "derive the external id from a block id")
	verifyAnchorCmd.Flags().StringVar(&flagRoot, "root", "", "the expected root, hex")
	_ = verifyAnchorCmd.MarkFlagRequired("root")

	rootCmd.AddCommand(anchorsCmd)
}

// initAnchorer connects to the external ledger and opens both databases.
func initAnchorer(ctx context.Context) (*service.Anchorer, *chain.Ledger, func()) {
	cfg := readConfig()
	collectors := metrics.NewNoopCollectors()

	if err := cfg.Ethereum.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid ethereum configuration")
	}
	client, err := ethereum.Dial(ctx, log.Logger, cfg.Ethereum)
	if err != nil {
		log.Fatal().Err(err).Msg("could not connect to the external ledger")
	}
	submitter, err := anchor.NewSubmitter(log.Logger, collectors.Anchor, client, cfg.Anchor)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create anchor submitter")
	}

	db := common.InitStorage(cfg.DataDir)
	l := common.InitLedger(db, collectors.Cache, collectors.Ledger)
	records, pdb := common.InitAnchorRecords(cfg.AnchorDir)

	return service.NewAnchorer(log.Logger, submitter, client, l, records), l, func() {
		err := multierr.Combine(db.Close(), pdb.Close())
		if err != nil {
			log.Error().Err(err).Msg("could not close databases")
		}
	}
}

func fatalAnchor(err error, msg string) {
	if anchor.IsExhaustedError(err) {
		log.Fatal().Err(err).Msg(msg + ": external ledger kept rejecting the anchor")
	}
	if errors.Is(err, service.ErrRootMismatch) {
		log.Fatal().Err(err).Msg(msg + ": external id holds a different root")
	}
	log.Fatal().Err(err).Msg(msg)
}

var anchorStateCmd = &cobra.Command{
	Use:   "anchor-state",
	Short: "anchor the state root of a balance snapshot",
	Run: func(cmd *cobra.Command, args []string) {
		balances, err := state.NewFileSource(flagBalances).Balances(cmd.Context())
		if err != nil {
			log.Fatal().Err(err).Msg("could not load balances")
		}

		anchorer, _, done := initAnchorer(cmd.Context())
		defer done()

		record, err := anchorer.AnchorState(cmd.Context(), balances)
		if err != nil {
			fatalAnchor(err, "could not anchor state root")
		}
		common.PrettyPrint(registry.NewAnchorReceiptView(record))
	},
}

var anchorBlockCmd = &cobra.Command{
	Use:   "anchor-block",
	Short: "anchor the merkle root of a block",
	Run: func(cmd *cobra.Command, args []string) {
		anchorer, l, done := initAnchorer(cmd.Context())
		defer done()

		blockID := flagBlockID
		if blockID == "" {
			latest, err := l.LatestBlock(cmd.Context())
			if errors.Is(err, storage.ErrNotFound) {
				log.Fatal().Msg("no block to anchor")
			}
			if err != nil {
				log.Fatal().Err(err).Msg("could not get latest block")
			}
			blockID = latest.ID
		}

		record, err := anchorer.AnchorBlock(cmd.Context(), blockID)
		if err != nil {
			fatalAnchor(err, "could not anchor block")
		}
		common.PrettyPrint(registry.NewAnchorReceiptView(record))
	},
}

var verifyAnchorCmd = &cobra.Command{
	Use:   "verify-anchor",
	Short: "compare the root anchored under --external-id or --block-id with --root",
	Run: func(cmd *cobra.Command, args []string) {
		var (
			id  anchor.ExternalID
			err error
		)
		switch {
		case flagExternalID != "":
			id, err = anchor.ParseExternalID(flagExternalID)
			if err != nil {
				log.Fatal().Err(err).Msg("malformed external id")
			}
		case flagBlockID != "":
			id = anchor.DeriveBlockID(flagBlockID)
		default:
			log.Fatal().Msg("missing flags: --external-id or --block-id")
		}
		root, err := hash.FromHex(flagRoot)
		if err != nil {
			log.Fatal().Err(err).Msg("malformed root")
		}

		anchorer, _, done := initAnchorer(cmd.Context())
		defer done()

		verification, err := anchorer.VerifyAnchor(cmd.Context(), id, root)
		if err != nil {
			log.Fatal().Err(err).Msg("could not verify anchor")
		}
		common.PrettyPrint(verification)
		if !verification.Match {
			log.Fatal().Msg("anchored root does not match")
		}
	},
}

var anchorsCmd = &cobra.Command{
	Use:   "anchors",
	Short: "list the recorded anchors",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		records, db := common.InitAnchorRecords(cfg.AnchorDir)
		defer db.Close()

		all, err := records.All()
		if err != nil {
			log.Fatal().Err(err).Msg("could not list anchors")
		}
		views := make([]*registry.AnchorReceiptView, len(all))
		for i, r := range all {
			views[i] = registry.NewAnchorReceiptView(r)
		}
		common.PrettyPrint(views)
	},
}
