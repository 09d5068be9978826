package cmd

import (
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/h2registry/h2-registry/cmd/util/cmd/common"
	"github.com/h2registry/h2-registry/ledger"
	"github.com/h2registry/h2-registry/ledger/chain"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/model/registry"
	"github.com/h2registry/h2-registry/module/irrecoverable"
	"github.com/h2registry/h2-registry/module/metrics"
	"github.com/h2registry/h2-registry/storage"
)

var (
	flagTxType      string
	flagPayload     string
	flagPayloadFile string
	flagNote        string
	flagBlockID     string
	flagHeight      uint64
	flagTxs         bool
	flagTxHash      string
)

func init() {
	rootCmd.AddCommand(appendTxCmd)
	appendTxCmd.Flags().StringVar(&flagTxType, "type", "", "the transaction type, e.g. mint or transfer")
	_ = appendTxCmd.MarkFlagRequired("type")
	appendTxCmd.Flags().StringVar(&flagPayload, "payload", "", "the json payload of the transaction")
	appendTxCmd.Flags().StringVar(&flagPayloadFile, "payload-file", "", "path to the json payload of the transaction")

	rootCmd.AddCommand(closeBlockCmd)
	closeBlockCmd.Flags().StringVar(&flagNote, "note", "", "a free text note stored with the block")

	rootCmd.AddCommand(blockCmd)
	blockCmd.Flags().StringVar(&flagBlockID, "block-id", "", "the id of the block")
	blockCmd.Flags().Uint64Var(&flagHeight, "height", 0, "the height of the block")
	blockCmd.Flags().BoolVar(&flagTxs, "txs", false, "list the transactions of the block in leaf order")

	rootCmd.AddCommand(proveTxCmd)
	proveTxCmd.Flags().StringVar(&flagTxHash, "tx-hash", "", "the hash of the transaction")
	_ = proveTxCmd.MarkFlagRequired("tx-hash")
	proveTxCmd.Flags().StringVar(&flagBlockID, "block-id", "", "the block to prove against, defaults to the sealing block")
	addFormatFlag(proveTxCmd)

	rootCmd.AddCommand(verifyTxProofCmd)
	verifyTxProofCmd.Flags().StringVar(&flagProof, "proof", "", "path to a proof produced by the prove-tx command")
	_ = verifyTxProofCmd.MarkFlagRequired("proof")
	addFormatFlag(verifyTxProofCmd)

	rootCmd.AddCommand(verifyChainCmd)
}

func initLedger() (*chain.Ledger, func()) {
	cfg := readConfig()
	db := common.InitStorage(cfg.DataDir)
	collector := metrics.NewNoopCollector()
	return common.InitLedger(db, collector, collector), func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("could not close ledger database")
		}
	}
}

type appendResult struct {
	TxHash string `json:"tx_hash"`
	Seq    uint64 `json:"seq"`
	Type   string `json:"type"`
}

var appendTxCmd = &cobra.Command{
	Use:   "append-tx",
	Short: "append a transaction to the pending log",
	Run: func(cmd *cobra.Command, args []string) {
		body := []byte(flagPayload)
		if flagPayloadFile != "" {
			var err error
			body, err = os.ReadFile(flagPayloadFile)
			if err != nil {
				log.Fatal().Err(err).Msg("could not read payload")
			}
		}
		if len(body) == 0 {
			log.Fatal().Msg("missing flags: --payload or --payload-file")
		}

		payload, err := registry.DecodePayload(registry.TxType(flagTxType), body)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid payload")
		}

		l, done := initLedger()
		defer done()

		tx, err := l.AppendPayload(cmd.Context(), payload)
		if err != nil {
			log.Fatal().Err(err).Msg("could not append transaction")
		}
		common.PrettyPrint(appendResult{
			TxHash: tx.Hash.String(),
			Seq:    tx.Seq,
			Type:   tx.Type.String(),
		})
	},
}

var closeBlockCmd = &cobra.Command{
	Use:   "close-block",
	Short: "seal every pending transaction into a new block",
	Run: func(cmd *cobra.Command, args []string) {
		l, done := initLedger()
		defer done()

		block, err := l.CloseBlock(cmd.Context(), flagNote)
		if errors.Is(err, chain.ErrNothingToClose) {
			log.Info().Msg("no pending transactions, no block closed")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not close block")
		}
		common.PrettyPrint(registry.NewBlockView(block))
	},
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "get a block by --block-id or --height, the latest block otherwise",
	Run: func(cmd *cobra.Command, args []string) {
		l, done := initLedger()
		defer done()

		var (
			block *registry.Block
			err   error
		)
		switch {
		case flagBlockID != "":
			block, err = l.Block(cmd.Context(), flagBlockID)
		case cmd.Flags().Changed("height"):
			block, err = l.BlockByHeight(cmd.Context(), flagHeight)
		default:
			block, err = l.LatestBlock(cmd.Context())
		}
		if errors.Is(err, storage.ErrNotFound) {
			log.Fatal().Msg("block not found")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not get block")
		}

		if !flagTxs {
			common.PrettyPrint(registry.NewBlockView(block))
			return
		}
		txs, err := l.BlockTransactions(cmd.Context(), block.ID)
		if err != nil {
			log.Fatal().Err(err).Msg("could not get block transactions")
		}
		common.PrettyPrint(registry.NewBlockTxsView(block.ID, txs))
	},
}

var proveTxCmd = &cobra.Command{
	Use:   "prove-tx",
	Short: "prove the inclusion of a transaction in its block",
	Run: func(cmd *cobra.Command, args []string) {
		checkFormatFlag()
		txHash, err := hash.FromHex(flagTxHash)
		if err != nil {
			log.Fatal().Err(err).Msg("malformed transaction hash")
		}

		l, done := initLedger()
		defer done()

		var view *registry.TxProofView
		if flagBlockID != "" {
			view, err = l.ProveInclusion(cmd.Context(), flagBlockID, txHash)
		} else {
			view, err = l.ProveTransaction(cmd.Context(), txHash)
		}
		if errors.Is(err, chain.ErrPending) {
			log.Fatal().Msg("transaction is not sealed in a block yet")
		}
		if errors.Is(err, storage.ErrNotFound) {
			log.Fatal().Err(err).Msg("transaction not found")
		}
		if err != nil {
			log.Fatal().Err(err).Msg("could not prove transaction")
		}
		if flagFormat == common.FormatBinary {
			bin, err := registry.NewBinaryTxProofView(view)
			if err != nil {
				log.Fatal().Err(err).Msg("could not encode proof")
			}
			common.PrettyPrint(bin)
			return
		}
		common.PrettyPrint(view)
	},
}

type txVerification struct {
	TxHash     string `json:"tx_hash"`
	MerkleRoot string `json:"merkle_root"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
}

var verifyTxProofCmd = &cobra.Command{
	Use:   "verify-tx-proof",
	Short: "verify a transaction inclusion proof against its merkle root",
	Run: func(cmd *cobra.Command, args []string) {
		checkFormatFlag()

		var (
			result txVerification
			err    error
		)
		if flagFormat == common.FormatBinary {
			var proof registry.BinaryTxProofView
			if err := common.ReadJSON(flagProof, &proof); err != nil {
				log.Fatal().Err(err).Msg("could not read proof")
			}
			result = txVerification{TxHash: proof.TxHash, MerkleRoot: proof.MerkleRoot}
			err = proof.Verify()
		} else {
			var proof registry.TxProofView
			if err := common.ReadJSON(flagProof, &proof); err != nil {
				log.Fatal().Err(err).Msg("could not read proof")
			}
			result = txVerification{TxHash: proof.TxHash, MerkleRoot: proof.MerkleRoot}
			err = proof.Verify()
		}
		if ledger.IsValidationError(err) {
			log.Fatal().Err(err).Msg("malformed proof")
		}
		result.Valid = err == nil
		if err != nil {
			result.Error = err.Error()
		}

		common.PrettyPrint(result)
		if !result.Valid {
			log.Fatal().Msg("proof does not verify")
		}
	},
}

type chainVerification struct {
	Blocks uint64 `json:"blocks"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

var verifyChainCmd = &cobra.Command{
	Use:   "verify-chain",
	Short: "recompute every block from genesis and check the hash chain",
	Run: func(cmd *cobra.Command, args []string) {
		l, done := initLedger()
		defer done()

		count, err := l.VerifyChain(cmd.Context())
		// undecodable records count as a broken chain
		broken := chain.IsIntegrityError(err) || irrecoverable.IsException(err)
		if err != nil && !broken {
			log.Fatal().Err(err).Msg("could not verify chain")
		}
		result := chainVerification{Blocks: count, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		common.PrettyPrint(result)
		if !result.OK {
			log.Fatal().Uint64("height", count).Msg("chain is broken")
		}
	},
}
