package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/ledger/common/hash"
)

// Backend is the subset of the JSON-RPC API used by the client.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, call geth.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q geth.FilterQuery) ([]types.Log, error)
	SendRawTransaction(ctx context.Context, raw RawSignedTransaction) error
}

// RawSignedTransaction is the canonical binary encoding of a signed
// transaction, as broadcast with eth_sendRawTransaction.
type RawSignedTransaction []byte

// encodeSigned is the only producer of RawSignedTransaction.
func encodeSigned(tx *types.Transaction) (RawSignedTransaction, error) {
	if v, r, s := tx.RawSignatureValues(); v == nil || r == nil || s == nil || r.Sign() == 0 {
		return nil, fmt.Errorf("transaction %s is not signed", tx.Hash())
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("could not encode signed transaction: %w", err)
	}
	return raw, nil
}

// rpcBackend adds raw transaction broadcast to ethclient.
type rpcBackend struct {
	*ethclient.Client
	rpc *rpc.Client
}

func (b *rpcBackend) SendRawTransaction(ctx context.Context, raw RawSignedTransaction) error {
	return b.rpc.CallContext(ctx, nil, "eth_sendRawTransaction", hexutil.Encode(raw))
}

// Client implements anchor.ExternalLedger against an EVM anchor contract.
type Client struct {
	log      zerolog.Logger
	backend  Backend
	breaker  *gobreaker.CircuitBreaker
	key      *ecdsa.PrivateKey
	from     common.Address
	contract common.Address
	chainID  *big.Int
	signer   types.Signer
	gasLimit uint64
	poll     time.Duration

	// sent remembers the external id of every transaction sent, so that a
	// reverted receipt can be told apart from an occupied slot.
	mu   sync.Mutex
	sent map[common.Hash]anchor.ExternalID
}

var _ anchor.ExternalLedger = (*Client)(nil)
var _ anchor.Identity = (*Client)(nil)

// Dial connects to the JSON-RPC endpoint of the configuration.
func Dial(ctx context.Context, log zerolog.Logger, cfg Config) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", cfg.RPCURL, err)
	}
	backend := &rpcBackend{Client: ethclient.NewClient(rpcClient), rpc: rpcClient}
	client, err := NewClient(ctx, log, backend, cfg)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	return client, nil
}

// NewClient returns a client sending through backend.
func NewClient(ctx context.Context, log zerolog.Logger, backend Backend, cfg Config) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.Contract)
	}

	c := &Client{
		backend:  backend,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		contract: common.HexToAddress(cfg.Contract),
		gasLimit: cfg.GasLimit,
		poll:     cfg.PollInterval,
		sent:     make(map[common.Hash]anchor.ExternalID),
	}
	c.log = log.With().
		Str("module", "ethereum_anchor").
		Str("contract", c.contract.Hex()).
		Str("from", c.from.Hex()).
		Logger()

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "anchor-rpc",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
		// only outages trip the breaker, rejections prove the node is alive
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, anchor.ErrConnectivity)
		},
	})

	if cfg.ChainID != 0 {
		c.chainID = new(big.Int).SetUint64(cfg.ChainID)
	} else {
		err = c.call(ctx, "get chain id", func(ctx context.Context) error {
			chainID, err := backend.ChainID(ctx)
			c.chainID = chainID
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	c.signer = types.LatestSignerForChainID(c.chainID)

	return c, nil
}

// call runs f through the circuit breaker and classifies its error.
func (c *Client) call(ctx context.Context, op string, f func(ctx context.Context) error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, classify(f(ctx))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("could not %s: %w: %w", op, anchor.ErrConnectivity, err)
	}
	if err != nil {
		return fmt.Errorf("could not %s: %w", op, err)
	}
	return nil
}

// Chain returns the chain id in decimal.
func (c *Client) Chain() string {
	return c.chainID.String()
}

// Contract returns the checksummed address of the anchor contract.
func (c *Client) Contract() string {
	return c.contract.Hex()
}

// From returns the address of the sending identity.
func (c *Client) From() common.Address {
	return c.from
}

func (c *Client) PendingNonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	err := c.call(ctx, "get pending nonce", func(ctx context.Context) error {
		var err error
		nonce, err = c.backend.PendingNonceAt(ctx, c.from)
		return err
	})
	return nonce, err
}

// SuggestFees suggests a tip from the node and a max fee of twice the base
// fee of the latest block plus the tip.
func (c *Client) SuggestFees(ctx context.Context) (anchor.Fees, error) {
	var (
		tip    *big.Int
		header *types.Header
	)
	err := c.call(ctx, "suggest tip", func(ctx context.Context) error {
		var err error
		tip, err = c.backend.SuggestGasTipCap(ctx)
		return err
	})
	if err != nil {
		return anchor.Fees{}, err
	}
	err = c.call(ctx, "get latest header", func(ctx context.Context) error {
		var err error
		header, err = c.backend.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return anchor.Fees{}, err
	}

	maxFee := new(big.Int).Set(tip)
	if header.BaseFee != nil {
		maxFee.Add(maxFee, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
	}
	return anchor.NewFees(maxFee, tip)
}

func (c *Client) SendAnchor(ctx context.Context, nonce uint64, fees anchor.Fees, id anchor.ExternalID, root hash.Hash) (string, error) {
	data, err := packAnchor(id.Big(), root)
	if err != nil {
		return "", err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: fees.BigTipCap(),
		GasFeeCap: fees.BigMaxFee(),
		Gas:       c.gasLimit,
		To:        &c.contract,
		Value:     big.NewInt(0),
		Data:      data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return "", fmt.Errorf("could not sign anchor transaction: %w", err)
	}
	raw, err := encodeSigned(signed)
	if err != nil {
		return "", err
	}

	txHash := signed.Hash()
	err = c.call(ctx, "send anchor transaction", func(ctx context.Context) error {
		err := c.backend.SendRawTransaction(ctx, raw)
		if isAlreadyKnown(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.sent[txHash] = id
	c.mu.Unlock()

	c.log.Debug().
		Str("tx", txHash.Hex()).
		Uint64("nonce", nonce).
		Str("external_id", id.String()).
		Msg("anchor transaction broadcast")

	return txHash.Hex(), nil
}

// WaitConfirmed polls for the receipt of txRef until it is included or ctx
// ends.
func (c *Client) WaitConfirmed(ctx context.Context, txRef string) error {
	txHash := common.HexToHash(txRef)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := c.call(ctx, "get receipt", func(ctx context.Context) error {
			var err error
			receipt, err = c.backend.TransactionReceipt(ctx, txHash)
			if errors.Is(err, geth.NotFound) {
				receipt = nil
				return nil
			}
			return err
		})
		if err != nil && !errors.Is(err, anchor.ErrConnectivity) {
			return err
		}
		if receipt != nil {
			return c.checkReceipt(ctx, txHash, receipt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("stopped waiting for %s: %w", txRef, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) checkReceipt(ctx context.Context, txHash common.Hash, receipt *types.Receipt) error {
	c.mu.Lock()
	id, known := c.sent[txHash]
	delete(c.sent, txHash)
	c.mu.Unlock()

	if receipt.Status == types.ReceiptStatusSuccessful {
		for _, log := range receipt.Logs {
			event, ok := ParseAnchored(c.contract, log)
			if !ok {
				continue
			}
			c.log.Info().
				Str("tx", txHash.Hex()).
				Str("block_id", event.BlockID.String()).
				Str("root", event.Root.String()).
				Str("caller", event.Caller.Hex()).
				Msg("anchor confirmed")
		}
		return nil
	}

	if known {
		stored, err := c.ReadRoot(ctx, id)
		if err == nil && !stored.IsEmpty() {
			return fmt.Errorf("transaction %s reverted: %w", txHash.Hex(), anchor.ErrAlreadyAnchored)
		}
	}
	return fmt.Errorf("transaction %s: %w", txHash.Hex(), ErrReverted)
}

func (c *Client) ReadRoot(ctx context.Context, id anchor.ExternalID) (hash.Hash, error) {
	data, err := packRoots(id.Big())
	if err != nil {
		return hash.DummyHash, err
	}
	var out []byte
	err = c.call(ctx, "read anchored root", func(ctx context.Context) error {
		var err error
		out, err = c.backend.CallContract(ctx, geth.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
		return err
	})
	if err != nil {
		return hash.DummyHash, err
	}
	if len(out) == 0 {
		return hash.DummyHash, fmt.Errorf("no anchor contract at %s", c.contract.Hex())
	}
	return unpackRoots(out)
}

// AnchorRef returns the hash of the transaction that emitted the Anchored
// event for id, found by filtering contract logs on the indexed id topic.
func (c *Client) AnchorRef(ctx context.Context, id anchor.ExternalID) (string, error) {
	query := geth.FilterQuery{
		Addresses: []common.Address{c.contract},
		Topics: [][]common.Hash{
			{creditAnchor.Events[eventAnchor].ID},
			{common.BigToHash(id.Big())},
		},
	}
	var logs []types.Log
	err := c.call(ctx, "filter anchor events", func(ctx context.Context) error {
		var err error
		logs, err = c.backend.FilterLogs(ctx, query)
		return err
	})
	if err != nil {
		return "", err
	}
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		event, ok := ParseAnchored(c.contract, &logs[i])
		if !ok || event.BlockID.Cmp(id.Big()) != 0 {
			continue
		}
		return logs[i].TxHash.Hex(), nil
	}
	return "", nil
}
