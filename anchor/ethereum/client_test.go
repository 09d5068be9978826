package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2registry/h2-registry/anchor"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/module/metrics"
	"github.com/h2registry/h2-registry/utils/unittest"
)

const testChainID = 31337

var (
	testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	testBaseFee  = big.NewInt(10 * anchor.Gwei)
	testTip      = big.NewInt(2 * anchor.Gwei)
)

// fakeBackend is an in-memory chain running the anchor contract.
type fakeBackend struct {
	mu       sync.Mutex
	nonces   map[common.Address]uint64
	roots    map[string]hash.Hash
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	sent     []*types.Transaction
	// sendErrs are returned by the next sends, in order
	sendErrs []error
	// down makes every call fail with a connection error
	down  bool
	calls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nonces:   make(map[common.Address]uint64),
		roots:    make(map[string]hash.Hash),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")

func (f *fakeBackend) enter() error {
	f.mu.Lock()
	f.calls++
	if f.down {
		return errConnRefused
	}
	return nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return big.NewInt(testChainID), nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(testTip), nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &types.Header{Number: big.NewInt(1), BaseFee: new(big.Int).Set(testBaseFee)}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, call geth.CallMsg, _ *big.Int) ([]byte, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if call.To == nil || *call.To != testContract {
		return nil, nil
	}
	method := creditAnchor.Methods[methodRoots]
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	root := f.roots[args[0].(*big.Int).String()]
	return method.Outputs.Pack([32]byte(root))
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	receipt, ok := f.receipts[txHash]
	if !ok {
		return nil, geth.NotFound
	}
	return receipt, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q geth.FilterQuery) ([]types.Log, error) {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var matched []types.Log
	for _, log := range f.logs {
		if len(q.Addresses) > 0 && log.Address != q.Addresses[0] {
			continue
		}
		match := true
		for i, alternatives := range q.Topics {
			if len(alternatives) > 0 && (i >= len(log.Topics) || log.Topics[i] != alternatives[0]) {
				match = false
			}
		}
		if match {
			matched = append(matched, log)
		}
	}
	return matched, nil
}

func (f *fakeBackend) SendRawTransaction(_ context.Context, raw RawSignedTransaction) error {
	err := f.enter()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return err
		}
	}

	var tx types.Transaction
	err = tx.UnmarshalBinary(raw)
	if err != nil {
		return err
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), &tx)
	if err != nil {
		return err
	}
	if tx.Nonce() < f.nonces[from] {
		return errors.New("nonce too low")
	}
	if tx.GasFeeCap().Cmp(testBaseFee) < 0 {
		return errors.New("max fee per gas less than block base fee")
	}
	f.nonces[from] = tx.Nonce() + 1
	f.sent = append(f.sent, &tx)

	args, err := creditAnchor.Methods[methodAnchor].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		return err
	}
	id := args[0].(*big.Int)
	root := args[1].([32]byte)

	receipt := &types.Receipt{TxHash: tx.Hash(), BlockNumber: big.NewInt(int64(len(f.sent)))}
	if _, taken := f.roots[id.String()]; taken {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		f.roots[id.String()] = root
		receipt.Status = types.ReceiptStatusSuccessful
		log := types.Log{
			Address: testContract,
			Topics: []common.Hash{
				creditAnchor.Events[eventAnchor].ID,
				common.BigToHash(id),
				common.Hash(root),
				common.BytesToHash(from.Bytes()),
			},
			TxHash:      tx.Hash(),
			BlockNumber: uint64(len(f.sent)),
		}
		f.logs = append(f.logs, log)
		receipt.Logs = []*types.Log{&log}
	}
	f.receipts[tx.Hash()] = receipt
	return nil
}

func testClientConfig(t *testing.T) Config {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RPCURL = "http://127.0.0.1:8545"
	cfg.Contract = testContract.Hex()
	cfg.PrivateKey = hex.EncodeToString(crypto.FromECDSA(key))
	cfg.PollInterval = time.Millisecond
	cfg.BreakerFailures = 3
	cfg.BreakerTimeout = time.Hour
	return cfg
}

func newTestClient(t *testing.T, backend Backend) *Client {
	cfg := testClientConfig(t)
	require.NoError(t, cfg.Validate())
	client, err := NewClient(context.Background(), unittest.Logger(), backend, cfg)
	require.NoError(t, err)
	return client
}

func TestClientSendAnchor(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	ctx := context.Background()

	assert.Equal(t, "31337", client.Chain())
	assert.Equal(t, testContract.Hex(), client.Contract())

	id := anchor.DeriveBlockID("block-1")
	root := unittest.HashFixture()

	stored, err := client.ReadRoot(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.IsEmpty())

	nonce, err := client.PendingNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	fees := anchor.GweiFees(20, 1)
	txRef, err := client.SendAnchor(ctx, nonce, fees, id, root)
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, txRef, tx.Hash().Hex())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(DefaultGasLimit), tx.Gas())
	assert.Equal(t, fees.BigMaxFee(), tx.GasFeeCap())
	assert.Equal(t, fees.BigTipCap(), tx.GasTipCap())
	assert.Equal(t, testContract, *tx.To())
	assert.Equal(t, big.NewInt(testChainID), tx.ChainId())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, client.From(), from)

	stored, err = client.ReadRoot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, root, stored)

	require.NoError(t, client.WaitConfirmed(ctx, txRef))
}

func TestClientSuggestFees(t *testing.T) {
	client := newTestClient(t, newFakeBackend())

	fees, err := client.SuggestFees(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "22000000000", fees.BigMaxFee().String())
	assert.Equal(t, testTip, fees.BigTipCap())
}

func TestClientClassifiesRejections(t *testing.T) {
	ctx := context.Background()
	id := anchor.DeriveBlockID("block-1")

	t.Run("already known is success", func(t *testing.T) {
		backend := newFakeBackend()
		backend.sendErrs = []error{errors.New("already known")}
		client := newTestClient(t, backend)

		txRef, err := client.SendAnchor(ctx, 0, anchor.GweiFees(20, 1), id, unittest.HashFixture())
		require.NoError(t, err)
		assert.NotEmpty(t, txRef)
	})

	t.Run("stale nonce", func(t *testing.T) {
		backend := newFakeBackend()
		client := newTestClient(t, backend)
		backend.nonces[client.From()] = 5

		_, err := client.SendAnchor(ctx, 4, anchor.GweiFees(20, 1), id, unittest.HashFixture())
		assert.ErrorIs(t, err, anchor.ErrSequenceConflict)
	})

	t.Run("below base fee", func(t *testing.T) {
		client := newTestClient(t, newFakeBackend())

		_, err := client.SendAnchor(ctx, 0, anchor.GweiFees(1, 1), id, unittest.HashFixture())
		assert.ErrorIs(t, err, anchor.ErrUnderpriced)
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err      error
		expected error
	}{
		{errors.New("nonce too low"), anchor.ErrSequenceConflict},
		{errors.New("replacement transaction underpriced"), anchor.ErrUnderpriced},
		{errors.New("transaction underpriced: tip needed 1, tip permitted 0"), anchor.ErrUnderpriced},
		{errors.New("max fee per gas less than block base fee: address 0x, maxFeePerGas: 1, baseFee: 7"), anchor.ErrUnderpriced},
		{errors.New("execution reverted: already anchored"), anchor.ErrAlreadyAnchored},
		{errConnRefused, anchor.ErrConnectivity},
		{fmt.Errorf("post: %w", errors.New("unexpected EOF")), anchor.ErrConnectivity},
		{errors.New(`Post "http://127.0.0.1:8545": EOF`), anchor.ErrConnectivity},
		{rpc.HTTPError{StatusCode: 503, Status: "503 Service Unavailable"}, anchor.ErrConnectivity},
		{rpc.HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}, anchor.ErrConnectivity},
		{gobreaker.ErrOpenState, anchor.ErrConnectivity},
	}
	for _, c := range cases {
		t.Run(c.err.Error(), func(t *testing.T) {
			classified := classify(c.err)
			assert.ErrorIs(t, classified, c.expected)
			assert.Contains(t, classified.Error(), c.err.Error())
		})
	}

	t.Run("unclassified", func(t *testing.T) {
		err := errors.New("insufficient funds for gas * price + value")
		classified := classify(err)
		assert.Equal(t, err, classified)
		assert.NoError(t, classify(nil))
		assert.NotErrorIs(t, classify(rpc.HTTPError{StatusCode: 400}), anchor.ErrConnectivity)
		assert.NotErrorIs(t, classify(context.Canceled), anchor.ErrConnectivity)
	})

	t.Run("eof inside a word is not an outage", func(t *testing.T) {
		for _, msg := range []string{
			"execution reverted: geofence violation",
			"invalid argument 0: hex string without 0x prefix: 0xeofe",
		} {
			err := errors.New(msg)
			assert.Equal(t, err, classify(err), msg)
		}
	})
}

func TestClientCircuitBreaker(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	ctx := context.Background()

	backend.mu.Lock()
	backend.down = true
	backend.calls = 0
	backend.mu.Unlock()

	// three consecutive outages trip the breaker
	for i := 0; i < 3; i++ {
		_, err := client.PendingNonce(ctx)
		require.ErrorIs(t, err, anchor.ErrConnectivity)
	}

	_, err := client.PendingNonce(ctx)
	require.ErrorIs(t, err, anchor.ErrConnectivity)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, backend.calls)
}

func TestClientRejectionsDoNotTripBreaker(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.SendAnchor(ctx, 0, anchor.GweiFees(1, 1), anchor.DeriveBlockID("block-1"), unittest.HashFixture())
		require.ErrorIs(t, err, anchor.ErrUnderpriced)
	}
	_, err := client.PendingNonce(ctx)
	assert.NoError(t, err)
}

func TestWaitConfirmedReverted(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	ctx := context.Background()
	id := anchor.DeriveBlockID("block-1")
	fees := anchor.GweiFees(20, 1)

	first, err := client.SendAnchor(ctx, 0, fees, id, unittest.HashFixture())
	require.NoError(t, err)
	require.NoError(t, client.WaitConfirmed(ctx, first))

	// the fake includes the second transaction, but the contract reverts it
	second, err := client.SendAnchor(ctx, 1, fees, id, unittest.HashFixture())
	require.NoError(t, err)
	err = client.WaitConfirmed(ctx, second)
	assert.ErrorIs(t, err, anchor.ErrAlreadyAnchored)

	// a reverted transaction we did not send cannot be explained
	backend.receipts[common.HexToHash("0x01")] = &types.Receipt{Status: types.ReceiptStatusFailed}
	err = client.WaitConfirmed(ctx, "0x01")
	assert.ErrorIs(t, err, ErrReverted)
}

func TestClientAnchorRef(t *testing.T) {
	backend := newFakeBackend()
	client := newTestClient(t, backend)
	ctx := context.Background()
	id := anchor.DeriveBlockID("block-1")
	fees := anchor.GweiFees(20, 1)

	ref, err := client.AnchorRef(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, ref)

	first, err := client.SendAnchor(ctx, 0, fees, id, unittest.HashFixture())
	require.NoError(t, err)
	_, err = client.SendAnchor(ctx, 1, fees, anchor.DeriveBlockID("block-2"), unittest.HashFixture())
	require.NoError(t, err)
	// reverted by the contract, no event
	_, err = client.SendAnchor(ctx, 2, fees, id, unittest.HashFixture())
	require.NoError(t, err)

	ref, err = client.AnchorRef(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, ref)

	backend.mu.Lock()
	backend.down = true
	backend.mu.Unlock()
	_, err = client.AnchorRef(ctx, id)
	assert.ErrorIs(t, err, anchor.ErrConnectivity)
}

func TestWaitConfirmedCancelled(t *testing.T) {
	client := newTestClient(t, newFakeBackend())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := client.WaitConfirmed(ctx, common.HexToHash("0x02").Hex())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEncodeSigned(t *testing.T) {
	tx := types.NewTx(&types.DynamicFeeTx{ChainID: big.NewInt(testChainID), To: &testContract})
	_, err := encodeSigned(tx)
	assert.Error(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(testChainID)), key)
	require.NoError(t, err)

	raw, err := encodeSigned(signed)
	require.NoError(t, err)

	var decoded types.Transaction
	require.NoError(t, decoded.UnmarshalBinary(raw))
	assert.Equal(t, signed.Hash(), decoded.Hash())
}

func TestParseAnchored(t *testing.T) {
	id := anchor.DeriveBlockID("block-1")
	root := unittest.HashFixture()
	caller := common.HexToAddress("0xe67Ec73c5331859927Ee959cFA0aCCc94c55AF03")

	log := &types.Log{
		Address: testContract,
		Topics: []common.Hash{
			creditAnchor.Events[eventAnchor].ID,
			common.BigToHash(id.Big()),
			common.Hash(root),
			common.BytesToHash(caller.Bytes()),
		},
	}
	event, ok := ParseAnchored(testContract, log)
	require.True(t, ok)
	assert.Equal(t, id.Big(), event.BlockID)
	assert.Equal(t, root, event.Root)
	assert.Equal(t, caller, event.Caller)

	_, ok = ParseAnchored(common.HexToAddress("0x01"), log)
	assert.False(t, ok)
}

// TestSubmitterAgainstContract runs the submit loop against the fake chain,
// with a node rejecting the first send as underpriced.
func TestSubmitterAgainstContract(t *testing.T) {
	backend := newFakeBackend()
	backend.sendErrs = []error{errors.New("replacement transaction underpriced")}
	client := newTestClient(t, backend)

	cfg := anchor.DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = time.Millisecond
	cfg.WaitForReceipt = true
	submitter, err := anchor.NewSubmitter(unittest.Logger(), metrics.NewNoopCollector(), client, cfg)
	require.NoError(t, err)

	root := unittest.HashFixture()
	id := anchor.DeriveBlockID("block-1")

	receipt, err := submitter.Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Attempts)
	assert.Equal(t, uint64(0), receipt.Nonce)
	assert.True(t, receipt.Confirmed)
	// suggested 22 gwei max fee, bumped once
	assert.Equal(t, "24750000000", receipt.Fees.BigMaxFee().String())

	again, err := submitter.Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.True(t, again.AlreadyAnchored)
	assert.Equal(t, receipt.TxRef, again.TxRef)
	assert.Len(t, backend.sent, 1)

	// a restarted submitter recovers the reference from the contract events
	restarted, err := anchor.NewSubmitter(unittest.Logger(), metrics.NewNoopCollector(), client, cfg)
	require.NoError(t, err)
	recovered, err := restarted.Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.True(t, recovered.AlreadyAnchored)
	assert.Equal(t, receipt.TxRef, recovered.TxRef)
}
