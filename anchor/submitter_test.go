package anchor_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/h2registry/h2-registry/anchor"
	anchormock "github.com/h2registry/h2-registry/anchor/mock"
	"github.com/h2registry/h2-registry/ledger/common/hash"
	"github.com/h2registry/h2-registry/module/metrics"
	"github.com/h2registry/h2-registry/utils/unittest"
)

func testConfig() anchor.Config {
	cfg := anchor.DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	cfg.UseSuggestedFees = false
	return cfg
}

func newSubmitter(t *testing.T, ledger anchor.ExternalLedger, cfg anchor.Config) *anchor.Submitter {
	s, err := anchor.NewSubmitter(unittest.Logger(), metrics.NewNoopCollector(), ledger, cfg)
	require.NoError(t, err)
	return s
}

func TestSubmit(t *testing.T) {
	root := unittest.HashFixture()
	id := anchor.DeriveBlockID("block-1")
	initial := testConfig().InitialFees()
	bumped := initial.Bump(9, 8)

	t.Run("happy path", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(7), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(7), initial, id, root).Return("0xabc", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.Equal(t, "0xabc", receipt.TxRef)
		assert.Equal(t, uint64(7), receipt.Nonce)
		assert.Equal(t, 1, receipt.Attempts)
		assert.Equal(t, root, receipt.Root)
		assert.False(t, receipt.AlreadyAnchored)
		assert.False(t, receipt.Confirmed)
	})

	t.Run("already anchored before send", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(root, nil).Once()
		ledger.On("AnchorRef", mock.Anything, id).Return("0xdef", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyAnchored)
		assert.Equal(t, root, receipt.Root)
		assert.Equal(t, "0xdef", receipt.TxRef)
		ledger.AssertNotCalled(t, "SendAnchor", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("slot holds another root", func(t *testing.T) {
		other := unittest.HashFixture()
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(other, nil).Once()
		ledger.On("AnchorRef", mock.Anything, id).Return("0x9", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyAnchored)
		assert.Equal(t, other, receipt.Root)
		assert.Equal(t, "0x9", receipt.TxRef)
	})

	t.Run("unknown anchoring transaction leaves reference empty", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(root, nil).Once()
		ledger.On("AnchorRef", mock.Anything, id).Return("", anchor.ErrConnectivity).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyAnchored)
		assert.Empty(t, receipt.TxRef)
	})

	t.Run("pre-check failure does not block submission", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.DummyHash, anchor.ErrConnectivity).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).Return("0x1", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.Equal(t, "0x1", receipt.TxRef)
	})

	t.Run("underpriced reuses nonce with bumped fees", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(3), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(3), initial, id, root).
			Return("", fmt.Errorf("replacement transaction underpriced: %w", anchor.ErrUnderpriced)).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(3), bumped, id, root).Return("0x2", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.Equal(t, "0x2", receipt.TxRef)
		assert.Equal(t, uint64(3), receipt.Nonce)
		assert.Equal(t, 2, receipt.Attempts)
		assert.Equal(t, bumped, receipt.Fees)
		ledger.AssertNumberOfCalls(t, "PendingNonce", 1)
	})

	t.Run("sequence conflict takes a fresh nonce", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(3), nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(4), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(3), initial, id, root).Return("", anchor.ErrSequenceConflict).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(4), initial, id, root).Return("0x4", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.Equal(t, uint64(4), receipt.Nonce)
		assert.Equal(t, "0x4", receipt.TxRef)
	})

	t.Run("second sequence conflict is terminal", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(3), nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(4), nil).Once()
		ledger.On("SendAnchor", mock.Anything, mock.Anything, initial, id, root).Return("", anchor.ErrSequenceConflict).Twice()

		_, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.Error(t, err)
		require.True(t, anchor.IsExhaustedError(err))
		assert.ErrorIs(t, err, anchor.ErrSequenceConflict)

		var exhausted *anchor.ExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, 2, exhausted.Attempts)
		assert.Len(t, exhausted.Errors(), 2)
	})

	t.Run("connectivity exhausts attempts", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil)
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).
			Return("", fmt.Errorf("dial tcp: connection refused: %w", anchor.ErrConnectivity))

		_, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.Error(t, err)
		assert.True(t, anchor.IsExhaustedError(err))
		assert.ErrorIs(t, err, anchor.ErrConnectivity)

		var exhausted *anchor.ExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, anchor.DefaultMaxAttempts, exhausted.Attempts)
		assert.Len(t, exhausted.Errors(), anchor.DefaultMaxAttempts)
		ledger.AssertNumberOfCalls(t, "SendAnchor", anchor.DefaultMaxAttempts)
	})

	t.Run("underpriced exhausts attempts", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), mock.Anything, id, root).Return("", anchor.ErrUnderpriced)

		_, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.Error(t, err)
		assert.True(t, anchor.IsExhaustedError(err))
		assert.ErrorIs(t, err, anchor.ErrUnderpriced)
	})

	t.Run("already anchored on send", func(t *testing.T) {
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).
			Return("", fmt.Errorf("execution reverted: already anchored: %w", anchor.ErrAlreadyAnchored)).Once()
		ledger.On("ReadRoot", mock.Anything, id).Return(root, nil).Once()
		ledger.On("AnchorRef", mock.Anything, id).Return("0x5", nil).Once()

		receipt, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyAnchored)
		assert.Equal(t, root, receipt.Root)
		assert.Equal(t, "0x5", receipt.TxRef)
	})

	t.Run("unclassified error is terminal", func(t *testing.T) {
		boom := errors.New("insufficient funds for gas * price + value")
		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).Return("", boom).Once()

		_, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
		require.Error(t, err)
		assert.False(t, anchor.IsExhaustedError(err))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("suggested fees raise initial fees", func(t *testing.T) {
		cfg := testConfig()
		cfg.UseSuggestedFees = true
		suggested := anchor.GweiFees(40, 2)

		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("SuggestFees", mock.Anything).Return(suggested, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), suggested, id, root).Return("0x1", nil).Once()

		receipt, err := newSubmitter(t, ledger, cfg).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.Equal(t, suggested, receipt.Fees)
	})

	t.Run("wait for receipt", func(t *testing.T) {
		cfg := testConfig()
		cfg.WaitForReceipt = true

		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).Return("0x1", nil).Once()
		ledger.On("WaitConfirmed", mock.Anything, "0x1").Return(nil).Once()

		receipt, err := newSubmitter(t, ledger, cfg).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.Confirmed)
	})

	t.Run("reverted receipt is already anchored", func(t *testing.T) {
		cfg := testConfig()
		cfg.WaitForReceipt = true

		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).Return("0x1", nil).Once()
		ledger.On("WaitConfirmed", mock.Anything, "0x1").Return(anchor.ErrAlreadyAnchored).Once()
		ledger.On("ReadRoot", mock.Anything, id).Return(root, nil).Once()
		ledger.On("AnchorRef", mock.Anything, id).Return("0x0a", nil).Once()

		receipt, err := newSubmitter(t, ledger, cfg).Submit(context.Background(), root, id)
		require.NoError(t, err)
		assert.True(t, receipt.AlreadyAnchored)
		assert.False(t, receipt.Confirmed)
		// the reference is the transaction that won the slot, not the reverted one
		assert.Equal(t, "0x0a", receipt.TxRef)
	})

	t.Run("cancellation stops retries", func(t *testing.T) {
		cfg := testConfig()
		cfg.BackoffBase = time.Hour
		cfg.BackoffMax = time.Hour
		ctx, cancel := context.WithCancel(context.Background())

		ledger := anchormock.NewExternalLedger(t)
		ledger.On("ReadRoot", mock.Anything, id).Return(hash.EmptyHash, nil).Once()
		ledger.On("PendingNonce", mock.Anything).Return(uint64(1), nil).Once()
		ledger.On("SendAnchor", mock.Anything, uint64(1), initial, id, root).
			Run(func(mock.Arguments) { cancel() }).
			Return("", anchor.ErrConnectivity).Once()

		s := newSubmitter(t, ledger, cfg)
		var err error
		unittest.RequireReturnsBefore(t, func() {
			_, err = s.Submit(ctx, root, id)
		}, time.Second)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, anchor.IsExhaustedError(err))
	})
}

// fakeLedger is an in-memory append-once ledger checking nonces strictly.
type fakeLedger struct {
	mu    sync.Mutex
	nonce uint64
	roots map[string]hash.Hash
	refs  map[string]string
	sends int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{roots: make(map[string]hash.Hash), refs: make(map[string]string)}
}

func (f *fakeLedger) PendingNonce(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeLedger) SuggestFees(context.Context) (anchor.Fees, error) {
	return anchor.GweiFees(1, 1), nil
}

func (f *fakeLedger) SendAnchor(_ context.Context, nonce uint64, _ anchor.Fees, id anchor.ExternalID, root hash.Hash) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if nonce != f.nonce {
		return "", anchor.ErrSequenceConflict
	}
	f.nonce++
	f.sends++
	if _, ok := f.roots[id.String()]; ok {
		return "", anchor.ErrAlreadyAnchored
	}
	f.roots[id.String()] = root
	ref := fmt.Sprintf("0x%064x", nonce+1)
	f.refs[id.String()] = ref
	return ref, nil
}

func (f *fakeLedger) WaitConfirmed(context.Context, string) error {
	return nil
}

func (f *fakeLedger) ReadRoot(_ context.Context, id anchor.ExternalID) (hash.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roots[id.String()], nil
}

func (f *fakeLedger) AnchorRef(_ context.Context, id anchor.ExternalID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs[id.String()], nil
}

func TestSubmitIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	s := newSubmitter(t, ledger, testConfig())
	root := unittest.HashFixture()
	id := anchor.DeriveBlockID("block-1")

	first, err := s.Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.False(t, first.AlreadyAnchored)
	assert.NotEmpty(t, first.TxRef)

	second, err := s.Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.True(t, second.AlreadyAnchored)
	assert.Equal(t, root, second.Root)
	assert.Equal(t, first.TxRef, second.TxRef)

	// a new submitter finds the reference on the external ledger
	restarted, err := newSubmitter(t, ledger, testConfig()).Submit(context.Background(), root, id)
	require.NoError(t, err)
	assert.True(t, restarted.AlreadyAnchored)
	assert.Equal(t, first.TxRef, restarted.TxRef)

	assert.Equal(t, 1, ledger.sends)
}

func TestSubmitConcurrent(t *testing.T) {
	ledger := newFakeLedger()
	s := newSubmitter(t, ledger, testConfig())

	const n = 20
	var wg sync.WaitGroup
	receipts := make([]*anchor.Receipt, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := anchor.DeriveBlockID(fmt.Sprintf("block-%d", i))
			receipts[i], errs[i] = s.Submit(context.Background(), unittest.HashFixture(), id)
		}(i)
	}
	unittest.RequireReturnsBefore(t, wg.Wait, 5*time.Second)

	nonces := make(map[uint64]struct{})
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, receipts[i].Attempts)
		nonces[receipts[i].Nonce] = struct{}{}
	}
	assert.Len(t, nonces, n)
	assert.Equal(t, uint64(n), ledger.nonce)
}
