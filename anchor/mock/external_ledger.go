package mock

import (
	context "context"

	anchor "github.com/h2registry/h2-registry/anchor"

	hash "github.com/h2registry/h2-registry/ledger/common/hash"

	mock "github.com/stretchr/testify/mock"
)

// ExternalLedger is a testify mock of anchor.ExternalLedger.
type ExternalLedger struct {
	mock.Mock
}

// AnchorRef provides a mock function with given fields: ctx, id
func (_m *ExternalLedger) AnchorRef(ctx context.Context, id anchor.ExternalID) (string, error) {
	ret := _m.Called(ctx, id)

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, anchor.ExternalID) (string, error)); ok {
		return rf(ctx, id)
	}
	if rf, ok := ret.Get(0).(func(context.Context, anchor.ExternalID) string); ok {
		r0 = rf(ctx, id)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, anchor.ExternalID) error); ok {
		r1 = rf(ctx, id)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// PendingNonce provides a mock function with given fields: ctx
func (_m *ExternalLedger) PendingNonce(ctx context.Context) (uint64, error) {
	ret := _m.Called(ctx)

	var r0 uint64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (uint64, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) uint64); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(uint64)
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadRoot provides a mock function with given fields: ctx, id
func (_m *ExternalLedger) ReadRoot(ctx context.Context, id anchor.ExternalID) (hash.Hash, error) {
	ret := _m.Called(ctx, id)

	var r0 hash.Hash
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, anchor.ExternalID) (hash.Hash, error)); ok {
		return rf(ctx, id)
	}
	if rf, ok := ret.Get(0).(func(context.Context, anchor.ExternalID) hash.Hash); ok {
		r0 = rf(ctx, id)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(hash.Hash)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, anchor.ExternalID) error); ok {
		r1 = rf(ctx, id)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SendAnchor provides a mock function with given fields: ctx, nonce, fees, id, root
func (_m *ExternalLedger) SendAnchor(ctx context.Context, nonce uint64, fees anchor.Fees, id anchor.ExternalID, root hash.Hash) (string, error) {
	ret := _m.Called(ctx, nonce, fees, id, root)

	var r0 string
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, uint64, anchor.Fees, anchor.ExternalID, hash.Hash) (string, error)); ok {
		return rf(ctx, nonce, fees, id, root)
	}
	if rf, ok := ret.Get(0).(func(context.Context, uint64, anchor.Fees, anchor.ExternalID, hash.Hash) string); ok {
		r0 = rf(ctx, nonce, fees, id, root)
	} else {
		r0 = ret.Get(0).(string)
	}

	if rf, ok := ret.Get(1).(func(context.Context, uint64, anchor.Fees, anchor.ExternalID, hash.Hash) error); ok {
		r1 = rf(ctx, nonce, fees, id, root)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// SuggestFees provides a mock function with given fields: ctx
func (_m *ExternalLedger) SuggestFees(ctx context.Context) (anchor.Fees, error) {
	ret := _m.Called(ctx)

	var r0 anchor.Fees
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (anchor.Fees, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) anchor.Fees); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Get(0).(anchor.Fees)
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// WaitConfirmed provides a mock function with given fields: ctx, txRef
func (_m *ExternalLedger) WaitConfirmed(ctx context.Context, txRef string) error {
	ret := _m.Called(ctx, txRef)

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string) error); ok {
		r0 = rf(ctx, txRef)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

type mockConstructorTestingTNewExternalLedger interface {
	mock.TestingT
	Cleanup(func())
}

// NewExternalLedger creates a new instance of ExternalLedger. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewExternalLedger(t mockConstructorTestingTNewExternalLedger) *ExternalLedger {
	mock := &ExternalLedger{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

var _ anchor.ExternalLedger = (*ExternalLedger)(nil)
