package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"mestrai-server/session-service/internal/ai"
)

// MockTarget is a mock type for the ai.Target type
type MockTarget struct {
	mock.Mock
	name string
}

// NewMockTarget creates a new instance of MockTarget with a fixed name. It also registers a testing interface on the mock.
func NewMockTarget(t interface {
	mock.TestingT
	Helper()
}, name string) *MockTarget {
	m := &MockTarget{name: name}
	m.Mock.Test(t)
	t.Helper()
	return m
}

func (_m *MockTarget) Name() string { return _m.name }

// Complete provides a mock function with given fields: ctx, req
func (_m *MockTarget) Complete(ctx context.Context, req ai.Request) (*ai.Reply, error) {
	ret := _m.Called(ctx, req)

	var r0 *ai.Reply
	if rf, ok := ret.Get(0).(func(context.Context, ai.Request) *ai.Reply); ok {
		r0 = rf(ctx, req)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*ai.Reply)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, ai.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}
	return r0, r1
}

var _ ai.Target = (*MockTarget)(nil)
