package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"mestrai-server/session-service/internal/mocks"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestIsLimited_InMemoryWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := New(20, time.Minute, WithClock(clock.now))
	ctx := context.Background()
	key := ChatKey("p1", "c1")

	for i := 0; i < 20; i++ {
		assert.False(t, l.IsLimited(ctx, key), "call %d", i+1)
		clock.t = clock.t.Add(time.Second)
	}
	assert.True(t, l.IsLimited(ctx, key), "21st call inside the window")
	assert.False(t, l.IsLimited(ctx, ChatKey("p2", "c1")), "other keys are independent")

	// Первая метка (12:00:00) выходит из окна в 12:01:00+.
	clock.t = time.Date(2026, 1, 1, 12, 1, 0, 1, time.UTC)
	assert.False(t, l.IsLimited(ctx, key))
	assert.True(t, l.IsLimited(ctx, key))
}

func TestIsLimited_RejectedCallsAreNotRecorded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := New(1, 10*time.Second, WithClock(clock.now))
	ctx := context.Background()

	assert.False(t, l.IsLimited(ctx, "k"))
	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(time.Second)
		assert.True(t, l.IsLimited(ctx, "k"))
	}
	clock.t = time.Unix(10, 1)
	assert.False(t, l.IsLimited(ctx, "k"))
}

func TestIsLimited_UsesStore(t *testing.T) {
	store := &mocks.MockRateStore{}
	l := New(0, 0, WithStore(store))
	ctx := context.Background()

	store.On("Allow", ctx, "image:c1", DefaultLimit, DefaultWindow).Return(true, nil).Once()
	store.On("Allow", ctx, "image:c1", DefaultLimit, DefaultWindow).Return(false, nil).Once()

	assert.False(t, l.IsLimited(ctx, ImageKey("c1")))
	assert.True(t, l.IsLimited(ctx, ImageKey("c1")))
	store.AssertExpectations(t)
}

func TestIsLimited_FallsBackOnStoreError(t *testing.T) {
	store := &mocks.MockRateStore{}
	store.On("Allow", mock.Anything, mock.Anything, 2, time.Minute).Return(false, errors.New("redis down"))
	l := New(2, time.Minute, WithStore(store))
	ctx := context.Background()

	assert.False(t, l.IsLimited(ctx, "k"))
	assert.False(t, l.IsLimited(ctx, "k"))
	assert.True(t, l.IsLimited(ctx, "k"))
}
