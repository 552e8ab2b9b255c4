package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/mocks"
	"mestrai-server/shared/models"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func threeTargets(t *testing.T) (*mocks.MockTarget, *mocks.MockTarget, *mocks.MockTarget) {
	return mocks.NewMockTarget(t, "llama-3.3-70b-versatile"),
		mocks.NewMockTarget(t, "qwen-2.5-72b-instruct"),
		mocks.NewMockTarget(t, "llama-3.1-8b-instant")
}

func TestInvoke_FallbackAndStickyIndex(t *testing.T) {
	a, b, c := threeTargets(t)
	rec := &sleepRecorder{}
	inv := New([]ai.Target{a, b, c}, WithMinDelay(100*time.Millisecond), WithSleep(rec.sleep))
	ctx := context.Background()
	req := ai.Request{System: "s"}

	a.On("Complete", mock.Anything, req).Return(nil, errors.New("a down")).Once()
	b.On("Complete", mock.Anything, req).Return(nil, errors.New("b down")).Once()
	c.On("Complete", mock.Anything, req).Return(&ai.Reply{Text: "ok"}, nil).Once()

	reply, err := inv.Invoke(ctx, "chat:camp", req)
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	assert.Equal(t, "llama-3.1-8b-instant", reply.Model)
	assert.Equal(t, 2, inv.State().Get("chat:camp"))
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, rec.delays)

	// Следующий вызов начинается с закрепленной цели; ее отказ исчерпывает список.
	c.On("Complete", mock.Anything, req).Return(nil, errors.New("c down")).Once()
	_, err = inv.Invoke(ctx, "chat:camp", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTransientProvider)
	assert.Equal(t, 0, inv.State().Get("chat:camp"))

	a.AssertNumberOfCalls(t, "Complete", 1)
	b.AssertNumberOfCalls(t, "Complete", 1)
	c.AssertNumberOfCalls(t, "Complete", 2)
}

func TestInvoke_QuotaAbortsImmediately(t *testing.T) {
	a, b, c := threeTargets(t)
	inv := New([]ai.Target{a, b, c}, WithSleep((&sleepRecorder{}).sleep))
	inv.State().Set("chat:camp", 1)

	quota := &models.QuotaError{RetryAfter: 30 * time.Second, Err: errors.New("429")}
	b.On("Complete", mock.Anything, mock.Anything).Return(nil, quota).Once()

	_, err := inv.Invoke(context.Background(), "chat:camp", ai.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
	d, ok := models.RetryAfterOf(err)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	assert.Equal(t, 1, inv.State().Get("chat:camp"))
	a.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestInvoke_ContextCanceledDuringDelay(t *testing.T) {
	a, b, _ := threeTargets(t)
	ctx, cancel := context.WithCancel(context.Background())
	inv := New([]ai.Target{a, b}, WithMinDelay(time.Second), WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	a.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("a down")).Once()

	_, err := inv.Invoke(ctx, "k", ai.Request{})
	assert.ErrorIs(t, err, context.Canceled)
	b.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestInvoke_KeysAreIndependent(t *testing.T) {
	a, b, _ := threeTargets(t)
	inv := New([]ai.Target{a, b})

	a.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("down")).Once()
	b.On("Complete", mock.Anything, mock.Anything).Return(&ai.Reply{Text: "x"}, nil).Once()
	_, err := inv.Invoke(context.Background(), "chat:one", ai.Request{})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.State().Get("chat:one"))
	assert.Equal(t, 0, inv.State().Get("chat:two"))
}

func TestInvoke_SharedStateStartsFromPinnedTarget(t *testing.T) {
	a, b, _ := threeTargets(t)
	state := NewStickyState()
	state.Set("chat:one", 1)
	inv := New([]ai.Target{a, b}, WithState(state))

	b.On("Complete", mock.Anything, mock.Anything).Return(&ai.Reply{Text: "ok"}, nil).Once()
	reply, err := inv.Invoke(context.Background(), "chat:one", ai.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply.Text)
	a.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	assert.Same(t, state, inv.State())
}

func TestInvoke_NoTargets(t *testing.T) {
	_, err := New(nil).Invoke(context.Background(), "k", ai.Request{})
	assert.ErrorIs(t, err, models.ErrTransientProvider)
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
