package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/ai"
	"mestrai-server/session-service/internal/imagegen"
	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/database"
	"mestrai-server/shared/models"
)

const (
	testCampaign = "camp-1"
	testOwner    = "owner"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedInvoker отдает заранее заданные ответы и запоминает запросы.
type scriptedInvoker struct {
	mu       sync.Mutex
	replies  []scriptedReply
	requests []ai.Request
}

type scriptedReply struct {
	reply *ai.Reply
	err   error
}

func (s *scriptedInvoker) then(reply *ai.Reply) *scriptedInvoker {
	s.replies = append(s.replies, scriptedReply{reply: reply})
	return s
}

func (s *scriptedInvoker) fail(err error) *scriptedInvoker {
	s.replies = append(s.replies, scriptedReply{err: err})
	return s
}

func (s *scriptedInvoker) Invoke(_ context.Context, key string, req ai.Request) (*ai.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("%w: script exhausted for %s", models.ErrTransientProvider, key)
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next.reply, next.err
}

func (s *scriptedInvoker) calls() []ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ai.Request(nil), s.requests...)
}

// fakeIllustrator возвращает адрес с зерном или ошибку.
type fakeIllustrator struct {
	err      error
	requests []imagegen.Request
}

func (f *fakeIllustrator) Illustrate(_ context.Context, req imagegen.Request) (*imagegen.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &imagegen.Result{URL: fmt.Sprintf("https://img.test/%d.jpg", req.Seed), Model: "klein-large"}, nil
}

type limiterStub struct {
	limited map[string]bool
	checked []string
}

func (l *limiterStub) IsLimited(_ context.Context, key string) bool {
	l.checked = append(l.checked, key)
	return l.limited[key]
}

// table - стол из двух игроков: p5 (DESTREZA 5) и p3 (DESTREZA 3).
type table struct {
	events      *database.MemorySessionEventLog
	characters  *database.MemoryCharacterRepository
	campaigns   *database.MemoryCampaignRepository
	invoker     *scriptedInvoker
	illustrator *fakeIllustrator
	deps        Dependencies
	registry    *Registry
	session     *Orchestrator
}

// newTable собирает стол; setup может подменить зависимости до создания реестра.
func newTable(t *testing.T, setup func(*Dependencies), opts ...Option) *table {
	t.Helper()
	ctx := context.Background()
	tb := &table{
		events:      database.NewMemorySessionEventLog(zap.NewNop()),
		characters:  database.NewMemoryCharacterRepository(),
		campaigns:   database.NewMemoryCampaignRepository(),
		invoker:     &scriptedInvoker{},
		illustrator: &fakeIllustrator{},
	}

	require.NoError(t, tb.campaigns.SaveCampaign(ctx, &models.Campaign{
		ID:           testCampaign,
		OwnerID:      testOwner,
		Title:        "A Torre",
		WorldHistory: "Um reino em ruinas.",
		Genre:        "Fantasia sombria",
		VisualStyle:  "Oil painting",
		Status:       models.CampaignActive,
	}))
	for _, p := range []struct {
		id, name string
		attrs    models.Attributes
	}{
		{"p5", "Iris", models.Attributes{models.AttrVigor: 3, models.AttrDestreza: 5, models.AttrMente: 1, models.AttrPresenca: 1}},
		{"p3", "Bento", models.Attributes{models.AttrVigor: 3, models.AttrDestreza: 3, models.AttrMente: 2, models.AttrPresenca: 2}},
	} {
		require.NoError(t, tb.campaigns.SaveParticipant(ctx, models.Participant{
			CampaignID: testCampaign, ID: p.id, Name: p.name, Status: models.ParticipantAccepted,
		}))
		require.NoError(t, tb.characters.Save(ctx, &models.Character{
			CampaignID:    testCampaign,
			ParticipantID: p.id,
			Name:          p.name,
			Profession:    "Ferreira",
			State:         rules.NewCharacterState(p.attrs, nil),
		}))
	}

	tb.deps = Dependencies{
		Events:      tb.events,
		Characters:  tb.characters,
		Campaigns:   tb.campaigns,
		Invoker:     tb.invoker,
		Illustrator: tb.illustrator,
		Roller:      rules.NewFixedRoller(10),
		Scheduler:   turns.NewScheduler(7),
		Logger:      zap.NewNop(),
	}
	if setup != nil {
		setup(&tb.deps)
	}
	opts = append([]Option{WithSeedSource(func() int { return 42 }), WithClock(func() time.Time { return fixedNow })}, opts...)
	tb.registry = NewRegistry(tb.deps, opts...)

	var err error
	tb.session, err = tb.registry.Session(ctx, testCampaign)
	require.NoError(t, err)
	return tb
}

func (tb *table) startRound(t *testing.T) *models.TurnRound {
	t.Helper()
	round, err := tb.session.StartRound(context.Background(), testOwner)
	require.NoError(t, err)
	require.Equal(t, []string{"p5", "p3"}, round.Order)
	return round
}

func (tb *table) log(t *testing.T) []models.SessionEvent {
	t.Helper()
	events, err := tb.events.List(context.Background(), testCampaign)
	require.NoError(t, err)
	return events
}

func (tb *table) ofKind(t *testing.T, kind models.EventKind) []models.SessionEvent {
	t.Helper()
	var out []models.SessionEvent
	for _, ev := range tb.log(t) {
		if ev.Kind == kind && ev.Action == models.TurnActionNone {
			out = append(out, ev)
		}
	}
	return out
}

// turnEvents возвращает служебные события раунда с заданным действием.
func (tb *table) turnEvents(t *testing.T, action models.TurnAction) []models.SessionEvent {
	t.Helper()
	var out []models.SessionEvent
	for _, ev := range tb.log(t) {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

func (tb *table) character(t *testing.T, id string) *models.Character {
	t.Helper()
	c, err := tb.characters.Get(context.Background(), testCampaign, id)
	require.NoError(t, err)
	return c
}

func (tb *table) round(t *testing.T) *models.TurnRound {
	t.Helper()
	return turns.Fold(tb.log(t))
}

func narration(text string) *ai.Reply {
	return &ai.Reply{Text: text}
}

func call(id string, kind models.ToolKind, args string) models.RawToolCall {
	return models.RawToolCall{ID: id, Name: string(kind), Arguments: args}
}

var errBoom = errors.New("boom")
