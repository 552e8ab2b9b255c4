// Package turns восстанавливает раунды из журнала событий и порождает события хода.
// Состояние раунда никогда не кэшируется: оно всегда вычисляется сверткой журнала.
package turns

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"

	"mestrai-server/shared/interfaces"
	"mestrai-server/shared/models"
)

// RankAttribute - атрибут, задающий порядок хода.
const RankAttribute = models.AttrDestreza

// Candidate - участник, претендующий на место в раунде.
type Candidate struct {
	ID      string
	Name    string
	RankKey int
}

// Scheduler создает раунды. Случайность используется только для разрешения точных ничьих.
type Scheduler struct {
	mu         sync.Mutex
	rng        *rand.Rand
	newRoundID func() string
}

// NewScheduler создает планировщик. seed = 0 означает случайное зерно.
func NewScheduler(seed uint64) *Scheduler {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Scheduler{
		rng:        rand.New(rand.NewPCG(seed, seed>>1|1)),
		newRoundID: uuid.NewString,
	}
}

// Fold восстанавливает последний раунд по журналу. Nil, если раундов не было.
func Fold(events []models.SessionEvent) *models.TurnRound {
	var round *models.TurnRound
	for _, ev := range events {
		if ev.Action == models.TurnActionNone {
			continue
		}
		var p models.TurnPayload
		if err := ev.DecodePayload(&p); err != nil || p.TurnID == "" {
			continue
		}

		if ev.Action == models.TurnActionStart {
			idx := 0
			if p.CurrentIndex != nil {
				idx = *p.CurrentIndex
			}
			round = &models.TurnRound{
				RoundID:      p.TurnID,
				Order:        append([]string(nil), p.Order...),
				OrderLabels:  append([]string(nil), p.OrderNames...),
				CurrentIndex: idx,
				Status:       models.RoundActive,
				RankKey:      p.DexKey,
				Actions:      []models.TurnActionRecord{},
			}
			continue
		}
		if round == nil || p.TurnID != round.RoundID {
			continue
		}

		switch ev.Action {
		case models.TurnActionSubmit:
			round.Actions = append(round.Actions, models.TurnActionRecord{
				EventID:    ev.ID,
				PlayerID:   p.PlayerID,
				PlayerName: p.PlayerName,
				Text:       p.Text,
				Roll:       p.Roll,
			})
		case models.TurnActionAdvance:
			if p.CurrentIndex != nil {
				round.CurrentIndex = *p.CurrentIndex
			}
		case models.TurnActionEnd:
			round.Status = models.RoundEnded
		}
	}

	if round != nil && round.CurrentIndex >= len(round.Order) {
		round.Status = models.RoundEnded
	}
	return round
}

// StartRound строит событие turn_start. Требует отсутствия активного раунда и хотя бы одного кандидата.
// Порядок - по убыванию RankKey; точные ничьи разрешаются равновероятно.
func (s *Scheduler) StartRound(campaignID string, history []models.SessionEvent, candidates []Candidate) (models.SessionEvent, error) {
	if Fold(history).Active() {
		return models.SessionEvent{}, models.ErrRoundActive
	}
	if len(candidates) == 0 {
		return models.SessionEvent{}, models.ErrNoParticipants
	}

	ordered := append([]Candidate(nil), candidates...)
	s.mu.Lock()
	s.rng.Shuffle(len(ordered), func(i, j int) { ordered[i], ordered[j] = ordered[j], ordered[i] })
	roundID := s.newRoundID()
	s.mu.Unlock()
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].RankKey > ordered[j].RankKey })

	order := make([]string, len(ordered))
	names := make([]string, len(ordered))
	for i, c := range ordered {
		order[i] = c.ID
		names[i] = c.Name
	}
	zero := 0
	return newTurnEvent(campaignID, models.TurnActionStart, "", models.TurnPayload{
		TurnID:       roundID,
		Order:        order,
		OrderNames:   names,
		CurrentIndex: &zero,
		DexKey:       string(RankAttribute),
	})
}

// CheckSubmission разрешает ход только текущему участнику активного раунда.
func CheckSubmission(round *models.TurnRound, participantID string) error {
	current, ok := round.Current()
	if !ok {
		return fmt.Errorf("%w: no active round", models.ErrTurnViolation)
	}
	if current != participantID {
		return fmt.Errorf("%w: waiting for %s", models.ErrTurnViolation, current)
	}
	return nil
}

// Advance строит turn_advance или, если участники кончились, turn_end.
func Advance(campaignID string, round *models.TurnRound) (models.SessionEvent, error) {
	if !round.Active() {
		return models.SessionEvent{}, fmt.Errorf("%w: no active round to advance", models.ErrTurnViolation)
	}
	next := round.CurrentIndex + 1
	if next >= len(round.Order) {
		return newTurnEvent(campaignID, models.TurnActionEnd, "", models.TurnPayload{TurnID: round.RoundID})
	}
	return newTurnEvent(campaignID, models.TurnActionAdvance, "", models.TurnPayload{
		TurnID:       round.RoundID,
		CurrentIndex: &next,
	})
}

// ActionEvent строит запись хода участника (роль user) для текущего раунда.
// round может быть nil, если кампания играет вне раундов.
func ActionEvent(campaignID string, round *models.TurnRound, participantID, playerName, content, text string, roll *int) (models.SessionEvent, error) {
	p := models.TurnPayload{PlayerID: participantID, PlayerName: playerName, Text: text, Roll: roll}
	if round.Active() {
		p.TurnID = round.RoundID
	}
	ev, err := newTurnEvent(campaignID, models.TurnActionSubmit, content, p)
	if err != nil {
		return ev, err
	}
	ev.Kind = models.EventKindNarrative
	ev.Role = models.RoleUser
	ev.ActorID = &participantID
	if !round.Active() {
		ev.Action = models.TurnActionNone
	}
	return ev, nil
}

// SubmissionGuard проверяет очередь хода в момент записи.
// requireRound = false допускает ходы, когда ни один раунд не идет.
func SubmissionGuard(participantID string, requireRound bool) interfaces.AppendGuard {
	return func(history []models.SessionEvent) error {
		round := Fold(history)
		if !round.Active() && !requireRound {
			return nil
		}
		return CheckSubmission(round, participantID)
	}
}

// ActionGuard принимает ход участника только в том раунде, по которому собрано событие.
func ActionGuard(roundID, participantID string) interfaces.AppendGuard {
	return func(history []models.SessionEvent) error {
		round := Fold(history)
		if err := CheckSubmission(round, participantID); err != nil {
			return err
		}
		if round.RoundID != roundID {
			return fmt.Errorf("%w: round moved on", models.ErrTurnViolation)
		}
		return nil
	}
}

// StartGuard не дает открыть второй раунд параллельно.
func StartGuard() interfaces.AppendGuard {
	return func(history []models.SessionEvent) error {
		if Fold(history).Active() {
			return models.ErrRoundActive
		}
		return nil
	}
}

// AdvanceGuard принимает продвижение, только если раунд все еще на ожидаемой позиции.
// Повторное продвижение того же хода отклоняется.
func AdvanceGuard(roundID string, fromIndex int) interfaces.AppendGuard {
	return func(history []models.SessionEvent) error {
		round := Fold(history)
		if !round.Active() || round.RoundID != roundID || round.CurrentIndex != fromIndex {
			return fmt.Errorf("%w: round moved on", models.ErrTurnViolation)
		}
		return nil
	}
}

func newTurnEvent(campaignID string, action models.TurnAction, content string, p models.TurnPayload) (models.SessionEvent, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return models.SessionEvent{}, fmt.Errorf("failed to marshal turn payload: %w", err)
	}
	return models.SessionEvent{
		CampaignID: campaignID,
		Kind:       models.EventKindSystemNotice,
		Role:       models.RoleSystem,
		Action:     action,
		Content:    content,
		Payload:    raw,
	}, nil
}
