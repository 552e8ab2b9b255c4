package models

// RoundStatus - состояние раунда.
type RoundStatus string

const (
	RoundActive RoundStatus = "active"
	RoundEnded  RoundStatus = "ended"
)

// TurnActionRecord - ход участника внутри раунда.
type TurnActionRecord struct {
	EventID    string `json:"event_id"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	Text       string `json:"text"`
	Roll       *int   `json:"roll,omitempty"`
}

// TurnRound - раунд, восстановленный сверткой журнала.
type TurnRound struct {
	RoundID      string             `json:"round_id"`
	Order        []string           `json:"order"`
	OrderLabels  []string           `json:"order_labels"`
	CurrentIndex int                `json:"current_index"`
	Status       RoundStatus        `json:"status"`
	RankKey      string             `json:"rank_key,omitempty"`
	Actions      []TurnActionRecord `json:"actions"`
}

// Active сообщает, идет ли раунд.
func (r *TurnRound) Active() bool {
	return r != nil && r.Status == RoundActive
}

// Current возвращает участника, чей сейчас ход.
func (r *TurnRound) Current() (string, bool) {
	if !r.Active() || r.CurrentIndex < 0 || r.CurrentIndex >= len(r.Order) {
		return "", false
	}
	return r.Order[r.CurrentIndex], true
}
