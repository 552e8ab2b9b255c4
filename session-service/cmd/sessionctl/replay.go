package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mestrai-server/session-service/internal/service"
	"mestrai-server/session-service/internal/turns"
	"mestrai-server/shared/models"
)

// replayReport - состояние кампании, восстановленное из журнала.
type replayReport struct {
	CampaignID  string                   `json:"campaign_id"`
	Events      int                      `json:"events"`
	ByKind      map[models.EventKind]int `json:"by_kind"`
	Round       *models.TurnRound        `json:"round,omitempty"`
	PendingRoll *service.PendingRoll     `json:"pending_roll,omitempty"`
	Characters  []characterLine          `json:"characters,omitempty"`
	LastEvent   *models.SessionEvent     `json:"last_event,omitempty"`
}

type characterLine struct {
	ParticipantID string            `json:"participant_id"`
	Name          string            `json:"name"`
	Health        models.HealthTier `json:"health"`
	Attributes    models.Attributes `json:"attributes"`
	Dead          bool              `json:"dead"`
}

func newReplayCmd(flags *storeFlags) *cobra.Command {
	var campaignID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Fold a campaign log and print the round, pending roll and characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.close()

			events, err := store.events.List(cmd.Context(), campaignID)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			report := buildReplay(campaignID, events)
			if store.characters != nil {
				chars, err := store.characters.ListByCampaign(cmd.Context(), campaignID)
				if err != nil {
					return fmt.Errorf("list characters: %w", err)
				}
				report.Characters = characterLines(chars)
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&campaignID, "campaign", "c", "", "Campaign ID (required)")
	_ = cmd.MarkFlagRequired("campaign")
	return cmd
}

func buildReplay(campaignID string, events []models.SessionEvent) replayReport {
	report := replayReport{
		CampaignID:  campaignID,
		Events:      len(events),
		ByKind:      make(map[models.EventKind]int),
		Round:       turns.Fold(events),
		PendingRoll: service.RestorePendingRoll(events),
	}
	for _, ev := range events {
		report.ByKind[ev.Kind]++
	}
	if n := len(events); n > 0 {
		last := events[n-1]
		report.LastEvent = &last
	}
	return report
}

func characterLines(chars []*models.Character) []characterLine {
	out := make([]characterLine, 0, len(chars))
	for _, c := range chars {
		out = append(out, characterLine{
			ParticipantID: c.ParticipantID,
			Name:          c.Name,
			Health:        c.State.Health.Tier,
			Attributes:    c.State.Attributes,
			Dead:          c.Dead(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
