package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mestrai-server/session-service/internal/rules"
	"mestrai-server/session-service/internal/turns"
	sharedDatabase "mestrai-server/shared/database"
	"mestrai-server/shared/models"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoll(t *testing.T) {
	out, err := run(t, "", "roll", "--attribute", "destreza", "--value", "5", "--natural", "14", "--profession")
	require.NoError(t, err)

	var result rules.RollResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 14, result.NaturalRoll)
	assert.Equal(t, 19, result.Total)
	assert.Equal(t, rules.OutcomeFullSuccess, result.Outcome)
}

func TestRoll_UnknownAttribute(t *testing.T) {
	_, err := run(t, "", "roll", "--attribute", "SORTE", "--natural", "3")
	assert.ErrorContains(t, err, "unknown attribute")
}

func TestNormalize(t *testing.T) {
	out, err := run(t, `{"attributes":{"VIGOR":9,"MENTE":"2"},"inventory":["Corda",{"name":"Pocao","type":"consumable","quantity":"3"}]}`, "normalize")
	require.NoError(t, err)

	var state models.CharacterState
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, models.AttributeTotal, state.Attributes.Sum())
	assert.Equal(t, models.AttributeMax, state.Attributes[models.AttrVigor])
	assert.Equal(t, models.TierHealthy, state.Health.Tier)
	require.Len(t, state.Inventory, 2)
}

func TestReplay_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "log.db")
	repo, err := sharedDatabase.OpenSqliteSessionEventRepository(ctx, path, zap.NewNop())
	require.NoError(t, err)

	start, err := turns.NewScheduler(1).StartRound("camp-1", nil, []turns.Candidate{{ID: "p1", Name: "Iris", RankKey: 3}})
	require.NoError(t, err)
	_, err = repo.Append(ctx, start)
	require.NoError(t, err)
	_, err = repo.Append(ctx, models.SessionEvent{CampaignID: "camp-1", Kind: models.EventKindNarrative, Role: models.RoleModel, Content: "Era uma vez."})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	out, err := run(t, "", "--sqlite", path, "replay", "--campaign", "camp-1")
	require.NoError(t, err)

	var report replayReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Events)
	assert.Equal(t, 1, report.ByKind[models.EventKindNarrative])
	require.NotNil(t, report.Round)
	assert.Equal(t, []string{"p1"}, report.Round.Order)
	assert.Nil(t, report.PendingRoll)
	assert.Equal(t, "Era uma vez.", report.LastEvent.Content)
}

func TestReplay_RequiresStore(t *testing.T) {
	t.Setenv("SESSION_DB_DSN", "")
	_, err := run(t, "", "replay", "--campaign", "camp-1")
	assert.ErrorContains(t, err, "--sqlite or --dsn")
}
