package toolparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mestrai-server/shared/models"
)

func TestParse_SegmentsAreStripped(t *testing.T) {
	text := "Voce ouve passos.\n<tool_code>\n{\n  \"action\": \"request_roll\",\n  \"params\": {\"attribute\": \"DESTREZA\", \"is_profession_relevant\": true, \"difficulty\": \"HARD\"}\n}\n</tool_code>\nO que faz?"

	res := Parse(text, nil)
	assert.Equal(t, "Voce ouve passos.\n\nO que faz?", res.Narrative)
	require.Len(t, res.Actions, 1)

	a := res.Actions[0]
	assert.Equal(t, models.ToolRequestRoll, a.Kind)
	assert.Equal(t, models.RequestRollArgs{
		Attribute:          models.AttrDestreza,
		ProfessionRelevant: true,
		Difficulty:         models.DifficultyHard,
	}, a.Args)
	assert.Contains(t, a.CorrelationID, "tool_code_request_roll_")
	assert.NotEmpty(t, a.Fingerprint)
}

func TestParse_MalformedSegmentDroppedNarrativeKept(t *testing.T) {
	res := Parse("Antes <tool_code>{not json</tool_code> depois <tool_code>   </tool_code>", nil)
	assert.Equal(t, "Antes  depois", res.Narrative)
	assert.Empty(t, res.Actions)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, SourceSegment, res.Dropped[0].Source)
}

func TestParse_TopLevelFieldsAreFolded(t *testing.T) {
	text := `<tool_code>{ "action": "apply_damage", "type": "heavy" }</tool_code>` +
		`<tool_code>{"action":"generate_image","prompt":"Dark fantasy, ruins"}</tool_code>` +
		`<tool_code>{"action":"apply_rest","params":{},"type":"LONG"}</tool_code>`

	res := Parse(text, nil)
	require.Len(t, res.Actions, 3)
	assert.Equal(t, models.DamageArgs{Severity: models.DamageHeavy}, res.Actions[0].Args)
	assert.Equal(t, models.ImageArgs{Prompt: "Dark fantasy, ruins"}, res.Actions[1].Args)
	assert.Equal(t, models.RestArgs{Kind: models.RestLong}, res.Actions[2].Args)
	assert.Equal(t, "", res.Narrative)
}

func TestParse_CodeFenceInsideSegment(t *testing.T) {
	text := "<tool_code>\n```json\n{\"action\":\"trigger_levelup\"}\n```\n</tool_code>"
	res := Parse(text, nil)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, models.ToolTriggerLevelUp, res.Actions[0].Kind)
}

func TestParse_StructuredCalls(t *testing.T) {
	calls := []models.RawToolCall{
		{ID: "call_1", Name: "apply_damage", Arguments: `{"type":"LIGHT"}`},
		{ID: "call_2", Name: "trigger_game_over", Arguments: `{"causeOfDeath":"Queda","worldFuture":"Ruina"}`},
		{ID: "call_3", Name: "update_character", Arguments: `{"profession":"Ferreiro","inventory":["Martelo",{"name":"Pao","type":"consumable","quantity":2}]}`},
		{ID: "call_4", Name: "request_roll", Arguments: `{}`},
		{ID: "call_5", Name: "cast_spell", Arguments: `{"power":9}`},
		{ID: "call_6", Name: "apply_rest", Arguments: `{"type":`},
		{ID: "call_7", Name: "apply_damage", Arguments: `{"type":"MORTAL"}`},
		{ID: "call_8", Name: "update_character", Arguments: ``},
	}

	res := Parse("", calls)
	require.Len(t, res.Actions, 3)
	assert.Len(t, res.Dropped, 5)

	assert.Equal(t, "call_1", res.Actions[0].CorrelationID)
	assert.Equal(t, models.GameOverArgs{Cause: "Queda", WorldFuture: "Ruina"}, res.Actions[1].Args)

	upd, ok := res.Actions[2].Args.(models.UpdateCharacterArgs)
	require.True(t, ok)
	require.NotNil(t, upd.Profession)
	assert.Equal(t, "Ferreiro", *upd.Profession)
	require.Len(t, upd.Inventory, 2)
	assert.Equal(t, models.ItemConsumable, upd.Inventory[1].Type)
	assert.Equal(t, 2, upd.Inventory[1].Quantity)
}

func TestParse_Defaults(t *testing.T) {
	calls := []models.RawToolCall{
		{ID: "a", Name: "apply_damage", Arguments: `{}`},
		{ID: "b", Name: "apply_rest", Arguments: `{}`},
		{ID: "c", Name: "request_roll", Arguments: `{"attribute":"presenca","is_profession_relevant":"false"}`},
	}
	res := Parse("", calls)
	require.Len(t, res.Actions, 3)
	assert.Equal(t, models.DamageArgs{Severity: models.DamageLight}, res.Actions[0].Args)
	assert.Equal(t, models.RestArgs{Kind: models.RestShort}, res.Actions[1].Args)
	assert.Equal(t, models.RequestRollArgs{Attribute: models.AttrPresenca, Difficulty: models.DifficultyNormal}, res.Actions[2].Args)
}

func TestParse_Deduplication(t *testing.T) {
	t.Run("same image prompt across segment and call", func(t *testing.T) {
		text := `<tool_code>{"action":"generate_image","params":{"prompt":"Castle,  night"}}</tool_code>`
		calls := []models.RawToolCall{{ID: "call_9", Name: "generate_image", Arguments: `{"prompt":"castle, night"}`}}
		res := Parse(text, calls)
		require.Len(t, res.Actions, 1)
		assert.Equal(t, ImageFingerprint("Castle, night"), res.Actions[0].Fingerprint)
		require.Len(t, res.Dropped, 1)
		assert.Equal(t, "duplicate", res.Dropped[0].Reason)
	})

	t.Run("repeated correlation id", func(t *testing.T) {
		calls := []models.RawToolCall{
			{ID: "dup", Name: "apply_damage", Arguments: `{"type":"LIGHT"}`},
			{ID: "dup", Name: "apply_damage", Arguments: `{"type":"HEAVY"}`},
		}
		res := Parse("", calls)
		require.Len(t, res.Actions, 1)
		assert.Equal(t, models.DamageArgs{Severity: models.DamageLight}, res.Actions[0].Args)
	})

	t.Run("same damage under distinct ids is kept", func(t *testing.T) {
		calls := []models.RawToolCall{
			{ID: "call_1", Name: "apply_damage", Arguments: `{"type":"LIGHT"}`},
			{ID: "call_2", Name: "apply_damage", Arguments: `{"type":"LIGHT"}`},
		}
		res := Parse("", calls)
		require.Len(t, res.Actions, 2)
		assert.Empty(t, res.Dropped)
		assert.Equal(t, "call_1", res.Actions[0].CorrelationID)
		assert.Equal(t, "call_2", res.Actions[1].CorrelationID)
	})

	t.Run("inline ids are deterministic", func(t *testing.T) {
		text := `<tool_code>{"action":"apply_damage","type":"HEAVY"}</tool_code>`
		a := Parse(text, nil)
		b := Parse(text, nil)
		assert.Equal(t, a.Actions[0].CorrelationID, b.Actions[0].CorrelationID)
	})
}

func TestResult_HasKind(t *testing.T) {
	res := Parse(`<tool_code>{"action":"generate_image","prompt":"x"}</tool_code>Texto`, nil)
	assert.True(t, res.HasKind(models.ToolGenerateImage))
	assert.False(t, res.HasKind(models.ToolRequestRoll))
}
