package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mestrai-server/shared/models"
)

func TestGetToolDefinitions(t *testing.T) {
	defs := GetToolDefinitions()
	require.Len(t, defs, 7)

	seen := map[models.ToolKind]bool{}
	for _, d := range defs {
		assert.False(t, seen[d.Name], "duplicate tool %s", d.Name)
		seen[d.Name] = true
		assert.NotEmpty(t, d.Description)
		assert.Equal(t, "object", d.Parameters["type"])

		_, err := json.Marshal(d.Parameters)
		require.NoError(t, err, d.Name)
	}
	for _, kind := range []models.ToolKind{
		models.ToolRequestRoll, models.ToolApplyDamage, models.ToolApplyRest, models.ToolGenerateImage,
		models.ToolTriggerGameOver, models.ToolUpdateCharacter, models.ToolTriggerLevelUp,
	} {
		assert.True(t, seen[kind], kind)
	}
}

func TestRequestRollSchemaListsAttributes(t *testing.T) {
	props := GetToolDefinitions()[0].Parameters["properties"].(map[string]interface{})
	attr := props["attribute"].(map[string]interface{})
	assert.Equal(t, []string{"VIGOR", "DESTREZA", "MENTE", "PRESENÇA"}, attr["enum"])
}
