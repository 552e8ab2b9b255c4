package rules

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mestrai-server/shared/models"
)

func attrs(v, d, m, p int) models.Attributes {
	return models.Attributes{
		models.AttrVigor:    v,
		models.AttrDestreza: d,
		models.AttrMente:    m,
		models.AttrPresenca: p,
	}
}

func TestNormalizeAttributes_AlwaysValid(t *testing.T) {
	values := []int{-100, -1, 0, 1, 2, 3, 4, 5, 6, 99}
	for _, v := range values {
		for _, d := range values {
			for _, m := range values {
				for _, p := range values {
					out := NormalizeAttributes(attrs(v, d, m, p))
					require.Len(t, out, 4)
					for _, attr := range models.AttributeOrder {
						require.GreaterOrEqual(t, out[attr], 0)
						require.LessOrEqual(t, out[attr], 5)
					}
					require.Equal(t, 10, out.Sum(), "input %d/%d/%d/%d", v, d, m, p)
				}
			}
		}
	}
}

func TestNormalizeAttributes_TieBreakOrder(t *testing.T) {
	t.Run("excess taken from highest, first in order on ties", func(t *testing.T) {
		out := NormalizeAttributes(attrs(5, 5, 1, 0))
		assert.Equal(t, attrs(4, 5, 1, 0), out)
	})
	t.Run("deficit added to highest below max", func(t *testing.T) {
		out := NormalizeAttributes(attrs(5, 2, 2, 0))
		assert.Equal(t, attrs(5, 3, 2, 0), out)
	})
	t.Run("already valid is unchanged", func(t *testing.T) {
		out := NormalizeAttributes(attrs(3, 3, 2, 2))
		assert.Equal(t, attrs(3, 3, 2, 2), out)
	})
	t.Run("missing dimensions treated as zero", func(t *testing.T) {
		out := NormalizeAttributes(models.Attributes{models.AttrMente: 4})
		assert.Equal(t, 10, out.Sum())
		assert.Equal(t, 5, out[models.AttrMente])
	})
}

func TestClassifyRoll_NaturalExtremes(t *testing.T) {
	tiers := []models.HealthTier{models.TierHealthy, models.TierInjured, models.TierCritical, models.TierDead}
	difficulties := []models.Difficulty{models.DifficultyNormal, models.DifficultyHard, models.DifficultyVeryHard}
	for _, tier := range tiers {
		for _, diff := range difficulties {
			for value := -1; value <= 6; value++ {
				for _, relevant := range []bool{true, false} {
					in := RollInput{
						Attribute:          models.AttrVigor,
						AttributeValue:     value,
						ProfessionRelevant: relevant,
						Difficulty:         diff,
						HealthTier:         tier,
					}

					in.NaturalRoll = 1
					low := ClassifyRoll(in)
					assert.Equal(t, OutcomeCriticalFailure, low.Outcome)
					assert.Equal(t, 1, low.Total)

					in.NaturalRoll = 20
					high := ClassifyRoll(in)
					assert.Equal(t, OutcomeCriticalSuccess, high.Outcome)
					assert.Equal(t, 20, high.Total)
				}
			}
		}
	}
}

func TestClassifyRoll_Totals(t *testing.T) {
	tests := []struct {
		name    string
		in      RollInput
		total   int
		outcome Outcome
	}{
		{
			name:    "profession and attribute bonus",
			in:      RollInput{AttributeValue: 3, ProfessionRelevant: true, Difficulty: models.DifficultyNormal, HealthTier: models.TierHealthy, NaturalRoll: 14},
			total:   18,
			outcome: OutcomeFullSuccess,
		},
		{
			name:    "costly success boundary",
			in:      RollInput{AttributeValue: 2, Difficulty: models.DifficultyNormal, HealthTier: models.TierHealthy, NaturalRoll: 14},
			total:   15,
			outcome: OutcomeCostlySuccess,
		},
		{
			name:    "minor failure with injury and hard",
			in:      RollInput{AttributeValue: 5, Difficulty: models.DifficultyHard, HealthTier: models.TierInjured, NaturalRoll: 10},
			total:   9,
			outcome: OutcomeMinorFailure,
		},
		{
			name:    "major failure when critical",
			in:      RollInput{AttributeValue: 1, Difficulty: models.DifficultyVeryHard, HealthTier: models.TierCritical, NaturalRoll: 12},
			total:   3,
			outcome: OutcomeMajorFailure,
		},
		{
			name:    "dead penalty",
			in:      RollInput{AttributeValue: 5, ProfessionRelevant: true, HealthTier: models.TierDead, NaturalRoll: 19},
			total:   19 + 3 + 2 - 999,
			outcome: OutcomeMajorFailure,
		},
		{
			name:    "out of range natural is clamped",
			in:      RollInput{AttributeValue: 0, HealthTier: models.TierHealthy, NaturalRoll: 57},
			total:   20,
			outcome: OutcomeCriticalSuccess,
		},
		{
			name:    "negative natural clamps to one",
			in:      RollInput{AttributeValue: 5, HealthTier: models.TierHealthy, NaturalRoll: -3},
			total:   1,
			outcome: OutcomeCriticalFailure,
		},
		{
			name:    "attribute value is clamped",
			in:      RollInput{AttributeValue: 12, HealthTier: models.TierHealthy, NaturalRoll: 10},
			total:   13,
			outcome: OutcomeCostlySuccess,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ClassifyRoll(tt.in)
			assert.False(t, res.Skipped)
			assert.Equal(t, tt.total, res.Total)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.NotEmpty(t, res.Label)
		})
	}
}

func TestClassifyRoll_Impossible(t *testing.T) {
	res := ClassifyRoll(RollInput{Impossible: true, NaturalRoll: 20})
	assert.True(t, res.Skipped)
	assert.Equal(t, OutcomeImpossible, res.Outcome)
	assert.Equal(t, "IMPOSSIVEL", res.Label)
	assert.Equal(t, DefaultImpossibleMessage, res.Message)
	assert.Zero(t, res.Total)

	res = ClassifyRoll(RollInput{Impossible: true, ImpossibleReason: "Voar sem asas?"})
	assert.Equal(t, "Voar sem asas?", res.Message)
}

func healthy() models.CharacterState {
	return NewCharacterState(attrs(3, 3, 2, 2), nil)
}

func TestApplyDamage(t *testing.T) {
	t.Run("three light wounds downgrade once", func(t *testing.T) {
		s := healthy()
		s = ApplyDamage(s, models.DamageLight)
		assert.Equal(t, models.TierHealthy, s.Health.Tier)
		assert.Equal(t, 1, s.Health.LightDamageCounter)
		s = ApplyDamage(s, models.DamageLight)
		assert.Equal(t, 2, s.Health.LightDamageCounter)
		s = ApplyDamage(s, models.DamageLight)
		assert.Equal(t, models.TierInjured, s.Health.Tier)
		assert.Equal(t, 0, s.Health.LightDamageCounter)
	})

	t.Run("heavy resets counter and downgrades", func(t *testing.T) {
		s := healthy()
		s.Health.LightDamageCounter = 2
		s = ApplyDamage(s, models.DamageHeavy)
		assert.Equal(t, models.TierInjured, s.Health.Tier)
		assert.Equal(t, 0, s.Health.LightDamageCounter)
	})

	t.Run("heavy from critical kills and dead is absorbing", func(t *testing.T) {
		s := healthy()
		s.Health.Tier = models.TierCritical
		s = ApplyDamage(s, models.DamageHeavy)
		require.Equal(t, models.TierDead, s.Health.Tier)

		for _, sev := range []models.DamageSeverity{models.DamageLight, models.DamageHeavy, models.DamageLight} {
			next := ApplyDamage(s, sev)
			assert.Equal(t, s, next)
		}
	})

	t.Run("input is not mutated", func(t *testing.T) {
		s := healthy()
		s.Inventory = []models.InventoryItem{{ID: "1", Name: "Corda", Type: models.ItemEquipment, Quantity: 1}}
		_ = ApplyDamage(s, models.DamageHeavy)
		assert.Equal(t, models.TierHealthy, s.Health.Tier)
	})
}

func TestApplyRest(t *testing.T) {
	tests := []struct {
		from    models.HealthTier
		counter int
		kind    models.RestKind
		want    models.HealthTier
	}{
		{models.TierInjured, 2, models.RestShort, models.TierInjured},
		{models.TierInjured, 1, models.RestLong, models.TierHealthy},
		{models.TierHealthy, 1, models.RestLong, models.TierHealthy},
		{models.TierCritical, 0, models.RestLong, models.TierInjured},
		// Длинный отдых поднимает и погибшего: поведение сохранено буквально.
		{models.TierDead, 0, models.RestLong, models.TierCritical},
		{models.TierDead, 0, models.RestShort, models.TierDead},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.from, tt.kind), func(t *testing.T) {
			s := healthy()
			s.Health = models.Health{Tier: tt.from, LightDamageCounter: tt.counter}
			got := ApplyRest(s, tt.kind)
			assert.Equal(t, tt.want, got.Health.Tier)
			assert.Equal(t, 0, got.Health.LightDamageCounter)
		})
	}
}
