package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mestrai-server/session-service/internal/rules"
	"mestrai-server/shared/models"
)

func newRollCmd() *cobra.Command {
	var (
		attribute  string
		value      int
		natural    int
		difficulty string
		health     string
		profession bool
		lang       string
	)
	cmd := &cobra.Command{
		Use:   "roll",
		Short: "Classify a d20 check the way the session does",
		RunE: func(cmd *cobra.Command, args []string) error {
			attr, ok := rules.ParseAttribute(attribute)
			if !ok {
				return fmt.Errorf("unknown attribute %q", attribute)
			}
			if natural == 0 {
				natural = rules.NewRandomRoller(0).RollD20()
			}
			result := rules.ClassifyRoll(rules.RollInput{
				Attribute:          attr,
				AttributeValue:     value,
				ProfessionRelevant: profession,
				Difficulty:         models.Difficulty(strings.ToUpper(difficulty)),
				HealthTier:         models.HealthTier(strings.ToUpper(health)),
				NaturalRoll:        natural,
			})
			if lang != "" {
				result.Label = rules.Label(result.Outcome, rules.ParseLanguage(lang))
			}
			return printJSON(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&attribute, "attribute", "a", string(models.AttrVigor), "Attribute (VIGOR, DESTREZA, MENTE, PRESENÇA)")
	cmd.Flags().IntVarP(&value, "value", "v", 0, "Attribute value 0-5")
	cmd.Flags().IntVarP(&natural, "natural", "n", 0, "Natural d20 (0 = roll)")
	cmd.Flags().StringVar(&difficulty, "difficulty", string(models.DifficultyNormal), "NORMAL, HARD or VERY_HARD")
	cmd.Flags().StringVar(&health, "health", string(models.TierHealthy), "HEALTHY, INJURED or CRITICAL")
	cmd.Flags().BoolVar(&profession, "profession", false, "Profession is relevant (+2)")
	cmd.Flags().StringVar(&lang, "lang", "", "Label language (Accept-Language form, e.g. en or pt-BR)")
	return cmd
}
