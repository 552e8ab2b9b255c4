package service

import (
	"fmt"
	"math"

	"mestrai-server/shared/models"
)

const quotaMessageDefault = "Limite de uso da IA atingido. Aguarde 1-2 minutos e tente novamente."

// QuotaMessage - текст для игрока при исчерпании квоты, с задержкой, если провайдер ее сообщил.
func QuotaMessage(err error) string {
	if d, ok := models.RetryAfterOf(err); ok {
		return fmt.Sprintf("Limite de uso da IA atingido. Tente novamente em %ds.", int(math.Ceil(d.Seconds())))
	}
	return quotaMessageDefault
}
