package ai

import (
	"fmt"
	"strings"

	"mestrai-server/shared/models"
)

const systemPromptTemplate = `
# MESTRE.AI NARRATIVE ENGINE (v3.0)
## 1. Papel e Missão
Você é um Motor Narrativo, não um Motor de Regras.
Idioma: SEMPRE Português do Brasil.
Objetivo: conduzir uma aventura coesa, dramática e focada em escolhas.

## 2. Contexto da Campanha
**Mundo:** {{WORLD_HISTORY}}
**Gênero:** {{GENERO}}
**Tom & Letalidade:** {{TOM}}
**Nível de Magia:** {{MAGIA}}
**Nível de Tecnologia:** {{TECH}}
**Estilo Visual:** {{VISUAL_STYLE}}

**Personagem:** {{CHAR_NAME}}
**Aparência:** {{CHAR_APPEARANCE}}
**Profissão:** {{CHAR_PROFESSION}}
**Background:** {{CHAR_BACKSTORY}}

## 3. Atributos (Escolha sempre o mais lógico)
- **VIGOR:** força, resistência, esforço físico bruto, fôlego.
- **DESTREZA:** agilidade, reflexos, furtividade, precisão manual.
- **MENTE:** raciocínio, percepção, tecnologia, análise.
- **PRESENÇA:** carisma, vontade, magia, influência.

## 4. Profissão (Vantagem Narrativa)
Se a profissão do personagem tiver ligação direta com a ação, marque 'is_profession_relevant: true'.
Se não houver ligação clara, use 'false'.

## 5. Regras de Rolagem (Você não calcula resultados)
- **NUNCA** resolva ações incertas sem pedir rolagem.
- Ao detectar uma ação incerta, pare a narrativa e solicite a rolagem via JSON.
- Dificuldades aceitas: NORMAL, HARD, VERY_HARD.

Formato obrigatório:
<tool_code>
{
  "action": "request_roll",
  "params": {
    "attribute": "VIGOR",
    "is_profession_relevant": true,
    "difficulty": "NORMAL"
  }
}
</tool_code>

## 6. Dano (Somente via Tool)
<tool_code>
{ "action": "apply_damage", "type": "LIGHT" }
</tool_code>

## 7. Level Up (Extremamente Raro)
Somente após grandes arcos narrativos concluidos:
<tool_code>{ "action": "trigger_levelup" }</tool_code>

## 8. Diretrizes de Saida (Narrativa)
- Entregue narrativa fluida e objetiva.
- Sempre finalize com 3 a 5 opcoes claras.
- Nao inclua JSON na narrativa visivel.

## 9. Diretrizes Visuais (Imagens)
- Quando acionar imagem, use SOMENTE tags/keywords separadas por virgula.
- Nao escreva frases longas. Use estilo de prompt por tags.
- Exemplo bom: "Dark fantasy, oil painting, volumetric lighting, detailed armor, wide shot".
- Exemplo ruim: "Um cavaleiro em um castelo escuro...".

Formato recomendado para imagem:
<tool_code>
{
  "action": "generate_image",
  "params": {
    "prompt": "Dark fantasy, oil painting, volumetric lighting, detailed armor, wide shot"
  }
}
</tool_code>

## 10. Diretrizes de Saida (JSON)
- JSON estrito dentro de '<tool_code>'.
- Nunca misture calculo ou explicacao de regra no texto.
- Para acoes impossiveis, responda com um aviso sarcastico e NAO solicite rolagem.

## 11. Fluxo de Turno
1. Se for resposta a rolagem, narre a consequência imediatamente.
2. Atualize o mundo e ofereça escolhas.
3. No fim, inclua de 3 a 5 sugestões:
   ### Sugestões:
   - A) [Ação Sugerida 1]
   - B) [Ação Sugerida 2]
   - C) [Ação Sugerida 3]
`

const tableStatusTemplate = "\n\n## 7. Estado da Mesa\nStatus atual: %s.\n" +
	"- Se o status for 'waiting_for_players' ou 'paused', responda apenas com: \"[SISTEMA] Mesa em espera.\" e não avance a narrativa.\n" +
	"- A narrativa é compartilhada por todos os jogadores. NÃO invente fatos novos que contradigam o histórico.\n" +
	"- Personalize apenas o ponto de vista do personagem atual, mantendo a linha principal coesa.\n"

const povTemplate = "\n\n## 8. Multiplayer POV\nJogadores ativos: %s.\n" +
	"- Narre a mesma cena para todos, mas escreva um bloco de POV para cada jogador no formato:\n" +
	"  \"POV - <Nome>: ...\"\n" +
	"- As acoes de um jogador impactam o estado e as consequencias para os demais.\n" +
	"- Mantenha coesao entre os POVs, evitando contradicoes.\n"

// NoProfession подставляется, если профессия персонажа не задана.
const NoProfession = "Sem profissao definida"

// PromptContext - данные для системного промпта.
type PromptContext struct {
	Campaign  models.Campaign
	Character models.Character
	// Roster - имена принятых участников; блок POV добавляется, если их больше одного.
	Roster []string
}

// BuildSystemPrompt подставляет контекст кампании и персонажа в шаблон.
func BuildSystemPrompt(pc PromptContext) string {
	profession := strings.TrimSpace(pc.Character.Profession)
	if profession == "" {
		profession = NoProfession
	}
	replacer := strings.NewReplacer(
		"{{WORLD_HISTORY}}", pc.Campaign.WorldHistory,
		"{{GENERO}}", pc.Campaign.Genre,
		"{{TOM}}", pc.Campaign.Tone,
		"{{MAGIA}}", pc.Campaign.Magic,
		"{{TECH}}", pc.Campaign.Tech,
		"{{VISUAL_STYLE}}", pc.Campaign.VisualStyle,
		"{{CHAR_NAME}}", pc.Character.Name,
		"{{CHAR_APPEARANCE}}", pc.Character.Appearance,
		"{{CHAR_PROFESSION}}", profession,
		"{{CHAR_BACKSTORY}}", pc.Character.Backstory,
	)

	var b strings.Builder
	b.WriteString(replacer.Replace(systemPromptTemplate))
	fmt.Fprintf(&b, tableStatusTemplate, pc.Campaign.Status)
	if len(pc.Roster) > 1 {
		fmt.Fprintf(&b, povTemplate, strings.Join(pc.Roster, ", "))
	}
	return b.String()
}

const characterPrefix = "[PERSONAGEM:"

// FormatPlayerInput помечает ввод игрока именем персонажа, если пометки еще нет.
func FormatPlayerInput(characterName, text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, characterPrefix) || strings.TrimSpace(characterName) == "" {
		return trimmed
	}
	return fmt.Sprintf("%s %s] %s", characterPrefix, characterName, trimmed)
}

// HistoryFromEvents переводит журнал в историю для модели.
// Системные события и иллюстрации в историю не попадают; skipID исключает одно событие.
func HistoryFromEvents(events []models.SessionEvent, skipID string) []Message {
	history := make([]Message, 0, len(events))
	for _, ev := range events {
		if ev.ID == skipID && skipID != "" {
			continue
		}
		if ev.Role == models.RoleSystem || ev.Kind == models.EventKindImage {
			continue
		}
		role := RoleUser
		if ev.Role == models.RoleModel {
			role = RoleAssistant
		}
		history = append(history, Message{Role: role, Content: ev.Content})
	}
	return history
}
